// Package msggate bridges the agent to an MQTT broker. Outbound
// messages are published under a configurable topic prefix; inbound
// messages are accepted from a single allow-listed sender channel and
// handed to a callback.
package msggate

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/reverie-agent/reverie/internal/config"
)

// InboundFunc receives the text of an accepted inbound message and
// returns the reply to publish back on the sender's channel. An empty
// reply suppresses the response publish.
type InboundFunc func(ctx context.Context, text string) string

// Gateway manages the MQTT connection for the messaging channel.
// Construct with New, then call Start to connect.
type Gateway struct {
	cfg     config.MessagingConfig
	inbound InboundFunc
	logger  *slog.Logger
	cm      *autopaho.ConnectionManager
}

// New creates a Gateway but does not connect. It returns an error when
// messaging is not configured so the caller can disable the capability
// at startup.
func New(cfg config.MessagingConfig, inbound InboundFunc, logger *slog.Logger) (*Gateway, error) {
	if cfg.BrokerURL == "" {
		return nil, fmt.Errorf("messaging not configured: broker_url is empty")
	}
	return &Gateway{
		cfg:     cfg,
		inbound: inbound,
		logger:  logger.With("component", "msggate"),
	}, nil
}

// Start connects to the broker and, when an allowed sender is
// configured, subscribes to its inbound topic. It returns once the
// connection manager is running; reconnects happen in the background.
func (g *Gateway) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(g.cfg.BrokerURL)
	if err != nil {
		return fmt.Errorf("parse broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: g.cfg.Username,
		ConnectPassword: []byte(g.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   g.availabilityTopic(),
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			g.logger.Info("connected to broker", "broker", g.cfg.BrokerURL)
			g.publishAvailability(ctx, cm, "online")
			g.subscribeInbound(ctx, cm)
		},
		OnConnectError: func(err error) {
			g.logger.Warn("connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: g.cfg.ClientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				g.onPublish,
			},
		},
	}

	// Enable TLS for mqtts:// or ssl:// schemes.
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	g.cm = cm

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		// Don't fail startup; autopaho keeps retrying in the background.
		g.logger.Warn("initial connection timed out, will retry in background", "error", err)
	}
	return nil
}

// Stop publishes an offline availability message and disconnects.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.cm == nil {
		return nil
	}
	g.publishAvailability(ctx, g.cm, "offline")
	return g.cm.Disconnect(ctx)
}

// SendMessage publishes text to the named channel under the configured
// topic prefix.
func (g *Gateway) SendMessage(ctx context.Context, channel, text string) error {
	if g.cm == nil {
		return fmt.Errorf("messaging gateway not started")
	}
	topic := g.channelTopic(channel)
	if _, err := g.cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: []byte(text),
		QoS:     1,
	}); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	g.logger.Debug("message published", "channel", channel, "bytes", len(text))
	return nil
}

func (g *Gateway) subscribeInbound(ctx context.Context, cm *autopaho.ConnectionManager) {
	if g.cfg.AllowedSender == "" || g.inbound == nil {
		return
	}
	topic := g.inboundTopic(g.cfg.AllowedSender)
	if _, err := cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{
			{Topic: topic, QoS: 1},
		},
	}); err != nil {
		g.logger.Warn("inbound subscribe failed", "topic", topic, "error", err)
		return
	}
	g.logger.Info("inbound subscription active", "topic", topic, "sender", g.cfg.AllowedSender)
}

func (g *Gateway) onPublish(pr paho.PublishReceived) (bool, error) {
	sender, ok := g.acceptInbound(pr.Packet.Topic)
	if !ok {
		g.logger.Debug("inbound message rejected", "topic", pr.Packet.Topic)
		return false, nil
	}
	text := strings.TrimSpace(string(pr.Packet.Payload))
	if text == "" {
		return true, nil
	}
	g.logger.Info("inbound message accepted", "sender", sender, "bytes", len(text))

	// Handle outside the packet callback so slow replies don't stall
	// the paho read loop.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		reply := g.inbound(ctx, text)
		if reply == "" {
			return
		}
		if err := g.SendMessage(ctx, sender, reply); err != nil {
			g.logger.Warn("inbound reply publish failed", "sender", sender, "error", err)
		}
	}()
	return true, nil
}

// acceptInbound reports whether topic is the inbound topic of the
// allow-listed sender, returning the sender channel when it is. All
// other topics, including other senders' inbound topics, are rejected.
func (g *Gateway) acceptInbound(topic string) (string, bool) {
	if g.cfg.AllowedSender == "" {
		return "", false
	}
	if topic != g.inboundTopic(g.cfg.AllowedSender) {
		return "", false
	}
	return g.cfg.AllowedSender, true
}

// --- Topic helpers ---

func (g *Gateway) baseTopic() string {
	prefix := strings.TrimSuffix(g.cfg.TopicPrefix, "/")
	if prefix == "" {
		prefix = "reverie"
	}
	return prefix
}

func (g *Gateway) availabilityTopic() string {
	return g.baseTopic() + "/availability"
}

func (g *Gateway) channelTopic(channel string) string {
	return g.baseTopic() + "/" + strings.Trim(channel, "/")
}

func (g *Gateway) inboundTopic(sender string) string {
	return g.baseTopic() + "/inbound/" + strings.Trim(sender, "/")
}

func (g *Gateway) publishAvailability(ctx context.Context, cm *autopaho.ConnectionManager, status string) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   g.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		g.logger.Warn("availability publish failed", "status", status, "error", err)
	}
}
