package msggate

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/reverie-agent/reverie/internal/config"
)

func testGateway(t *testing.T, cfg config.MessagingConfig) *Gateway {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	g, err := New(cfg, nil, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func TestNewRequiresBroker(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := New(config.MessagingConfig{}, nil, logger); err == nil {
		t.Fatal("expected error for empty broker URL")
	}
}

func TestTopicConstruction(t *testing.T) {
	g := testGateway(t, config.MessagingConfig{
		BrokerURL:   "mqtt://localhost:1883",
		TopicPrefix: "agents/reverie/",
	})

	if got, want := g.channelTopic("family"), "agents/reverie/family"; got != want {
		t.Errorf("channelTopic = %q, want %q", got, want)
	}
	if got, want := g.inboundTopic("marisa"), "agents/reverie/inbound/marisa"; got != want {
		t.Errorf("inboundTopic = %q, want %q", got, want)
	}
	if got, want := g.availabilityTopic(), "agents/reverie/availability"; got != want {
		t.Errorf("availabilityTopic = %q, want %q", got, want)
	}
}

func TestTopicPrefixDefault(t *testing.T) {
	g := testGateway(t, config.MessagingConfig{BrokerURL: "mqtt://localhost:1883"})
	if got, want := g.channelTopic("ops"), "reverie/ops"; got != want {
		t.Errorf("channelTopic = %q, want %q", got, want)
	}
}

func TestAcceptInbound(t *testing.T) {
	g := testGateway(t, config.MessagingConfig{
		BrokerURL:     "mqtt://localhost:1883",
		TopicPrefix:   "reverie",
		AllowedSender: "marisa",
	})

	tests := []struct {
		topic      string
		wantSender string
		wantOK     bool
	}{
		{"reverie/inbound/marisa", "marisa", true},
		{"reverie/inbound/stranger", "", false},
		{"reverie/marisa", "", false},
		{"other/inbound/marisa", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		sender, ok := g.acceptInbound(tt.topic)
		if sender != tt.wantSender || ok != tt.wantOK {
			t.Errorf("acceptInbound(%q) = (%q, %v), want (%q, %v)",
				tt.topic, sender, ok, tt.wantSender, tt.wantOK)
		}
	}
}

func TestAcceptInboundNoAllowedSender(t *testing.T) {
	g := testGateway(t, config.MessagingConfig{BrokerURL: "mqtt://localhost:1883"})
	if _, ok := g.acceptInbound("reverie/inbound/anyone"); ok {
		t.Error("expected rejection when no sender is allow-listed")
	}
}

func TestSendMessageNotStarted(t *testing.T) {
	g := testGateway(t, config.MessagingConfig{BrokerURL: "mqtt://localhost:1883"})
	if err := g.SendMessage(context.Background(), "family", "hello"); err == nil {
		t.Fatal("expected error before Start")
	}
}
