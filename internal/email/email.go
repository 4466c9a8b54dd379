// Package email provides the outbound email transport: composing a
// MIME message from a markdown body and delivering it over SMTP.
// Inbound email is deliberately not handled here.
package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// dialTimeout is the maximum time to establish an SMTP connection when
// the context carries no tighter deadline.
const dialTimeout = 30 * time.Second

// Config holds SMTP transport settings.
type Config struct {
	Host     string
	Port     int
	StartTLS bool
	Username string
	Password string
	// From is the sender address ("Name <addr@host>" or bare).
	From string
}

// Client is the narrow email sender consumed by the tool layer.
type Client struct {
	cfg    Config
	logger *slog.Logger
}

// NewClient creates an email client. Returns an error when the config
// is unusable so the caller can disable the capability once at startup.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("email: no SMTP host configured")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("email: no sender address configured")
	}
	if cfg.Port == 0 {
		cfg.Port = 465
	}
	return &Client{cfg: cfg, logger: logger.With("component", "email")}, nil
}

// Send composes and delivers one message, returning its Message-ID.
// The body is markdown; it is rendered into a multipart/alternative
// message with text/plain and text/html parts. Connections are
// ephemeral: each call opens and closes its own.
func (c *Client) Send(ctx context.Context, to, subject, body string) (string, error) {
	msg, messageID, err := compose(c.cfg.From, to, subject, body)
	if err != nil {
		return "", fmt.Errorf("compose: %w", err)
	}

	if err := c.deliver(ctx, to, msg); err != nil {
		return "", err
	}

	c.logger.Info("email sent", "to", to, "subject", subject, "message_id", messageID)
	return messageID, nil
}

// deliver speaks SMTP: dial (TLS or plain+STARTTLS), authenticate,
// MAIL FROM / RCPT TO / DATA, quit.
func (c *Client) deliver(ctx context.Context, to string, msg []byte) error {
	addr := net.JoinHostPort(c.cfg.Host, fmt.Sprintf("%d", c.cfg.Port))

	timeout := dialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	dialer := &net.Dialer{Timeout: timeout}

	var client *smtp.Client
	if c.cfg.StartTLS {
		// Port 587: connect plain, upgrade after EHLO.
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return fmt.Errorf("dial SMTP %s: %w", addr, err)
		}
		client, err = smtp.NewClient(conn, c.cfg.Host)
		if err != nil {
			conn.Close()
			return fmt.Errorf("create SMTP client on %s: %w", addr, err)
		}
	} else {
		// Port 465: implicit TLS from the first byte.
		tlsCfg := &tls.Config{ServerName: c.cfg.Host}
		conn, err := tls.DialWithDialer(dialer, "tcp", addr, tlsCfg)
		if err != nil {
			return fmt.Errorf("dial SMTPS %s: %w", addr, err)
		}
		client, err = smtp.NewClient(conn, c.cfg.Host)
		if err != nil {
			conn.Close()
			return fmt.Errorf("create SMTP client on %s: %w", addr, err)
		}
	}
	defer client.Close()

	if err := client.Hello("localhost"); err != nil {
		return fmt.Errorf("EHLO: %w", err)
	}

	if c.cfg.StartTLS {
		if err := client.StartTLS(&tls.Config{ServerName: c.cfg.Host}); err != nil {
			return fmt.Errorf("STARTTLS: %w", err)
		}
	}

	if c.cfg.Username != "" && c.cfg.Password != "" {
		auth := smtp.PlainAuth("", c.cfg.Username, c.cfg.Password, c.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("AUTH: %w", err)
		}
	}

	if err := client.Mail(bareAddress(c.cfg.From)); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	if err := client.Rcpt(bareAddress(to)); err != nil {
		return fmt.Errorf("RCPT TO %s: %w", to, err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close DATA: %w", err)
	}

	return client.Quit()
}

// bareAddress extracts "addr" from "Name <addr>" forms.
func bareAddress(s string) string {
	s = strings.TrimSpace(s)
	if end := strings.LastIndexByte(s, '>'); end > 0 {
		if start := strings.LastIndexByte(s[:end], '<'); start >= 0 {
			return s[start+1 : end]
		}
	}
	return s
}
