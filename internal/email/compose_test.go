package email

import (
	"io"
	"log/slog"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestComposeMessage(t *testing.T) {
	msg, messageID, err := compose(
		"Reverie <reverie@example.com>",
		"user@example.com",
		"Daily summary",
		"# Hello\n\nToday I **remembered** something.",
	)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if messageID == "" {
		t.Error("empty message id")
	}

	raw := string(msg)
	for _, want := range []string{
		"reverie@example.com",
		"user@example.com",
		"Subject: Daily summary",
		"text/plain",
		"text/html",
		"<strong>remembered</strong>",
	} {
		if !strings.Contains(raw, want) {
			t.Errorf("message missing %q:\n%s", want, raw)
		}
	}
}

func TestComposeBadAddress(t *testing.T) {
	if _, _, err := compose("not an address <<", "user@example.com", "s", "b"); err == nil {
		t.Error("expected error for malformed from address")
	}
}

func TestMarkdownToPlain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"# Title\nbody", "Title\nbody\n"},
		{"**bold** and _em_", "bold and em\n"},
		{"[link](https://example.com)", "link (https://example.com)\n"},
		{"plain", "plain\n"},
	}

	for _, tt := range tests {
		if got := markdownToPlain(tt.in); got != tt.want {
			t.Errorf("markdownToPlain(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBareAddress(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Name <a@b.c>", "a@b.c"},
		{"a@b.c", "a@b.c"},
		{"  a@b.c  ", "a@b.c"},
	}
	for _, tt := range tests {
		if got := bareAddress(tt.in); got != tt.want {
			t.Errorf("bareAddress(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewClientUnconfigured(t *testing.T) {
	if _, err := NewClient(Config{}, testLogger()); err == nil {
		t.Error("expected error when no host configured")
	}
	if _, err := NewClient(Config{Host: "smtp.example.com"}, testLogger()); err == nil {
		t.Error("expected error when no sender configured")
	}
}
