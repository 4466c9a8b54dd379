package email

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/yuin/goldmark"
)

// compose builds a complete RFC 5322 MIME message. The markdown body
// becomes a multipart/alternative pair of text/plain and text/html
// parts. Returns the raw message and its generated Message-ID.
func compose(from, to, subject, body string) ([]byte, string, error) {
	var buf bytes.Buffer

	var h mail.Header
	h.SetDate(time.Now())
	if err := h.GenerateMessageID(); err != nil {
		return nil, "", fmt.Errorf("generate message-id: %w", err)
	}
	messageID, _ := h.MessageID()
	h.SetSubject(subject)

	fromAddr, err := mail.ParseAddress(from)
	if err != nil {
		return nil, "", fmt.Errorf("parse from address %q: %w", from, err)
	}
	h.SetAddressList("From", []*mail.Address{fromAddr})

	toAddr, err := mail.ParseAddress(to)
	if err != nil {
		return nil, "", fmt.Errorf("parse to address %q: %w", to, err)
	}
	h.SetAddressList("To", []*mail.Address{toAddr})

	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, "", fmt.Errorf("create mail writer: %w", err)
	}

	tw, err := mw.CreateInline()
	if err != nil {
		return nil, "", fmt.Errorf("create inline writer: %w", err)
	}

	var ph mail.InlineHeader
	ph.Set("Content-Type", "text/plain; charset=utf-8")
	pw, err := tw.CreatePart(ph)
	if err != nil {
		return nil, "", fmt.Errorf("create plain part: %w", err)
	}
	if _, err := io.WriteString(pw, markdownToPlain(body)); err != nil {
		return nil, "", fmt.Errorf("write plain part: %w", err)
	}
	if err := pw.Close(); err != nil {
		return nil, "", fmt.Errorf("close plain part: %w", err)
	}

	html, err := markdownToHTML(body)
	if err != nil {
		return nil, "", fmt.Errorf("render markdown: %w", err)
	}

	var hh mail.InlineHeader
	hh.Set("Content-Type", "text/html; charset=utf-8")
	hw, err := tw.CreatePart(hh)
	if err != nil {
		return nil, "", fmt.Errorf("create html part: %w", err)
	}
	if _, err := io.WriteString(hw, html); err != nil {
		return nil, "", fmt.Errorf("write html part: %w", err)
	}
	if err := hw.Close(); err != nil {
		return nil, "", fmt.Errorf("close html part: %w", err)
	}

	if err := tw.Close(); err != nil {
		return nil, "", fmt.Errorf("close inline writer: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close mail writer: %w", err)
	}

	return buf.Bytes(), messageID, nil
}

// markdownToHTML renders the body with goldmark.
func markdownToHTML(body string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(body), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var (
	mdHeading = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdEmph    = regexp.MustCompile(`(\*\*|__|\*|_)`)
	mdLink    = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
)

// markdownToPlain strips common markdown syntax for the text/plain
// part. Lossy on purpose; the HTML part carries the formatting.
func markdownToPlain(body string) string {
	out := mdHeading.ReplaceAllString(body, "")
	out = mdLink.ReplaceAllString(out, "$1 ($2)")
	out = mdEmph.ReplaceAllString(out, "")
	return strings.TrimSpace(out) + "\n"
}
