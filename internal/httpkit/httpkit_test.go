package httpkit

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func echoUA(t *testing.T) (*httptest.Server, *string) {
	t.Helper()
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
	}))
	t.Cleanup(srv.Close)
	return srv, &ua
}

func TestNewClientStampsUserAgent(t *testing.T) {
	srv, ua := echoUA(t)

	resp, err := NewClient(5 * time.Second).Get(srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()

	if !strings.HasPrefix(*ua, "reverie/") {
		t.Errorf("User-Agent = %q, want reverie/ prefix", *ua)
	}
}

func TestExplicitUserAgentKept(t *testing.T) {
	srv, ua := echoUA(t)

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.Header.Set("User-Agent", "explicit/2.0")
	resp, err := NewClient(5 * time.Second).Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()

	if *ua != "explicit/2.0" {
		t.Errorf("User-Agent = %q, want explicit/2.0", *ua)
	}
}

func TestNewClientTimeout(t *testing.T) {
	if c := NewClient(5 * time.Second); c.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", c.Timeout)
	}
	if c := NewClient(0); c.Timeout != 0 {
		t.Errorf("Timeout = %v, want 0", c.Timeout)
	}
}

func TestClientsShareTransport(t *testing.T) {
	a := NewClient(time.Second)
	b := NewClient(time.Minute)
	if a.Transport != b.Transport {
		t.Error("clients should share one transport")
	}
}

func TestReadErrorBody(t *testing.T) {
	body := io.NopCloser(strings.NewReader("server exploded with a long explanation"))
	if got := ReadErrorBody(body, 15); got != "server exploded" {
		t.Errorf("ReadErrorBody = %q", got)
	}

	if got := ReadErrorBody(nil, 10); got != "" {
		t.Errorf("ReadErrorBody(nil) = %q, want empty", got)
	}
}
