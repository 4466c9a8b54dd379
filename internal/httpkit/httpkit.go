// Package httpkit builds the HTTP clients used for every outbound call.
// All clients share one pooled transport and stamp the product
// User-Agent on requests that do not already carry one.
package httpkit

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/reverie-agent/reverie/internal/buildinfo"
)

const (
	dialTimeout     = 10 * time.Second
	headerTimeout   = 15 * time.Second
	idleConnTimeout = 90 * time.Second
	maxIdlePerHost  = 5
)

var (
	sharedOnce      sync.Once
	sharedTransport http.RoundTripper
)

func transport() http.RoundTripper {
	sharedOnce.Do(func() {
		sharedTransport = &agentTransport{inner: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   dialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   dialTimeout,
			ResponseHeaderTimeout: headerTimeout,
			IdleConnTimeout:       idleConnTimeout,
			MaxIdleConnsPerHost:   maxIdlePerHost,
			ForceAttemptHTTP2:     true,
		}}
	})
	return sharedTransport
}

// NewClient returns a client on the shared transport. A zero timeout
// leaves the client without an overall deadline, for streaming reads.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: transport(),
	}
}

// agentTransport sets the User-Agent unless the caller chose one.
type agentTransport struct {
	inner http.RoundTripper
}

func (t *agentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		// Clone before mutating, per the RoundTripper contract.
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", buildinfo.UserAgent())
	}
	return t.inner.RoundTrip(req)
}

// ReadErrorBody captures up to limit bytes of a failed response body for
// error messages, draining the rest so the connection can be reused.
func ReadErrorBody(rc io.ReadCloser, limit int64) string {
	if rc == nil {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(rc, limit))
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 1024))
	rc.Close()
	if err != nil {
		return fmt.Sprintf("(failed to read error body: %v)", err)
	}
	return string(body)
}
