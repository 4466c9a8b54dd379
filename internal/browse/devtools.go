// Package browse drives a headless browser over its DevTools-protocol
// WebSocket endpoint. It exposes the small page-automation surface the
// agent's tools consume: navigate, read, click, type, screenshot.
package browse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// callTimeout bounds a single protocol round trip.
const callTimeout = 30 * time.Second

// Client manages the WebSocket connection to the browser's debugger
// endpoint. Construct with NewClient, then call Connect.
type Client struct {
	url    string
	conn   *websocket.Conn
	connMu sync.Mutex
	msgID  atomic.Int64

	// Response channels keyed by message ID.
	pending   map[int64]chan cdpResponse
	pendingMu sync.Mutex

	logger *slog.Logger
}

// cdpMessage is the generic protocol frame. Commands carry id, method,
// params; responses echo the id with result or error; events carry a
// method with no id.
type cdpMessage struct {
	ID     int64           `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *cdpError       `json:"error,omitempty"`
}

type cdpError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type cdpResponse struct {
	Result json.RawMessage
	Err    *cdpError
}

// NewClient creates a Client for the given debugger WebSocket URL
// (e.g., ws://localhost:9222/devtools/page/<id>). It returns an error
// when browsing is not configured so the caller can disable the
// capability at startup.
func NewClient(devtoolsURL string, logger *slog.Logger) (*Client, error) {
	if devtoolsURL == "" {
		return nil, fmt.Errorf("browser not configured: devtools_url is empty")
	}
	return &Client{
		url:     devtoolsURL,
		pending: make(map[int64]chan cdpResponse),
		logger:  logger.With("component", "browse"),
	}, nil
}

// Connect dials the debugger endpoint and starts the read loop.
func (c *Client) Connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		ReadBufferSize:  1024 * 1024,
		WriteBufferSize: 64 * 1024,
	}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial devtools endpoint: %w", err)
	}
	// Screenshots and full-page HTML can be large.
	conn.SetReadLimit(64 * 1024 * 1024)
	c.conn = conn

	go c.readLoop(conn)

	c.logger.Info("connected to browser", "url", c.url)
	return nil
}

// Close closes the WebSocket connection.
func (c *Client) Close() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// call sends one protocol command and decodes the matching response
// into result (which may be nil when the caller ignores the payload).
func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	id := c.msgID.Add(1)

	msg := map[string]any{
		"id":     id,
		"method": method,
	}
	if params != nil {
		msg["params"] = params
	}

	respCh := make(chan cdpResponse, 1)
	c.pendingMu.Lock()
	c.pending[id] = respCh
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	c.connMu.Lock()
	conn := c.conn
	var err error
	if conn == nil {
		err = fmt.Errorf("browser not connected")
	} else {
		err = conn.WriteJSON(msg)
	}
	c.connMu.Unlock()
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	select {
	case resp := <-respCh:
		if resp.Err != nil {
			return fmt.Errorf("%s: %s (code %d)", method, resp.Err.Message, resp.Err.Code)
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("%s: decode result: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(callTimeout):
		return fmt.Errorf("%s: timeout waiting for response", method)
	}
}

// readLoop dispatches responses to their waiting callers. Events
// (frames without an id) are logged at trace volume and dropped.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var msg cdpMessage
		if err := conn.ReadJSON(&msg); err != nil {
			c.logger.Debug("read loop ended", "error", err)
			c.failPending(err)
			return
		}

		if msg.ID == 0 {
			c.logger.Debug("browser event", "method", msg.Method)
			continue
		}

		c.pendingMu.Lock()
		ch, ok := c.pending[msg.ID]
		c.pendingMu.Unlock()
		if ok {
			ch <- cdpResponse{Result: msg.Result, Err: msg.Error}
		}
	}
}

// failPending unblocks callers waiting on a dead connection.
func (c *Client) failPending(err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		ch <- cdpResponse{Err: &cdpError{Message: err.Error()}}
		delete(c.pending, id)
	}
}
