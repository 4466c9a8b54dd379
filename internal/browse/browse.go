package browse

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// evaluate runs a JavaScript expression in the page and returns its
// value decoded from the Runtime.evaluate result envelope.
func (c *Client) evaluate(ctx context.Context, expression string) (json.RawMessage, error) {
	var result struct {
		Result struct {
			Type        string          `json:"type"`
			Value       json.RawMessage `json:"value"`
			Description string          `json:"description"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text string `json:"text"`
		} `json:"exceptionDetails"`
	}
	params := map[string]any{
		"expression":    expression,
		"returnByValue": true,
	}
	if err := c.call(ctx, "Runtime.evaluate", params, &result); err != nil {
		return nil, err
	}
	if result.ExceptionDetails != nil {
		return nil, fmt.Errorf("page script failed: %s", result.ExceptionDetails.Text)
	}
	return result.Result.Value, nil
}

// evaluateString runs an expression expected to produce a string.
func (c *Client) evaluateString(ctx context.Context, expression string) (string, error) {
	raw, err := c.evaluate(ctx, expression)
	if err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("expected string result: %w", err)
	}
	return s, nil
}

// Navigate loads url in the page, waits for the document to finish
// loading, and returns the page title.
func (c *Client) Navigate(ctx context.Context, url string) (string, error) {
	var nav struct {
		FrameID   string `json:"frameId"`
		ErrorText string `json:"errorText"`
	}
	if err := c.call(ctx, "Page.navigate", map[string]any{"url": url}, &nav); err != nil {
		return "", err
	}
	if nav.ErrorText != "" {
		return "", fmt.Errorf("navigate %s: %s", url, nav.ErrorText)
	}

	if err := c.waitLoaded(ctx); err != nil {
		return "", err
	}

	title, err := c.evaluateString(ctx, "document.title")
	if err != nil {
		return "", err
	}
	c.logger.Info("page loaded", "url", url, "title", title)
	return title, nil
}

// waitLoaded polls document.readyState until the page is complete or
// ctx expires.
func (c *Client) waitLoaded(ctx context.Context) error {
	deadline := time.Now().Add(callTimeout)
	for {
		state, err := c.evaluateString(ctx, "document.readyState")
		if err != nil {
			return err
		}
		if state == "complete" || state == "interactive" {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("page load timed out (readyState %s)", state)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

// ExtractText returns the readable text of the current page, with
// scripts, styling, and navigation chrome stripped.
func (c *Client) ExtractText(ctx context.Context) (string, error) {
	raw, err := c.evaluateString(ctx, "document.documentElement.outerHTML")
	if err != nil {
		return "", err
	}
	_, text := extractHTML(raw)
	return text, nil
}

// Click clicks the first element matching the CSS selector.
func (c *Client) Click(ctx context.Context, selector string) error {
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return "missing";
		el.click();
		return "ok";
	})()`, jsString(selector))
	status, err := c.evaluateString(ctx, expr)
	if err != nil {
		return err
	}
	if status != "ok" {
		return fmt.Errorf("no element matches %q", selector)
	}
	return nil
}

// Type focuses the first element matching the CSS selector and sets
// its value, firing input events so framework bindings notice.
func (c *Client) Type(ctx context.Context, selector, text string) error {
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return "missing";
		el.focus();
		el.value = %s;
		el.dispatchEvent(new Event("input", {bubbles: true}));
		el.dispatchEvent(new Event("change", {bubbles: true}));
		return "ok";
	})()`, jsString(selector), jsString(text))
	status, err := c.evaluateString(ctx, expr)
	if err != nil {
		return err
	}
	if status != "ok" {
		return fmt.Errorf("no element matches %q", selector)
	}
	return nil
}

// Screenshot captures the current page as PNG and writes it to path.
func (c *Client) Screenshot(ctx context.Context, path string) error {
	var shot struct {
		Data string `json:"data"`
	}
	params := map[string]any{"format": "png"}
	if err := c.call(ctx, "Page.captureScreenshot", params, &shot); err != nil {
		return err
	}
	png, err := base64.StdEncoding.DecodeString(shot.Data)
	if err != nil {
		return fmt.Errorf("decode screenshot: %w", err)
	}
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return fmt.Errorf("write screenshot: %w", err)
	}
	c.logger.Info("screenshot saved", "path", path, "bytes", len(png))
	return nil
}

// jsString renders s as a JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
