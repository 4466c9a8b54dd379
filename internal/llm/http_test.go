package llm

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL, "", testLogger())
}

func TestGenerate(t *testing.T) {
	var captured chatRequest

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(chatResponse{
			Model:   "test-model",
			Message: Message{Role: "assistant", Content: "hello there"},
			Done:    true,
		})
	})

	reply, err := client.Generate(context.Background(), Request{
		Model:  "test-model",
		System: "you are terse",
		Messages: []Message{
			{Role: "user", Content: "hi"},
		},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if reply.Content != "hello there" {
		t.Errorf("Content = %q, want %q", reply.Content, "hello there")
	}
	if len(captured.Messages) != 2 {
		t.Fatalf("sent %d messages, want 2 (system + user)", len(captured.Messages))
	}
	if captured.Messages[0].Role != "system" || captured.Messages[0].Content != "you are terse" {
		t.Errorf("first message = %+v, want system prompt", captured.Messages[0])
	}
}

func TestGenerateServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})

	if _, err := client.Generate(context.Background(), Request{Model: "m"}); err == nil {
		t.Error("expected error for 503 response")
	}
}

func TestGenerateTemperature(t *testing.T) {
	var captured chatRequest

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		json.NewEncoder(w).Encode(chatResponse{Done: true})
	})

	temp := 0.2
	if _, err := client.Generate(context.Background(), Request{Model: "m", Temperature: &temp}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if captured.Options == nil || captured.Options.Temperature != 0.2 {
		t.Errorf("Options = %+v, want temperature 0.2", captured.Options)
	}
}
