package search

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubProvider struct {
	name    string
	results []Result
	err     error
	calls   int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Search(_ context.Context, _ string, _ Options) ([]Result, error) {
	s.calls++
	return s.results, s.err
}

func TestManagerPrimaryFirst(t *testing.T) {
	primary := &stubProvider{name: "searxng", results: []Result{{Title: "hit"}}}
	backup := &stubProvider{name: "brave"}

	m := NewManager("searxng", testLogger())
	m.Register(backup)
	m.Register(primary)

	results, err := m.Query(context.Background(), "anything", Options{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 1 || results[0].Title != "hit" {
		t.Errorf("unexpected results: %+v", results)
	}
	if backup.calls != 0 {
		t.Error("backup provider should not be called when primary succeeds")
	}
}

func TestManagerFallback(t *testing.T) {
	primary := &stubProvider{name: "searxng", err: fmt.Errorf("connection refused")}
	backup := &stubProvider{name: "brave", results: []Result{{Title: "rescued"}}}

	m := NewManager("searxng", testLogger())
	m.Register(primary)
	m.Register(backup)

	results, err := m.Query(context.Background(), "anything", Options{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 1 || results[0].Title != "rescued" {
		t.Errorf("unexpected results: %+v", results)
	}
	if primary.calls != 1 {
		t.Errorf("primary calls = %d, want 1", primary.calls)
	}
}

func TestManagerAllFail(t *testing.T) {
	m := NewManager("searxng", testLogger())
	m.Register(&stubProvider{name: "searxng", err: fmt.Errorf("down")})
	m.Register(&stubProvider{name: "brave", err: fmt.Errorf("also down")})

	_, err := m.Query(context.Background(), "anything", Options{})
	if err == nil {
		t.Fatal("expected error when all providers fail")
	}
	if !strings.Contains(err.Error(), "searxng") || !strings.Contains(err.Error(), "brave") {
		t.Errorf("error should name tried providers, got: %v", err)
	}
}

func TestManagerUnconfigured(t *testing.T) {
	m := NewManager("searxng", testLogger())
	if m.Configured() {
		t.Error("Configured() = true for empty manager")
	}
	if _, err := m.Query(context.Background(), "q", Options{}); err == nil {
		t.Fatal("expected error for unconfigured manager")
	}
}

func TestSearchRendersList(t *testing.T) {
	m := NewManager("searxng", testLogger())
	m.Register(&stubProvider{name: "searxng", results: []Result{
		{Title: "Go", URL: "https://go.dev", Snippet: "the language"},
		{Title: "Docs", URL: "https://go.dev/doc"},
	}})

	out, err := m.Search(context.Background(), "golang")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, want := range []string{"1. Go", "https://go.dev", "the language", "2. Docs"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	m := NewManager("searxng", testLogger())
	m.Register(&stubProvider{name: "searxng"})
	if _, err := m.Search(context.Background(), "   "); err == nil {
		t.Fatal("expected error for empty query")
	}
}

func TestFormatResultsEmpty(t *testing.T) {
	if got := FormatResults(nil); got != "No results found." {
		t.Errorf("FormatResults(nil) = %q", got)
	}
}

func TestSearXNGParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("format"); got != "json" {
			t.Errorf("format param = %q, want json", got)
		}
		if got := r.URL.Query().Get("q"); got != "weather" {
			t.Errorf("q param = %q, want weather", got)
		}
		fmt.Fprint(w, `{"results":[
			{"title":"Forecast","url":"https://example.com/wx","content":"sunny"},
			{"title":"Radar","url":"https://example.com/radar","content":""}
		]}`)
	}))
	defer srv.Close()

	p := NewSearXNG(srv.URL)
	results, err := p.Search(context.Background(), "weather", Options{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].Title != "Forecast" || results[0].Snippet != "sunny" {
		t.Errorf("unexpected first result: %+v", results[0])
	}
}

func TestSearXNGCountLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results":[
			{"title":"a","url":"u1"},{"title":"b","url":"u2"},{"title":"c","url":"u3"}
		]}`)
	}))
	defer srv.Close()

	p := NewSearXNG(srv.URL)
	results, err := p.Search(context.Background(), "q", Options{Count: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("len(results) = %d, want 2", len(results))
	}
}

func TestSearXNGHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	p := NewSearXNG(srv.URL)
	if _, err := p.Search(context.Background(), "q", Options{}); err == nil {
		t.Fatal("expected error for HTTP 403")
	}
}
