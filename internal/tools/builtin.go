package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/reverie-agent/reverie/internal/graph"
	"github.com/reverie-agent/reverie/internal/memstore"
)

// Collaborator surfaces consumed by builtin tools. Narrow on purpose:
// the tool layer needs one operation from each, and fakes in tests
// stay trivial.
type (
	// EmailSender delivers one outbound message and returns its
	// Message-ID.
	EmailSender interface {
		Send(ctx context.Context, to, subject, body string) (string, error)
	}

	// Messenger pushes a text to a named channel.
	Messenger interface {
		SendMessage(ctx context.Context, channel, text string) error
	}

	// Searcher runs a web query and returns a rendered result list.
	Searcher interface {
		Search(ctx context.Context, query string) (string, error)
	}

	// Browser is the page-automation surface used by the browsing
	// tools. Navigate returns the page title.
	Browser interface {
		Navigate(ctx context.Context, url string) (string, error)
		ExtractText(ctx context.Context) (string, error)
		Click(ctx context.Context, selector string) error
		Type(ctx context.Context, selector, text string) error
		Screenshot(ctx context.Context, path string) error
	}
)

// Deps carries everything the builtin tools touch. Nil collaborator
// fields mean the capability is not configured; the tool stays
// registered and reports that instead of vanishing.
type Deps struct {
	Store     *memstore.Store
	Graph     *graph.Store
	Email     EmailSender
	Messenger Messenger
	Search    Searcher
	Browser   Browser
	Status    func() string
}

// browseMaxChars caps extracted page text fed back into the dialogue.
const browseMaxChars = 4000

// HeartbeatTools is the restricted registry surface handed to the
// autonomous cycle: no outbound messaging, no page automation.
var HeartbeatTools = []string{
	"REMEMBER", "NOTE_FACT", "ADD_TASK", "COMPLETE_TASK", "LIST_TASKS",
	"RECALL", "STATUS",
}

// NewBuiltinRegistry builds the full foreground tool registry.
func NewBuiltinRegistry(d Deps) *Registry {
	r := NewRegistry()

	r.Register(&Tool{
		Name:        "REMEMBER",
		Description: "store a lasting memory (args: the text to remember)",
		Handler: func(ctx context.Context, args string) (string, error) {
			if strings.TrimSpace(args) == "" {
				return "", fmt.Errorf("nothing to remember")
			}
			if err := d.Store.AddExperience(args, memstore.KindManual); err != nil {
				return "", err
			}
			return "Stored.", nil
		},
	})

	r.Register(&Tool{
		Name:        "NOTE_FACT",
		Description: "record a key=value fact (args: key = value)",
		Handler: func(ctx context.Context, args string) (string, error) {
			key, value, err := splitKeyValue(args)
			if err != nil {
				return "", err
			}
			if err := d.Store.AddFact(key, value); err != nil {
				return "", err
			}
			return fmt.Sprintf("Noted %s.", key), nil
		},
	})

	r.Register(&Tool{
		Name:        "ADD_TASK",
		Description: "create a pending task (args: description)",
		Handler: func(ctx context.Context, args string) (string, error) {
			if strings.TrimSpace(args) == "" {
				return "", fmt.Errorf("task description required")
			}
			id, err := d.Store.CreateTask(args)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Task created (%s).", id.String()[:8]), nil
		},
	})

	r.Register(&Tool{
		Name:        "COMPLETE_TASK",
		Description: "mark a task done (args: task id or prefix)",
		Handler: func(ctx context.Context, args string) (string, error) {
			task, err := d.Store.CompleteTask(strings.TrimSpace(args))
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Done: %s", task.Description), nil
		},
	})

	r.Register(&Tool{
		Name:        "LIST_TASKS",
		Description: "list open tasks (no args)",
		Handler: func(ctx context.Context, args string) (string, error) {
			tasks, err := d.Store.ListTasks(memstore.TaskPending)
			if err != nil {
				return "", err
			}
			if len(tasks) == 0 {
				return "No open tasks.", nil
			}
			var b strings.Builder
			fmt.Fprintf(&b, "%d open task(s):\n", len(tasks))
			for _, t := range tasks {
				fmt.Fprintf(&b, "- [%s] %s\n", t.ID.String()[:8], t.Description)
			}
			return b.String(), nil
		},
	})

	r.Register(&Tool{
		Name:        "RECALL",
		Description: "query associative memory (args: what to recall)",
		Handler: func(ctx context.Context, args string) (string, error) {
			out, err := d.Graph.Recall(args, 10)
			if err != nil {
				return "", err
			}
			if out == "" {
				return "Nothing comes to mind.", nil
			}
			return out, nil
		},
	})

	r.Register(&Tool{
		Name:        "SEARCH_WEB",
		Description: "search the web (args: query)",
		Handler: func(ctx context.Context, args string) (string, error) {
			if d.Search == nil {
				return "", fmt.Errorf("web search not configured")
			}
			return d.Search.Search(ctx, args)
		},
	})

	r.Register(&Tool{
		Name:        "BROWSE",
		Description: "open a web page and read it (args: url)",
		Handler: func(ctx context.Context, args string) (string, error) {
			if d.Browser == nil {
				return "", fmt.Errorf("browser not configured")
			}
			url := strings.TrimSpace(args)
			title, err := d.Browser.Navigate(ctx, url)
			if err != nil {
				return "", err
			}
			text, err := d.Browser.ExtractText(ctx)
			if err != nil {
				return "", err
			}
			if len(text) > browseMaxChars {
				text = text[:browseMaxChars] + "\n... (truncated)"
			}
			return fmt.Sprintf("%s\n\n%s", title, text), nil
		},
	})

	r.Register(&Tool{
		Name:        "CLICK",
		Description: "click an element on the open page (args: css selector)",
		Handler: func(ctx context.Context, args string) (string, error) {
			if d.Browser == nil {
				return "", fmt.Errorf("browser not configured")
			}
			sel := strings.TrimSpace(args)
			if sel == "" {
				return "", fmt.Errorf("expected: css selector")
			}
			if err := d.Browser.Click(ctx, sel); err != nil {
				return "", err
			}
			return fmt.Sprintf("Clicked %s.", sel), nil
		},
	})

	r.Register(&Tool{
		Name:        "TYPE_TEXT",
		Description: "type into an input on the open page (args: selector | text)",
		Handler: func(ctx context.Context, args string) (string, error) {
			if d.Browser == nil {
				return "", fmt.Errorf("browser not configured")
			}
			parts := strings.SplitN(args, "|", 2)
			if len(parts) != 2 {
				return "", fmt.Errorf("expected: selector | text")
			}
			sel := strings.TrimSpace(parts[0])
			if err := d.Browser.Type(ctx, sel, strings.TrimSpace(parts[1])); err != nil {
				return "", err
			}
			return fmt.Sprintf("Typed into %s.", sel), nil
		},
	})

	r.Register(&Tool{
		Name:        "SCREENSHOT",
		Description: "save a screenshot of the open page (args: file path)",
		Handler: func(ctx context.Context, args string) (string, error) {
			if d.Browser == nil {
				return "", fmt.Errorf("browser not configured")
			}
			path := strings.TrimSpace(args)
			if path == "" {
				return "", fmt.Errorf("expected: file path")
			}
			if err := d.Browser.Screenshot(ctx, path); err != nil {
				return "", err
			}
			return fmt.Sprintf("Saved screenshot to %s.", path), nil
		},
	})

	r.Register(&Tool{
		Name:        "SEND_EMAIL",
		Description: "send an email (args: to | subject | body)",
		Handler: func(ctx context.Context, args string) (string, error) {
			if d.Email == nil {
				return "", fmt.Errorf("email not configured")
			}
			parts := strings.SplitN(args, "|", 3)
			if len(parts) != 3 {
				return "", fmt.Errorf("expected: to | subject | body")
			}
			id, err := d.Email.Send(ctx,
				strings.TrimSpace(parts[0]),
				strings.TrimSpace(parts[1]),
				strings.TrimSpace(parts[2]))
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Sent (message id %s).", id), nil
		},
	})

	r.Register(&Tool{
		Name:        "SEND_MESSAGE",
		Description: "send a chat message (args: channel | text)",
		Handler: func(ctx context.Context, args string) (string, error) {
			if d.Messenger == nil {
				return "", fmt.Errorf("messaging not configured")
			}
			parts := strings.SplitN(args, "|", 2)
			if len(parts) != 2 {
				return "", fmt.Errorf("expected: channel | text")
			}
			channel := strings.TrimSpace(parts[0])
			if err := d.Messenger.SendMessage(ctx, channel, strings.TrimSpace(parts[1])); err != nil {
				return "", err
			}
			return fmt.Sprintf("Delivered to %s.", channel), nil
		},
	})

	r.Register(&Tool{
		Name:        "STATUS",
		Description: "report internal status (no args)",
		Handler: func(ctx context.Context, args string) (string, error) {
			if d.Status == nil {
				return "", fmt.Errorf("status not available")
			}
			return d.Status(), nil
		},
	})

	return r
}

// splitKeyValue parses "key = value" or "key: value" fact arguments.
func splitKeyValue(args string) (string, string, error) {
	for _, sep := range []string{"=", ":"} {
		if i := strings.Index(args, sep); i > 0 {
			key := strings.TrimSpace(args[:i])
			value := strings.TrimSpace(args[i+len(sep):])
			if key != "" && value != "" {
				return key, value, nil
			}
		}
	}
	return "", "", fmt.Errorf("expected: key = value")
}
