// Reverie is a long-running conversational agent with bounded working
// memory. It consolidates its conversation buffer into durable memory
// when the context budget runs out, recalls from an associative
// knowledge graph, and acts through a small tool set.
//
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	reverie serve            Run the resident agent
//	reverie ask <question>   Ask a single question and exit
//	reverie status           Print memory and graph state
//	reverie version          Print version and build information
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/reverie-agent/reverie/internal/agent"
	"github.com/reverie-agent/reverie/internal/browse"
	"github.com/reverie-agent/reverie/internal/buildinfo"
	"github.com/reverie-agent/reverie/internal/config"
	"github.com/reverie-agent/reverie/internal/email"
	"github.com/reverie-agent/reverie/internal/graph"
	"github.com/reverie-agent/reverie/internal/heartbeat"
	"github.com/reverie-agent/reverie/internal/llm"
	"github.com/reverie-agent/reverie/internal/memstore"
	"github.com/reverie-agent/reverie/internal/msggate"
	"github.com/reverie-agent/reverie/internal/schedule"
	"github.com/reverie-agent/reverie/internal/search"
	"github.com/reverie-agent/reverie/internal/sleep"
	"github.com/reverie-agent/reverie/internal/stream"
	"github.com/reverie-agent/reverie/internal/tools"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// main constructs the OS-level environment and delegates to [run] so
// the full lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Arguments are parsed by hand; the flag
// package's package-level globals get in the way of calling run()
// concurrently from tests, and the argument surface is small.
func run(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	var configPath string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s (see -help)", args[i])
			}
		}
	}

	switch command {
	case "version":
		fmt.Fprintln(stdout, buildinfo.String())
		return nil
	case "", "help":
		return printUsage(stdout)
	}

	// Secrets may live in a .env next to the binary; absence is fine.
	_ = godotenv.Load()

	path, err := config.FindConfig(configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := config.NewLogger(stderr, level)
	logger.Info("starting", "version", buildinfo.Version, "config", path)

	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.close()

	switch command {
	case "serve":
		return app.serve(ctx, stdout)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: reverie ask <question>")
		}
		return app.ask(ctx, stdout, strings.Join(cmdArgs, " "))
	case "status":
		fmt.Fprintln(stdout, app.core.Status().String())
		return nil
	default:
		return fmt.Errorf("unknown command: %s (see -help)", command)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprint(w, `reverie - bounded-memory conversational agent

Usage:
  reverie [-config path] serve            Run the resident agent
  reverie [-config path] ask <question>   Ask a single question and exit
  reverie [-config path] status           Print memory and graph state
  reverie version                         Print version information
`)
	return nil
}

// app bundles the wired components for the serve/ask commands.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	core    *agent.Core
	sched   *schedule.Scheduler
	gateway *msggate.Gateway
	browser *browse.Client
	hb      *heartbeat.Heartbeat
	closeFn func()
}

func (a *app) close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// buildApp wires the full component graph. Collaborators with missing
// configuration are disabled with a single log line, never a crash.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := memstore.Open(filepath.Join(cfg.DataDir, "reverie.db"))
	if err != nil {
		return nil, err
	}

	store, err := memstore.NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	g, err := graph.NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	client := llm.NewHTTPClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, logger)
	sched := schedule.New(client, schedule.Config{
		MinSpacing:   cfg.Scheduler.MinSpacing,
		DedupWindow:  cfg.Scheduler.DedupWindow,
		CallTimeout:  cfg.Scheduler.CallTimeout,
		LockTimeout:  cfg.Scheduler.LockTimeout,
		Model:        cfg.LLM.Model,
		UtilityModel: cfg.LLM.UtilityModel,
	}, schedule.RealClock(), logger)

	st := stream.New(filepath.Join(cfg.DataDir, "stream.json"), logger)

	sift := func(ctx context.Context, prompt string) string {
		return sched.Schedule(ctx, schedule.Request{
			Purpose:  schedule.PurposeAnalytical,
			Messages: []llm.Message{{Role: "user", Content: prompt}},
		})
	}
	sleeper := sleep.New(st, store, g, sift, sleep.Config{
		RollingOverlap: cfg.Budget.RollingOverlap,
		FallbackKeep:   cfg.Budget.FallbackKeep,
		SnapshotDir:    filepath.Join(cfg.DataDir, "snapshots"),
	}, logger)

	extractor := graph.NewExtractor(g, func(ctx context.Context, prompt string) string {
		return sched.Schedule(ctx, schedule.Request{
			Purpose:  schedule.PurposeClassification,
			Messages: []llm.Message{{Role: "user", Content: prompt}},
		})
	}, logger)

	// Optional collaborators.
	var mailer tools.EmailSender
	if m, err := email.NewClient(email.Config{
		Host:     cfg.Email.Host,
		Port:     cfg.Email.Port,
		StartTLS: cfg.Email.StartTLS,
		Username: cfg.Email.Username,
		Password: cfg.Email.Password,
		From:     cfg.Email.From,
	}, logger); err != nil {
		logger.Info("email disabled", "reason", err)
	} else {
		mailer = m
	}

	var searcher tools.Searcher
	mgr := search.NewManager(cfg.Search.Provider, logger)
	if cfg.Search.SearXNGURL != "" {
		mgr.Register(search.NewSearXNG(cfg.Search.SearXNGURL))
	}
	if cfg.Search.BraveAPIKey != "" {
		mgr.Register(search.NewBrave(cfg.Search.BraveAPIKey))
	}
	if mgr.Configured() {
		searcher = mgr
	} else {
		logger.Info("web search disabled", "reason", "no provider configured")
	}

	var browser *browse.Client
	var browserDep tools.Browser
	if b, err := browse.NewClient(cfg.Browser.DevToolsURL, logger); err != nil {
		logger.Info("browser disabled", "reason", err)
	} else if err := b.Connect(ctx); err != nil {
		logger.Warn("browser disabled", "reason", err)
	} else {
		browser = b
		browserDep = b
	}

	// The gateway and status tool need the core; the core needs the
	// registry. Late-bound closures break the cycle.
	var core *agent.Core

	var gateway *msggate.Gateway
	var messenger tools.Messenger
	gw, err := msggate.New(cfg.Messaging, func(ctx context.Context, text string) string {
		reply, err := core.HandleMessage(ctx, text)
		if err != nil {
			logger.Error("inbound message failed", "error", err)
			return ""
		}
		return reply
	}, logger)
	if err != nil {
		logger.Info("messaging disabled", "reason", err)
	} else {
		gateway = gw
		messenger = gw
	}

	registry := tools.NewBuiltinRegistry(tools.Deps{
		Store:     store,
		Graph:     g,
		Email:     mailer,
		Messenger: messenger,
		Search:    searcher,
		Browser:   browserDep,
		Status:    func() string { return core.Status().String() },
	})

	core = agent.New(agent.Config{
		Persona:       cfg.Persona,
		ContextTokens: cfg.Budget.ContextTokens,
	}, agent.Deps{
		Stream:    st,
		Store:     store,
		Graph:     g,
		Extractor: extractor,
		Caller:    sched,
		Sleeper:   sleeper,
		Registry:  registry,
	}, logger)

	var hb *heartbeat.Heartbeat
	if cfg.Heartbeat.Enabled {
		hb = heartbeat.New(heartbeat.Config{
			Interval:   cfg.Heartbeat.Interval,
			IdleWindow: cfg.Heartbeat.IdleWindow,
		}, heartbeat.Deps{
			Caller:       sched,
			Registry:     registry.Subset(tools.HeartbeatTools...),
			Store:        store,
			Graph:        g,
			LastActivity: core.LastActivity,
			Persona:      cfg.Persona,
		}, logger)
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		core:    core,
		sched:   sched,
		gateway: gateway,
		browser: browser,
		hb:      hb,
		closeFn: func() {
			if browser != nil {
				browser.Close()
			}
			db.Close()
		},
	}, nil
}

// serve runs the resident agent until SIGINT/SIGTERM.
func (a *app) serve(ctx context.Context, stdout io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.gateway != nil {
		if err := a.gateway.Start(ctx); err != nil {
			return fmt.Errorf("start messaging gateway: %w", err)
		}
	}
	if a.hb != nil {
		go a.hb.Start(ctx)
	}

	a.logger.Info("agent running",
		"messaging", a.gateway != nil,
		"heartbeat", a.hb != nil,
	)
	fmt.Fprintln(stdout, "reverie is running; press Ctrl-C to stop")

	<-ctx.Done()
	a.logger.Info("shutting down")

	if a.gateway != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.gateway.Stop(stopCtx); err != nil {
			a.logger.Warn("gateway stop failed", "error", err)
		}
	}
	return nil
}

// ask handles a single question and prints the reply.
func (a *app) ask(ctx context.Context, stdout io.Writer, question string) error {
	reply, err := a.core.HandleMessage(ctx, question)
	if err != nil {
		return err
	}
	if reply == "" {
		reply = "(no reply)"
	}
	fmt.Fprintln(stdout, reply)
	return nil
}
