// Command openhive runs the orchestrator control loop standalone: it
// loads the trusted configuration mapping, wires the multiplexer
// driver, pattern registry, task queue/store, rate-limit tracker, and
// reasoning bridge, then drives the loop until interrupted. It takes
// only the -config, -prompt and -agent flags; the full CLI front-end
// and the dashboard/TUI are not implemented here (see spec §1 scope);
// this is the minimal headless driver the core needs to actually run.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/nats-io/nats.go"

	"github.com/openhive/orch/internal/appctx"
	"github.com/openhive/orch/internal/bridge"
	"github.com/openhive/orch/internal/config"
	"github.com/openhive/orch/internal/events"
	"github.com/openhive/orch/internal/logging"
	"github.com/openhive/orch/internal/multiplexer"
	"github.com/openhive/orch/internal/orchestrator"
	"github.com/openhive/orch/internal/profiles"
	"github.com/openhive/orch/internal/ratelimit"
	"github.com/openhive/orch/internal/tasks"

	"golang.org/x/time/rate"
)

func main() {
	configPath := flag.String("config", "configs/openhive.yaml", "orchestrator configuration file")
	promptFlag := flag.String("prompt", "", "submit a single task prompt and run until it's done")
	agentFlag := flag.String("agent", "", "requested agent name for -prompt (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		cfg = config.Default()
		fmt.Fprintf(os.Stderr, "[MAIN] using defaults, could not load %s: %v\n", *configPath, err)
	}

	log := logging.New(logging.ParseLevel(cfg.LogLevel)).With("MAIN")

	if err := run(cfg, log, *promptFlag, *agentFlag); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logging.Logger, prompt, agent string) error {
	// appctx.Context bundles config/logger/clock explicitly rather than
	// reaching for package-level singletons (§9's redesign note); every
	// constructor below takes its pieces from ctx instead of a global.
	app := appctx.New(cfg, log)

	if err := os.MkdirAll(app.Config.TaskStorageDir, 0o755); err != nil {
		return fmt.Errorf("creating task storage dir: %w", err)
	}

	eventStore, closeDB, err := openEventStore(app.Config)
	if err != nil {
		return err
	}
	if closeDB != nil {
		defer closeDB()
	}
	bus := events.NewBus(eventStore, app.Log)

	driver := multiplexer.NewTmuxDriver(app.Config.SessionName, "", app.Log)
	if err := driver.EnsureSession(context.Background()); err != nil {
		return fmt.Errorf("ensuring multiplexer session: %w", err)
	}

	registry := profiles.Builtin()

	queue := tasks.NewQueue()
	store, err := tasks.NewStore(app.Config.TaskStorageDir, app.Log)
	if err != nil {
		return fmt.Errorf("opening task store: %w", err)
	}
	existing, err := store.LoadAll()
	if err != nil {
		app.Log.Warnf("loading persisted tasks: %v", err)
	}
	queue.LoadAll(existing)

	usageDir := filepath.Join(userConfigDir(), "usage")
	tracker, err := ratelimit.New(usageDir, app.Config.DailyLocation(), app.Config.Orchestrator.WeeklyWindowStartUTC, app.Clock(), app.Log)
	if err != nil {
		return fmt.Errorf("opening rate-limit tracker: %w", err)
	}
	for _, pool := range app.Config.Pools {
		windows := make([]ratelimit.Window, 0, len(pool.Windows))
		for _, w := range pool.Windows {
			windows = append(windows, ratelimit.Window{
				ID:               w.ID,
				Label:            w.Label,
				Type:             ratelimit.WindowType(w.Type),
				Duration:         time.Duration(w.DurationMs) * time.Millisecond,
				DefaultLimit:     w.DefaultLimit,
				ResetDescription: w.ResetDescription,
			})
		}
		tracker.Register(pool.Provider, pool.MaxConcurrent, pool.CooldownMs, windows)
	}

	reasoningBridge := buildBridge(app.Config, app.Log)

	pipeDir := filepath.Join(app.Config.TaskStorageDir, "pipes")
	if err := os.MkdirAll(pipeDir, 0o755); err != nil {
		return fmt.Errorf("creating pipe dir: %w", err)
	}

	loop := orchestrator.New(app.Config, driver, registry, queue, store, tracker, reasoningBridge, bus, app.Log, app.Clock(), pipeDir)

	if prompt != "" {
		t := tasks.New(prompt)
		if agent != "" {
			t.RequestedAgent = agent
		}
		if err := loop.Submit(t); err != nil {
			return fmt.Errorf("submitting task: %w", err)
		}
		app.Log.Infof("submitted task %s", t.ID)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		app.Log.Infof("shutdown requested")
	}()

	runErr := loop.Run(ctx)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := loop.Shutdown(shutdownCtx); err != nil {
		app.Log.Warnf("shutdown: %v", err)
	}
	if runErr != nil && runErr != context.Canceled {
		return runErr
	}
	return nil
}

// buildBridge selects the reasoning-tool launcher per the configured
// reasoningTool key, downgrading to a nil Bridge (manual mode, §7
// ReasoningMissing) when none is configured. "nats" selects the
// out-of-process NatsLauncher transport instead of spawning tool as a
// subprocess; any other value is the binary name exec'd per tick.
func buildBridge(cfg *config.Config, log *logging.Logger) *bridge.Bridge {
	tool := cfg.Orchestrator.ReasoningTool
	if tool == "" {
		log.Warnf("no reasoningTool configured, waiting_* states require manual intervention")
		return nil
	}

	var launcher bridge.Launcher
	if tool == "nats" {
		nl, err := buildNatsLauncher(cfg, log)
		if err != nil {
			log.Warnf("connecting reasoning nats launcher: %v, waiting_* states require manual intervention", err)
			return nil
		}
		launcher = nl
	} else {
		launcher = bridge.NewExecLauncher(tool)
	}

	limiter := rate.NewLimiter(rate.Every(time.Second), 1)
	return bridge.New(launcher, cfg.Orchestrator.ReasoningContextLines, limiter)
}

// buildNatsLauncher connects to the configured NATS server and wraps the
// connection in a bridge.NatsLauncher, the reasoningTool="nats" transport.
func buildNatsLauncher(cfg *config.Config, log *logging.Logger) (*bridge.NatsLauncher, error) {
	url := cfg.Orchestrator.ReasoningNatsURL
	if url == "" {
		url = nats.DefaultURL
	}
	subject := cfg.Orchestrator.ReasoningNatsSubject
	if subject == "" {
		subject = "openhive.reasoning"
	}

	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", url, err)
	}
	log.Infof("reasoning bridge connected to nats at %s, subject %s", url, subject)

	timeout := time.Duration(cfg.Orchestrator.ReasoningTimeoutMs) * time.Millisecond
	return bridge.NewNatsLauncher(conn, subject, timeout), nil
}

// openEventStore opens the SQLite-backed lifecycle event store under
// the task storage directory. Returns a nil store (in-memory-only bus,
// still functional) if the database can't be opened, per §7's
// PersistenceFailure policy: logged at warn, in-memory state stays
// authoritative for the run.
func openEventStore(cfg *config.Config) (events.EventStore, func() error, error) {
	dbPath := filepath.Join(cfg.TaskStorageDir, "events.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[MAIN] WARN: opening event store %s: %v\n", dbPath, err)
		return nil, nil, nil
	}
	store, err := events.NewSQLiteStore(db)
	if err != nil {
		db.Close()
		fmt.Fprintf(os.Stderr, "[MAIN] WARN: initializing event store schema: %v\n", err)
		return nil, nil, nil
	}
	return store, db.Close, nil
}

func userConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".openhive")
	}
	return filepath.Join(dir, "openhive")
}
