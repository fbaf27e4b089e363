package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/openhive/orch/internal/config"
	"github.com/openhive/orch/internal/logging"
	"github.com/openhive/orch/internal/multiplexer"
	"github.com/openhive/orch/internal/profiles"
	"github.com/openhive/orch/internal/ratelimit"
	"github.com/openhive/orch/internal/tasks"
)

func newTestLoop(t *testing.T, clock func() time.Time) (*Loop, *multiplexer.FakeDriver) {
	t.Helper()
	driver := multiplexer.NewFakeDriver()
	reg := profiles.Builtin()
	queue := tasks.NewQueue()
	store, err := tasks.NewStore(t.TempDir(), logging.New(logging.LevelSilent))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	tracker, err := ratelimit.New(t.TempDir(), nil, true, clock, logging.New(logging.LevelSilent))
	if err != nil {
		t.Fatalf("ratelimit.New: %v", err)
	}
	tracker.Register("claude", 2, 1000, nil)

	cfg := config.Default()
	cfg.Agents = []config.AgentConfig{{Name: "claude", Enabled: true, Provider: "claude"}}
	cfg.DefaultAgent = "claude"
	cfg.Orchestrator.MaxWorkers = 2
	cfg.Orchestrator.EscalationDebounceMs = 1000

	loop := New(cfg, driver, reg, queue, store, tracker, nil, nil, logging.New(logging.LevelSilent), clock, t.TempDir())
	return loop, driver
}

// assignViaSpawn runs one tick while concurrently seeding the fake
// window with the idle prompt, so the worker spawned during the tick
// finds its idle prompt while Spawn polls for readiness.
func assignViaSpawn(t *testing.T, loop *Loop, driver *multiplexer.FakeDriver, target string) {
	t.Helper()
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				driver.SetPane(target, "\n>   \n")
				time.Sleep(5 * time.Millisecond)
			}
		}
	}()
	err := loop.Tick(context.Background())
	close(stop)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
}

func TestDispatchSpawnsWorkerAndAssignsTask(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	loop, driver := newTestLoop(t, clock)

	task := tasks.New("add a test")
	if err := loop.Submit(task); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	assignViaSpawn(t, loop, driver, "default:claude-1")

	if task.Status != tasks.StatusRunning {
		t.Fatalf("task status = %s, want running", task.Status)
	}
	sent := driver.Sent["default:claude-1"]
	if len(sent) == 0 || sent[len(sent)-1] != task.Prompt {
		t.Fatalf("expected task prompt sent to worker, got %v", sent)
	}
}

func TestTickCompletesTaskWhenWorkerReturnsToIdle(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	loop, driver := newTestLoop(t, clock)

	task := tasks.New("add a test")
	_ = loop.Submit(task)

	assignViaSpawn(t, loop, driver, "default:claude-1")
	if task.Status != tasks.StatusRunning {
		t.Fatalf("status after assign = %s", task.Status)
	}

	driver.SetPane("default:claude-1", "\n>   \n")
	now = now.Add(time.Second)
	if err := loop.Tick(context.Background()); err != nil {
		t.Fatalf("second tick: %v", err)
	}
	if task.Status != tasks.StatusCompleted {
		t.Fatalf("status after return to idle = %s, want completed", task.Status)
	}
	if !loop.Idle() {
		t.Fatalf("loop should be idle once the only task has completed")
	}
}

func TestAutoApproveEscalatesWaitingApprovalWorker(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	loop, driver := newTestLoop(t, clock)
	loop.cfg.Orchestrator.AutoApprove = true

	task := tasks.New("do something that needs approval")
	_ = loop.Submit(task)
	assignViaSpawn(t, loop, driver, "default:claude-1")

	driver.SetPane("default:claude-1", "Do you want to proceed? (yes/no)")
	now = now.Add(time.Second)
	if err := loop.Tick(context.Background()); err != nil {
		t.Fatalf("escalation tick: %v", err)
	}

	sent := driver.Sent["default:claude-1"]
	if len(sent) == 0 || sent[len(sent)-1] != "y" {
		t.Fatalf("expected auto-approve keystroke sent, got %v", sent)
	}
}
