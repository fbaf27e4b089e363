package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/openhive/orch/internal/logging"
	"github.com/openhive/orch/internal/multiplexer"
	"github.com/openhive/orch/internal/profiles"
	"github.com/openhive/orch/internal/tasks"
)

func newTestSupervisor(t *testing.T, driver *multiplexer.FakeDriver, clock func() time.Time) *Supervisor {
	t.Helper()
	return New("w1", driver, profiles.Claude(), logging.New(logging.LevelSilent), clock, nil, Config{
		PipeDir:      t.TempDir(),
		StuckTimeout: 2 * time.Minute,
		ReadyTimeout: time.Second,
		ReadyPoll:    5 * time.Millisecond,
	})
}

func TestSpawnWaitsForIdlePrompt(t *testing.T) {
	driver := multiplexer.NewFakeDriver()
	now := time.Unix(1_700_000_000, 0)
	sup := newTestSupervisor(t, driver, func() time.Time { return now })

	target := "default:w1"
	go func() {
		time.Sleep(10 * time.Millisecond)
		driver.SetPane(target, "> ")
	}()

	if err := sup.Spawn(context.Background()); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if sup.Worker().Stage != StageIdle {
		t.Fatalf("stage = %s, want idle", sup.Worker().Stage)
	}
}

func TestAssignRejectsWhenAlreadyAssigned(t *testing.T) {
	driver := multiplexer.NewFakeDriver()
	now := time.Unix(1_700_000_000, 0)
	sup := newTestSupervisor(t, driver, func() time.Time { return now })
	driver.SetPane("default:w1", "> ")
	if err := sup.Spawn(context.Background()); err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	t1 := tasks.New("first")
	if err := sup.Assign(context.Background(), t1, now); err != nil {
		t.Fatalf("first Assign: %v", err)
	}

	t2 := tasks.New("second")
	if err := sup.Assign(context.Background(), t2, now); err == nil {
		t.Fatal("expected error assigning a second task to a busy worker")
	}
}

func TestTickAutoCompletesOnReturnToIdle(t *testing.T) {
	driver := multiplexer.NewFakeDriver()
	now := time.Unix(1_700_000_000, 0)
	sup := newTestSupervisor(t, driver, func() time.Time { return now })
	target := "default:w1"
	driver.SetPane(target, "> ")
	if err := sup.Spawn(context.Background()); err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	task := tasks.New("do a thing")
	if err := sup.Assign(context.Background(), task, now); err != nil {
		t.Fatalf("Assign: %v", err)
	}

	driver.SetPane(target, "12s · analyzing code...")
	if _, done, err := sup.Tick(context.Background()); err != nil || done {
		t.Fatalf("mid-work tick: done=%v err=%v", done, err)
	}

	driver.SetPane(target, "> ")
	completed, done, err := sup.Tick(context.Background())
	if err != nil {
		t.Fatalf("completing tick: %v", err)
	}
	if !done || completed == nil {
		t.Fatalf("expected tick to complete the task, got done=%v completed=%v", done, completed)
	}
	if completed.Status != tasks.StatusCompleted {
		t.Fatalf("task status = %s, want completed", completed.Status)
	}
	if sup.Worker().Stage != StageIdle {
		t.Fatalf("worker stage = %s, want idle after completion", sup.Worker().Stage)
	}
	if sup.Worker().Assigned != nil {
		t.Fatal("expected worker to detach the task after completion")
	}
}

func TestTickFailsTaskOnErrorState(t *testing.T) {
	driver := multiplexer.NewFakeDriver()
	now := time.Unix(1_700_000_000, 0)
	sup := newTestSupervisor(t, driver, func() time.Time { return now })
	target := "default:w1"
	driver.SetPane(target, "> ")
	if err := sup.Spawn(context.Background()); err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	task := tasks.New("do a thing")
	if err := sup.Assign(context.Background(), task, now); err != nil {
		t.Fatalf("Assign: %v", err)
	}

	driver.SetPane(target, "fatal error: panic: nil pointer")
	failed, done, err := sup.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if !done || failed == nil || failed.Status != tasks.StatusFailed {
		t.Fatalf("expected failed task, got done=%v failed=%+v", done, failed)
	}
}
