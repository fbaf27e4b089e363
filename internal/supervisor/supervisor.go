// Package supervisor owns one Worker's window, pipe-file, state
// snapshot, and assigned task, and exposes the spawn/assign/tick/
// approve/restart/complete operations of the worker-level state
// machine. Grounded on internal/captain/supervisor.go (singleton
// per-process lifecycle owner, mutex-guarded status) and
// internal/agents/spawner.go (spawn/stop side-effect sequencing),
// generalized off Windows/WezTerm process management onto the abstract
// multiplexer.Driver contract. One Supervisor manages exactly one
// Worker; the Orchestrator holds one Supervisor per live worker.
package supervisor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/openhive/orch/internal/detector"
	"github.com/openhive/orch/internal/events"
	"github.com/openhive/orch/internal/logging"
	"github.com/openhive/orch/internal/multiplexer"
	"github.com/openhive/orch/internal/orcherr"
	"github.com/openhive/orch/internal/profiles"
	"github.com/openhive/orch/internal/tasks"
)

// EventPublisher is the subset of *events.Bus the Supervisor needs to
// emit lifecycle events. Declared as an interface so tests can stub it
// without a real Bus.
type EventPublisher interface {
	Publish(event *events.Event)
}

// Config bundles the tunables a Supervisor needs from the orchestrator
// configuration.
type Config struct {
	PipeDir         string
	StuckTimeout    time.Duration
	ReadyTimeout    time.Duration
	ReadyPoll       time.Duration
	CapturePaneLines int
}

// Supervisor drives exactly one Worker through its lifecycle.
type Supervisor struct {
	mu sync.Mutex

	driver  multiplexer.Driver
	profile *profiles.Profile
	log     *logging.Logger
	now     func() time.Time
	bus     EventPublisher
	cfg     Config

	worker *Worker
}

// New constructs a Supervisor for a not-yet-spawned worker. Call Spawn
// before any other operation.
func New(id string, driver multiplexer.Driver, profile *profiles.Profile, log *logging.Logger, now func() time.Time, bus EventPublisher, cfg Config) *Supervisor {
	if cfg.ReadyTimeout == 0 {
		cfg.ReadyTimeout = 30 * time.Second
	}
	if cfg.ReadyPoll == 0 {
		cfg.ReadyPoll = 250 * time.Millisecond
	}
	if cfg.CapturePaneLines == 0 {
		cfg.CapturePaneLines = 200
	}
	return &Supervisor{
		driver:  driver,
		profile: profile,
		log:     log.With(id),
		now:     now,
		bus:     bus,
		cfg:     cfg,
		worker:  &Worker{ID: id, ToolName: profile.ToolName},
	}
}

// Worker returns the supervised worker record. Callers must not mutate
// it; it's exposed read-only for the orchestrator's dispatch/escalation
// logic.
func (s *Supervisor) Worker() *Worker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.worker
}

// Spawn ensures the session, creates the worker's window running the
// profile's launch command, starts piping its output to a per-worker
// log file, and waits for the tool's idle prompt before returning.
func (s *Supervisor) Spawn(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.driver.EnsureSession(ctx); err != nil {
		return fmt.Errorf("%w: %v", orcherr.ErrMultiplexerUnavailable, err)
	}

	target, err := s.driver.CreateWindow(ctx, s.worker.ID, s.profile.LaunchCommand)
	if err != nil {
		return fmt.Errorf("spawning worker %s: %w", s.worker.ID, err)
	}
	s.worker.Target = target

	pipePath := filepath.Join(s.cfg.PipeDir, s.worker.ID+".log")
	if err := s.driver.StartPipePane(ctx, target, pipePath); err != nil {
		s.log.Warnf("starting pipe pane for %s: %v", s.worker.ID, err)
	}
	s.worker.PipeFilePath = pipePath

	now := s.now()
	s.worker.CreatedAt = now
	s.worker.LastCheckAt = now
	s.worker.LastOutputChangeAt = now

	idlePattern, ok := s.profile.IdlePattern()
	if ok {
		if _, err := s.driver.WaitForReady(ctx, target, idlePattern, s.cfg.ReadyTimeout, s.cfg.ReadyPoll); err != nil {
			return fmt.Errorf("worker %s: %w", s.worker.ID, err)
		}
	}

	s.worker.Stage = StageIdle
	s.worker.Snapshot = detector.Snapshot{State: profiles.StateIdle, Timestamp: now}
	s.publish(events.EventWorkerCreated, "", "", nil)
	return nil
}

// Assign hands task to the worker. Precondition: the worker's last
// detected state is idle, waiting_input, or waiting_approval, and no
// task is currently assigned.
func (s *Supervisor) Assign(ctx context.Context, task *tasks.Task, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.worker.Assigned != nil {
		return fmt.Errorf("worker %s: already has an assigned task", s.worker.ID)
	}
	switch s.worker.Snapshot.State {
	case profiles.StateIdle, profiles.StateWaitingInput, profiles.StateWaitingApproval:
	default:
		return fmt.Errorf("worker %s: not assignable from state %s", s.worker.ID, s.worker.Snapshot.State)
	}

	if err := s.driver.SendText(ctx, s.worker.Target, task.Prompt); err != nil {
		return fmt.Errorf("assigning task %s to worker %s: %w", task.ID, s.worker.ID, err)
	}
	if err := task.TransitionTo(tasks.StatusRunning, now); err != nil {
		return err
	}

	s.worker.Assigned = task
	s.worker.AssignedAt = now
	s.worker.Stage = StageWorking
	s.worker.LastOutputChangeAt = now
	s.publish(events.EventTaskAssigned, "", task.ID, nil)
	return nil
}

// Tick captures the pane, runs the state detector, tracks output
// growth, refines stuck workers, and auto-finalizes the assigned task
// once the worker returns to idle or reports an error. It returns the
// task if this tick completed or failed one, so the caller (the
// Orchestrator) can credit the provider pool and persist the task.
func (s *Supervisor) Tick(ctx context.Context) (*tasks.Task, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.worker.Stage == StageDead {
		return nil, false, nil
	}

	now := s.now()
	text, err := s.driver.CapturePane(ctx, s.worker.Target, s.cfg.CapturePaneLines)
	if err != nil {
		return nil, false, fmt.Errorf("capturing worker %s pane: %w", s.worker.ID, err)
	}

	size := multiplexer.GetFileSize(s.worker.PipeFilePath)
	grew := size > s.worker.lastPipeSize
	s.worker.lastPipeSize = size

	snap := detector.DetectFromOutput(text, s.profile, now)
	if grew || detector.HasActivity(text, s.profile) {
		s.worker.LastOutputChangeAt = now
	}
	snap = detector.RefineState(snap, s.worker.LastOutputChangeAt, s.cfg.StuckTimeout, now)

	prev := s.worker.Snapshot.State
	s.worker.Snapshot = snap
	s.worker.LastCheckAt = now
	if snap.State != prev {
		s.publish(events.EventStateChanged, "", "", map[string]interface{}{"from": string(prev), "to": string(snap.State)})
	}

	if s.worker.Stage != StageWorking || s.worker.Assigned == nil {
		return nil, false, nil
	}

	switch {
	case snap.State == profiles.StateError:
		task, err := s.completeLocked(false, "tool reported an error", text)
		return task, true, err
	case snap.State == profiles.StateIdle || detector.IsComplete(text, s.profile):
		task, err := s.completeLocked(true, "", text)
		return task, true, err
	default:
		return nil, false, nil
	}
}

// RecordDecision stamps the worker's last-escalation-decision time, used
// by the orchestrator to enforce escalation_debounce_ms between
// reasoning-tool invocations for the same worker.
func (s *Supervisor) RecordDecision(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.worker.LastDecisionAt = now
}

// RecordReasoningFailure bumps the per-worker reasoning-timeout counter
// and returns the updated count, used by the orchestrator to implement
// §7's ReasoningTimeout policy ("increment a per-worker escalation-failure
// counter; after 3 failures mark worker error").
func (s *Supervisor) RecordReasoningFailure() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.worker.EscalationFailures++
	return s.worker.EscalationFailures
}

// MarkError forces the worker's detected state to error and fails any
// currently assigned task, the terminal step of §7's three-strike
// ReasoningTimeout policy.
func (s *Supervisor) MarkError(reason string) (*tasks.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.worker.Snapshot = detector.Snapshot{
		State:      profiles.StateError,
		PatternID:  "reasoning:timeout",
		PaneOutput: s.worker.Snapshot.PaneOutput,
		Timestamp:  s.now(),
	}
	if s.worker.Assigned == nil {
		return nil, nil
	}
	return s.completeLocked(false, reason, s.worker.Snapshot.PaneOutput)
}

// SendLiteral types text into the worker's window verbatim, used for
// free-text reasoning verdicts forwarded to the tool.
func (s *Supervisor) SendLiteral(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.driver.SendText(ctx, s.worker.Target, text)
}

// Approve sends the profile's affirmative key sequence.
func (s *Supervisor) Approve(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.driver.SendText(ctx, s.worker.Target, s.profile.ApproveKeys)
}

// Restart sends the profile's cancel key then re-submits the currently
// assigned task's prompt once.
func (s *Supervisor) Restart(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.driver.SendText(ctx, s.worker.Target, s.profile.CancelKeys); err != nil {
		return fmt.Errorf("restarting worker %s: %w", s.worker.ID, err)
	}
	if s.worker.Assigned == nil {
		return nil
	}
	return s.driver.SendText(ctx, s.worker.Target, s.worker.Assigned.Prompt)
}

// Complete finalizes the assigned task (success or failure), credits
// tasks-completed, and detaches the task so the worker returns to idle.
// Exposed for the orchestrator to call directly when escalation (rather
// than a detector transition) decides the outcome — e.g. a DONE/FAILED
// reasoning verdict.
func (s *Supervisor) Complete(success bool, reason string) (*tasks.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completeLocked(success, reason, s.worker.Snapshot.PaneOutput)
}

func (s *Supervisor) completeLocked(success bool, reason, output string) (*tasks.Task, error) {
	task := s.worker.Assigned
	if task == nil {
		return nil, fmt.Errorf("worker %s: no task assigned to complete", s.worker.ID)
	}
	now := s.now()
	s.worker.Stage = StageFinishing
	s.publish(events.EventStateChanged, "", "", nil)

	task.Stdout = tailLines(output, s.cfg.CapturePaneLines)
	if success {
		if err := task.TransitionTo(tasks.StatusCompleted, now); err != nil {
			return nil, err
		}
		zero := 0
		task.ExitCode = &zero
		s.publish(events.EventTaskCompleted, "", task.ID, nil)
	} else {
		task.ErrorReason = reason
		if err := task.TransitionTo(tasks.StatusFailed, now); err != nil {
			return nil, err
		}
		one := 1
		task.ExitCode = &one
		s.publish(events.EventTaskFailed, "", task.ID, map[string]interface{}{"reason": reason})
	}

	s.worker.TasksCompleted++
	s.worker.Assigned = nil
	s.worker.AssignedAt = time.Time{}
	s.worker.EscalationFailures = 0
	if success {
		s.worker.Stage = StageIdle
	} else {
		s.worker.Stage = StageIdle // worker itself is reusable even after a failed task
	}
	return task, nil
}

// Shutdown cancels any assigned task, kills the worker's window, and
// marks the worker dead. The caller still owns killing the session once
// every supervisor has shut down.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.worker.Assigned != nil {
		now := s.now()
		_ = s.worker.Assigned.TransitionTo(tasks.StatusCancelled, now)
	}
	s.worker.Stage = StageDead
	return s.driver.KillWindow(ctx, s.worker.Target)
}

func (s *Supervisor) publish(kind events.EventType, _ string, taskID string, extra map[string]interface{}) {
	if s.bus == nil {
		return
	}
	payload := map[string]interface{}{"worker_id": s.worker.ID}
	if taskID != "" {
		payload["task_id"] = taskID
	}
	for k, v := range extra {
		payload[k] = v
	}
	s.bus.Publish(events.NewEvent(kind, s.worker.ID, "orchestrator", events.PriorityNormal, payload))
}

// tailLines returns the last n lines of text, mirroring the detector's
// own window-tailing helper so task.Stdout never grows unbounded.
func tailLines(text string, n int) string {
	if n <= 0 {
		return text
	}
	lines := strings.Split(text, "\n")
	if len(lines) <= n {
		return text
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
