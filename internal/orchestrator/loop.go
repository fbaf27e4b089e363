// Package orchestrator runs the control loop that ties every other
// package together: it advances each worker's Supervisor, escalates
// stuck or waiting workers to auto-approval or the reasoning bridge,
// dispatches pending tasks to idle or freshly spawned workers, and
// manages graceful shutdown. Grounded on the teacher's captain loop
// (internal/captain/supervisor.go's single status-polling goroutine)
// generalized from a fixed recon cadence onto the tick/backpressure
// cadence described for this orchestrator.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/openhive/orch/internal/bridge"
	"github.com/openhive/orch/internal/config"
	"github.com/openhive/orch/internal/dispatch"
	"github.com/openhive/orch/internal/events"
	"github.com/openhive/orch/internal/logging"
	"github.com/openhive/orch/internal/multiplexer"
	"github.com/openhive/orch/internal/orcherr"
	"github.com/openhive/orch/internal/profiles"
	"github.com/openhive/orch/internal/ratelimit"
	"github.com/openhive/orch/internal/supervisor"
	"github.com/openhive/orch/internal/tasks"
)

// Loop is the orchestrator's single control loop. One Loop owns every
// live Supervisor for the session.
type Loop struct {
	mu sync.Mutex

	cfg      *config.Config
	driver   multiplexer.Driver
	profiles *profiles.Registry
	queue    *tasks.Queue
	store    *tasks.Store
	tracker  *ratelimit.Tracker
	bridge   *bridge.Bridge
	bus      *events.Bus
	log      *logging.Logger
	now      func() time.Time
	pipeDir  string

	supervisors   map[string]*supervisor.Supervisor
	workerAgent   map[string]config.AgentConfig
	nextWorkerSeq int

	dispatchFreeTicks int
}

// New constructs a Loop. bridge may be nil (reasoning-tool-missing
// downgrade to manual mode, escalation falls back to auto-approve or
// no-op per workerState).
func New(cfg *config.Config, driver multiplexer.Driver, reg *profiles.Registry, queue *tasks.Queue, store *tasks.Store, tracker *ratelimit.Tracker, br *bridge.Bridge, bus *events.Bus, log *logging.Logger, now func() time.Time, pipeDir string) *Loop {
	if now == nil {
		now = time.Now
	}
	return &Loop{
		cfg:         cfg,
		driver:      driver,
		profiles:    reg,
		queue:       queue,
		store:       store,
		tracker:     tracker,
		bridge:      br,
		bus:         bus,
		log:         log.With("ORCH"),
		now:         now,
		pipeDir:     pipeDir,
		supervisors: map[string]*supervisor.Supervisor{},
		workerAgent: map[string]config.AgentConfig{},
	}
}

// Submit enqueues a new task for dispatch on a future tick.
func (l *Loop) Submit(t *tasks.Task) error {
	if err := l.queue.Add(t); err != nil {
		return err
	}
	return l.store.Save(t)
}

// Run drives the tick loop until ctx is cancelled, doubling the
// effective tick interval (capped at BackpressureCeilingMs) after each
// run of consecutive ticks that dispatched nothing, and resetting to
// the configured base interval the moment a tick dispatches again. No
// library models this policy cleanly (it's tied to a success/failure
// counter, not a steady rate), so it stays hand-rolled rather than
// going through golang.org/x/time/rate, which the Bridge already uses
// for its own, differently-shaped throttle.
func (l *Loop) Run(ctx context.Context) error {
	base := time.Duration(l.cfg.Orchestrator.TickIntervalMs) * time.Millisecond
	if base <= 0 {
		base = time.Second
	}
	ceiling := time.Duration(l.cfg.Orchestrator.BackpressureCeilingMs) * time.Millisecond
	if ceiling <= 0 {
		ceiling = 10 * time.Second
	}

	interval := base
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			if err := l.Tick(ctx); err != nil {
				l.log.Warnf("tick: %v", err)
			}
			interval = l.nextInterval(base, ceiling, interval)
			timer.Reset(interval)
		}
	}
}

func (l *Loop) nextInterval(base, ceiling, current time.Duration) time.Duration {
	l.mu.Lock()
	free := l.dispatchFreeTicks
	l.mu.Unlock()

	if free == 0 {
		return base
	}
	next := current * 2
	if next > ceiling {
		next = ceiling
	}
	return next
}

// Tick runs one full pass: advance workers, escalate stalled ones,
// dispatch pending tasks.
func (l *Loop) Tick(ctx context.Context) error {
	l.advanceWorkers(ctx)
	l.escalateStalled(ctx)
	dispatched := l.dispatchPending(ctx)

	l.mu.Lock()
	if dispatched == 0 {
		l.dispatchFreeTicks++
	} else {
		l.dispatchFreeTicks = 0
	}
	pending := l.queue.ListByStatus(tasks.StatusPending)
	workerCount := len(l.supervisors)
	l.mu.Unlock()

	l.log.Debugf("tick: %s pending, %s workers, %s dispatched this tick",
		humanize.Comma(int64(len(pending))), humanize.Comma(int64(workerCount)), humanize.Comma(int64(dispatched)))
	return nil
}

// advanceWorkers ticks every live supervisor, crediting the rate-limit
// tracker and persisting the task for any worker that completed or
// failed its assignment this tick.
func (l *Loop) advanceWorkers(ctx context.Context) {
	l.mu.Lock()
	ids := make([]string, 0, len(l.supervisors))
	for id := range l.supervisors {
		ids = append(ids, id)
	}
	l.mu.Unlock()

	for _, id := range ids {
		l.mu.Lock()
		sup, agent := l.supervisors[id], l.workerAgent[id]
		l.mu.Unlock()
		if sup == nil {
			continue
		}

		task, done, err := sup.Tick(ctx)
		if err != nil {
			l.log.Warnf("worker %s tick: %v", id, err)
			continue
		}
		if done && task != nil {
			l.finalizeTask(task, agent)
		}
	}
}

func (l *Loop) finalizeTask(task *tasks.Task, agent config.AgentConfig) {
	provider := agent.Provider
	if provider == "" {
		provider = agent.Name
	}
	if provider != "" {
		if err := l.tracker.RecordCompletion(provider, task.Status == tasks.StatusCompleted); err != nil {
			l.log.Warnf("recording completion for %s: %v", provider, err)
		}
	}
	if err := l.store.Save(task); err != nil {
		l.log.Warnf("persisting task %s: %v", task.ID, err)
	}
	_ = l.queue.Update(task)
}

// escalateStalled auto-approves or consults the reasoning bridge for
// every worker whose state has required a decision for at least
// EscalationDebounceMs since the last one.
func (l *Loop) escalateStalled(ctx context.Context) {
	debounce := time.Duration(l.cfg.Orchestrator.EscalationDebounceMs) * time.Millisecond

	l.mu.Lock()
	ids := make([]string, 0, len(l.supervisors))
	for id := range l.supervisors {
		ids = append(ids, id)
	}
	l.mu.Unlock()

	for _, id := range ids {
		l.mu.Lock()
		sup := l.supervisors[id]
		l.mu.Unlock()
		if sup == nil {
			continue
		}

		w := sup.Worker()
		switch w.Snapshot.State {
		case profiles.StateWaitingApproval, profiles.StateWaitingInput, profiles.StateStuck:
		default:
			continue
		}
		now := l.now()
		if !w.LastDecisionAt.IsZero() && now.Sub(w.LastDecisionAt) < debounce {
			continue
		}

		l.escalateOne(ctx, sup, w, now)
	}
}

func (l *Loop) escalateOne(ctx context.Context, sup *supervisor.Supervisor, w *supervisor.Worker, now time.Time) {
	defer sup.RecordDecision(now)

	if l.cfg.Orchestrator.AutoApprove && w.Snapshot.State == profiles.StateWaitingApproval {
		if err := sup.Approve(ctx); err != nil {
			l.log.Warnf("auto-approving worker %s: %v", w.ID, err)
		}
		return
	}

	if l.bridge == nil {
		return
	}

	taskPrompt := ""
	if w.Assigned != nil {
		taskPrompt = w.Assigned.Prompt
	}
	reasonCtx := bridge.BuildContext(w.Snapshot.State, taskPrompt, w.PipeFilePath, w.Snapshot.PaneOutput, l.cfg.Orchestrator.ReasoningContextLines)

	verdict, err := l.bridge.Decide(ctx, reasonCtx)
	if err != nil {
		if errors.Is(err, orcherr.ErrReasoningTimeout) {
			l.handleReasoningTimeout(sup, w, err)
			return
		}
		l.log.Warnf("reasoning decision for worker %s: %v", w.ID, err)
		return
	}

	l.applyVerdict(ctx, sup, w, verdict)
}

// handleReasoningTimeout implements §7's ReasoningTimeout policy: treat
// the failed call as a meta WAIT (no action this tick beyond the
// counter bump) and, once the same worker has timed out three times
// since it last finished a task, mark it error and fail its assigned
// task.
func (l *Loop) handleReasoningTimeout(sup *supervisor.Supervisor, w *supervisor.Worker, err error) {
	failures := sup.RecordReasoningFailure()
	l.log.Warnf("reasoning decision for worker %s timed out (%d failure(s) since its last finished task): %v", w.ID, failures, err)
	if failures < 3 {
		return
	}

	task, merr := sup.MarkError("reasoning agent timed out 3 times")
	if merr != nil {
		l.log.Warnf("marking worker %s error after repeated reasoning timeouts: %v", w.ID, merr)
		return
	}
	if task == nil {
		return
	}
	l.mu.Lock()
	agent := l.workerAgent[w.ID]
	l.mu.Unlock()
	l.finalizeTask(task, agent)
}

func (l *Loop) applyVerdict(ctx context.Context, sup *supervisor.Supervisor, w *supervisor.Worker, v bridge.Verdict) {
	if v.Type == bridge.VerdictText {
		if err := sup.SendLiteral(ctx, v.Text); err != nil {
			l.log.Warnf("forwarding reasoning text to worker %s: %v", w.ID, err)
		}
		return
	}

	switch v.Command {
	case bridge.CommandApprove:
		if err := sup.Approve(ctx); err != nil {
			l.log.Warnf("approving worker %s: %v", w.ID, err)
		}
	case bridge.CommandWait:
		// no-op this tick
	case bridge.CommandRestart:
		if err := sup.Restart(ctx); err != nil {
			l.log.Warnf("restarting worker %s: %v", w.ID, err)
		}
	case bridge.CommandDone, bridge.CommandFailed:
		task, err := sup.Complete(v.Command == bridge.CommandDone, "reasoning verdict: "+string(v.Command))
		if err != nil {
			l.log.Warnf("completing worker %s via verdict: %v", w.ID, err)
			return
		}
		l.mu.Lock()
		agent := l.workerAgent[w.ID]
		l.mu.Unlock()
		l.finalizeTask(task, agent)
	}
}

// dispatchPending calls dispatch.Decide over every pending task and
// assigns each decision to an idle matching worker, spawning a new one
// if capacity allows. Returns how many tasks were actually assigned
// this tick (a decision with no available worker leaves the task
// pending, to be retried next tick).
func (l *Loop) dispatchPending(ctx context.Context) int {
	pending := l.queue.ListByStatus(tasks.StatusPending)
	if len(pending) == 0 {
		return 0
	}
	decisions := dispatch.Decide(pending, l.cfg.Agents, l.tracker, l.cfg)

	assigned := 0
	for _, d := range decisions {
		provider := d.Agent.Provider
		if provider == "" {
			provider = d.Agent.Name
		}

		// Decide computed this decision against a single snapshot of the
		// tracker, so several decisions in the same batch can target the
		// same saturated provider (§8: active_count(p,t) must stay within
		// max_concurrent(p)). Re-check live, immediately before spending
		// a slot, since prior iterations of this very loop may have
		// pushed the provider to capacity via RecordDispatch below.
		if provider != "" && !l.tracker.CanDispatch(provider) {
			continue
		}

		sup, ok := l.findOrSpawnWorker(ctx, d.Agent)
		if !ok {
			continue
		}

		now := l.now()
		if err := d.Task.TransitionTo(tasks.StatusQueued, now); err != nil {
			l.log.Warnf("queuing task %s: %v", d.Task.ID, err)
			continue
		}
		_ = l.queue.Update(d.Task)
		_ = l.store.Save(d.Task)

		if err := sup.Assign(ctx, d.Task, now); err != nil {
			l.log.Warnf("assigning task %s to worker: %v", d.Task.ID, err)
			continue
		}
		if provider != "" {
			if err := l.tracker.RecordDispatch(provider); err != nil {
				l.log.Warnf("recording dispatch for %s: %v", provider, err)
			}
		}
		_ = l.queue.Update(d.Task)
		_ = l.store.Save(d.Task)
		assigned++
	}
	return assigned
}

// findOrSpawnWorker returns an idle supervisor already running agent's
// tool, or spawns a fresh one if max_workers allows.
func (l *Loop) findOrSpawnWorker(ctx context.Context, agent config.AgentConfig) (*supervisor.Supervisor, bool) {
	l.mu.Lock()
	for id, sup := range l.supervisors {
		if l.workerAgent[id].Name != agent.Name {
			continue
		}
		w := sup.Worker()
		if w.Stage == supervisor.StageIdle && w.Assigned == nil {
			l.mu.Unlock()
			return sup, true
		}
	}
	atCapacity := len(l.supervisors) >= l.cfg.Orchestrator.MaxWorkers
	l.mu.Unlock()
	if atCapacity {
		return nil, false
	}

	profile, ok := l.profiles.Get(agent.Name)
	if !ok {
		l.log.Warnf("no pattern profile registered for agent %s", agent.Name)
		return nil, false
	}

	l.mu.Lock()
	l.nextWorkerSeq++
	id := fmt.Sprintf("%s-%d", agent.Name, l.nextWorkerSeq)
	l.mu.Unlock()

	// A nil *events.Bus stored in the interface would not compare equal
	// to nil inside the supervisor, so pass a true nil when there is no bus.
	var pub supervisor.EventPublisher
	if l.bus != nil {
		pub = l.bus
	}
	sup := supervisor.New(id, l.driver, profile, l.log, l.now, pub, supervisor.Config{
		PipeDir:          l.pipeDir,
		StuckTimeout:     time.Duration(l.cfg.Orchestrator.StuckTimeoutMs) * time.Millisecond,
		ReadyTimeout:     time.Duration(l.cfg.Orchestrator.ApprovalTimeoutMs) * time.Millisecond,
		CapturePaneLines: 200,
	})
	if err := sup.Spawn(ctx); err != nil {
		l.log.Warnf("spawning worker for agent %s: %v", agent.Name, err)
		return nil, false
	}

	l.mu.Lock()
	l.supervisors[id] = sup
	l.workerAgent[id] = agent
	l.mu.Unlock()
	return sup, true
}

// Idle reports whether the loop currently has no pending tasks and no
// worker with an assigned task — the condition under which a caller
// may choose to let the process exit.
func (l *Loop) Idle() bool {
	if l.queue.Len() > 0 && len(l.queue.ListByStatus(tasks.StatusPending)) > 0 {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, sup := range l.supervisors {
		if sup.Worker().Assigned != nil {
			return false
		}
	}
	return true
}

// Shutdown cancels every worker's assigned task, flushes storage, and
// kills every window before killing the shared session.
func (l *Loop) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	sups := make([]*supervisor.Supervisor, 0, len(l.supervisors))
	for _, sup := range l.supervisors {
		sups = append(sups, sup)
	}
	l.mu.Unlock()

	var wg sync.WaitGroup
	for _, sup := range sups {
		wg.Add(1)
		go func(sup *supervisor.Supervisor) {
			defer wg.Done()
			assigned := sup.Worker().Assigned
			if err := sup.Shutdown(ctx); err != nil {
				l.log.Warnf("shutting down worker %s: %v", sup.Worker().ID, err)
			}
			if assigned != nil {
				_ = l.store.Save(assigned)
			}
		}(sup)
	}
	wg.Wait()

	return l.driver.KillSession(ctx)
}
