// Package orcherr declares the sentinel error kinds from the error
// handling policy table, wrapped with fmt.Errorf("...: %w", ...) at
// each raise site the way every teacher package wraps errors.
package orcherr

import "errors"

var (
	// ErrMultiplexerUnavailable is fatal: the loop fails to start.
	ErrMultiplexerUnavailable = errors.New("multiplexer unavailable")

	// ErrTimeoutReady is raised by wait_for_ready. Spawn returns it
	// wrapped; the orchestrator logs the failed spawn, does not register
	// the worker, and leaves the task pending for a later tick. No worker
	// is marked error and no task is failed for it.
	ErrTimeoutReady = errors.New("timed out waiting for worker to become ready")

	// ErrPoolSaturated is soft: no decision is made, retried next tick.
	ErrPoolSaturated = errors.New("provider pool saturated")

	// ErrReasoningTimeout is treated as meta WAIT; after 3 occurrences for
	// the same worker since it last finished a task, the worker is marked
	// error and its assigned task fails.
	ErrReasoningTimeout = errors.New("reasoning agent timed out")

	// ErrReasoningMissing means no reasoning tool is configured at
	// startup; the orchestrator downgrades to manual mode.
	ErrReasoningMissing = errors.New("no reasoning tool configured")

	// ErrPersistenceFailure is logged at warn; in-memory state remains
	// authoritative for the run.
	ErrPersistenceFailure = errors.New("persistence failure")

	// ErrTaskFailed is propagated to the orchestrator and emitted as
	// task_failed.
	ErrTaskFailed = errors.New("task failed")
)
