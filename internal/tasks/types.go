// internal/tasks/types.go
package tasks

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// Status is the task's position in its lifecycle. Status advances
// monotonically pending -> queued -> running -> (completed|failed|cancelled);
// only running may transition to itself; terminal states are immutable.
type Status string

const (
	StatusPending   Status = "pending"
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// validTransitions enumerates the lifecycle diagram from the data model.
var validTransitions = map[Status][]Status{
	StatusPending:   {StatusQueued, StatusCancelled},
	StatusQueued:    {StatusRunning, StatusCancelled},
	StatusRunning:   {StatusRunning, StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// IsTerminal reports whether s is one of the immutable terminal states.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Task is a unit of work submitted by a caller and carried through the
// queue, a worker, and the durable store.
type Task struct {
	ID             string     `json:"id"`
	Prompt         string     `json:"prompt"`
	RequestedAgent string     `json:"requested_agent,omitempty"`
	ProjectID      string     `json:"project_id,omitempty"`
	ContextFiles   []string   `json:"context_files,omitempty"`
	Status         Status     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	ExitCode       *int       `json:"exit_code,omitempty"`
	Stdout         string     `json:"stdout,omitempty"`
	Stderr         string     `json:"stderr,omitempty"`
	DurationMs     int64      `json:"duration_ms,omitempty"`
	WorktreePath   string     `json:"worktree_path,omitempty"`
	Branch         string     `json:"branch,omitempty"`
	ErrorReason    string     `json:"error_reason,omitempty"`

	// Extra holds any JSON object fields this struct doesn't model,
	// captured on load and rewritten verbatim on save so a task file
	// touched by a newer field set doesn't lose data on a round trip
	// through this process (§6, "unknown fields preserved on write").
	Extra map[string]json.RawMessage `json:"-"`
}

// taskAlias has Task's fields but none of its methods, so marshaling it
// doesn't recurse into Task's own MarshalJSON/UnmarshalJSON.
type taskAlias Task

// knownTaskFields lists the JSON object keys Task models directly; any
// other key present on load is preserved in Extra instead of discarded.
func knownTaskFields() map[string]bool {
	return map[string]bool{
		"id": true, "prompt": true, "requested_agent": true, "project_id": true,
		"context_files": true, "status": true, "created_at": true, "started_at": true,
		"completed_at": true, "exit_code": true, "stdout": true, "stderr": true,
		"duration_ms": true, "worktree_path": true, "branch": true, "error_reason": true,
	}
}

// MarshalJSON writes the modeled fields plus any captured Extra keys,
// with modeled fields taking precedence on a name collision.
func (t *Task) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal((*taskAlias)(t))
	if err != nil {
		return nil, fmt.Errorf("marshaling task fields: %w", err)
	}
	if len(t.Extra) == 0 {
		return base, nil
	}

	merged := make(map[string]json.RawMessage, len(t.Extra))
	for k, v := range t.Extra {
		merged[k] = v
	}
	var known map[string]json.RawMessage
	if err := json.Unmarshal(base, &known); err != nil {
		return nil, fmt.Errorf("re-decoding task fields: %w", err)
	}
	for k, v := range known {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// UnmarshalJSON decodes the modeled fields and stashes any remaining
// object keys in Extra.
func (t *Task) UnmarshalJSON(data []byte) error {
	var alias taskAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	known := knownTaskFields()
	var extra map[string]json.RawMessage
	for k, v := range raw {
		if known[k] {
			continue
		}
		if extra == nil {
			extra = make(map[string]json.RawMessage)
		}
		extra[k] = v
	}

	*t = Task(alias)
	t.Extra = extra
	return nil
}

// NewID generates an opaque 12-char URL-safe task identifier.
func NewID() string {
	buf := make([]byte, 9) // 9 bytes -> 12 base64url chars, no padding
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("t%011d", time.Now().UnixNano())[:12]
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

// New creates a pending task with a fresh id.
func New(prompt string) *Task {
	return &Task{
		ID:        NewID(),
		Prompt:    prompt,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
}

// CanTransition reports whether moving from the task's current status to
// newStatus is allowed by the lifecycle diagram.
func (t *Task) CanTransition(newStatus Status) bool {
	for _, s := range validTransitions[t.Status] {
		if s == newStatus {
			return true
		}
	}
	return false
}

// TransitionTo moves the task to newStatus, stamping the relevant
// timestamp, or returns an error if the transition isn't allowed.
func (t *Task) TransitionTo(newStatus Status, now time.Time) error {
	if t.Status.IsTerminal() {
		return fmt.Errorf("task %s: status %s is terminal, cannot transition to %s", t.ID, t.Status, newStatus)
	}
	if !t.CanTransition(newStatus) {
		return fmt.Errorf("task %s: invalid transition from %s to %s", t.ID, t.Status, newStatus)
	}
	t.Status = newStatus
	switch newStatus {
	case StatusRunning:
		if t.StartedAt == nil {
			st := now
			t.StartedAt = &st
		}
	case StatusCompleted, StatusFailed, StatusCancelled:
		ct := now
		t.CompletedAt = &ct
		if t.StartedAt != nil {
			t.DurationMs = ct.Sub(*t.StartedAt).Milliseconds()
		}
	}
	return nil
}
