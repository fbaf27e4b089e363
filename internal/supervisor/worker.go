package supervisor

import (
	"time"

	"github.com/openhive/orch/internal/detector"
	"github.com/openhive/orch/internal/tasks"
)

// Worker is the record the Supervisor owns for one live tool instance:
// its window, its pipe-file, the last state snapshot, and at most one
// assigned task. Generalized off internal/agents/spawner.go's per-agent
// tracking fields (pane id, counters) onto the abstract multiplexer
// target instead of a WezTerm pane id.
type Worker struct {
	ID       string
	ToolName string
	Target   string // "<session>:<window>"
	Stage    Stage

	Snapshot detector.Snapshot

	TasksCompleted int
	PipeFilePath   string

	lastPipeSize       int64
	LastCheckAt        time.Time
	LastOutputChangeAt time.Time
	CreatedAt          time.Time

	Assigned   *tasks.Task
	AssignedAt time.Time

	EscalationFailures int
	LastDecisionAt     time.Time
}
