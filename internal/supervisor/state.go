package supervisor

// Stage is the worker-level lifecycle state, distinct from the
// detector-level state tag (profiles.State) the worker's pane currently
// shows. A worker can be in Stage "working" while the detector briefly
// reports "waiting_approval" mid-task, for instance.
type Stage string

const (
	StageIdle      Stage = "idle"
	StageWorking   Stage = "working"
	StageFinishing Stage = "finishing"
	StageFailed    Stage = "failed"
	StageDead      Stage = "dead"
)
