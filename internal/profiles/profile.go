// Package profiles holds the per-tool pattern tables the state detector
// matches rendered pane text against. A Pattern Profile is an ordered
// list of regexes tagged with a state and priority, plus two auxiliary
// regex sets used for activity/completion detection.
package profiles

import (
	"fmt"
	"regexp"
)

// State is a worker state tag, shared with package detector and
// supervisor (kept here, not in detector, so a Profile's patterns can
// reference it without an import cycle: detector imports profiles).
type State string

const (
	StateStarting         State = "starting"
	StateIdle             State = "idle"
	StateWorking          State = "working"
	StateWaitingApproval  State = "waiting_approval"
	StateWaitingInput     State = "waiting_input"
	StateRateLimited      State = "rate_limited"
	StateStuck            State = "stuck"
	StateError            State = "error"
	StateDead             State = "dead"
)

// Explanation returns the human-readable text included when building a
// reasoning context for a worker in this state.
func (s State) Explanation() string {
	switch s {
	case StateStarting:
		return "the tool is still launching and has not produced a recognizable prompt yet"
	case StateIdle:
		return "the tool is idle at its prompt, ready for the next instruction"
	case StateWorking:
		return "the tool is actively working on the current task"
	case StateWaitingApproval:
		return "the tool is asking for approval to proceed with an action"
	case StateWaitingInput:
		return "the tool is asking a clarifying question and waiting for a reply"
	case StateRateLimited:
		return "the tool reported it has been rate-limited by its provider"
	case StateStuck:
		return "the tool has shown no output change for longer than the stuck timeout"
	case StateError:
		return "the tool printed a fatal-error banner"
	case StateDead:
		return "the worker's window has been destroyed"
	default:
		return "unknown state"
	}
}

// Pattern is one regex entry in a profile: a named state tag, a priority
// (higher wins when several patterns match the same text), a compiled
// regex, and an optional window size restricting the match to the last
// WindowLines of text.
type Pattern struct {
	ID         string
	State      State
	Priority   int
	Regex      *regexp.Regexp
	WindowLines int // 0 = search the whole text
}

// Profile is the ordered pattern table for one tool, plus the two
// auxiliary regex sets used by has_activity/is_complete.
//
// LaunchCommand, ApproveKeys and CancelKeys are the tool-specific
// operational strings the Worker Supervisor needs beyond pattern
// matching: the shell command spawn() runs in the new window, and the
// literal keystrokes approve()/restart() send.
type Profile struct {
	ToolName           string
	Patterns           []Pattern
	ActivityPatterns   []*regexp.Regexp
	CompletionPatterns []*regexp.Regexp
	LaunchCommand      string
	ApproveKeys        string
	CancelKeys         string
}

// IdlePattern returns the profile's required idle pattern, used by
// spawn() as the wait_for_ready target.
func (p *Profile) IdlePattern() (*regexp.Regexp, bool) {
	for _, pat := range p.Patterns {
		if pat.State == StateIdle {
			return pat.Regex, true
		}
	}
	return nil, false
}

// Required priorities per §4.2, shared by the builtin profiles. Validate
// checks only that each required state has a pattern, not the priorities.
const (
	PriorityRateLimited     = 10
	PriorityWaitingApproval = 9
	PriorityWaitingInput    = 8
	PriorityError           = 7
	PriorityWorking         = 5
	PriorityIdle            = 1
)

// requiredStates are the six state tags every profile must cover.
var requiredStates = []State{
	StateRateLimited, StateWaitingApproval, StateWaitingInput,
	StateError, StateWorking, StateIdle,
}

// Validate checks that a profile carries at least one pattern for each
// required state, failing loudly rather than silently detecting nothing
// for a state the specification calls mandatory.
func (p *Profile) Validate() error {
	have := map[State]bool{}
	for _, pat := range p.Patterns {
		have[pat.State] = true
	}
	for _, s := range requiredStates {
		if !have[s] {
			return fmt.Errorf("profile %s: missing required pattern for state %s", p.ToolName, s)
		}
	}
	return nil
}

// Sorted returns the profile's patterns ordered by priority descending,
// then declaration order for ties — the tie-break order §4.2 specifies
// ("among same-priority matches, the earliest in the list wins").
func (p *Profile) Sorted() []Pattern {
	out := make([]Pattern, len(p.Patterns))
	copy(out, p.Patterns)
	// Stable sort preserves declaration order among equal priorities.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Priority > out[j-1].Priority; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// mustCompile panics when a builtin profile constructor runs with a
// malformed regex,
// the same "fail fast on a programmer error" stance the teacher takes
// for its own compile-time tables.
func mustCompile(expr string) *regexp.Regexp {
	return regexp.MustCompile(expr)
}

// compileOrError compiles a regex sourced from an operator-supplied YAML
// file, where a malformed pattern is a recoverable load error rather
// than a programmer mistake worth panicking over.
func compileOrError(expr string) (*regexp.Regexp, error) {
	return regexp.Compile(expr)
}
