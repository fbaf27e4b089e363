// Package detector classifies a terminal pane's rendered text into a
// worker state using a profiles.Profile. Every function here is pure:
// given the same (text, profile) it returns the same state, modulo the
// timestamp stamped on the snapshot — the determinism property §8
// requires of detect_from_output.
package detector

import (
	"strings"
	"time"

	"github.com/openhive/orch/internal/multiplexer"
	"github.com/openhive/orch/internal/profiles"
)

// Snapshot is the immutable record produced by a single detection pass:
// the classified state, the pattern that matched (if any), the pane
// text it was classified from (retained for reasoning context), and the
// time of classification.
type Snapshot struct {
	State      profiles.State
	PatternID  string // empty when no pattern matched (the "working" fallback)
	PaneOutput string
	Timestamp  time.Time
}

// DetectFromOutput classifies raw pane text against profile, following
// §4.3 exactly:
//  1. Strip ANSI. Empty text -> starting.
//  2. Scan patterns in priority order (ties broken by declaration
//     order); the first match (against the whole text or its
//     WindowLines tail) wins.
//  3. No match on non-empty text -> working (pessimistic default).
func DetectFromOutput(text string, profile *profiles.Profile, now time.Time) Snapshot {
	stripped := multiplexer.StripANSI(text)
	if strings.TrimSpace(stripped) == "" {
		return Snapshot{State: profiles.StateStarting, PaneOutput: text, Timestamp: now}
	}

	for _, pat := range profile.Sorted() {
		haystack := stripped
		if pat.WindowLines > 0 {
			haystack = lastNLines(stripped, pat.WindowLines)
		}
		if pat.Regex.MatchString(haystack) {
			return Snapshot{State: pat.State, PatternID: pat.ID, PaneOutput: text, Timestamp: now}
		}
	}

	return Snapshot{State: profiles.StateWorking, PaneOutput: text, Timestamp: now}
}

// RefineState promotes a "working" snapshot to "stuck" once
// now-lastChangeAt has reached stuckTimeout; every other state (and the
// matched pattern id, when one exists) passes through unchanged.
func RefineState(snap Snapshot, lastChangeAt time.Time, stuckTimeout time.Duration, now time.Time) Snapshot {
	if snap.State != profiles.StateWorking {
		return snap
	}
	if now.Sub(lastChangeAt) < stuckTimeout {
		return snap
	}
	return Snapshot{
		State:      profiles.StateStuck,
		PatternID:  "stuck:no_output_change",
		PaneOutput: snap.PaneOutput,
		Timestamp:  snap.Timestamp,
	}
}

// HasActivity reports whether any of the profile's activity patterns
// match text (ANSI-stripped). Used by the supervisor to update its
// last-output-change timestamp even when the classified state tag
// hasn't changed.
func HasActivity(text string, profile *profiles.Profile) bool {
	stripped := multiplexer.StripANSI(text)
	for _, re := range profile.ActivityPatterns {
		if re.MatchString(stripped) {
			return true
		}
	}
	return false
}

// IsComplete reports whether any of the profile's completion patterns
// match text (ANSI-stripped).
func IsComplete(text string, profile *profiles.Profile) bool {
	stripped := multiplexer.StripANSI(text)
	for _, re := range profile.CompletionPatterns {
		if re.MatchString(stripped) {
			return true
		}
	}
	return false
}

// lastNLines returns the last n newline-delimited lines of text (fewer
// if text has fewer lines), the scoping device that keeps a pattern
// window from being hijacked by stale narrative text earlier in the
// pane.
func lastNLines(text string, n int) string {
	lines := strings.Split(text, "\n")
	if len(lines) <= n {
		return text
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
