package detector

import (
	"strings"
	"testing"
	"time"

	"github.com/openhive/orch/internal/profiles"
)

func TestDetectFromOutput_Idle(t *testing.T) {
	p := profiles.Claude()
	snap := DetectFromOutput("Hello! I can help.\n\n> ", p, time.Unix(0, 0))
	if snap.State != profiles.StateIdle {
		t.Fatalf("state = %s, want idle", snap.State)
	}
	if snap.PatternID != "claude:idle" {
		t.Fatalf("pattern = %s, want claude:idle", snap.PatternID)
	}
}

func TestDetectFromOutput_Empty(t *testing.T) {
	p := profiles.Claude()
	snap := DetectFromOutput("", p, time.Unix(0, 0))
	if snap.State != profiles.StateStarting {
		t.Fatalf("state = %s, want starting", snap.State)
	}
}

func TestDetectFromOutput_WorkingThenStuck(t *testing.T) {
	p := profiles.Claude()
	t0 := time.Unix(0, 0)
	snap := DetectFromOutput("12s │ analyzing code...", p, t0)
	if snap.State != profiles.StateWorking {
		t.Fatalf("state = %s, want working", snap.State)
	}

	lastChange := t0.Add(-130 * time.Second)
	refined := RefineState(snap, lastChange, 120*time.Second, t0)
	if refined.State != profiles.StateStuck {
		t.Fatalf("refined state = %s, want stuck", refined.State)
	}
	if refined.PatternID != "stuck:no_output_change" {
		t.Fatalf("refined pattern = %s", refined.PatternID)
	}
}

func TestDetectFromOutput_WorkingNotYetStuck(t *testing.T) {
	p := profiles.Claude()
	t0 := time.Unix(0, 0)
	snap := DetectFromOutput("12s │ analyzing code...", p, t0)
	lastChange := t0.Add(-10 * time.Second)
	refined := RefineState(snap, lastChange, 120*time.Second, t0)
	if refined.State != profiles.StateWorking {
		t.Fatalf("refined state = %s, want working (not yet stuck)", refined.State)
	}
}

func TestDetectFromOutput_WindowedApprovalSuppression(t *testing.T) {
	p := profiles.Codex()
	var b strings.Builder
	b.WriteString("I confirmed the workspace and will create the file.\n")
	for i := 0; i < 15; i++ {
		b.WriteString("some filler narrative output line\n")
	}
	b.WriteString("? for shortcuts   97% context left")

	snap := DetectFromOutput(b.String(), p, time.Unix(0, 0))
	if snap.State != profiles.StateIdle {
		t.Fatalf("state = %s, want idle (approval must not hijack the window)", snap.State)
	}
}

func TestDetectFromOutput_PriorityRespected(t *testing.T) {
	// A priority-10 pattern (rate_limited) and a priority-1 pattern
	// (idle) both match; the priority-10 state must win.
	p := profiles.Claude()
	text := "rate limit reached, please wait\n> "
	snap := DetectFromOutput(text, p, time.Unix(0, 0))
	if snap.State != profiles.StateRateLimited {
		t.Fatalf("state = %s, want rate_limited", snap.State)
	}
}

func TestDetectFromOutput_NoMatchFallsBackToWorking(t *testing.T) {
	p := profiles.Claude()
	snap := DetectFromOutput("some unrecognizable streaming gibberish", p, time.Unix(0, 0))
	if snap.State != profiles.StateWorking {
		t.Fatalf("state = %s, want working", snap.State)
	}
	if snap.PatternID != "" {
		t.Fatalf("pattern id = %s, want empty for the no-match fallback", snap.PatternID)
	}
}

func TestDetectFromOutput_Deterministic(t *testing.T) {
	p := profiles.Claude()
	text := "Hello! I can help.\n\n> "
	now := time.Unix(100, 0)
	a := DetectFromOutput(text, p, now)
	b := DetectFromOutput(text, p, now)
	if a.State != b.State || a.PatternID != b.PatternID {
		t.Fatalf("detect_from_output is not deterministic: %+v vs %+v", a, b)
	}
}

func TestHasActivityAndIsComplete(t *testing.T) {
	p := profiles.Claude()
	if !HasActivity("12s │ working hard", p) {
		t.Error("expected activity pattern to match")
	}
	if HasActivity("nothing interesting here", p) {
		t.Error("expected no activity match")
	}
	if !IsComplete("Done! Task complete.", p) {
		t.Error("expected completion pattern to match")
	}
	if IsComplete("still working", p) {
		t.Error("expected no completion match")
	}
}
