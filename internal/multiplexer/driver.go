// Package multiplexer wraps an external terminal multiplexer binary (tmux)
// behind the narrow contract the rest of the orchestrator needs: ensure a
// session, create/kill windows, capture rendered pane text, send
// keystrokes, and pipe a pane's output to a file for tailing. Generalized
// from internal/wezterm/ops.go's WezTerm-specific singleton onto a
// tmux-driven backend, keeping the same rate-limited runCommand idiom.
package multiplexer

import (
	"context"
	"regexp"
	"time"
)

// Driver is the contract the rest of the orchestrator drives an external
// multiplexer through. Every operation that can block takes a context;
// TmuxDriver is the only production implementation, FakeDriver (in
// fake.go) exercises callers without a real tmux binary.
type Driver interface {
	// EnsureSession creates the orchestrator's session if absent. Idempotent.
	EnsureSession(ctx context.Context) error

	// CreateWindow creates a named window running command and returns its
	// "<session>:<window>" target.
	CreateWindow(ctx context.Context, name, command string) (string, error)

	// KillWindow destroys a window. Idempotent: killing an absent window
	// is not an error.
	KillWindow(ctx context.Context, target string) error

	// KillSession destroys the whole session. Idempotent.
	KillSession(ctx context.Context) error

	// CapturePane returns the rendered, ANSI-coloured text of a pane's
	// visible buffer. lines <= 0 captures the visible pane only; lines > 0
	// also includes up to N lines of scrollback above it.
	CapturePane(ctx context.Context, target string, lines int) (string, error)

	// SendText types text into target followed by the confirmation key.
	SendText(ctx context.Context, target, text string) error

	// StartPipePane attaches a byte-for-byte pipe of all future pane
	// output to filePath. Safe to call before filePath exists.
	StartPipePane(ctx context.Context, target, filePath string) error

	// WaitForReady polls CapturePane until strip_ansi(text) matches
	// pattern or maxWait elapses, returning orcherr.ErrTimeoutReady on
	// timeout.
	WaitForReady(ctx context.Context, target string, pattern *regexp.Regexp, maxWait, poll time.Duration) (string, error)
}
