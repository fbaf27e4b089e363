package multiplexer

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/openhive/orch/internal/logging"
	"github.com/openhive/orch/internal/orcherr"
)

// TmuxDriver drives a real tmux binary. It keeps the rate-limiting shape
// of internal/wezterm/ops.Ops (a singleton-friendly struct guarding a
// minimum interval between pane operations and a per-command timeout),
// generalized from WezTerm's "wezterm.exe cli ..." subcommands onto
// tmux's, and from WezTerm's numeric pane ids onto the
// "<session>:<window>[.<pane>]" target syntax the specification requires.
type TmuxDriver struct {
	mu             sync.Mutex
	lastOp         time.Time
	minOpInterval  time.Duration
	commandTimeout time.Duration

	session string
	binary  string
	log     *logging.Logger
}

// NewTmuxDriver creates a driver for the named tmux session. binary
// defaults to "tmux" if empty.
func NewTmuxDriver(session, binary string, log *logging.Logger) *TmuxDriver {
	if binary == "" {
		binary = "tmux"
	}
	return &TmuxDriver{
		minOpInterval:  150 * time.Millisecond,
		commandTimeout: 10 * time.Second,
		session:        session,
		binary:         binary,
		log:            log.With("MUX"),
	}
}

func (d *TmuxDriver) waitForInterval() {
	elapsed := time.Since(d.lastOp)
	if elapsed < d.minOpInterval {
		time.Sleep(d.minOpInterval - elapsed)
	}
	d.lastOp = time.Now()
}

// runCommand executes a tmux subcommand with a bounded timeout, the direct
// analogue of wezterm.Ops.runCommand.
func (d *TmuxDriver) runCommand(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, d.commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.binary, args...)
	output, err := cmd.CombinedOutput()

	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("tmux command timed out after %v: %w", d.commandTimeout, orcherr.ErrMultiplexerUnavailable)
	}
	if err != nil {
		if _, isExit := err.(*exec.ExitError); !isExit {
			// binary missing or otherwise unrunnable: fatal per §4.1.
			return output, fmt.Errorf("running tmux %v: %w", args, orcherr.ErrMultiplexerUnavailable)
		}
	}
	return output, err
}

func (d *TmuxDriver) EnsureSession(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.runCommand(ctx, "has-session", "-t", d.session)
	if err == nil {
		return nil
	}

	d.log.Debugf("creating session %s", d.session)
	out, err := d.runCommand(ctx, "new-session", "-d", "-s", d.session)
	if err != nil {
		if _, isExit := err.(*exec.ExitError); isExit {
			return fmt.Errorf("creating session %s: %s: %w", d.session, string(out), orcherr.ErrMultiplexerUnavailable)
		}
		return err
	}
	return nil
}

func (d *TmuxDriver) CreateWindow(ctx context.Context, name, command string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.waitForInterval()

	d.log.Infof("creating window %s running %q", name, command)
	args := []string{"new-window", "-t", d.session, "-n", name, "-P", "-F", "#{session_name}:#{window_name}"}
	if command != "" {
		args = append(args, command)
	}
	out, err := d.runCommand(ctx, args...)
	if err != nil {
		return "", fmt.Errorf("creating window %s: %s: %w", name, string(out), err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (d *TmuxDriver) KillWindow(ctx context.Context, target string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.runCommand(ctx, "kill-window", "-t", target)
	if err != nil {
		if _, isExit := err.(*exec.ExitError); isExit {
			// already gone: idempotent.
			return nil
		}
		return fmt.Errorf("killing window %s: %w", target, err)
	}
	return nil
}

func (d *TmuxDriver) KillSession(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.runCommand(ctx, "kill-session", "-t", d.session)
	if err != nil {
		if _, isExit := err.(*exec.ExitError); isExit {
			return nil
		}
		return fmt.Errorf("killing session %s: %w", d.session, err)
	}
	return nil
}

func (d *TmuxDriver) CapturePane(ctx context.Context, target string, lines int) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	args := []string{"capture-pane", "-p", "-e", "-t", target}
	if lines > 0 {
		args = append(args, "-S", "-"+strconv.Itoa(lines))
	}
	out, err := d.runCommand(ctx, args...)
	if err != nil {
		return "", fmt.Errorf("capturing pane %s: %w", target, err)
	}
	return string(out), nil
}

func (d *TmuxDriver) SendText(ctx context.Context, target, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.waitForInterval()

	out, err := d.runCommand(ctx, "send-keys", "-t", target, "-l", "--", text)
	if err != nil {
		return fmt.Errorf("sending text to %s: %s: %w", target, string(out), err)
	}
	out, err = d.runCommand(ctx, "send-keys", "-t", target, "Enter")
	if err != nil {
		return fmt.Errorf("sending confirmation key to %s: %s: %w", target, string(out), err)
	}
	return nil
}

func (d *TmuxDriver) StartPipePane(ctx context.Context, target, filePath string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	// tmux's pipe-pane appends; truncate first so a re-spawned worker
	// doesn't tail stale output from a previous life of the same window.
	if err := os.WriteFile(filePath, nil, 0o644); err != nil {
		return fmt.Errorf("preparing pipe file %s: %w", filePath, err)
	}

	out, err := d.runCommand(ctx, "pipe-pane", "-t", target, "-o", fmt.Sprintf("cat >> %q", filePath))
	if err != nil {
		return fmt.Errorf("starting pipe-pane for %s: %s: %w", target, string(out), err)
	}
	return nil
}

func (d *TmuxDriver) WaitForReady(ctx context.Context, target string, pattern *regexp.Regexp, maxWait, poll time.Duration) (string, error) {
	deadline := time.Now().Add(maxWait)
	var last string
	for {
		text, err := d.CapturePane(ctx, target, 0)
		if err != nil {
			return "", err
		}
		last = text
		if pattern.MatchString(StripANSI(text)) {
			return text, nil
		}
		if time.Now().After(deadline) {
			return last, fmt.Errorf("waiting for %s to match %s: %w", target, pattern.String(), orcherr.ErrTimeoutReady)
		}
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-time.After(poll):
		}
	}
}

// GetFileSize returns the current size of a pipe file, or 0 if it
// doesn't exist yet (a worker may not have produced output).
func GetFileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// Sleep is a thin indirection over time.Sleep so tests can substitute a
// no-op without restructuring callers around a clock interface for this
// one primitive.
func Sleep(d time.Duration) {
	time.Sleep(d)
}
