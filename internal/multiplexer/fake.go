package multiplexer

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/openhive/orch/internal/orcherr"
)

// FakeDriver is an in-memory Driver used by tests for components above
// this package (supervisor, orchestrator) so they don't shell out to a
// real tmux binary.
type FakeDriver struct {
	mu       sync.Mutex
	sessions map[string]bool
	windows  map[string]string // target -> pane text
	Sent     map[string][]string
}

func NewFakeDriver() *FakeDriver {
	return &FakeDriver{
		sessions: map[string]bool{},
		windows:  map[string]string{},
		Sent:     map[string][]string{},
	}
}

func (f *FakeDriver) EnsureSession(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions["default"] = true
	return nil
}

func (f *FakeDriver) CreateWindow(ctx context.Context, name, command string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	target := "default:" + name
	if _, seeded := f.windows[target]; !seeded {
		f.windows[target] = ""
	}
	return target, nil
}

func (f *FakeDriver) KillWindow(ctx context.Context, target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.windows, target)
	return nil
}

func (f *FakeDriver) KillSession(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.windows = map[string]string{}
	f.sessions = map[string]bool{}
	return nil
}

func (f *FakeDriver) CapturePane(ctx context.Context, target string, lines int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	text, ok := f.windows[target]
	if !ok {
		return "", fmt.Errorf("no such window %s", target)
	}
	return text, nil
}

func (f *FakeDriver) SendText(ctx context.Context, target, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sent[target] = append(f.Sent[target], text)
	return nil
}

func (f *FakeDriver) StartPipePane(ctx context.Context, target, filePath string) error {
	return nil
}

func (f *FakeDriver) WaitForReady(ctx context.Context, target string, pattern *regexp.Regexp, maxWait, poll time.Duration) (string, error) {
	deadline := time.Now().Add(maxWait)
	for {
		text, err := f.CapturePane(ctx, target, 0)
		if err != nil {
			return "", err
		}
		if pattern.MatchString(StripANSI(text)) {
			return text, nil
		}
		if time.Now().After(deadline) {
			return text, fmt.Errorf("waiting for %s: %w", target, orcherr.ErrTimeoutReady)
		}
		time.Sleep(poll)
	}
}

// SetPane overwrites the rendered text of a fake window, simulating the
// agent CLI producing new output.
func (f *FakeDriver) SetPane(target, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.windows[target] = text
}
