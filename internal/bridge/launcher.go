package bridge

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	nc "github.com/nats-io/nats.go"

	"github.com/openhive/orch/internal/orcherr"
)

// Launcher hands a reasoning prompt to an external process and returns
// its raw text response. The Bridge is agnostic to which concrete
// reasoning tool runs behind it.
type Launcher interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

// ExecLauncher runs an arbitrary CLI reasoning tool as a subprocess,
// writing the prompt to its stdin and reading its stdout. This is the
// default launcher selected whenever reasoning_tool_name isn't "nats".
type ExecLauncher struct {
	Binary string
	Args   []string
}

// NewExecLauncher builds a launcher for binary invoked with args, the
// prompt delivered on stdin.
func NewExecLauncher(binary string, args ...string) *ExecLauncher {
	return &ExecLauncher{Binary: binary, Args: args}
}

func (l *ExecLauncher) Invoke(ctx context.Context, prompt string) (string, error) {
	cmd := exec.CommandContext(ctx, l.Binary, l.Args...)
	cmd.Stdin = strings.NewReader(prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", orcherr.ErrReasoningTimeout, ctx.Err())
		}
		return "", fmt.Errorf("reasoning tool %s: %w (stderr: %s)", l.Binary, err, stderr.String())
	}
	return stdout.String(), nil
}

// NatsPublisher is the subset of *nats.Conn the launcher needs:
// request/reply against a subject a reasoning worker subscribes on.
// Declared narrowly so NatsLauncher is testable without a live NATS
// connection.
type NatsPublisher interface {
	Request(subject string, data []byte, timeout time.Duration) (*nc.Msg, error)
}

// NatsLauncher forwards the prompt as a NATS request and returns the
// reply payload as text, used when reasoning_tool_name is "nats" — the
// reasoning agent is a separate long-lived process subscribed on
// Subject rather than a short-lived subprocess per tick.
type NatsLauncher struct {
	Conn    NatsPublisher
	Subject string
	Timeout time.Duration
}

func NewNatsLauncher(conn NatsPublisher, subject string, timeout time.Duration) *NatsLauncher {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &NatsLauncher{Conn: conn, Subject: subject, Timeout: timeout}
}

func (l *NatsLauncher) Invoke(ctx context.Context, prompt string) (string, error) {
	deadline := l.Timeout
	if d, ok := ctx.Deadline(); ok {
		if remaining := time.Until(d); remaining < deadline {
			deadline = remaining
		}
	}
	msg, err := l.Conn.Request(l.Subject, []byte(prompt), deadline)
	if err != nil {
		return "", fmt.Errorf("%w: nats request on %s: %v", orcherr.ErrReasoningTimeout, l.Subject, err)
	}
	return string(msg.Data), nil
}
