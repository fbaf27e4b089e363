package bridge

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Bridge builds a reasoning context for a stuck/waiting worker, invokes
// the configured Launcher, and parses its verdict. ContextLines is the
// number of trailing pane-output lines included in the prompt.
//
// Limiter throttles Invoke independently of the per-escalation debounce
// the orchestrator already applies per worker: it's a fleet-wide safety
// net against every stuck worker escalating in the same tick and
// flooding the reasoning tool at once, the steady-state-throttle use
// case rate.Limiter is built for (the tick-interval backoff itself is a
// different policy — double-and-cap tied to a success counter — and
// stays hand-rolled in the orchestrator loop).
type Bridge struct {
	Launcher     Launcher
	ContextLines int
	Limiter      *rate.Limiter
}

func New(launcher Launcher, contextLines int, limiter *rate.Limiter) *Bridge {
	if contextLines <= 0 {
		contextLines = 40
	}
	return &Bridge{Launcher: launcher, ContextLines: contextLines, Limiter: limiter}
}

// Decide builds the context for one worker decision and returns the
// parsed verdict. A nil Launcher means no reasoning tool is configured
// (§7's ReasoningMissing: downgrade to manual mode), reported as a WAIT
// meta-verdict rather than an error so callers don't need a special case.
func (b *Bridge) Decide(ctx context.Context, input Context) (Verdict, error) {
	if b.Launcher == nil {
		return Verdict{Type: VerdictMeta, Command: CommandWait}, nil
	}
	if b.Limiter != nil {
		if err := b.Limiter.Wait(ctx); err != nil {
			return Verdict{}, fmt.Errorf("reasoning decision rate limit: %w", err)
		}
	}
	raw, err := b.Launcher.Invoke(ctx, input.Prompt)
	if err != nil {
		return Verdict{}, fmt.Errorf("reasoning decision: %w", err)
	}
	return ParseResponse(raw), nil
}
