// Package appctx carries the values every component constructor needs
// instead of reaching for a process-wide singleton.
package appctx

import (
	"time"

	"github.com/openhive/orch/internal/config"
	"github.com/openhive/orch/internal/logging"
)

// Context bundles the cross-cutting dependencies (config, logger, clock)
// that the teacher's code reached for via package-level singletons
// (wezterm.Get(), executor.go's sequenceCounter). Every orchestrator
// component takes one of these explicitly; none of them keep
// process-global mutable state of their own.
type Context struct {
	Config *config.Config
	Log    *logging.Logger

	// Now is the time source. Defaults to time.Now when nil so
	// production callers don't need to set it; tests substitute a
	// fixed or stepped clock.
	Now func() time.Time
}

// New builds a Context with a real wall clock.
func New(cfg *config.Config, log *logging.Logger) *Context {
	return &Context{Config: cfg, Log: log, Now: time.Now}
}

func (c *Context) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// Clock returns the effective time source, always non-nil.
func (c *Context) Clock() func() time.Time {
	return c.now
}
