// Package ratelimit implements the per-provider concurrency counter and
// rolling/fixed usage-window tracker (§4.5), persisted across runs the
// way internal/persistence's JSONStore persists dashboard state, but
// synchronously and per-provider rather than on a debounce timer.
package ratelimit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/openhive/orch/internal/logging"
	"github.com/openhive/orch/internal/orcherr"
)

// WindowType distinguishes rolling from fixed (wall-clock-bucketed)
// usage windows.
type WindowType string

const (
	WindowRolling WindowType = "rolling"
	WindowFixed   WindowType = "fixed"
)

// Window describes one rate-limit window attached to a provider pool.
type Window struct {
	ID               string
	Label            string
	Type             WindowType
	Duration         time.Duration
	DefaultLimit     *int
	ResetDescription string
}

// Pool is the in-memory concurrency + rate accounting scope for one
// provider. Fields mirror §3's Provider Pool record exactly.
type Pool struct {
	Provider          string
	MaxConcurrent     int
	CooldownMs        int64
	Active            int
	CumulativeDispatched int64
	CumulativeFailed     int64
	RateLimited       bool
	RateLimitedUntil  time.Time
	Windows           []Window
}

// usage is the on-disk (and in-memory) record of dispatch timestamps
// per window for one provider, matching the usage-store schema of §6:
// {windows: {<window_id>: {timestamps: [...]}}}.
type usage struct {
	Windows map[string]*windowUsage `json:"windows"`
}

type windowUsage struct {
	Timestamps []time.Time `json:"timestamps"`
}

// Tracker owns the provider pool map and its persisted usage store. One
// mutex per provider (rather than one global lock) lets independent
// providers' record_* calls proceed without contending, while still
// guaranteeing the usage file for a given provider is written
// whole-file under a lock held for the duration of the mutator, per §5.
type Tracker struct {
	mu       sync.RWMutex // guards the pools map itself (adding providers)
	pools    map[string]*Pool
	usages   map[string]*usage
	provMus  map[string]*sync.Mutex
	usageDir string
	clock    func() time.Time
	dailyLoc *time.Location
	weeklyUTC bool
	log      *logging.Logger
}

// New creates a Tracker whose usage files live under usageDir
// (conventionally <global_config_dir>/usage/).
func New(usageDir string, dailyLoc *time.Location, weeklyUTC bool, clock func() time.Time, log *logging.Logger) (*Tracker, error) {
	if clock == nil {
		clock = time.Now
	}
	if dailyLoc == nil {
		dailyLoc = time.Local
	}
	if err := os.MkdirAll(usageDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating usage dir %s: %w", usageDir, err)
	}
	return &Tracker{
		pools:     map[string]*Pool{},
		usages:    map[string]*usage{},
		provMus:   map[string]*sync.Mutex{},
		usageDir:  usageDir,
		clock:     clock,
		dailyLoc:  dailyLoc,
		weeklyUTC: weeklyUTC,
		log:       log.With("RATE"),
	}, nil
}

// Register adds (or replaces) a provider pool's static configuration.
// Active counts and usage history are preserved across re-registration
// of the same provider name.
func (t *Tracker) Register(provider string, maxConcurrent int, cooldownMs int64, windows []Window) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pool, exists := t.pools[provider]
	if !exists {
		pool = &Pool{Provider: provider}
		t.pools[provider] = pool
		t.provMus[provider] = &sync.Mutex{}
	}
	pool.MaxConcurrent = maxConcurrent
	pool.CooldownMs = cooldownMs
	pool.Windows = windows

	if _, ok := t.usages[provider]; !ok {
		t.usages[provider] = t.loadUsage(provider)
	}
}

func (t *Tracker) lockFor(provider string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.provMus[provider]
	if !ok {
		m = &sync.Mutex{}
		t.provMus[provider] = m
	}
	return m
}

func (t *Tracker) pool(provider string) *Pool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pools[provider]
}

// CanDispatch reports whether a new task may be dispatched to provider:
// active < max_concurrent AND the provider isn't presently rate-limited
// AND every configured window's usage count is under its effective
// limit.
func (t *Tracker) CanDispatch(provider string) bool {
	pm := t.lockFor(provider)
	pm.Lock()
	defer pm.Unlock()

	pool := t.pool(provider)
	if pool == nil {
		return false
	}
	now := t.clock()
	if pool.Active >= pool.MaxConcurrent {
		return false
	}
	if pool.RateLimited && now.Before(pool.RateLimitedUntil) {
		return false
	}
	u := t.usages[provider]
	for _, w := range pool.Windows {
		if w.DefaultLimit == nil {
			continue
		}
		if t.countInWindow(u, w, now) >= *w.DefaultLimit {
			return false
		}
	}
	return true
}

// RecordDispatch increments the active count and appends a usage
// timestamp to every configured window, persisting the usage file
// synchronously before returning.
func (t *Tracker) RecordDispatch(provider string) error {
	pm := t.lockFor(provider)
	pm.Lock()
	defer pm.Unlock()

	pool := t.pool(provider)
	if pool == nil {
		return fmt.Errorf("ratelimit: unknown provider %s", provider)
	}
	now := t.clock()
	pool.Active++
	pool.CumulativeDispatched++

	u := t.usages[provider]
	for _, w := range pool.Windows {
		wu, ok := u.Windows[w.ID]
		if !ok {
			wu = &windowUsage{}
			u.Windows[w.ID] = wu
		}
		wu.Timestamps = append(wu.Timestamps, now)
		wu.Timestamps = pruneWindow(wu.Timestamps, w, now, t.dailyLoc, t.weeklyUTC)
	}
	return t.persistLocked(provider)
}

// RecordCompletion decrements the active count (clamped at 0, logging a
// warning rather than going negative — "a lost dispatch record is
// preferable to a stuck counter") and updates the cumulative totals.
func (t *Tracker) RecordCompletion(provider string, success bool) error {
	pm := t.lockFor(provider)
	pm.Lock()
	defer pm.Unlock()

	pool := t.pool(provider)
	if pool == nil {
		return fmt.Errorf("ratelimit: unknown provider %s", provider)
	}
	pool.Active--
	if pool.Active < 0 {
		t.log.Warnf("provider %s active count went negative on completion, clamping to 0", provider)
		pool.Active = 0
	}
	if !success {
		pool.CumulativeFailed++
	}
	return t.persistLocked(provider)
}

// NoteRateLimit records that provider reported a rate limit, setting
// RateLimitedUntil to now+retryAfter (or now+CooldownMs if retryAfter is
// zero).
func (t *Tracker) NoteRateLimit(provider string, retryAfter time.Duration) error {
	pm := t.lockFor(provider)
	pm.Lock()
	defer pm.Unlock()

	pool := t.pool(provider)
	if pool == nil {
		return fmt.Errorf("ratelimit: unknown provider %s", provider)
	}
	if retryAfter <= 0 {
		retryAfter = time.Duration(pool.CooldownMs) * time.Millisecond
	}
	pool.RateLimited = true
	pool.RateLimitedUntil = t.clock().Add(retryAfter)
	return t.persistLocked(provider)
}

// Active returns the current active-dispatch count for provider.
func (t *Tracker) Active(provider string) int {
	pool := t.pool(provider)
	if pool == nil {
		return 0
	}
	return pool.Active
}

// countInWindow returns how many recorded dispatches fall within w's
// effective range as of now.
func (t *Tracker) countInWindow(u *usage, w Window, now time.Time) int {
	if u == nil {
		return 0
	}
	wu, ok := u.Windows[w.ID]
	if !ok {
		return 0
	}
	n := 0
	for _, ts := range wu.Timestamps {
		if inWindow(ts, w, now, t.dailyLoc, t.weeklyUTC) {
			n++
		}
	}
	return n
}

func (t *Tracker) usageFile(provider string) string {
	return filepath.Join(t.usageDir, provider+".json")
}

func (t *Tracker) loadUsage(provider string) *usage {
	u := &usage{Windows: map[string]*windowUsage{}}
	data, err := os.ReadFile(t.usageFile(provider))
	if err != nil {
		return u
	}
	if err := json.Unmarshal(data, u); err != nil {
		t.log.Warnf("%s: %v", orcherr.ErrPersistenceFailure, err)
		return &usage{Windows: map[string]*windowUsage{}}
	}
	if u.Windows == nil {
		u.Windows = map[string]*windowUsage{}
	}
	return u
}

// persistLocked writes the provider's usage file whole-file. The caller
// must already hold that provider's mutex. A write failure is logged at
// warn and swallowed: in-memory state stays authoritative for the run,
// per the PersistenceFailure policy.
func (t *Tracker) persistLocked(provider string) error {
	u := t.usages[provider]
	data, err := json.MarshalIndent(u, "", "  ")
	if err != nil {
		t.log.Warnf("%s: marshaling usage for %s: %v", orcherr.ErrPersistenceFailure, provider, err)
		return nil
	}
	tmp := t.usageFile(provider) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		t.log.Warnf("%s: writing usage for %s: %v", orcherr.ErrPersistenceFailure, provider, err)
		return nil
	}
	if err := os.Rename(tmp, t.usageFile(provider)); err != nil {
		t.log.Warnf("%s: committing usage for %s: %v", orcherr.ErrPersistenceFailure, provider, err)
	}
	return nil
}
