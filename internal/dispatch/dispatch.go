// Package dispatch implements the pure task-to-agent matching function
// (§4.7). It has no side effects: it neither spawns workers nor mutates
// the task queue or rate-limit tracker — it only reads the rate-limit
// tracker's capacity signal and returns decisions for the orchestrator
// to act on.
package dispatch

import (
	"github.com/openhive/orch/internal/config"
	"github.com/openhive/orch/internal/tasks"
)

// Decision pairs a pending task with the agent selected to run it.
type Decision struct {
	Task  *tasks.Task
	Agent config.AgentConfig
}

// CapacityChecker is the subset of *ratelimit.Tracker the dispatcher
// needs: whether a provider currently has capacity. Declared as an
// interface here (rather than importing *ratelimit.Tracker directly) so
// Decide stays testable against a fake with no file I/O.
type CapacityChecker interface {
	CanDispatch(provider string) bool
}

// Decide selects an agent for each pending task, in input order, per
// the §4.7 fallback chain:
//  1. a task-requested agent, if enabled and its provider has capacity;
//  2. else the configured default agent, if enabled and available;
//  3. else the first enabled+available agent in registry declaration
//     order.
// A task with no eligible agent gets no decision for this call (it is
// retried on the next tick once capacity frees up or a requested agent
// is registered).
func Decide(pending []*tasks.Task, registry []config.AgentConfig, pool CapacityChecker, cfg *config.Config) []Decision {
	var decisions []Decision

	byName := make(map[string]config.AgentConfig, len(registry))
	for _, a := range registry {
		byName[a.Name] = a
	}

	for _, t := range pending {
		if t.Status != tasks.StatusPending {
			continue
		}

		if t.RequestedAgent != "" {
			if a, ok := byName[t.RequestedAgent]; ok && available(a, pool) {
				decisions = append(decisions, Decision{Task: t, Agent: a})
			}
			continue
		}

		if cfg.DefaultAgent != "" {
			if a, ok := byName[cfg.DefaultAgent]; ok && available(a, pool) {
				decisions = append(decisions, Decision{Task: t, Agent: a})
				continue
			}
		}

		if a, ok := firstAvailable(registry, pool); ok {
			decisions = append(decisions, Decision{Task: t, Agent: a})
		}
	}

	return decisions
}

func available(a config.AgentConfig, pool CapacityChecker) bool {
	if !a.Enabled {
		return false
	}
	provider := a.Provider
	if provider == "" {
		provider = a.Name
	}
	return pool.CanDispatch(provider)
}

// firstAvailable scans registry in its declared order (a slice, not a
// map, so iteration order is reproducible) and returns the first
// enabled agent whose provider pool has capacity.
func firstAvailable(registry []config.AgentConfig, pool CapacityChecker) (config.AgentConfig, bool) {
	for _, a := range registry {
		if available(a, pool) {
			return a, true
		}
	}
	return config.AgentConfig{}, false
}
