package dispatch

import (
	"testing"

	"github.com/openhive/orch/internal/config"
	"github.com/openhive/orch/internal/tasks"
)

type fakePool struct {
	capacity map[string]bool
}

func (f *fakePool) CanDispatch(provider string) bool { return f.capacity[provider] }

func TestDecide_RequestedAgent(t *testing.T) {
	registry := []config.AgentConfig{
		{Name: "claude", Enabled: true, Provider: "anthropic"},
		{Name: "codex", Enabled: true, Provider: "openai"},
	}
	pool := &fakePool{capacity: map[string]bool{"anthropic": true, "openai": true}}
	cfg := &config.Config{}

	task := tasks.New("do the thing")
	task.RequestedAgent = "codex"

	decisions := Decide([]*tasks.Task{task}, registry, pool, cfg)
	if len(decisions) != 1 || decisions[0].Agent.Name != "codex" {
		t.Fatalf("decisions = %+v, want codex", decisions)
	}
}

func TestDecide_RequestedAgentNoCapacityYieldsNoDecision(t *testing.T) {
	registry := []config.AgentConfig{{Name: "claude", Enabled: true, Provider: "anthropic"}}
	pool := &fakePool{capacity: map[string]bool{"anthropic": false}}
	cfg := &config.Config{}

	task := tasks.New("x")
	task.RequestedAgent = "claude"

	decisions := Decide([]*tasks.Task{task}, registry, pool, cfg)
	if len(decisions) != 0 {
		t.Fatalf("decisions = %+v, want none (pool saturated)", decisions)
	}
}

func TestDecide_DefaultAgentFallback(t *testing.T) {
	registry := []config.AgentConfig{
		{Name: "claude", Enabled: true, Provider: "anthropic"},
		{Name: "codex", Enabled: true, Provider: "openai"},
	}
	pool := &fakePool{capacity: map[string]bool{"anthropic": true, "openai": true}}
	cfg := &config.Config{DefaultAgent: "codex"}

	decisions := Decide([]*tasks.Task{tasks.New("x")}, registry, pool, cfg)
	if len(decisions) != 1 || decisions[0].Agent.Name != "codex" {
		t.Fatalf("decisions = %+v, want default codex", decisions)
	}
}

func TestDecide_FirstAvailableInDeclarationOrder(t *testing.T) {
	registry := []config.AgentConfig{
		{Name: "claude", Enabled: true, Provider: "anthropic"},
		{Name: "codex", Enabled: true, Provider: "openai"},
		{Name: "gemini", Enabled: true, Provider: "google"},
	}
	pool := &fakePool{capacity: map[string]bool{"anthropic": false, "openai": true, "google": true}}
	cfg := &config.Config{}

	decisions := Decide([]*tasks.Task{tasks.New("x")}, registry, pool, cfg)
	if len(decisions) != 1 || decisions[0].Agent.Name != "codex" {
		t.Fatalf("decisions = %+v, want first available codex (declaration order)", decisions)
	}
}

func TestDecide_InputOrderPreserved(t *testing.T) {
	registry := []config.AgentConfig{{Name: "claude", Enabled: true, Provider: "anthropic"}}
	pool := &fakePool{capacity: map[string]bool{"anthropic": true}}
	cfg := &config.Config{}

	t1, t2 := tasks.New("first"), tasks.New("second")
	decisions := Decide([]*tasks.Task{t1, t2}, registry, pool, cfg)
	if len(decisions) != 2 || decisions[0].Task.ID != t1.ID || decisions[1].Task.ID != t2.ID {
		t.Fatalf("decisions out of order: %+v", decisions)
	}
}

func TestDecide_SkipsNonPendingTasks(t *testing.T) {
	registry := []config.AgentConfig{{Name: "claude", Enabled: true, Provider: "anthropic"}}
	pool := &fakePool{capacity: map[string]bool{"anthropic": true}}
	cfg := &config.Config{}

	running := tasks.New("already running")
	running.Status = tasks.StatusRunning

	decisions := Decide([]*tasks.Task{running}, registry, pool, cfg)
	if len(decisions) != 0 {
		t.Fatalf("decisions = %+v, want none for a non-pending task", decisions)
	}
}
