package profiles

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Registry maps a tool name to its Profile. Built-in profiles are Go
// literals; LoadProfileYAML lets an operator add or override entries
// without a recompile.
type Registry struct {
	profiles map[string]*Profile
}

// Builtin returns a Registry preloaded with the claude/codex/gemini/cursor
// profiles.
func Builtin() *Registry {
	r := &Registry{profiles: map[string]*Profile{}}
	for _, p := range []*Profile{Claude(), Codex(), Gemini(), Cursor()} {
		r.profiles[p.ToolName] = p
	}
	return r
}

// Get returns the profile for a tool name, if registered.
func (r *Registry) Get(toolName string) (*Profile, bool) {
	p, ok := r.profiles[toolName]
	return p, ok
}

// Set registers or overrides a profile.
func (r *Registry) Set(p *Profile) {
	r.profiles[p.ToolName] = p
}

// yamlPattern is the on-disk shape of one Pattern entry.
type yamlPattern struct {
	ID          string `yaml:"id"`
	State       string `yaml:"state"`
	Priority    int    `yaml:"priority"`
	Regex       string `yaml:"regex"`
	WindowLines int    `yaml:"windowLines"`
}

// yamlProfile is the on-disk shape of a Profile, decoded the same way
// agents.LoadTeamsConfig decodes a team roster.
type yamlProfile struct {
	ToolName           string        `yaml:"toolName"`
	Patterns           []yamlPattern `yaml:"patterns"`
	ActivityPatterns   []string      `yaml:"activityPatterns"`
	CompletionPatterns []string      `yaml:"completionPatterns"`
}

// LoadProfileYAML reads a single profile definition from path and
// compiles its regexes, returning an error if any pattern is malformed
// or a required state is missing.
func LoadProfileYAML(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile %s: %w", path, err)
	}

	var yp yamlProfile
	if err := yaml.Unmarshal(data, &yp); err != nil {
		return nil, fmt.Errorf("parsing profile %s: %w", path, err)
	}

	p := &Profile{ToolName: yp.ToolName}
	for _, yPat := range yp.Patterns {
		re, err := compileOrError(yPat.Regex)
		if err != nil {
			return nil, fmt.Errorf("profile %s pattern %s: %w", p.ToolName, yPat.ID, err)
		}
		p.Patterns = append(p.Patterns, Pattern{
			ID:          yPat.ID,
			State:       State(yPat.State),
			Priority:    yPat.Priority,
			Regex:       re,
			WindowLines: yPat.WindowLines,
		})
	}
	for _, expr := range yp.ActivityPatterns {
		re, err := compileOrError(expr)
		if err != nil {
			return nil, fmt.Errorf("profile %s activity pattern: %w", p.ToolName, err)
		}
		p.ActivityPatterns = append(p.ActivityPatterns, re)
	}
	for _, expr := range yp.CompletionPatterns {
		re, err := compileOrError(expr)
		if err != nil {
			return nil, fmt.Errorf("profile %s completion pattern: %w", p.ToolName, err)
		}
		p.CompletionPatterns = append(p.CompletionPatterns, re)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
