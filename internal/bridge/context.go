package bridge

import (
	"fmt"
	"os"
	"strings"

	"github.com/openhive/orch/internal/profiles"
)

// Context is the structured reasoning context built for one worker in
// need of a decision.
type Context struct {
	WorkerState    profiles.State
	TaskPrompt     string // empty if no task is assigned
	PaneOutputTail string
	Prompt         string
}

const instructionStanza = `Respond with exactly one of the following on the first line:
  APPROVE  - approve the pending action and let the tool proceed
  WAIT     - do nothing this tick; check again later
  RESTART  - cancel the current action and re-submit the task
  DONE     - the task is finished; mark it complete
  FAILED   - the task cannot be completed; mark it failed
Or respond with free-text to forward verbatim to the agent.`

// BuildContext implements build_llm_context: the pane output tail
// prefers the pipe file's content (authoritative ordering of
// everything the tool has ever printed) over the live pane capture,
// falling back to the latter when the pipe file is absent or unreadable.
func BuildContext(workerState profiles.State, taskPrompt string, pipeFilePath string, paneOutput string, contextLines int) Context {
	tail := tailFile(pipeFilePath, contextLines)
	if tail == "" {
		tail = tailLines(paneOutput, contextLines)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Worker state: %s (%s)\n\n", workerState, workerState.Explanation())
	if taskPrompt != "" {
		fmt.Fprintf(&b, "Assigned task:\n%s\n\n", taskPrompt)
	}
	fmt.Fprintf(&b, "Recent pane output:\n%s\n\n", tail)
	b.WriteString(instructionStanza)

	return Context{
		WorkerState:    workerState,
		TaskPrompt:     taskPrompt,
		PaneOutputTail: tail,
		Prompt:         b.String(),
	}
}

func tailFile(path string, n int) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return tailLines(string(data), n)
}

func tailLines(text string, n int) string {
	if n <= 0 || text == "" {
		return text
	}
	lines := strings.Split(text, "\n")
	if len(lines) <= n {
		return text
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
