// Package bridge builds the reasoning context handed to an external
// reasoning tool when a worker is stuck or waiting on a decision, and
// parses that tool's single-line verdict back into a command the
// orchestrator can act on. Grounded on the teacher's manual,
// type-assertion-heavy response parsing (straight string operations
// here, since the input is plain text rather than a decoded JSON map)
// and its natural-language prompt-building helpers.
package bridge

import "strings"

// Command is one of the five meta-verdicts a reasoning tool may return
// instead of free text.
type Command string

const (
	CommandApprove Command = "APPROVE"
	CommandWait    Command = "WAIT"
	CommandRestart Command = "RESTART"
	CommandDone    Command = "DONE"
	CommandFailed  Command = "FAILED"
)

// VerdictType distinguishes a recognized meta-command from forwarded
// free text.
type VerdictType string

const (
	VerdictMeta VerdictType = "meta"
	VerdictText VerdictType = "text"
)

// Verdict is the parsed result of a reasoning tool's response.
type Verdict struct {
	Type    VerdictType
	Command Command // set iff Type == VerdictMeta
	Text    string  // set iff Type == VerdictText
}

var metaCommands = map[string]Command{
	"APPROVE": CommandApprove,
	"WAIT":    CommandWait,
	"RESTART": CommandRestart,
	"DONE":    CommandDone,
	"FAILED":  CommandFailed,
}

// ParseResponse implements parse_llm_response exactly:
//  1. trim whitespace; empty -> meta WAIT.
//  2. first line, trimmed and uppercased, one of the five meta-commands
//     -> meta with that command.
//  3. otherwise -> text with the trimmed full body.
func ParseResponse(raw string) Verdict {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Verdict{Type: VerdictMeta, Command: CommandWait}
	}

	firstLine := trimmed
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		firstLine = trimmed[:idx]
	}
	firstLine = strings.ToUpper(strings.TrimSpace(firstLine))

	if cmd, ok := metaCommands[firstLine]; ok {
		return Verdict{Type: VerdictMeta, Command: cmd}
	}

	return Verdict{Type: VerdictText, Text: trimmed}
}
