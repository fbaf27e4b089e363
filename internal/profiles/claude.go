package profiles

import "regexp"

// Claude returns the built-in pattern profile for Claude Code.
func Claude() *Profile {
	return &Profile{
		ToolName: "claude",
		Patterns: []Pattern{
			{ID: "claude:rate_limited", State: StateRateLimited, Priority: PriorityRateLimited,
				Regex: mustCompile(`(?i)(rate.?limit|usage limit reached|try again (later|in \d+))`)},
			{ID: "claude:waiting_approval", State: StateWaitingApproval, Priority: PriorityWaitingApproval,
				Regex:       mustCompile(`(?i)do you want to (allow|proceed)|^\s*[❯>]?\s*(yes|no)\b.*allow`),
				WindowLines: 15},
			{ID: "claude:waiting_input", State: StateWaitingInput, Priority: PriorityWaitingInput,
				Regex: mustCompile(`(?i)(could you clarify|which (file|option|approach) would you like|please (specify|confirm))`)},
			{ID: "claude:error", State: StateError, Priority: PriorityError,
				Regex: mustCompile(`(?i)(fatal error|unhandled exception|panic:|crashed)`)},
			{ID: "claude:working", State: StateWorking, Priority: PriorityWorking,
				Regex: mustCompile(`(?i)(\d+s\s*[·|│]|esc to interrupt|tokens?\s*[·|│]|\$\d+\.\d+\s*[·|│])`)},
			{ID: "claude:idle", State: StateIdle, Priority: PriorityIdle,
				Regex: mustCompile(`(?m)^\s*>\s*$`)},
		},
		ActivityPatterns: []*regexp.Regexp{
			mustCompile(`(?i)(\d+s\s*[·|│]|tokens?\s*[·|│]|esc to interrupt)`),
		},
		CompletionPatterns: []*regexp.Regexp{
			mustCompile(`(?i)(done!|task complete|finished\.)`),
		},
		LaunchCommand: "claude",
		ApproveKeys:   "y",
		CancelKeys:    "\x1b", // Esc
	}
}
