package profiles

import "regexp"

// Cursor returns the built-in pattern profile for the Cursor CLI agent.
func Cursor() *Profile {
	return &Profile{
		ToolName: "cursor",
		Patterns: []Pattern{
			{ID: "cursor:rate_limited", State: StateRateLimited, Priority: PriorityRateLimited,
				Regex: mustCompile(`(?i)(you have exceeded|rate limit hit|slow down and try again)`)},
			{ID: "cursor:waiting_approval", State: StateWaitingApproval, Priority: PriorityWaitingApproval,
				Regex:       mustCompile(`(?i)(run this command\?|accept (this )?change|apply (this )?diff\?)`),
				WindowLines: 15},
			{ID: "cursor:waiting_input", State: StateWaitingInput, Priority: PriorityWaitingInput,
				Regex: mustCompile(`(?i)(could you clarify|what should i name)`)},
			{ID: "cursor:error", State: StateError, Priority: PriorityError,
				Regex: mustCompile(`(?i)(agent encountered an error|failed to complete)`)},
			{ID: "cursor:working", State: StateWorking, Priority: PriorityWorking,
				Regex: mustCompile(`(?i)(generating\b|\d+s elapsed|running tests\.\.\.)`)},
			{ID: "cursor:idle", State: StateIdle, Priority: PriorityIdle,
				Regex: mustCompile(`(?m)^\s*>\s*$`)},
		},
		ActivityPatterns: []*regexp.Regexp{
			mustCompile(`(?i)(generating\b|\d+s elapsed)`),
		},
		CompletionPatterns: []*regexp.Regexp{
			mustCompile(`(?i)(changes applied|all tasks complete)`),
		},
		LaunchCommand: "cursor-agent",
		ApproveKeys:   "y",
		CancelKeys:    "\x1b",
	}
}
