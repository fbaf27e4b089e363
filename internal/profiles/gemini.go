package profiles

import "regexp"

// Gemini returns the built-in pattern profile for the Gemini CLI. Its
// approval dialog renders as a tall bordered box with a spinner glyph
// below it; WindowLines is wide enough (20) to still include the "Allow"
// line without letting the lower-priority spinner match first, per the
// §4.3 rationale.
func Gemini() *Profile {
	return &Profile{
		ToolName: "gemini",
		Patterns: []Pattern{
			{ID: "gemini:rate_limited", State: StateRateLimited, Priority: PriorityRateLimited,
				Regex: mustCompile(`(?i)(resource has been exhausted|quota exceeded|rate limit exceeded)`)},
			{ID: "gemini:waiting_approval", State: StateWaitingApproval, Priority: PriorityWaitingApproval,
				Regex:       mustCompile(`(?i)(allow this (action|tool call)|do you want to allow)`),
				WindowLines: 20},
			{ID: "gemini:waiting_input", State: StateWaitingInput, Priority: PriorityWaitingInput,
				Regex: mustCompile(`(?i)(can you clarify|which direction should i take)`)},
			{ID: "gemini:error", State: StateError, Priority: PriorityError,
				Regex: mustCompile(`(?i)(an unexpected error occurred|gemini cli crashed)`)},
			{ID: "gemini:working", State: StateWorking, Priority: PriorityWorking,
				Regex: mustCompile(`(?i)(generating\.\.\.|\belapsed:\s*\d+s\b|⠋|⠙|⠹|⠸)`)},
			{ID: "gemini:idle", State: StateIdle, Priority: PriorityIdle,
				Regex: mustCompile(`(?m)^\s*>\s*$`)},
		},
		ActivityPatterns: []*regexp.Regexp{
			mustCompile(`(?i)(generating\.\.\.|elapsed:\s*\d+s)`),
		},
		CompletionPatterns: []*regexp.Regexp{
			mustCompile(`(?i)(response complete|finished generating)`),
		},
		LaunchCommand: "gemini",
		ApproveKeys:   "y",
		CancelKeys:    "\x1b",
	}
}
