package multiplexer

import "regexp"

// ansiCSI matches ANSI CSI escape sequences (color, cursor movement) the
// way tmux's "capture-pane -e" output and most agent CLIs emit them.
var ansiCSI = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]`)

// StripANSI removes CSI color/cursor sequences from rendered pane text,
// leaving the plain text the state detector's patterns match against.
func StripANSI(text string) string {
	return ansiCSI.ReplaceAllString(text, "")
}
