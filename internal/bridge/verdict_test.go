package bridge

import "testing"

func TestParseResponse(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want Verdict
	}{
		{"approve", "APPROVE", Verdict{Type: VerdictMeta, Command: CommandApprove}},
		{"lowercase trimmed", "  done  ", Verdict{Type: VerdictMeta, Command: CommandDone}},
		{"meta with trailing explanation", "APPROVE\nlooks safe to proceed", Verdict{Type: VerdictMeta, Command: CommandApprove}},
		{"free text", "Use PostgreSQL.", Verdict{Type: VerdictText, Text: "Use PostgreSQL."}},
		{"empty is wait", "", Verdict{Type: VerdictMeta, Command: CommandWait}},
		{"whitespace only is wait", "   \n  ", Verdict{Type: VerdictMeta, Command: CommandWait}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseResponse(tc.in)
			if got != tc.want {
				t.Fatalf("ParseResponse(%q) = %+v, want %+v", tc.in, got, tc.want)
			}
		})
	}
}

func TestBuildContextFallsBackToPaneOutputWithoutPipeFile(t *testing.T) {
	ctx := BuildContext("working", "do the thing", "", "fallback pane text", 10)
	if ctx.PaneOutputTail != "fallback pane text" {
		t.Fatalf("tail = %q, want fallback text when pipe file is absent", ctx.PaneOutputTail)
	}
	if ctx.TaskPrompt != "do the thing" {
		t.Fatalf("task prompt = %q", ctx.TaskPrompt)
	}
}
