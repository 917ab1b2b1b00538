package core

import (
	"strings"
	"testing"
)

const testTrigger = "@agent"

func TestExtractDirectives(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		want  []string // instructions
		lines []int
	}{
		{
			name:  "single directive",
			text:  "# Notes\n\n@agent summarize this page\n",
			want:  []string{"summarize this page"},
			lines: []int{3},
		},
		{
			name:  "leading whitespace allowed",
			text:  "  @agent   tidy up  \n",
			want:  []string{"tidy up"},
			lines: []int{1},
		},
		{
			name:  "multiple directives keep order and duplicates",
			text:  "@agent one\ntext\n@agent two\n@agent one\n",
			want:  []string{"one", "two", "one"},
			lines: []int{1, 3, 4},
		},
		{
			name: "mid-line trigger ignored",
			text: "please ask @agent to do it\n",
		},
		{
			name: "trigger without body",
			text: "@agent\n@agent   \n",
		},
		{
			name: "trigger glued to word",
			text: "@agentsmith do it\n",
		},
		{
			name: "table row",
			text: "| @agent do X | foo |\n",
		},
		{
			name: "table row without leading pipe",
			text: "@agent do X | foo\n",
		},
		{
			name: "arrow documentation",
			text: "@agent -> runs the agent\n@agent → runs it\n@agent do x => y\n",
		},
		{
			name: "blockquote",
			text: "> @agent quoted\n",
		},
		{
			name: "heading with trigger",
			text: "## @agent usage\n",
		},
		{
			name: "indented code",
			text: "    @agent in code\n\t@agent tab code\n",
		},
		{
			name: "three spaces is still a directive",
			text: "   @agent go\n",
			want: []string{"go"}, lines: []int{1},
		},
		{
			name: "inline code",
			text: "`@agent do x`\n@agent` do y\n",
		},
		{
			name:  "fenced block blanked and line numbers kept",
			text:  "```\n@agent hidden\n```\n@agent visible\n",
			want:  []string{"visible"},
			lines: []int{4},
		},
		{
			name:  "tilde fence",
			text:  "~~~md\n@agent hidden\n~~~\n@agent after\n",
			want:  []string{"after"},
			lines: []int{4},
		},
		{
			name:  "longer closing fence required",
			text:  "````\n```\n@agent hidden\n````\n@agent after\n",
			want:  []string{"after"},
			lines: []int{5},
		},
		{
			name:  "mismatched fence chars do not close",
			text:  "```\n~~~\n@agent hidden\n```\n",
			want:  nil,
			lines: nil,
		},
		{
			name:  "unclosed fence leaves following lines live",
			text:  "```go\n@agent still seen\n",
			want:  []string{"still seen"},
			lines: []int{2},
		},
		{
			name:  "crlf line endings",
			text:  "intro\r\n@agent fix\r\n",
			want:  []string{"fix"},
			lines: []int{2},
		},
		{
			name: "no trigger at all",
			text: "plain text\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractDirectives(tt.text, testTrigger)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d directives %+v, want %d", len(got), got, len(tt.want))
			}
			for i, d := range got {
				if d.Instruction != tt.want[i] {
					t.Errorf("[%d] Instruction = %q, want %q", i, d.Instruction, tt.want[i])
				}
				if d.LineNumber != tt.lines[i] {
					t.Errorf("[%d] LineNumber = %d, want %d", i, d.LineNumber, tt.lines[i])
				}
			}
		})
	}
}

func TestExtractDirectives_SourceLineVerbatim(t *testing.T) {
	got := ExtractDirectives("x\n  @agent  keep spacing \n", testTrigger)
	if len(got) != 1 {
		t.Fatalf("got %d directives, want 1", len(got))
	}
	if got[0].SourceLine != "  @agent  keep spacing " {
		t.Errorf("SourceLine = %q", got[0].SourceLine)
	}
}

func TestExtractDirectives_CustomTrigger(t *testing.T) {
	text := "@agent ignored\n!do run this\n"
	got := ExtractDirectives(text, "!do")
	if len(got) != 1 || got[0].Instruction != "run this" {
		t.Fatalf("got %+v, want one directive 'run this'", got)
	}
	if ExtractDirectives(text, "") != nil {
		t.Error("empty trigger should yield nothing")
	}
}

func TestPrompts(t *testing.T) {
	p, err := BuildTaskPrompt("summary.md", "Summarize this folder.\n", "## Blocking Question")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"summary.md", "Summarize this folder.", "## Blocking Question"} {
		if !strings.Contains(p, want) {
			t.Errorf("task prompt missing %q", want)
		}
	}

	ds := ExtractDirectives("title\n@agent add tags\n", testTrigger)
	p, err = BuildDirectivePrompt("notes/a.md", ds[0], "title\n@agent add tags\n", testTrigger)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"notes/a.md", "line 2", "add tags", "title\n@agent add tags"} {
		if !strings.Contains(p, want) {
			t.Errorf("directive prompt missing %q", want)
		}
	}
}
