package cli

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/valter-silva-au/vaultd/pkg/models"
)

const extractDoc = `# Meeting notes

@agent summarize the notes above
Some text with @agent in the middle.

` + "```" + `
@agent not inside code
` + "```" + `

  @agent tidy the list
`

func TestExtractCommand(t *testing.T) {
	root, runner := setupCLI(t)
	path := filepath.Join(root, "notes", "meeting.md")
	writeFile(t, path, extractDoc)

	out, err := execute(t, "", "extract", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[0], "3") || !strings.Contains(lines[0], "summarize the notes above") {
		t.Errorf("first line = %q", lines[0])
	}
	if !strings.Contains(lines[1], "tidy the list") {
		t.Errorf("second line = %q", lines[1])
	}
	if runner.Count() != 0 {
		t.Error("extract must not run the agent")
	}
}

func TestExtractCommand_JSON(t *testing.T) {
	root, _ := setupCLI(t)
	path := filepath.Join(root, "a.md")
	writeFile(t, path, "intro\n@agent draft a reply\n")

	out, err := execute(t, "", "extract", "--json", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got []models.Directive
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(got) != 1 || got[0].LineNumber != 2 || got[0].Instruction != "draft a reply" {
		t.Errorf("got %+v", got)
	}
}

func TestExtractCommand_NoDirectives(t *testing.T) {
	root, _ := setupCLI(t)
	path := filepath.Join(root, "plain.md")
	writeFile(t, path, "nothing to do here\n")

	out, err := execute(t, "", "extract", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "No directives found.") {
		t.Errorf("output = %q", out)
	}

	out, err = execute(t, "", "extract", "--json", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "[]" {
		t.Errorf("json output = %q, want []", out)
	}
}

func TestExtractCommand_MissingFile(t *testing.T) {
	root, _ := setupCLI(t)

	if _, err := execute(t, "", "extract", filepath.Join(root, "nope.md")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
