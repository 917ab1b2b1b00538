package cli

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/valter-silva-au/vaultd/pkg/models"
)

func TestScanCommand_SingleFile(t *testing.T) {
	root, runner := setupCLI(t)
	path := filepath.Join(root, "notes", "today.md")
	writeFile(t, path, "@agent one\ntext\n@agent two\n")

	out, err := execute(t, "", "scan", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "2 directive(s), 2 processed, 0 failed") {
		t.Errorf("output = %q", out)
	}
	if runner.Count() != 2 {
		t.Errorf("agent ran %d times, want 2", runner.Count())
	}
}

func TestScanCommand_All(t *testing.T) {
	root, runner := setupCLI(t)
	writeFile(t, filepath.Join(root, "a.md"), "@agent one\n")
	writeFile(t, filepath.Join(root, "sub", "b.md"), "@agent two\n")
	writeFile(t, filepath.Join(root, "c.txt"), "@agent not a document\n")
	writeFile(t, Tasks.Path(models.LocationInbox, "task.md"), "@agent task files are not scanned\n")

	out, err := execute(t, "", "scan")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Scanned 2 file(s)") || !strings.Contains(out, "2 processed") {
		t.Errorf("output = %q", out)
	}
	if runner.Count() != 2 {
		t.Errorf("agent ran %d times, want 2", runner.Count())
	}
}

func TestScanCommand_NotEligible(t *testing.T) {
	root, runner := setupCLI(t)
	path := filepath.Join(root, "notes.txt")
	writeFile(t, path, "@agent one\n")

	if _, err := execute(t, "", "scan", path); err == nil {
		t.Fatal("expected error for a non-document file")
	}
	if _, err := execute(t, "", "scan", filepath.Join(t.TempDir(), "outside.md")); err == nil {
		t.Fatal("expected error for a file outside the root")
	}
	if runner.Count() != 0 {
		t.Errorf("agent ran %d times, want 0", runner.Count())
	}
}
