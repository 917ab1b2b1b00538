package cli

import (
	"os"
	"strings"
	"testing"

	"github.com/valter-silva-au/vaultd/pkg/models"
)

func TestTaskAdd_FromArgs(t *testing.T) {
	setupCLI(t)

	out, err := execute(t, "", "task", "add", "weekly-review", "Summarize", "this", "week")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	path := Tasks.Path(models.LocationInbox, "weekly-review.md")
	if !strings.Contains(out, path) {
		t.Errorf("output = %q, want path %s", out, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("task not written: %v", err)
	}
	if string(data) != "Summarize this week\n" {
		t.Errorf("content = %q", data)
	}
}

func TestTaskAdd_FromStdin(t *testing.T) {
	setupCLI(t)

	for _, args := range [][]string{
		{"task", "add", "a.md"},
		{"task", "add", "b.md", "-"},
	} {
		if _, err := execute(t, "# Plan\nDo the thing.\n", args...); err != nil {
			t.Fatalf("%v: unexpected error: %v", args, err)
		}
	}
	for _, name := range []string{"a.md", "b.md"} {
		content, err := Tasks.Read(models.LocationInbox, name)
		if err != nil {
			t.Fatalf("reading %s: %v", name, err)
		}
		if content != "# Plan\nDo the thing.\n" {
			t.Errorf("%s content = %q", name, content)
		}
	}
}

func TestTaskAdd_Errors(t *testing.T) {
	setupCLI(t)
	writeFile(t, Tasks.Path(models.LocationBlocked, "dup.md"), "old")

	tests := []struct {
		name  string
		stdin string
		args  []string
	}{
		{"empty stdin", "  \n", []string{"task", "add", "empty.md"}},
		{"already exists elsewhere", "", []string{"task", "add", "dup.md", "again"}},
		{"path separator", "", []string{"task", "add", "sub/x.md", "hi"}},
		{"wrong extension", "", []string{"task", "add", "notes.txt", "hi"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, tt.stdin, tt.args...); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestTaskList(t *testing.T) {
	setupCLI(t)
	writeFile(t, Tasks.Path(models.LocationInbox, "a.md"), "# Write the report\n")
	writeFile(t, Tasks.Path(models.LocationBlocked, "b.md"), "---\ntitle: Plan trip\n---\nbody\n")

	out, err := execute(t, "", "task", "list")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"LOCATION", "a.md", "Write the report", "b.md", "Plan trip", "blocked"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out, err = execute(t, "", "task", "list", "--location", "blocked")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(out, "a.md") || !strings.Contains(out, "b.md") {
		t.Errorf("filtered output:\n%s", out)
	}
}

func TestTaskList_EmptyAndInvalid(t *testing.T) {
	setupCLI(t)

	out, err := execute(t, "", "task", "list")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "No tasks found.") {
		t.Errorf("output = %q", out)
	}

	if _, err := execute(t, "", "task", "list", "--location", "archive"); err == nil {
		t.Fatal("expected error for unknown location")
	}
}

func TestTaskRequeue(t *testing.T) {
	setupCLI(t)
	writeFile(t, Tasks.Path(models.LocationBlocked, "stuck.md"), "question answered")
	writeFile(t, Tasks.Path(models.LocationInProgress, "orphan.md"), "left behind")
	writeFile(t, Tasks.Path(models.LocationCompleted, "done.md"), "finished")

	out, err := execute(t, "", "task", "requeue", "stuck")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "blocked -> inbox") {
		t.Errorf("output = %q", out)
	}
	if _, err := os.Stat(Tasks.Path(models.LocationInbox, "stuck.md")); err != nil {
		t.Errorf("stuck.md not in inbox: %v", err)
	}

	if _, err := execute(t, "", "task", "requeue", "orphan.md"); err != nil {
		t.Fatalf("requeue in-progress without daemon: %v", err)
	}
	if _, err := os.Stat(Tasks.Path(models.LocationInbox, "orphan.md")); err != nil {
		t.Errorf("orphan.md not in inbox: %v", err)
	}

	if _, err := execute(t, "", "task", "requeue", "done.md"); err == nil {
		t.Error("expected error when requeueing a completed task")
	}
	if _, err := execute(t, "", "task", "requeue", "missing.md"); err == nil {
		t.Error("expected error for unknown task")
	}
}

func TestTaskFileName(t *testing.T) {
	setupCLI(t)

	tests := []struct {
		in   string
		want string
	}{
		{"report", "report.md"},
		{"report.md", "report.md"},
		{"REPORT.MD", "REPORT.MD"},
		{"notes.txt", "notes.txt"},
		{".hidden", ".hidden.md"},
	}
	for _, tt := range tests {
		if got := taskFileName(tt.in); got != tt.want {
			t.Errorf("taskFileName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCompleteTaskNames(t *testing.T) {
	setupCLI(t)
	writeFile(t, Tasks.Path(models.LocationBlocked, "alpha.md"), "x")
	writeFile(t, Tasks.Path(models.LocationBlocked, "beta.md"), "x")
	writeFile(t, Tasks.Path(models.LocationInbox, "alpine.md"), "x")

	complete := completeTaskNames(models.LocationBlocked)
	got, _ := complete(taskRequeueCmd, nil, "al")
	if len(got) != 1 || got[0] != "alpha.md" {
		t.Errorf("completions = %v, want [alpha.md]", got)
	}
}
