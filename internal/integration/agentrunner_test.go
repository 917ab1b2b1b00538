package integration

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/valter-silva-au/vaultd/pkg/models"
)

// writeScript creates an executable shell script that acts as a fake agent.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "agent.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("writing script: %v", err)
	}
	return path
}

func TestBuildArgs_PromptIsLast(t *testing.T) {
	r := NewAgentRunner("claude", []string{"--print", "--permission-mode", "acceptEdits"})
	args := r.BuildArgs("do the thing")
	want := []string{"--print", "--permission-mode", "acceptEdits", "do the thing"}
	if len(args) != len(want) {
		t.Fatalf("args = %v, want %v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("args[%d] = %q, want %q", i, args[i], want[i])
		}
	}

	// Building args must not mutate the runner's fixed args.
	second := r.BuildArgs("other")
	if second[len(second)-1] != "other" || len(second) != 4 {
		t.Errorf("second build = %v", second)
	}
}

func TestBuildEnv_AppendsRunVariables(t *testing.T) {
	r := NewAgentRunner("agent", nil)
	base := []string{"PATH=/usr/bin"}
	env := r.BuildEnv(base, "run-1", "/vault")

	if len(base) != 1 {
		t.Fatal("base slice must not be modified")
	}
	joined := strings.Join(env, "\n")
	for _, want := range []string{"PATH=/usr/bin", "VAULTD_RUN_ID=run-1", "VAULTD_ROOT=/vault"} {
		if !strings.Contains(joined, want) {
			t.Errorf("env missing %q: %v", want, env)
		}
	}
}

func TestRun_Success(t *testing.T) {
	script := writeScript(t, `echo "prompt: $1"; echo "cwd: $(pwd)"; echo "note" >&2`)
	dir := t.TempDir()

	r := NewAgentRunner(script, nil)
	res, err := r.Run(context.Background(), models.AgentRequest{Dir: dir, Prompt: "hello agent", Timeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
	if !strings.Contains(res.Stdout, "prompt: hello agent") {
		t.Errorf("stdout missing prompt: %q", res.Stdout)
	}
	resolved, _ := filepath.EvalSymlinks(dir)
	if !strings.Contains(res.Stdout, "cwd: "+dir) && !strings.Contains(res.Stdout, "cwd: "+resolved) {
		t.Errorf("agent did not run in %s: %q", dir, res.Stdout)
	}
	if strings.TrimSpace(res.Stderr) != "note" {
		t.Errorf("stderr = %q, want note", res.Stderr)
	}
	if res.RunID == "" {
		t.Error("expected a run ID")
	}
}

func TestRun_NonZeroExit(t *testing.T) {
	script := writeScript(t, `echo "partial"; echo "boom" >&2; exit 3`)

	r := NewAgentRunner(script, nil)
	res, err := r.Run(context.Background(), models.AgentRequest{Dir: t.TempDir(), Prompt: "x", Timeout: 10 * time.Second})
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	var exitErr *models.AgentExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected AgentExitError, got %T: %v", err, err)
	}
	if exitErr.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", exitErr.ExitCode)
	}
	if strings.TrimSpace(exitErr.Stderr) != "boom" {
		t.Errorf("Stderr = %q, want boom", exitErr.Stderr)
	}
	if errors.Is(err, models.ErrAgentTimeout) {
		t.Error("non-zero exit must not be reported as timeout")
	}
	if res == nil || res.ExitCode != 3 {
		t.Errorf("result = %+v, want exit code 3", res)
	}
}

func TestRun_Timeout(t *testing.T) {
	script := writeScript(t, `sleep 30`)

	r := NewAgentRunner(script, nil)
	start := time.Now()
	_, err := r.Run(context.Background(), models.AgentRequest{Dir: t.TempDir(), Prompt: "x", Timeout: 200 * time.Millisecond})
	if !errors.Is(err, models.ErrAgentTimeout) {
		t.Fatalf("expected ErrAgentTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("timeout took too long: %s", elapsed)
	}
}

func TestRun_ParentCancelled(t *testing.T) {
	script := writeScript(t, `sleep 30`)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	r := NewAgentRunner(script, nil)
	_, err := r.Run(ctx, models.AgentRequest{Dir: t.TempDir(), Prompt: "x", Timeout: time.Minute})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, models.ErrAgentTimeout) {
		t.Error("cancellation must not be reported as timeout")
	}
}

func TestRun_CommandNotFound(t *testing.T) {
	r := NewAgentRunner(filepath.Join(t.TempDir(), "no-such-agent"), nil)
	_, err := r.Run(context.Background(), models.AgentRequest{Dir: t.TempDir(), Prompt: "x"})
	if err == nil {
		t.Fatal("expected spawn error")
	}
	var exitErr *models.AgentExitError
	if errors.As(err, &exitErr) {
		t.Error("spawn failure must not be reported as exit error")
	}
	if !strings.Contains(err.Error(), "starting agent") {
		t.Errorf("unexpected error: %v", err)
	}
}
