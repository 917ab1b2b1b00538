package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/valter-silva-au/vaultd/internal/core"
	"github.com/valter-silva-au/vaultd/internal/integration"
	"github.com/valter-silva-au/vaultd/internal/observability"
	"github.com/valter-silva-au/vaultd/internal/storage"
	"github.com/valter-silva-au/vaultd/pkg/models"
)

// countingRunner stands in for the agent and records every prompt.
type countingRunner struct {
	mu      sync.Mutex
	prompts []string
}

func (r *countingRunner) Run(_ context.Context, req models.AgentRequest) (*models.AgentResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts = append(r.prompts, req.Prompt)
	return &models.AgentResult{RunID: "run", Stdout: "ok"}, nil
}

func (r *countingRunner) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.prompts)
}

// setupCLI points the package-level services at a fresh root, the way
// app.go does, and restores them when the test ends.
func setupCLI(t *testing.T) (string, *countingRunner) {
	t.Helper()

	origRoot, origCfg, origPath := Root, Config, ConfigPath
	origHandler, origEvents, origStatus, origTasks := LogHandler, EventLog, StatusStore, Tasks
	origDaemon, origScanner, origLifecycle := NewDaemon, NewScanner, NewLifecycle
	t.Cleanup(func() {
		Root, Config, ConfigPath = origRoot, origCfg, origPath
		LogHandler, EventLog, StatusStore, Tasks = origHandler, origEvents, origStatus, origTasks
		NewDaemon, NewScanner, NewLifecycle = origDaemon, origScanner, origLifecycle
	})

	root := t.TempDir()
	cfg := core.DefaultConfig(root)

	dirs := make(map[models.Location]string)
	for _, loc := range models.AllLocations {
		dirs[loc] = cfg.LocationPath(loc)
	}
	folders, err := integration.NewTaskFolders(integration.TaskFoldersConfig{Dirs: dirs, Extension: cfg.Tasks.Extension})
	if err != nil {
		t.Fatalf("NewTaskFolders: %v", err)
	}
	events, err := observability.NewJSONLEventLog(cfg.StatePath(cfg.State.EventsFile))
	if err != nil {
		t.Fatalf("NewJSONLEventLog: %v", err)
	}
	t.Cleanup(func() { _ = events.Close() })

	runner := &countingRunner{}

	Root = root
	Config = cfg
	ConfigPath = filepath.Join(root, core.ConfigFileName+".yaml")
	EventLog = events
	StatusStore = storage.NewStatusStore(cfg.StatePath(cfg.State.StatusFile))
	Tasks = folders
	NewDaemon = nil
	NewScanner = func() *core.Scanner {
		return core.NewScanner(core.ScannerConfig{
			Root:      root,
			Trigger:   cfg.Scan.Trigger,
			Extension: cfg.Tasks.Extension,
			Excluded:  []string{cfg.TaskAreaPath(), filepath.Join(root, cfg.State.Dir)},
		}, nil, runner, nil, nil, nil)
	}
	NewLifecycle = func() *core.Lifecycle {
		return core.NewLifecycle(core.LifecycleConfig{Root: root, Concurrency: 1}, folders, runner, nil, nil, nil)
	}
	return root, runner
}

// execute runs the root command with args and returns what it printed.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	statusJSON = false
	extractJSON = false
	taskListLocation = ""
	configInitForce = false
	runVerbose = false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetArgs(nil)
	})

	err := Execute()
	return out.String(), err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
