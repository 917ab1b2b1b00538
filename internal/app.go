// Package internal provides the App struct that wires all components of the
// vaultd daemon together and initializes the CLI layer.
package internal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/valter-silva-au/vaultd/internal/cli"
	"github.com/valter-silva-au/vaultd/internal/core"
	"github.com/valter-silva-au/vaultd/internal/integration"
	"github.com/valter-silva-au/vaultd/internal/observability"
	"github.com/valter-silva-au/vaultd/internal/storage"
	"github.com/valter-silva-au/vaultd/internal/watcher"
	"github.com/valter-silva-au/vaultd/pkg/models"
)

// shutdownGrace bounds how long the daemon waits for interrupted agents.
const shutdownGrace = 10 * time.Second

// App holds all service dependencies for the vaultd daemon.
type App struct {
	Root string

	// Configuration
	ConfigMgr core.ConfigurationManager
	Config    *models.Config

	// Observability
	LogSink    *observability.LogSink
	LogHandler *observability.SinkHandler
	Logger     *slog.Logger
	EventLog   observability.EventLog

	// Storage layer
	StatusStore storage.StatusStore

	// Integration services
	Tasks  *integration.TaskFolders
	Runner integration.AgentRunner

	Ignore *watcher.IgnoreMatcher
}

// NewApp loads the configuration for root and wires the services every
// command shares. Components that publish status or hold OS resources are
// built on demand by NewDaemon, NewScanner and NewLifecycle.
func NewApp(root string) (*App, error) {
	app := &App{Root: root}

	// --- Configuration ---
	app.ConfigMgr = core.NewConfigurationManager(root)
	cfg, err := app.ConfigMgr.Load()
	if err != nil {
		return nil, err
	}
	app.Config = cfg

	// --- Logging ---
	level, err := observability.ParseLevel(cfg.State.LogLevel)
	if err != nil {
		return nil, err
	}
	app.LogSink, err = observability.NewLogSink(cfg.StatePath(cfg.State.LogFile), cfg.State.LogMaxByte)
	if err != nil {
		return nil, err
	}
	app.LogHandler = observability.NewSinkHandler(app.LogSink, level, nil)
	app.Logger = slog.New(app.LogHandler)

	app.EventLog, err = observability.NewJSONLEventLog(cfg.StatePath(cfg.State.EventsFile))
	if err != nil {
		// Non-fatal: transitions are still logged through the sink.
		app.Logger.Warn("event log disabled", "error", err)
		app.EventLog = nil
	}

	// --- Storage layer ---
	app.StatusStore = storage.NewStatusStore(cfg.StatePath(cfg.State.StatusFile))

	// --- Integration services ---
	dirs := make(map[models.Location]string, len(models.AllLocations))
	for _, loc := range models.AllLocations {
		dirs[loc] = cfg.LocationPath(loc)
	}
	app.Tasks, err = integration.NewTaskFolders(integration.TaskFoldersConfig{
		Dirs:      dirs,
		Extension: cfg.Tasks.Extension,
	})
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Runner = integration.NewAgentRunner(cfg.Agent.Command, cfg.Agent.Args)

	app.Ignore, err = watcher.NewIgnoreMatcher(root, cfg.Scan.Ignore)
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("compiling scan.ignore: %w", err)
	}

	// --- Wire CLI package-level variables ---
	cli.Root = root
	cli.Config = cfg
	cli.ConfigPath = app.ConfigMgr.ConfigPath()
	cli.LogHandler = app.LogHandler
	cli.StatusStore = app.StatusStore
	cli.Tasks = app.Tasks
	cli.EventLog = app.EventLog
	cli.NewDaemon = app.NewDaemon
	cli.NewScanner = app.NewScanner
	cli.NewLifecycle = app.NewLifecycle

	return app, nil
}

// NewDaemon builds the long-running daemon. Its status tracker publishes to
// the status file, so only one daemon per root should be built.
func (a *App) NewDaemon() (*core.Daemon, error) {
	status := core.NewStatusTracker(a.StatusStore, a.Logger.With("component", "status"))
	events := a.eventLogger()

	lifecycle := a.newLifecycle(status, events)
	scanner := a.newScanner(status, events)

	w, err := watcher.NewFSNotifyWatcher(a.Ignore, 0)
	if err != nil {
		return nil, err
	}

	cfg := a.Config
	return core.NewDaemon(core.DaemonConfig{
		Root:            a.Root,
		TaskArea:        cfg.TaskAreaPath(),
		LockPath:        a.LockPath(),
		TaskDebounce:    cfg.TaskDebounce(),
		ContentDebounce: cfg.ContentDebounce(),
		ScanInterval:    cfg.ScanInterval(),
		ShutdownGrace:   shutdownGrace,
	}, a.Tasks, lifecycle, scanner, status, w, a.Logger.With("component", "daemon")), nil
}

// NewScanner builds a scanner for one-shot use. It does not publish status.
func (a *App) NewScanner() *core.Scanner {
	return a.newScanner(core.NewStatusTracker(nil, a.Logger), a.eventLogger())
}

// NewLifecycle builds a lifecycle manager for manual task operations. It
// does not publish status.
func (a *App) NewLifecycle() *core.Lifecycle {
	return a.newLifecycle(core.NewStatusTracker(nil, a.Logger), a.eventLogger())
}

// LockPath returns the instance lock file for this root.
func (a *App) LockPath() string {
	return a.Config.StatePath(core.LockFileName)
}

func (a *App) newLifecycle(status *core.StatusTracker, events core.EventLogger) *core.Lifecycle {
	cfg := a.Config
	return core.NewLifecycle(core.LifecycleConfig{
		Root:           a.Root,
		BlockingMarker: cfg.Agent.BlockingMarker,
		Timeout:        cfg.AgentTimeout(),
		Concurrency:    cfg.Tasks.Concurrency,
		Orphans:        cfg.Recovery.Orphans,
	}, a.Tasks, a.Runner, status, events, a.Logger.With("component", "lifecycle"))
}

func (a *App) newScanner(status *core.StatusTracker, events core.EventLogger) *core.Scanner {
	cfg := a.Config
	return core.NewScanner(core.ScannerConfig{
		Root:      a.Root,
		Trigger:   cfg.Scan.Trigger,
		Extension: cfg.Tasks.Extension,
		Timeout:   cfg.AgentTimeout(),
		Workers:   cfg.Scan.Workers,
		Excluded: []string{
			cfg.TaskAreaPath(),
			filepath.Join(a.Root, cfg.State.Dir),
		},
	}, a.Ignore, a.Runner, status, events, a.Logger.With("component", "scanner"))
}

func (a *App) eventLogger() core.EventLogger {
	if a.EventLog == nil {
		return nil
	}
	return &eventLogAdapter{log: a.EventLog}
}

// Close releases resources held by the App, such as the event log file handle.
// It is safe to call Close on an App whose EventLog is nil.
func (a *App) Close() error {
	if a.EventLog != nil {
		return a.EventLog.Close()
	}
	return nil
}

// ResolveBasePath determines the root directory the daemon manages. It
// checks VAULTD_ROOT, then walks up from the working directory looking for
// .vaultd.yaml, then falls back to the working directory.
func ResolveBasePath() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting working directory: %w", err)
	}
	return core.ResolveRoot(cwd)
}

// --- Adapters ---

// eventLogAdapter adapts observability.EventLog to core.EventLogger.
type eventLogAdapter struct {
	log observability.EventLog
}

func (a *eventLogAdapter) LogEvent(eventType string, data map[string]any) error {
	return a.log.Write(observability.Event{
		Time:    time.Now().UTC(),
		Level:   eventLevel(eventType),
		Type:    eventType,
		Message: eventMessage(data),
		Data:    data,
	})
}

func eventLevel(eventType string) string {
	switch {
	case strings.HasSuffix(eventType, ".failed"):
		return "ERROR"
	case eventType == observability.EventTaskBlocked, eventType == observability.EventTaskRecovered:
		return "WARN"
	default:
		return "INFO"
	}
}

// eventMessage names the subject of an event: the task or the document.
func eventMessage(data map[string]any) string {
	for _, key := range []string{"task", "path"} {
		if v, ok := data[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
