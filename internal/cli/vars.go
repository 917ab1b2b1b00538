package cli

import (
	"github.com/valter-silva-au/vaultd/internal/core"
	"github.com/valter-silva-au/vaultd/internal/integration"
	"github.com/valter-silva-au/vaultd/internal/observability"
	"github.com/valter-silva-au/vaultd/internal/storage"
	"github.com/valter-silva-au/vaultd/pkg/models"
)

// Service instances, set during app initialization in app.go.
var (
	Root       string
	Config     *models.Config
	ConfigPath string

	LogHandler  *observability.SinkHandler
	EventLog    observability.EventLog
	StatusStore storage.StatusStore
	Tasks       *integration.TaskFolders
)

// Component factories, set during app initialization in app.go. The daemon
// publishes status and holds OS resources, so it is only built by "run".
var (
	NewDaemon    func() (*core.Daemon, error)
	NewScanner   func() *core.Scanner
	NewLifecycle func() *core.Lifecycle
)

// lockPath returns the daemon's instance lock for the configured root.
func lockPath() string {
	return Config.StatePath(core.LockFileName)
}

// daemonRunning reports whether a daemon currently serves the root.
func daemonRunning() bool {
	if Config == nil {
		return false
	}
	return core.InstanceRunning(lockPath())
}
