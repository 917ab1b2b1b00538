package core

import (
	"context"

	"github.com/valter-silva-au/vaultd/pkg/models"
)

// AgentRunner runs the external agent once.
// This interface is defined locally in core to avoid importing integration.
type AgentRunner interface {
	Run(ctx context.Context, req models.AgentRequest) (*models.AgentResult, error)
}

// TaskStore is the set of lifecycle folders on disk. Missing files surface
// as models.ErrTaskNotFound.
// This interface is defined locally in core to avoid importing integration.
type TaskStore interface {
	Dir(loc models.Location) string
	Path(loc models.Location, name string) string
	IsTaskFile(name string) bool
	LocationOf(path string) (models.Location, bool)
	List(loc models.Location) ([]models.Task, error)
	Find(name string) (models.Location, error)
	Read(loc models.Location, name string) (string, error)
	WriteExisting(loc models.Location, name, content string) error
	Move(name string, from, to models.Location) (string, error)
	Create(name, content string) (string, error)
}

// StatusWriter persists status snapshots.
// This interface is defined locally in core to avoid importing storage.
type StatusWriter interface {
	Save(status models.DaemonStatus) error
}

// EventLogger records lifecycle transitions.
// This interface is defined locally in core to avoid importing observability.
type EventLogger interface {
	LogEvent(eventType string, data map[string]any) error
}
