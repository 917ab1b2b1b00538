package models

import (
	"errors"
	"time"
)

// ErrTaskNotFound reports a task file that is no longer where it was
// expected, usually because another component moved it first.
var ErrTaskNotFound = errors.New("task file not found")

// Location is the lifecycle state of a task. Each location is backed by a
// folder, so moving a file between folders is a state transition.
type Location string

const (
	LocationInbox      Location = "inbox"
	LocationInProgress Location = "in_progress"
	LocationBlocked    Location = "blocked"
	LocationCompleted  Location = "completed"
)

// AllLocations lists every lifecycle location in pipeline order.
var AllLocations = []Location{
	LocationInbox,
	LocationInProgress,
	LocationBlocked,
	LocationCompleted,
}

// Valid reports whether l is a known location.
func (l Location) Valid() bool {
	switch l {
	case LocationInbox, LocationInProgress, LocationBlocked, LocationCompleted:
		return true
	default:
		return false
	}
}

// Task is a unit of agent work backed by a single text file. Its identity is
// the file name; Path changes every time the file moves between folders.
type Task struct {
	Name     string    `json:"name" yaml:"name"`
	Path     string    `json:"path" yaml:"path"`
	Location Location  `json:"location" yaml:"location"`
	Content  string    `json:"-" yaml:"-"`
	Modified time.Time `json:"modified" yaml:"modified"`
}

// Outcome classifies how a task execution ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeBlocked   Outcome = "blocked"
	OutcomeFailed    Outcome = "failed"
	// OutcomeCancelled means the daemon shut down mid-execution and the task
	// was left in the in-progress folder.
	OutcomeCancelled Outcome = "cancelled"
)
