// Package watcher turns filesystem notifications into path events and
// coalesces bursts of them with per-path debouncing.
package watcher

import (
	"errors"
	"time"
)

// Common errors returned by watcher operations.
var (
	ErrWatcherClosed = errors.New("watcher is closed")
	ErrPathNotExist  = errors.New("path does not exist")
)

// Op is a bit set of filesystem operations.
type Op uint32

const (
	OpCreate Op = 1 << iota
	OpWrite
	OpRemove
	OpRename
	OpChmod
)

func (op Op) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpWrite:
		return "WRITE"
	case OpRemove:
		return "REMOVE"
	case OpRename:
		return "RENAME"
	case OpChmod:
		return "CHMOD"
	default:
		return "UNKNOWN"
	}
}

// Has returns true if op includes o.
func (op Op) Has(o Op) bool {
	return op&o == o
}

// Event is a single filesystem change.
type Event struct {
	Path      string
	Op        Op
	Timestamp time.Time
}

// Watcher delivers filesystem events for a directory tree.
type Watcher interface {
	// WatchRecursive watches a directory and every non-ignored subdirectory.
	// Directories created later are added automatically.
	WatchRecursive(path string) error
	// Events returns the event channel, closed by Close.
	Events() <-chan Event
	// Errors returns the error channel, closed by Close.
	Errors() <-chan error
	Close() error
}
