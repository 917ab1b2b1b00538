package core

import (
	"log/slog"
	"sync"
	"time"

	"github.com/valter-silva-au/vaultd/pkg/models"
)

// StatusTracker owns the daemon status. Every mutation recomputes the
// derived state and persists a snapshot; persistence failures are logged and
// never block orchestration. The snapshot is for observers only.
type StatusTracker struct {
	mu     sync.Mutex
	store  StatusWriter
	logger *slog.Logger
	now    func() time.Time

	active      int
	lastOutcome models.Outcome
	lastError   *string
	lastScan    *string
	completed   int
	commands    int
	day         string
	paused      bool
}

// NewStatusTracker creates a tracker. Nothing is written until Publish or
// the first mutation, so building one never touches a status file another
// process may own.
func NewStatusTracker(store StatusWriter, logger *slog.Logger) *StatusTracker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	t := &StatusTracker{store: store, logger: logger, now: time.Now}
	t.day = t.now().Format(time.DateOnly)
	return t
}

// Publish writes the current snapshot. The daemon calls it once it owns
// the root.
func (t *StatusTracker) Publish() {
	t.update(func() {})
}

// TaskDispatched counts a task entering InProgress.
func (t *StatusTracker) TaskDispatched() {
	t.update(func() {
		t.active++
	})
}

// TaskFinished releases a task's slot and records how it ended. Callers must
// invoke it exactly once per TaskDispatched.
func (t *StatusTracker) TaskFinished(outcome models.Outcome, errMsg string) {
	t.update(func() {
		if t.active == 0 {
			t.logger.Warn("task finished with no active tasks", "outcome", string(outcome))
		} else {
			t.active--
		}
		switch outcome {
		case models.OutcomeCompleted:
			t.completed++
			t.lastOutcome = outcome
		case models.OutcomeBlocked:
			t.lastOutcome = outcome
		case models.OutcomeFailed:
			t.lastOutcome = outcome
			t.setError(errMsg)
		}
	})
}

// DirectiveProcessed records a directive run. Only successes count.
func (t *StatusTracker) DirectiveProcessed(errMsg string) {
	t.update(func() {
		if errMsg != "" {
			t.setError(errMsg)
			return
		}
		t.commands++
	})
}

// ScanCompleted stamps the end of a full scan.
func (t *StatusTracker) ScanCompleted(at time.Time) {
	t.update(func() {
		s := at.UTC().Format(time.RFC3339)
		t.lastScan = &s
	})
}

// RecordError stores msg as the last error without changing the state.
func (t *StatusTracker) RecordError(msg string) {
	t.update(func() {
		t.setError(msg)
	})
}

// Pause marks the daemon as shutting down. Paused is sticky.
func (t *StatusTracker) Pause() {
	t.update(func() {
		t.paused = true
	})
}

// Snapshot returns the current status.
func (t *StatusTracker) Snapshot() models.DaemonStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollDayLocked()
	return t.snapshotLocked()
}

func (t *StatusTracker) setError(msg string) {
	if msg == "" {
		return
	}
	t.lastError = &msg
}

func (t *StatusTracker) update(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollDayLocked()
	fn()
	t.persistLocked()
}

// rollDayLocked resets the daily counters when the local date changes.
func (t *StatusTracker) rollDayLocked() {
	today := t.now().Format(time.DateOnly)
	if today != t.day {
		t.day = today
		t.completed = 0
		t.commands = 0
	}
}

func (t *StatusTracker) stateLocked() models.DaemonState {
	switch {
	case t.paused:
		return models.StatePaused
	case t.active > 0:
		return models.StateWorking
	case t.lastOutcome == models.OutcomeBlocked:
		return models.StateBlocked
	case t.lastOutcome == models.OutcomeFailed:
		return models.StateError
	default:
		return models.StateIdle
	}
}

func (t *StatusTracker) snapshotLocked() models.DaemonStatus {
	return models.DaemonStatus{
		Status:              t.stateLocked(),
		ActiveTasks:         t.active,
		LastScan:            t.lastScan,
		LastError:           t.lastError,
		TasksCompletedToday: t.completed,
		AgentCommandsToday:  t.commands,
	}
}

func (t *StatusTracker) persistLocked() {
	if t.store == nil {
		return
	}
	if err := t.store.Save(t.snapshotLocked()); err != nil {
		t.logger.Error("saving status", "error", err)
	}
}
