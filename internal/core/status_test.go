package core

import (
	"errors"
	"testing"
	"time"

	"github.com/valter-silva-au/vaultd/pkg/models"
)

func TestStatusTracker_PublishWritesInitialSnapshot(t *testing.T) {
	store := &memStatus{}
	tr := NewStatusTracker(store, nil)

	if len(store.saved) != 0 {
		t.Fatalf("saves after construction = %d, want 0", len(store.saved))
	}

	tr.Publish()
	if len(store.saved) != 1 {
		t.Fatalf("saves after Publish = %d, want 1", len(store.saved))
	}
	st := store.Last()
	if st.Status != models.StateIdle || st.ActiveTasks != 0 || st.LastScan != nil || st.LastError != nil {
		t.Errorf("initial status = %+v", st)
	}
}

func TestStatusTracker_DerivedState(t *testing.T) {
	tests := []struct {
		name  string
		steps func(tr *StatusTracker)
		want  models.DaemonState
	}{
		{"idle", func(tr *StatusTracker) {}, models.StateIdle},
		{"working", func(tr *StatusTracker) { tr.TaskDispatched() }, models.StateWorking},
		{"completed returns to idle", func(tr *StatusTracker) {
			tr.TaskDispatched()
			tr.TaskFinished(models.OutcomeCompleted, "")
		}, models.StateIdle},
		{"blocked", func(tr *StatusTracker) {
			tr.TaskDispatched()
			tr.TaskFinished(models.OutcomeBlocked, "")
		}, models.StateBlocked},
		{"error", func(tr *StatusTracker) {
			tr.TaskDispatched()
			tr.TaskFinished(models.OutcomeFailed, "a.md: boom")
		}, models.StateError},
		{"working wins over blocked", func(tr *StatusTracker) {
			tr.TaskDispatched()
			tr.TaskDispatched()
			tr.TaskFinished(models.OutcomeBlocked, "")
		}, models.StateWorking},
		{"later completion clears blocked", func(tr *StatusTracker) {
			tr.TaskDispatched()
			tr.TaskFinished(models.OutcomeBlocked, "")
			tr.TaskDispatched()
			tr.TaskFinished(models.OutcomeCompleted, "")
		}, models.StateIdle},
		{"cancelled keeps previous", func(tr *StatusTracker) {
			tr.TaskDispatched()
			tr.TaskFinished(models.OutcomeBlocked, "")
			tr.TaskDispatched()
			tr.TaskFinished(models.OutcomeCancelled, "")
		}, models.StateBlocked},
		{"paused is sticky", func(tr *StatusTracker) {
			tr.Pause()
			tr.TaskDispatched()
			tr.TaskFinished(models.OutcomeCompleted, "")
		}, models.StatePaused},
		{"directive failure does not change state", func(tr *StatusTracker) {
			tr.DirectiveProcessed("boom")
		}, models.StateIdle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewStatusTracker(&memStatus{}, nil)
			tt.steps(tr)
			if got := tr.Snapshot().Status; got != tt.want {
				t.Errorf("Status = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStatusTracker_CountersAndErrors(t *testing.T) {
	store := &memStatus{}
	tr := NewStatusTracker(store, nil)

	tr.TaskDispatched()
	tr.TaskFinished(models.OutcomeCompleted, "")
	tr.DirectiveProcessed("")
	tr.DirectiveProcessed("")
	tr.DirectiveProcessed("notes/a.md:3: exit 1")
	scanAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr.ScanCompleted(scanAt)

	st := store.Last()
	if st.TasksCompletedToday != 1 {
		t.Errorf("TasksCompletedToday = %d, want 1", st.TasksCompletedToday)
	}
	if st.AgentCommandsToday != 2 {
		t.Errorf("AgentCommandsToday = %d, want 2", st.AgentCommandsToday)
	}
	if st.LastError == nil || *st.LastError != "notes/a.md:3: exit 1" {
		t.Errorf("LastError = %v", st.LastError)
	}
	if st.LastScan == nil || *st.LastScan != "2026-03-01T12:00:00Z" {
		t.Errorf("LastScan = %v", st.LastScan)
	}
	// One save per mutation.
	if len(store.saved) != 6 {
		t.Errorf("saves = %d, want 6", len(store.saved))
	}
}

func TestStatusTracker_ActiveNeverNegative(t *testing.T) {
	tr := NewStatusTracker(&memStatus{}, nil)
	tr.TaskFinished(models.OutcomeCompleted, "")
	if got := tr.Snapshot().ActiveTasks; got != 0 {
		t.Errorf("ActiveTasks = %d, want 0", got)
	}
}

func TestStatusTracker_DailyReset(t *testing.T) {
	tr := NewStatusTracker(&memStatus{}, nil)
	day := time.Date(2026, 3, 1, 23, 59, 0, 0, time.Local)
	tr.now = func() time.Time { return day }

	tr.TaskDispatched()
	tr.TaskFinished(models.OutcomeCompleted, "")
	tr.DirectiveProcessed("")
	if st := tr.Snapshot(); st.TasksCompletedToday != 1 || st.AgentCommandsToday != 1 {
		t.Fatalf("counters before midnight = %+v", st)
	}

	day = day.Add(2 * time.Minute)
	st := tr.Snapshot()
	if st.TasksCompletedToday != 0 || st.AgentCommandsToday != 0 {
		t.Errorf("counters after midnight = %+v, want reset", st)
	}
}

type failingStatus struct{}

func (failingStatus) Save(models.DaemonStatus) error { return errors.New("disk full") }

func TestStatusTracker_SaveFailureIsNotFatal(t *testing.T) {
	tr := NewStatusTracker(failingStatus{}, nil)
	tr.TaskDispatched()
	if got := tr.Snapshot().ActiveTasks; got != 1 {
		t.Errorf("ActiveTasks = %d, want 1", got)
	}
}

func TestHashIndex(t *testing.T) {
	h := NewHashIndex()
	if !h.Changed("a", []byte("x")) {
		t.Error("unknown key should count as changed")
	}
	h.Set("a", []byte("x"))
	if h.Changed("a", []byte("x")) {
		t.Error("same content should not count as changed")
	}
	if !h.Changed("a", []byte("y")) {
		t.Error("different content should count as changed")
	}
	if h.Seed("a", []byte("y")) {
		t.Error("Seed replaced a tracked key")
	}
	if h.Changed("a", []byte("x")) {
		t.Error("Seed overwrote the recorded hash")
	}
	h.Forget("a")
	if h.Len() != 0 {
		t.Errorf("Len() = %d, want 0", h.Len())
	}
	if !h.Seed("b", []byte("z")) || h.Changed("b", []byte("z")) {
		t.Error("Seed did not record an unknown key")
	}
	if ContentHash([]byte("x")) == ContentHash([]byte("y")) {
		t.Error("distinct inputs hashed equal")
	}
	if len(ContentHash(nil)) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(ContentHash(nil)))
	}
}
