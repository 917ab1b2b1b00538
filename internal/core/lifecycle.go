package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/valter-silva-au/vaultd/pkg/models"
)

// LifecycleConfig holds the settings the lifecycle manager reads.
type LifecycleConfig struct {
	Root           string
	BlockingMarker string
	Timeout        time.Duration
	Concurrency    int
	Orphans        models.OrphanPolicy
}

// Lifecycle is the task queue and state machine. Tasks are admitted FIFO
// and run with at most Concurrency agents at once:
//
//	Inbox -> InProgress -> Completed | Blocked
//	Blocked -(edited)-> Inbox
//
// The move into InProgress happens before the agent starts, so a crash
// leaves the task visibly in progress.
type Lifecycle struct {
	cfg     LifecycleConfig
	store   TaskStore
	runner  AgentRunner
	status  *StatusTracker
	events  EventLogger
	logger  *slog.Logger
	blocked *HashIndex
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	idle    *sync.Cond
	queue   []string
	queued  map[string]bool
	running map[string]bool
	again   map[string]bool
	active  int
	closed  bool
	wg      sync.WaitGroup
}

// NewLifecycle creates a lifecycle manager. events and logger may be nil.
func NewLifecycle(cfg LifecycleConfig, store TaskStore, runner AgentRunner, status *StatusTracker, events EventLogger, logger *slog.Logger) *Lifecycle {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &Lifecycle{
		cfg:     cfg,
		store:   store,
		runner:  runner,
		status:  status,
		events:  events,
		logger:  logger,
		blocked: NewHashIndex(),
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		queued:  make(map[string]bool),
		running: make(map[string]bool),
		again:   make(map[string]bool),
	}
	l.idle = sync.NewCond(&l.mu)
	return l
}

// Enqueue queues a task for admission and reports whether it was added. A
// task already queued is not added twice; a task currently running is
// queued again once its run ends.
func (l *Lifecycle) Enqueue(name string) bool {
	if !l.store.IsTaskFile(name) {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || l.queued[name] {
		return false
	}
	if l.running[name] {
		l.again[name] = true
		return true
	}
	l.queue = append(l.queue, name)
	l.queued[name] = true
	l.pumpLocked()
	return true
}

// pumpLocked dispatches queued tasks while slots are free.
func (l *Lifecycle) pumpLocked() {
	for !l.closed && l.active < l.cfg.Concurrency && len(l.queue) > 0 {
		name := l.queue[0]
		l.queue = l.queue[1:]
		delete(l.queued, name)

		l.active++
		l.running[name] = true
		l.wg.Add(1)
		go l.execute(name)
	}
}

// release frees the slot held by name and admits the next task.
func (l *Lifecycle) release(name string) {
	l.mu.Lock()
	l.active--
	delete(l.running, name)
	if l.again[name] {
		delete(l.again, name)
		if !l.closed && !l.queued[name] {
			l.queue = append(l.queue, name)
			l.queued[name] = true
		}
	}
	l.pumpLocked()
	if l.active == 0 && len(l.queue) == 0 {
		l.idle.Broadcast()
	}
	l.mu.Unlock()
	l.wg.Done()
}

// Active returns the number of tasks holding a slot.
func (l *Lifecycle) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// Queued returns the number of tasks waiting for a slot.
func (l *Lifecycle) Queued() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Wait blocks until no task is queued or running.
func (l *Lifecycle) Wait() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for l.active > 0 || len(l.queue) > 0 {
		l.idle.Wait()
	}
}

func (l *Lifecycle) execute(name string) {
	defer l.release(name)

	log := l.logger.With("task", name)

	if _, err := l.store.Move(name, models.LocationInbox, models.LocationInProgress); err != nil {
		if errors.Is(err, models.ErrTaskNotFound) {
			log.Info("task left the inbox before admission")
			return
		}
		log.Error("admitting task", "error", err)
		l.status.RecordError(fmt.Sprintf("admitting %s: %v", name, err))
		return
	}

	l.status.TaskDispatched()
	log.Info("task admitted")
	l.logEvent("task.admitted", map[string]any{"task": name})

	outcome, errMsg := l.run(log, name)
	l.status.TaskFinished(outcome, errMsg)
}

// run executes an admitted task and moves it to its terminal folder.
func (l *Lifecycle) run(log *slog.Logger, name string) (models.Outcome, string) {
	content, err := l.store.Read(models.LocationInProgress, name)
	if err != nil {
		// The content is unknown, so the task is parked without annotation.
		log.Error("reading task, moving it to blocked", "error", err)
		if _, merr := l.store.Move(name, models.LocationInProgress, models.LocationBlocked); merr != nil {
			if errors.Is(merr, models.ErrTaskNotFound) {
				log.Info("task moved during execution")
			} else {
				log.Error("moving task", "to", string(models.LocationBlocked), "error", merr)
			}
		}
		l.logEvent("task.failed", map[string]any{"task": name, "error": err.Error()})
		return models.OutcomeFailed, fmt.Sprintf("reading %s: %v", name, err)
	}

	prompt, err := BuildTaskPrompt(name, content, l.cfg.BlockingMarker)
	if err != nil {
		return l.fail(log, name, content, err)
	}

	res, err := l.runner.Run(l.ctx, models.AgentRequest{
		Dir:     l.cfg.Root,
		Prompt:  prompt,
		Timeout: l.cfg.Timeout,
	})
	if err != nil {
		if l.ctx.Err() != nil {
			log.Info("task interrupted by shutdown, left in progress")
			return models.OutcomeCancelled, ""
		}
		stderr := ""
		if res != nil {
			stderr = res.Stderr
		}
		return l.fail(log, name, content, agentError{err: err, stderr: stderr})
	}

	at := l.now()
	if strings.Contains(res.Stdout, l.cfg.BlockingMarker) {
		updated := AnnotateBlocked(content, res.Stdout, at)
		l.settle(log, name, updated, models.LocationBlocked)
		log.Info("task blocked on a question", "run_id", res.RunID)
		l.logEvent("task.blocked", map[string]any{"task": name, "run_id": res.RunID})
		return models.OutcomeBlocked, ""
	}

	updated := AnnotateCompleted(content, res.Stdout, at)
	l.settle(log, name, updated, models.LocationCompleted)
	log.Info("task completed", "run_id", res.RunID, "duration", res.Duration.Round(time.Millisecond).String())
	l.logEvent("task.completed", map[string]any{
		"task":        name,
		"run_id":      res.RunID,
		"duration_ms": res.Duration.Milliseconds(),
	})
	return models.OutcomeCompleted, ""
}

// agentError carries the stderr of a failed run alongside its cause.
type agentError struct {
	err    error
	stderr string
}

func (e agentError) Error() string { return e.err.Error() }
func (e agentError) Unwrap() error { return e.err }

// annotation returns the text appended to the task for this failure.
func (e agentError) annotation() string {
	var exitErr *models.AgentExitError
	switch {
	case errors.Is(e.err, models.ErrAgentTimeout):
		return strings.TrimSpace("agent timed out\n" + e.stderr)
	case errors.As(e.err, &exitErr):
		if strings.TrimSpace(exitErr.Stderr) != "" {
			return fmt.Sprintf("%s\n%s", exitErr.Error(), exitErr.Stderr)
		}
		return exitErr.Error()
	default:
		return e.err.Error()
	}
}

// fail annotates the task with the error and moves it to Blocked.
func (l *Lifecycle) fail(log *slog.Logger, name, content string, err error) (models.Outcome, string) {
	text := err.Error()
	var ae agentError
	if errors.As(err, &ae) {
		text = ae.annotation()
	}

	log.Warn("task failed", "error", err)
	updated := AnnotateError(content, text, l.now())
	l.settle(log, name, updated, models.LocationBlocked)
	l.logEvent("task.failed", map[string]any{"task": name, "error": err.Error()})
	return models.OutcomeFailed, fmt.Sprintf("%s: %v", name, err)
}

// settle writes the annotated content back and moves the task out of
// InProgress. A task that disappeared meanwhile is logged and skipped.
func (l *Lifecycle) settle(log *slog.Logger, name, content string, to models.Location) {
	if err := l.store.WriteExisting(models.LocationInProgress, name, content); err != nil {
		if errors.Is(err, models.ErrTaskNotFound) {
			log.Info("task moved during execution, skipping write-back")
			return
		}
		log.Error("writing task result", "error", err)
	}

	if _, err := l.store.Move(name, models.LocationInProgress, to); err != nil {
		if errors.Is(err, models.ErrTaskNotFound) {
			log.Info("task moved during execution")
			return
		}
		log.Error("moving task", "to", string(to), "error", err)
		l.status.RecordError(fmt.Sprintf("moving %s to %s: %v", name, to, err))
		return
	}
	if to == models.LocationBlocked {
		l.blocked.Set(name, []byte(content))
	}
}

// Readmit moves an edited task from Blocked back to the inbox. It reports
// false without moving when the content matches what the daemon last saw,
// so the daemon's own writes and unchanged files never re-admit. A file
// seen for the first time is recorded and stays blocked; only a later edit
// re-admits it.
func (l *Lifecycle) Readmit(name string) (bool, error) {
	content, err := l.store.Read(models.LocationBlocked, name)
	if err != nil {
		return false, err
	}
	if l.blocked.Seed(name, []byte(content)) {
		l.logger.Debug("new blocked task recorded", "task", name)
		return false, nil
	}
	if !l.blocked.Changed(name, []byte(content)) {
		return false, nil
	}
	if _, err := l.store.Move(name, models.LocationBlocked, models.LocationInbox); err != nil {
		return false, err
	}
	l.blocked.Forget(name)

	l.logger.Info("blocked task edited, re-admitted", "task", name)
	l.logEvent("task.readmitted", map[string]any{"task": name})
	return true, nil
}

// Requeue moves a task from Blocked or InProgress back to the inbox
// regardless of its content. Used for manual intervention.
func (l *Lifecycle) Requeue(name string) (models.Location, error) {
	from, err := l.store.Find(name)
	if err != nil {
		return "", err
	}
	switch from {
	case models.LocationBlocked, models.LocationInProgress:
	default:
		return from, fmt.Errorf("task %s is in %s, only blocked or in-progress tasks can be requeued", name, from)
	}
	l.mu.Lock()
	running := l.running[name]
	l.mu.Unlock()
	if running {
		return from, fmt.Errorf("task %s is running", name)
	}
	if _, err := l.store.Move(name, from, models.LocationInbox); err != nil {
		return from, err
	}
	l.blocked.Forget(name)
	l.logEvent("task.readmitted", map[string]any{"task": name, "from": string(from), "manual": true})
	return from, nil
}

// SeedBlocked records the content of tasks already blocked at startup so
// that only later edits re-admit them.
func (l *Lifecycle) SeedBlocked() error {
	tasks, err := l.store.List(models.LocationBlocked)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		content, err := l.store.Read(models.LocationBlocked, t.Name)
		if err != nil {
			continue
		}
		l.blocked.Set(t.Name, []byte(content))
	}
	return nil
}

// RecoverOrphans handles tasks left in InProgress by a previous process.
// With the requeue policy they return to the inbox; with manual they stay
// and are reported. It returns the orphans found.
func (l *Lifecycle) RecoverOrphans() ([]string, error) {
	tasks, err := l.store.List(models.LocationInProgress)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, t := range tasks {
		names = append(names, t.Name)
		if l.cfg.Orphans == models.OrphanManual {
			l.logger.Warn("orphaned task left in progress", "task", t.Name)
			continue
		}
		if _, err := l.store.Move(t.Name, models.LocationInProgress, models.LocationInbox); err != nil {
			l.logger.Error("requeueing orphaned task", "task", t.Name, "error", err)
			continue
		}
		l.logger.Warn("orphaned task requeued", "task", t.Name)
		l.logEvent("task.recovered", map[string]any{"task": t.Name})
	}
	return names, nil
}

// AdmitExisting enqueues tasks already in the inbox, oldest first.
func (l *Lifecycle) AdmitExisting() (int, error) {
	tasks, err := l.store.List(models.LocationInbox)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, t := range tasks {
		if l.Enqueue(t.Name) {
			n++
		}
	}
	return n, nil
}

// Shutdown stops admission, cancels running agents and waits up to grace
// for their goroutines to finish. Interrupted tasks stay in InProgress.
func (l *Lifecycle) Shutdown(grace time.Duration) error {
	l.mu.Lock()
	l.closed = true
	for _, name := range l.queue {
		delete(l.queued, name)
	}
	l.queue = nil
	l.again = make(map[string]bool)
	l.mu.Unlock()

	l.cancel()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		l.mu.Lock()
		l.idle.Broadcast()
		l.mu.Unlock()
		return nil
	case <-time.After(grace):
		return fmt.Errorf("%d task(s) still running after %s", l.Active(), grace)
	}
}

func (l *Lifecycle) logEvent(eventType string, data map[string]any) {
	if l.events != nil {
		_ = l.events.LogEvent(eventType, data)
	}
}
