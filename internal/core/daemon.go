package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/valter-silva-au/vaultd/internal/watcher"
	"github.com/valter-silva-au/vaultd/pkg/models"
)

// DaemonConfig holds the settings the daemon reads.
type DaemonConfig struct {
	Root            string
	TaskArea        string
	LockPath        string
	TaskDebounce    time.Duration
	ContentDebounce time.Duration
	ScanInterval    time.Duration
	ShutdownGrace   time.Duration
}

// LockFileName is the instance lock kept in the state directory.
const LockFileName = "vaultd.lock"

const (
	lockAttempts   = 3
	lockRetryDelay = 100 * time.Millisecond
)

// InstanceRunning reports whether a daemon currently holds the lock at
// lockPath.
func InstanceRunning(lockPath string) bool {
	unlock, err := acquireInstanceLock(lockPath)
	if err != nil {
		return errors.Is(err, ErrLocked)
	}
	_ = unlock()
	return false
}

// Daemon connects filesystem events and timers to the lifecycle manager and
// the scanner. Task folder events go through a coarse debouncer, document
// events through a finer one; each path has a single pending window.
type Daemon struct {
	cfg       DaemonConfig
	store     TaskStore
	lifecycle *Lifecycle
	scanner   *Scanner
	status    *StatusTracker
	watcher   watcher.Watcher
	logger    *slog.Logger

	taskDeb    *watcher.Debouncer
	contentDeb *watcher.Debouncer

	workCtx    context.Context
	cancelWork context.CancelFunc

	mu       sync.Mutex
	stopping bool
	stopOnce sync.Once
	inflight sync.WaitGroup
}

// NewDaemon creates a daemon. It does not touch the filesystem until Run.
func NewDaemon(cfg DaemonConfig, store TaskStore, lifecycle *Lifecycle, scanner *Scanner, status *StatusTracker, w watcher.Watcher, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}
	cfg.TaskArea = filepath.Clean(cfg.TaskArea)
	workCtx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		cfg:        cfg,
		store:      store,
		lifecycle:  lifecycle,
		scanner:    scanner,
		status:     status,
		watcher:    w,
		logger:     logger,
		taskDeb:    watcher.NewDebouncer(cfg.TaskDebounce),
		contentDeb: watcher.NewDebouncer(cfg.ContentDebounce),
		workCtx:    workCtx,
		cancelWork: cancel,
	}
}

// Run starts the daemon and blocks until ctx is cancelled or a loop fails.
// The status file is first written once the instance lock is held. On
// return the status is paused, running agents have been stopped and the
// instance lock is released.
func (d *Daemon) Run(ctx context.Context) error {
	unlock, err := d.lock()
	if err != nil {
		_ = d.watcher.Close()
		return err
	}
	defer func() {
		if err := unlock(); err != nil {
			d.logger.Warn("releasing instance lock", "error", err)
		}
	}()

	d.status.Publish()
	d.logger.Info("daemon starting", "root", d.cfg.Root)

	if orphans, err := d.lifecycle.RecoverOrphans(); err != nil {
		d.logger.Error("recovering orphaned tasks", "error", err)
	} else if len(orphans) > 0 {
		d.logger.Warn("orphaned tasks found at startup", "count", len(orphans))
	}
	if err := d.lifecycle.SeedBlocked(); err != nil {
		d.logger.Error("reading blocked tasks", "error", err)
	}

	if err := d.watcher.WatchRecursive(d.cfg.Root); err != nil {
		d.stop()
		_ = d.watcher.Close()
		return fmt.Errorf("watching %s: %w", d.cfg.Root, err)
	}

	if n, err := d.lifecycle.AdmitExisting(); err != nil {
		d.logger.Error("admitting existing inbox tasks", "error", err)
	} else if n > 0 {
		d.logger.Info("admitted existing inbox tasks", "count", n)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.eventLoop(gctx) })
	g.Go(func() error { return d.scanLoop(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		d.stop()
		return nil
	})

	err = g.Wait()
	if cerr := d.watcher.Close(); cerr != nil {
		d.logger.Warn("closing watcher", "error", cerr)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	d.logger.Info("daemon stopped")
	return nil
}

// lock takes the instance lock, retrying briefly since InstanceRunning
// checks hold it for a moment.
func (d *Daemon) lock() (func() error, error) {
	var err error
	for attempt := 0; attempt < lockAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(lockRetryDelay)
		}
		var unlock func() error
		unlock, err = acquireInstanceLock(d.cfg.LockPath)
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, ErrLocked) {
			break
		}
	}
	return nil, err
}

// stop pauses the daemon, cancels in-flight agent runs and waits for them
// to settle. Only the first call has an effect.
func (d *Daemon) stop() {
	d.stopOnce.Do(func() {
		d.status.Pause()
		d.logger.Info("daemon stopping")

		d.mu.Lock()
		d.stopping = true
		d.mu.Unlock()

		d.taskDeb.Stop()
		d.contentDeb.Stop()
		d.cancelWork()

		if err := d.lifecycle.Shutdown(d.cfg.ShutdownGrace); err != nil {
			d.logger.Warn("lifecycle shutdown", "error", err)
		}
		d.inflight.Wait()
	})
}

// track runs fn unless shutdown has begun, so shutdown can wait for it.
func (d *Daemon) track(fn func()) {
	d.mu.Lock()
	if d.stopping {
		d.mu.Unlock()
		return
	}
	d.inflight.Add(1)
	d.mu.Unlock()

	defer d.inflight.Done()
	fn()
}

func (d *Daemon) eventLoop(ctx context.Context) error {
	events := d.watcher.Events()
	errs := d.watcher.Errors()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return errors.New("watcher event channel closed")
			}
			d.HandleEvent(ev)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			d.logger.Warn("watcher error", "error", err)
		}
	}
}

func (d *Daemon) scanLoop(ctx context.Context) error {
	d.track(func() { d.scanAll() })

	ticker := time.NewTicker(d.cfg.ScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.track(func() { d.scanAll() })
		}
	}
}

func (d *Daemon) scanAll() {
	if _, err := d.scanner.ScanAll(d.workCtx); err != nil && d.workCtx.Err() == nil {
		d.logger.Error("full scan", "error", err)
		d.status.RecordError(err.Error())
	}
}

// HandleEvent routes one filesystem event to the right debouncer.
func (d *Daemon) HandleEvent(ev watcher.Event) {
	if !ev.Op.Has(watcher.OpCreate) && !ev.Op.Has(watcher.OpWrite) {
		return
	}
	path := filepath.Clean(ev.Path)
	name := filepath.Base(path)

	if loc, ok := d.store.LocationOf(path); ok {
		if !d.store.IsTaskFile(name) {
			return
		}
		switch loc {
		case models.LocationInbox:
			d.taskDeb.Trigger("inbox:"+name, func() {
				d.track(func() { d.admit(name) })
			})
		case models.LocationBlocked:
			d.taskDeb.Trigger("blocked:"+name, func() {
				d.track(func() { d.readmit(name) })
			})
		}
		return
	}

	if path == d.cfg.TaskArea || strings.HasPrefix(path, d.cfg.TaskArea+string(filepath.Separator)) {
		return
	}
	if !d.scanner.Eligible(path) {
		return
	}
	d.contentDeb.Trigger(path, func() {
		d.track(func() { d.scanFile(path) })
	})
}

func (d *Daemon) admit(name string) {
	if d.lifecycle.Enqueue(name) {
		d.logger.Debug("task queued", "task", name)
	}
}

func (d *Daemon) readmit(name string) {
	ok, err := d.lifecycle.Readmit(name)
	switch {
	case errors.Is(err, models.ErrTaskNotFound):
		d.logger.Info("blocked task moved before re-admission", "task", name)
	case err != nil:
		d.logger.Error("re-admitting task", "task", name, "error", err)
	case !ok:
		d.logger.Debug("blocked task unchanged", "task", name)
	}
}

func (d *Daemon) scanFile(path string) {
	res, err := d.scanner.ScanFile(d.workCtx, path, false)
	if err != nil {
		if d.workCtx.Err() == nil {
			d.logger.Error("scanning document", "path", path, "error", err)
		}
		return
	}
	if res.Found > 0 {
		d.logger.Debug("document scanned", "path", path, "processed", res.Processed, "failed", res.Failed)
	}
}
