package core

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/valter-silva-au/vaultd/pkg/models"
)

// PathFilter decides which paths the scanner leaves alone.
type PathFilter interface {
	Match(path string, isDir bool) bool
}

// ScannerConfig holds the settings the directive scanner reads.
type ScannerConfig struct {
	Root      string
	Trigger   string
	Extension string
	Timeout   time.Duration
	// Excluded lists absolute directories never scanned (task area, state).
	Excluded []string
	// Workers bounds how many documents a full scan handles at once.
	// Zero or less means no limit.
	Workers int
}

// FileResult describes one document scan.
type FileResult struct {
	Path      string
	Found     int
	Processed int
	Failed    int
	// Skipped is set when the file was unchanged since its last scan or was
	// already being scanned.
	Skipped bool
}

// ScanSummary aggregates a full scan.
type ScanSummary struct {
	Files     int
	Skipped   int
	Found     int
	Processed int
	Failed    int
	Duration  time.Duration
}

// Scanner finds directives in documents under the root and hands each to
// the agent. Directives in one file run one after another; different files
// may run concurrently.
type Scanner struct {
	cfg    ScannerConfig
	filter PathFilter
	runner AgentRunner
	status *StatusTracker
	events EventLogger
	logger *slog.Logger
	seen   *HashIndex
	now    func() time.Time

	mu   sync.Mutex
	busy map[string]bool
}

// NewScanner creates a Scanner. filter, events and logger may be nil.
func NewScanner(cfg ScannerConfig, filter PathFilter, runner AgentRunner, status *StatusTracker, events EventLogger, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	excluded := make([]string, 0, len(cfg.Excluded))
	for _, d := range cfg.Excluded {
		excluded = append(excluded, filepath.Clean(d))
	}
	cfg.Excluded = excluded
	cfg.Root = filepath.Clean(cfg.Root)
	return &Scanner{
		cfg:    cfg,
		filter: filter,
		runner: runner,
		status: status,
		events: events,
		logger: logger,
		seen:   NewHashIndex(),
		now:    time.Now,
		busy:   make(map[string]bool),
	}
}

// Eligible reports whether path is a document the scanner handles.
func (s *Scanner) Eligible(path string) bool {
	path = filepath.Clean(path)
	if !strings.EqualFold(filepath.Ext(path), s.cfg.Extension) {
		return false
	}
	if strings.HasPrefix(filepath.Base(path), ".") {
		return false
	}
	rel, err := filepath.Rel(s.cfg.Root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	if s.excluded(path) {
		return false
	}
	return s.filter == nil || !s.filter.Match(path, false)
}

func (s *Scanner) excluded(path string) bool {
	for _, d := range s.cfg.Excluded {
		if path == d || strings.HasPrefix(path, d+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// ScanAll walks the root and scans every eligible document, skipping files
// unchanged since their previous scan.
func (s *Scanner) ScanAll(ctx context.Context) (ScanSummary, error) {
	start := s.now()
	var (
		mu      sync.Mutex
		summary ScanSummary
	)

	g, gctx := errgroup.WithContext(ctx)
	if s.cfg.Workers > 0 {
		g.SetLimit(s.cfg.Workers)
	}

	walkErr := filepath.WalkDir(s.cfg.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Debug("walk error", "path", path, "error", err)
			return nil
		}
		if gctx.Err() != nil {
			return gctx.Err()
		}
		if d.IsDir() {
			if path != s.cfg.Root && (s.excluded(path) || (s.filter != nil && s.filter.Match(path, true))) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !s.Eligible(path) {
			return nil
		}

		g.Go(func() error {
			res, err := s.scanFile(gctx, path, false)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.logger.Error("scanning document", "path", path, "error", err)
				return nil
			}
			mu.Lock()
			summary.Files++
			if res.Skipped {
				summary.Skipped++
			}
			summary.Found += res.Found
			summary.Processed += res.Processed
			summary.Failed += res.Failed
			mu.Unlock()
			return nil
		})
		return nil
	})

	waitErr := g.Wait()
	summary.Duration = s.now().Sub(start)
	if walkErr == nil {
		walkErr = waitErr
	}
	if walkErr != nil {
		return summary, fmt.Errorf("scanning %s: %w", s.cfg.Root, walkErr)
	}

	if s.status != nil {
		s.status.ScanCompleted(s.now())
	}
	s.logger.Info("scan completed",
		"files", summary.Files, "skipped", summary.Skipped,
		"directives", summary.Found, "processed", summary.Processed, "failed", summary.Failed)
	s.logEvent("scan.completed", map[string]any{
		"files":       summary.Files,
		"skipped":     summary.Skipped,
		"directives":  summary.Found,
		"processed":   summary.Processed,
		"failed":      summary.Failed,
		"duration_ms": summary.Duration.Milliseconds(),
	})
	return summary, nil
}

// ScanFile scans one document. It does nothing when the file is already
// being scanned or is unchanged since its last scan, unless force is set.
func (s *Scanner) ScanFile(ctx context.Context, path string, force bool) (FileResult, error) {
	return s.scanFile(ctx, filepath.Clean(path), force)
}

func (s *Scanner) scanFile(ctx context.Context, path string, force bool) (FileResult, error) {
	res := FileResult{Path: path}

	s.mu.Lock()
	if s.busy[path] {
		s.mu.Unlock()
		res.Skipped = true
		return res, nil
	}
	s.busy[path] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.busy, path)
		s.mu.Unlock()
	}()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.seen.Forget(path)
			res.Skipped = true
			return res, nil
		}
		return res, fmt.Errorf("reading %s: %w", path, err)
	}
	if !force && !s.seen.Changed(path, data) {
		res.Skipped = true
		return res, nil
	}

	directives := ExtractDirectives(string(data), s.cfg.Trigger)
	res.Found = len(directives)
	if len(directives) == 0 {
		s.seen.Set(path, data)
		return res, nil
	}

	rel, err := filepath.Rel(s.cfg.Root, path)
	if err != nil {
		rel = path
	}
	log := s.logger.With("path", rel)
	log.Info("directives found", "count", len(directives))

	content := string(data)
	for i, d := range directives {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		// Earlier runs edit the file, so locate the directive again.
		if i > 0 {
			current, err := os.ReadFile(path)
			if err != nil {
				log.Info("document disappeared mid-scan", "error", err)
				break
			}
			content = string(current)
			var ok bool
			if d, ok = relocate(content, s.cfg.Trigger, d); !ok {
				log.Debug("directive no longer present", "instruction", d.Instruction)
				continue
			}
		}

		if err := s.runDirective(ctx, log, rel, d, content); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Failed++
			continue
		}
		res.Processed++
	}

	// A file with a failed directive is scanned again next time.
	if res.Failed > 0 {
		s.seen.Forget(path)
		return res, nil
	}
	if final, err := os.ReadFile(path); err == nil {
		s.seen.Set(path, final)
	}
	return res, nil
}

// relocate finds d in content by its source line and returns it with its
// current line number.
func relocate(content, trigger string, d models.Directive) (models.Directive, bool) {
	for _, cur := range ExtractDirectives(content, trigger) {
		if cur.SourceLine == d.SourceLine {
			return cur, true
		}
	}
	return d, false
}

func (s *Scanner) runDirective(ctx context.Context, log *slog.Logger, rel string, d models.Directive, content string) error {
	prompt, err := BuildDirectivePrompt(rel, d, content, s.cfg.Trigger)
	if err != nil {
		return err
	}

	res, err := s.runner.Run(ctx, models.AgentRequest{
		Dir:     s.cfg.Root,
		Prompt:  prompt,
		Timeout: s.cfg.Timeout,
	})
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		log.Warn("directive failed", "line", d.LineNumber, "instruction", d.Instruction, "error", err)
		if s.status != nil {
			s.status.DirectiveProcessed(fmt.Sprintf("%s:%d: %v", rel, d.LineNumber, err))
		}
		s.logEvent("directive.failed", map[string]any{
			"path":        rel,
			"line":        d.LineNumber,
			"instruction": d.Instruction,
			"error":       err.Error(),
		})
		return err
	}

	log.Info("directive processed", "line", d.LineNumber, "instruction", d.Instruction, "run_id", res.RunID)
	if s.status != nil {
		s.status.DirectiveProcessed("")
	}
	s.logEvent("directive.processed", map[string]any{
		"path":        rel,
		"line":        d.LineNumber,
		"instruction": d.Instruction,
		"run_id":      res.RunID,
	})
	return nil
}

func (s *Scanner) logEvent(eventType string, data map[string]any) {
	if s.events != nil {
		_ = s.events.LogEvent(eventType, data)
	}
}
