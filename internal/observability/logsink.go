package observability

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level is the severity written into each log line.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// trimFraction is the share of lines discarded when the log grows past its
// byte threshold.
const trimFraction = 0.2

// LogSink appends timestamped lines to a single file and keeps it roughly
// bounded: before an append, if the file is larger than maxBytes, the oldest
// fifth of its lines is dropped.
type LogSink struct {
	path     string
	maxBytes int64
	now      func() time.Time

	mu sync.Mutex
}

// NewLogSink creates a sink writing to path. A non-positive maxBytes disables
// trimming.
func NewLogSink(path string, maxBytes int64) (*LogSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	return &LogSink{
		path:     path,
		maxBytes: maxBytes,
		now:      time.Now,
	}, nil
}

// Path returns the file the sink writes to.
func (s *LogSink) Path() string {
	return s.path
}

// Log appends one entry formatted as "[timestamp] [LEVEL] message".
func (s *LogSink) Log(level Level, message string) error {
	line := fmt.Sprintf("[%s] [%s] %s\n",
		s.now().Format(time.RFC3339Nano), level, strings.ReplaceAll(message, "\n", `\n`))
	return s.appendLine(line)
}

func (s *LogSink) appendLine(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.trimIfNeeded(); err != nil {
		return err
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("writing log line: %w", err)
	}
	return nil
}

// trimIfNeeded rewrites the file without its oldest lines once it exceeds
// maxBytes. The bound is approximate since it counts lines, not bytes.
func (s *LogSink) trimIfNeeded() error {
	if s.maxBytes <= 0 {
		return nil
	}
	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("checking log size: %w", err)
	}
	if info.Size() <= s.maxBytes {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("reading log for trim: %w", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	drop := int(float64(len(lines)) * trimFraction)
	if drop < 1 {
		drop = 1
	}
	if drop > len(lines) {
		drop = len(lines)
	}
	kept := lines[drop:]

	var sb strings.Builder
	for _, l := range kept {
		sb.WriteString(l)
		sb.WriteByte('\n')
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("writing trimmed log: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replacing trimmed log: %w", err)
	}
	return nil
}
