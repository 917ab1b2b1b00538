package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// SinkHandler is an slog.Handler that renders records as single log lines
// and hands them to a LogSink. Attributes are appended as key=value pairs.
type SinkHandler struct {
	sink  *LogSink
	level slog.Leveler
	tee   *teeWriter

	attrs  []slog.Attr
	groups []string
}

// NewSinkHandler returns a handler writing records at or above level into
// sink. When tee is non-nil every rendered line is also copied to it.
func NewSinkHandler(sink *LogSink, level slog.Leveler, tee io.Writer) *SinkHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &SinkHandler{sink: sink, level: level, tee: &teeWriter{w: tee}}
}

// teeWriter is shared by a handler and every handler derived from it.
type teeWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// SetTee starts (or with nil, stops) copying rendered lines to w. It
// affects loggers already derived from h.
func (h *SinkHandler) SetTee(w io.Writer) {
	h.tee.mu.Lock()
	h.tee.w = w
	h.tee.mu.Unlock()
}

// NewLogger builds the process logger on top of a sink.
func NewLogger(sink *LogSink, level slog.Leveler, tee io.Writer) *slog.Logger {
	return slog.New(NewSinkHandler(sink, level, tee))
}

// ParseLevel maps a config string (debug, info, warn, error) to an slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

func (h *SinkHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *SinkHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteString(r.Message)

	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}
	for _, a := range h.attrs {
		writeAttr(&sb, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&sb, prefix, a)
		return true
	})

	level := sinkLevel(r.Level)
	msg := sb.String()
	h.tee.mu.Lock()
	if h.tee.w != nil {
		fmt.Fprintf(h.tee.w, "[%s] %s\n", level, msg)
	}
	h.tee.mu.Unlock()
	return h.sink.Log(level, msg)
}

func (h *SinkHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}
	for _, a := range attrs {
		clone.attrs = append(clone.attrs, slog.Attr{Key: prefix + a.Key, Value: a.Value})
	}
	return &clone
}

func (h *SinkHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

func writeAttr(sb *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			writeAttr(sb, prefix+a.Key+".", ga)
		}
		return
	}
	val := a.Value.String()
	if strings.ContainsAny(val, " \t\"=") {
		val = fmt.Sprintf("%q", val)
	}
	sb.WriteByte(' ')
	sb.WriteString(prefix)
	sb.WriteString(a.Key)
	sb.WriteByte('=')
	sb.WriteString(val)
}

func sinkLevel(l slog.Level) Level {
	switch {
	case l >= slog.LevelError:
		return LevelError
	case l >= slog.LevelWarn:
		return LevelWarn
	case l >= slog.LevelInfo:
		return LevelInfo
	default:
		return LevelDebug
	}
}
