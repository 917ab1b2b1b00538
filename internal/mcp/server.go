// Package mcp provides an MCP (Model Context Protocol) server that exposes
// the daemon's status, task folders and directive extraction as MCP tools.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/valter-silva-au/vaultd/internal/core"
	"github.com/valter-silva-au/vaultd/internal/integration"
	"github.com/valter-silva-au/vaultd/internal/observability"
	"github.com/valter-silva-au/vaultd/pkg/models"
)

// StatusReader loads the last published daemon status.
type StatusReader interface {
	Load() (*models.DaemonStatus, error)
}

// TaskFolders is the subset of task folder operations the server needs.
type TaskFolders interface {
	List(loc models.Location) ([]models.Task, error)
	Read(loc models.Location, name string) (string, error)
	Create(name, content string) (string, error)
}

// EventReader reads the transition event log.
type EventReader interface {
	Read(filter observability.EventFilter) ([]observability.Event, error)
}

// Options wires the server to the daemon's stores. Events may be nil when
// the event log is unavailable.
type Options struct {
	Root    string
	Trigger string
	Status  StatusReader
	Tasks   TaskFolders
	Events  EventReader
	Version string
}

// Server wraps vaultd services and exposes them as MCP tools.
type Server struct {
	server  *gomcp.Server
	root    string
	trigger string
	status  StatusReader
	tasks   TaskFolders
	events  EventReader
}

// NewServer creates a new MCP server over the given stores.
func NewServer(opts Options) *Server {
	version := opts.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		root:    opts.Root,
		trigger: opts.Trigger,
		status:  opts.Status,
		tasks:   opts.Tasks,
		events:  opts.Events,
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "vaultd", Version: version},
		nil,
	)

	s.registerTools()

	return s
}

// Run starts the MCP server on stdio, blocking until the client disconnects
// or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type getStatusInput struct{}

type statusOutput struct {
	Status              string `json:"status"`
	ActiveTasks         int    `json:"active_tasks"`
	LastScan            string `json:"last_scan,omitempty"`
	LastError           string `json:"last_error,omitempty"`
	TasksCompletedToday int    `json:"tasks_completed_today"`
	AgentCommandsToday  int    `json:"agent_commands_today"`
}

type listTasksInput struct {
	Location string `json:"location,omitempty" jsonschema:"only list tasks in this folder (inbox, in_progress, blocked, completed)"`
}

type taskOutput struct {
	Name     string `json:"name"`
	Location string `json:"location"`
	Title    string `json:"title,omitempty"`
	Modified string `json:"modified"`
}

type listTasksOutput struct {
	Tasks []taskOutput `json:"tasks"`
	Count int          `json:"count"`
}

type enqueueTaskInput struct {
	Name    string `json:"name" jsonschema:"required,file name of the new task including its extension (e.g. write-report.md)"`
	Content string `json:"content" jsonschema:"required,the task instructions written into the file"`
}

type enqueueTaskOutput struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

type extractDirectivesInput struct {
	Path string `json:"path,omitempty" jsonschema:"document path relative to the vault root"`
	Text string `json:"text,omitempty" jsonschema:"raw document text, used when path is empty"`
}

type directiveOutput struct {
	Line        int    `json:"line"`
	Instruction string `json:"instruction"`
	SourceLine  string `json:"source_line"`
}

type extractDirectivesOutput struct {
	Directives []directiveOutput `json:"directives"`
	Count      int               `json:"count"`
}

type recentEventsInput struct {
	Type  string `json:"type,omitempty" jsonschema:"only return events of this type (e.g. task.completed)"`
	Since string `json:"since,omitempty" jsonschema:"time window (e.g. 24h, 7d). Defaults to all events."`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of most recent events to return. Defaults to 50."`
}

type eventOutput struct {
	Time    string         `json:"time"`
	Level   string         `json:"level"`
	Type    string         `json:"type"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

type recentEventsOutput struct {
	Events []eventOutput `json:"events"`
	Count  int           `json:"count"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_status",
		Description: "Get the daemon status: idle, working, blocked, paused or error, plus active task count and daily counters.",
	}, s.handleGetStatus)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_tasks",
		Description: "List task files in the inbox, in-progress, blocked and completed folders, oldest first.",
	}, s.handleListTasks)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "enqueue_task",
		Description: "Create a new task file in the inbox. The running daemon picks it up and hands it to the agent.",
	}, s.handleEnqueueTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "extract_directives",
		Description: "Extract inline agent directives from a vault document or raw text without running the agent.",
	}, s.handleExtractDirectives)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "recent_events",
		Description: "Read recent task lifecycle and directive events from the event log.",
	}, s.handleRecentEvents)
}

// --- Tool handlers ---

func (s *Server) handleGetStatus(_ context.Context, _ *gomcp.CallToolRequest, _ getStatusInput) (*gomcp.CallToolResult, statusOutput, error) {
	st, err := s.status.Load()
	if err != nil {
		return errorResult(fmt.Sprintf("loading status: %s", err)), statusOutput{}, nil
	}
	if st == nil {
		return errorResult("no status published yet (is the daemon running?)"), statusOutput{}, nil
	}

	out := statusOutput{
		Status:              string(st.Status),
		ActiveTasks:         st.ActiveTasks,
		TasksCompletedToday: st.TasksCompletedToday,
		AgentCommandsToday:  st.AgentCommandsToday,
	}
	if st.LastScan != nil {
		out.LastScan = *st.LastScan
	}
	if st.LastError != nil {
		out.LastError = *st.LastError
	}
	return nil, out, nil
}

func (s *Server) handleListTasks(_ context.Context, _ *gomcp.CallToolRequest, input listTasksInput) (*gomcp.CallToolResult, listTasksOutput, error) {
	locations := models.AllLocations
	if input.Location != "" {
		loc := models.Location(input.Location)
		if !loc.Valid() {
			return errorResult(fmt.Sprintf("invalid location %q: must be one of inbox, in_progress, blocked, completed", input.Location)), listTasksOutput{Tasks: []taskOutput{}}, nil
		}
		locations = []models.Location{loc}
	}

	out := listTasksOutput{Tasks: []taskOutput{}}
	for _, loc := range locations {
		tasks, err := s.tasks.List(loc)
		if err != nil {
			return errorResult(fmt.Sprintf("listing %s: %s", loc, err)), listTasksOutput{Tasks: []taskOutput{}}, nil
		}
		for _, t := range tasks {
			item := taskOutput{
				Name:     t.Name,
				Location: string(t.Location),
				Modified: t.Modified.UTC().Format(time.RFC3339),
			}
			// A task can move between List and Read; keep it without a title.
			if content, err := s.tasks.Read(loc, t.Name); err == nil {
				item.Title = integration.TaskTitle(content)
			}
			out.Tasks = append(out.Tasks, item)
		}
	}
	out.Count = len(out.Tasks)
	return nil, out, nil
}

func (s *Server) handleEnqueueTask(_ context.Context, _ *gomcp.CallToolRequest, input enqueueTaskInput) (*gomcp.CallToolResult, enqueueTaskOutput, error) {
	if input.Name == "" {
		return errorResult("name is required"), enqueueTaskOutput{}, nil
	}
	if strings.TrimSpace(input.Content) == "" {
		return errorResult("content is required"), enqueueTaskOutput{}, nil
	}

	path, err := s.tasks.Create(input.Name, input.Content)
	if err != nil {
		return errorResult(err.Error()), enqueueTaskOutput{}, nil
	}
	return nil, enqueueTaskOutput{
		Path:    path,
		Message: fmt.Sprintf("task %s added to inbox", input.Name),
	}, nil
}

func (s *Server) handleExtractDirectives(_ context.Context, _ *gomcp.CallToolRequest, input extractDirectivesInput) (*gomcp.CallToolResult, extractDirectivesOutput, error) {
	empty := extractDirectivesOutput{Directives: []directiveOutput{}}

	text := input.Text
	if input.Path != "" {
		full, err := s.resolve(input.Path)
		if err != nil {
			return errorResult(err.Error()), empty, nil
		}
		data, err := os.ReadFile(full)
		if err != nil {
			return errorResult(fmt.Sprintf("reading %s: %s", input.Path, err)), empty, nil
		}
		text = string(data)
	} else if text == "" {
		return errorResult("either path or text is required"), empty, nil
	}

	directives := core.ExtractDirectives(text, s.trigger)
	out := extractDirectivesOutput{Directives: make([]directiveOutput, len(directives)), Count: len(directives)}
	for i, d := range directives {
		out.Directives[i] = directiveOutput{
			Line:        d.LineNumber,
			Instruction: d.Instruction,
			SourceLine:  d.SourceLine,
		}
	}
	return nil, out, nil
}

func (s *Server) handleRecentEvents(_ context.Context, _ *gomcp.CallToolRequest, input recentEventsInput) (*gomcp.CallToolResult, recentEventsOutput, error) {
	empty := recentEventsOutput{Events: []eventOutput{}}
	if s.events == nil {
		return errorResult("event log not available"), empty, nil
	}

	filter := observability.EventFilter{Type: input.Type, Limit: input.Limit}
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if input.Since != "" {
		since, err := parseSince(input.Since)
		if err != nil {
			return errorResult(fmt.Sprintf("parsing since duration: %s", err)), empty, nil
		}
		filter.Since = &since
	}

	events, err := s.events.Read(filter)
	if err != nil {
		return errorResult(fmt.Sprintf("reading events: %s", err)), empty, nil
	}

	out := recentEventsOutput{Events: make([]eventOutput, len(events)), Count: len(events)}
	for i, e := range events {
		out.Events[i] = eventOutput{
			Time:    e.Time.UTC().Format(time.RFC3339),
			Level:   e.Level,
			Type:    e.Type,
			Message: e.Message,
			Data:    e.Data,
		}
	}
	return nil, out, nil
}

// --- Helpers ---

// resolve maps a root-relative path to an absolute one, refusing paths that
// leave the root.
func (s *Server) resolve(rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", errors.New("path must be relative to the vault root")
	}
	full := filepath.Join(s.root, rel)
	back, err := filepath.Rel(s.root, full)
	if err != nil || back == ".." || strings.HasPrefix(back, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside the vault root", rel)
	}
	return full, nil
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// parseSince parses a human-friendly duration string like "7d", "30d", or "24h"
// into the corresponding time in the past.
func parseSince(s string) (time.Time, error) {
	now := time.Now().UTC()

	if len(s) < 2 {
		return time.Time{}, fmt.Errorf("invalid duration %q", s)
	}

	suffix := s[len(s)-1]
	numStr := s[:len(s)-1]
	var num int
	if _, err := fmt.Sscanf(numStr, "%d", &num); err != nil {
		return time.Time{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}

	switch suffix {
	case 'd':
		return now.AddDate(0, 0, -num), nil
	case 'h':
		return now.Add(-time.Duration(num) * time.Hour), nil
	case 'm':
		return now.Add(-time.Duration(num) * time.Minute), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported duration suffix %q (use d, h or m)", string(suffix))
	}
}
