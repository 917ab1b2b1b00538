package models

import (
	"path/filepath"
	"time"
)

// OrphanPolicy decides what happens to tasks found in the in-progress folder
// when the daemon starts.
type OrphanPolicy string

const (
	// OrphanRequeue moves orphaned tasks back to the inbox.
	OrphanRequeue OrphanPolicy = "requeue"
	// OrphanManual leaves orphaned tasks in place for a human to resolve.
	OrphanManual OrphanPolicy = "manual"
)

// TaskFolderConfig names the task area and its lifecycle subfolders.
type TaskFolderConfig struct {
	Dir         string `yaml:"dir" mapstructure:"dir"`
	Inbox       string `yaml:"inbox" mapstructure:"inbox"`
	InProgress  string `yaml:"in_progress" mapstructure:"in_progress"`
	Blocked     string `yaml:"blocked" mapstructure:"blocked"`
	Completed   string `yaml:"completed" mapstructure:"completed"`
	Extension   string `yaml:"extension" mapstructure:"extension"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
	DebounceMS  int    `yaml:"debounce_ms" mapstructure:"debounce_ms"`
}

// ScanConfig controls the vault-wide directive scanner.
type ScanConfig struct {
	Trigger    string   `yaml:"trigger" mapstructure:"trigger"`
	DebounceMS int      `yaml:"debounce_ms" mapstructure:"debounce_ms"`
	IntervalMS int      `yaml:"interval_ms" mapstructure:"interval_ms"`
	Ignore     []string `yaml:"ignore" mapstructure:"ignore"`
	// Workers bounds how many documents a full scan handles at once. Zero
	// means no limit.
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// AgentConfig describes how the external agent is invoked.
type AgentConfig struct {
	Command        string   `yaml:"command" mapstructure:"command"`
	Args           []string `yaml:"args" mapstructure:"args"`
	TimeoutMS      int      `yaml:"timeout_ms" mapstructure:"timeout_ms"`
	BlockingMarker string   `yaml:"blocking_marker" mapstructure:"blocking_marker"`
}

// StateConfig locates the daemon's own files beneath the root.
type StateConfig struct {
	Dir        string `yaml:"dir" mapstructure:"dir"`
	LogFile    string `yaml:"log_file" mapstructure:"log_file"`
	LogMaxByte int64  `yaml:"log_max_bytes" mapstructure:"log_max_bytes"`
	LogLevel   string `yaml:"log_level" mapstructure:"log_level"`
	StatusFile string `yaml:"status_file" mapstructure:"status_file"`
	EventsFile string `yaml:"events_file" mapstructure:"events_file"`
}

// RecoveryConfig controls startup reconciliation.
type RecoveryConfig struct {
	Orphans OrphanPolicy `yaml:"orphans" mapstructure:"orphans"`
}

// Config is the resolved, read-only configuration of a daemon process.
type Config struct {
	Root     string           `yaml:"-" mapstructure:"-"`
	Tasks    TaskFolderConfig `yaml:"tasks" mapstructure:"tasks"`
	Scan     ScanConfig       `yaml:"scan" mapstructure:"scan"`
	Agent    AgentConfig      `yaml:"agent" mapstructure:"agent"`
	State    StateConfig      `yaml:"state" mapstructure:"state"`
	Recovery RecoveryConfig   `yaml:"recovery" mapstructure:"recovery"`
}

// TaskDebounce returns the debounce window for task folder events.
func (c *Config) TaskDebounce() time.Duration {
	return time.Duration(c.Tasks.DebounceMS) * time.Millisecond
}

// ContentDebounce returns the debounce window for document change events.
func (c *Config) ContentDebounce() time.Duration {
	return time.Duration(c.Scan.DebounceMS) * time.Millisecond
}

// ScanInterval returns the period between full vault scans.
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.Scan.IntervalMS) * time.Millisecond
}

// AgentTimeout returns the hard wall-clock limit for one agent invocation.
func (c *Config) AgentTimeout() time.Duration {
	return time.Duration(c.Agent.TimeoutMS) * time.Millisecond
}

// TaskAreaPath returns the absolute path of the task area.
func (c *Config) TaskAreaPath() string {
	return filepath.Join(c.Root, c.Tasks.Dir)
}

// LocationPath returns the absolute directory backing a lifecycle location.
func (c *Config) LocationPath(loc Location) string {
	var sub string
	switch loc {
	case LocationInbox:
		sub = c.Tasks.Inbox
	case LocationInProgress:
		sub = c.Tasks.InProgress
	case LocationBlocked:
		sub = c.Tasks.Blocked
	case LocationCompleted:
		sub = c.Tasks.Completed
	default:
		return ""
	}
	return filepath.Join(c.TaskAreaPath(), sub)
}

// StatePath returns the absolute path of a file inside the state directory.
func (c *Config) StatePath(name string) string {
	return filepath.Join(c.Root, c.State.Dir, name)
}
