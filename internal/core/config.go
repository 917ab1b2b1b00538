// Package core contains the orchestration logic of vaultd: configuration,
// directive extraction, the task lifecycle, the directive scanner, status
// bookkeeping and the daemon that ties them to filesystem events.
package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/valter-silva-au/vaultd/pkg/models"
)

// ConfigFileName is the per-root configuration file, without extension.
const ConfigFileName = ".vaultd"

// RootEnvVar overrides root discovery when set.
const RootEnvVar = "VAULTD_ROOT"

// ConfigurationManager loads and validates the configuration of one root.
type ConfigurationManager interface {
	Load() (*models.Config, error)
	Validate(cfg *models.Config) error
	ConfigPath() string
}

// viperConfigManager implements ConfigurationManager using Viper for
// reading the YAML file and applying VAULTD_* environment overrides.
type viperConfigManager struct {
	root string
}

// NewConfigurationManager creates a ConfigurationManager for root.
func NewConfigurationManager(root string) ConfigurationManager {
	return &viperConfigManager{root: root}
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig(root string) *models.Config {
	return &models.Config{
		Root: root,
		Tasks: models.TaskFolderConfig{
			Dir:         "tasks",
			Inbox:       "inbox",
			InProgress:  "in-progress",
			Blocked:     "blocked",
			Completed:   "completed",
			Extension:   ".md",
			Concurrency: 2,
			DebounceMS:  3000,
		},
		Scan: models.ScanConfig{
			Trigger:    "@agent",
			DebounceMS: 1000,
			IntervalMS: 300000,
			Ignore: []string{
				"**/.git/**",
				"**/node_modules/**",
				"**/.obsidian/**",
				"**/.trash/**",
				"**/.vaultd/**",
			},
		},
		Agent: models.AgentConfig{
			Command:        "claude",
			Args:           []string{"--print", "--permission-mode", "acceptEdits"},
			TimeoutMS:      600000,
			BlockingMarker: "## Blocking Question",
		},
		State: models.StateConfig{
			Dir:        ".vaultd",
			LogFile:    "vaultd.log",
			LogMaxByte: 5 * 1024 * 1024,
			LogLevel:   "info",
			StatusFile: "status.json",
			EventsFile: "events.jsonl",
		},
		Recovery: models.RecoveryConfig{
			Orphans: models.OrphanRequeue,
		},
	}
}

func (cm *viperConfigManager) ConfigPath() string {
	return filepath.Join(cm.root, ConfigFileName+".yaml")
}

// Load reads .vaultd.yaml from the root. A missing file yields the defaults;
// a malformed file or an invalid result is an error.
func (cm *viperConfigManager) Load() (*models.Config, error) {
	def := DefaultConfig(cm.root)

	v := viper.New()
	v.SetConfigName(ConfigFileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.root)
	v.SetEnvPrefix("VAULTD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Every key needs a default so env overrides reach Unmarshal.
	v.SetDefault("tasks.dir", def.Tasks.Dir)
	v.SetDefault("tasks.inbox", def.Tasks.Inbox)
	v.SetDefault("tasks.in_progress", def.Tasks.InProgress)
	v.SetDefault("tasks.blocked", def.Tasks.Blocked)
	v.SetDefault("tasks.completed", def.Tasks.Completed)
	v.SetDefault("tasks.extension", def.Tasks.Extension)
	v.SetDefault("tasks.concurrency", def.Tasks.Concurrency)
	v.SetDefault("tasks.debounce_ms", def.Tasks.DebounceMS)
	v.SetDefault("scan.trigger", def.Scan.Trigger)
	v.SetDefault("scan.debounce_ms", def.Scan.DebounceMS)
	v.SetDefault("scan.interval_ms", def.Scan.IntervalMS)
	v.SetDefault("scan.ignore", def.Scan.Ignore)
	v.SetDefault("scan.workers", def.Scan.Workers)
	v.SetDefault("agent.command", def.Agent.Command)
	v.SetDefault("agent.args", def.Agent.Args)
	v.SetDefault("agent.timeout_ms", def.Agent.TimeoutMS)
	v.SetDefault("agent.blocking_marker", def.Agent.BlockingMarker)
	v.SetDefault("state.dir", def.State.Dir)
	v.SetDefault("state.log_file", def.State.LogFile)
	v.SetDefault("state.log_max_bytes", def.State.LogMaxByte)
	v.SetDefault("state.log_level", def.State.LogLevel)
	v.SetDefault("state.status_file", def.State.StatusFile)
	v.SetDefault("state.events_file", def.State.EventsFile)
	v.SetDefault("recovery.orphans", string(def.Recovery.Orphans))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading %s: %w", cm.ConfigPath(), err)
		}
	}

	cfg := &models.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	cfg.Root = cm.root

	if err := cm.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid value at once.
func (cm *viperConfigManager) Validate(cfg *models.Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	var errs []string

	if cfg.Root == "" {
		errs = append(errs, "root must not be empty")
	}
	if cfg.Tasks.Concurrency < 1 {
		errs = append(errs, fmt.Sprintf("tasks.concurrency must be at least 1, got %d", cfg.Tasks.Concurrency))
	}
	if cfg.Tasks.DebounceMS <= 0 {
		errs = append(errs, fmt.Sprintf("tasks.debounce_ms must be positive, got %d", cfg.Tasks.DebounceMS))
	}
	if cfg.Scan.DebounceMS <= 0 {
		errs = append(errs, fmt.Sprintf("scan.debounce_ms must be positive, got %d", cfg.Scan.DebounceMS))
	}
	if cfg.Scan.IntervalMS <= 0 {
		errs = append(errs, fmt.Sprintf("scan.interval_ms must be positive, got %d", cfg.Scan.IntervalMS))
	}
	if cfg.Scan.Workers < 0 {
		errs = append(errs, fmt.Sprintf("scan.workers must not be negative, got %d", cfg.Scan.Workers))
	}
	if cfg.Agent.TimeoutMS <= 0 {
		errs = append(errs, fmt.Sprintf("agent.timeout_ms must be positive, got %d", cfg.Agent.TimeoutMS))
	}
	if strings.TrimSpace(cfg.Agent.Command) == "" {
		errs = append(errs, "agent.command must not be empty")
	}
	if strings.TrimSpace(cfg.Agent.BlockingMarker) == "" {
		errs = append(errs, "agent.blocking_marker must not be empty")
	}
	if strings.TrimSpace(cfg.Scan.Trigger) == "" || strings.ContainsAny(cfg.Scan.Trigger, " \t") {
		errs = append(errs, fmt.Sprintf("scan.trigger %q must be a single non-empty token", cfg.Scan.Trigger))
	}
	if !strings.HasPrefix(cfg.Tasks.Extension, ".") || len(cfg.Tasks.Extension) < 2 {
		errs = append(errs, fmt.Sprintf("tasks.extension %q must start with a dot", cfg.Tasks.Extension))
	}

	folders := map[string]string{
		"tasks.dir":         cfg.Tasks.Dir,
		"tasks.inbox":       cfg.Tasks.Inbox,
		"tasks.in_progress": cfg.Tasks.InProgress,
		"tasks.blocked":     cfg.Tasks.Blocked,
		"tasks.completed":   cfg.Tasks.Completed,
		"state.dir":         cfg.State.Dir,
	}
	for _, key := range []string{"tasks.dir", "tasks.inbox", "tasks.in_progress", "tasks.blocked", "tasks.completed", "state.dir"} {
		if err := validateRelative(folders[key]); err != nil {
			errs = append(errs, fmt.Sprintf("%s %v", key, err))
		}
	}
	seen := map[string]string{}
	for _, key := range []string{"tasks.inbox", "tasks.in_progress", "tasks.blocked", "tasks.completed"} {
		name := filepath.Clean(folders[key])
		if prev, ok := seen[name]; ok {
			errs = append(errs, fmt.Sprintf("%s and %s must name different folders", prev, key))
		}
		seen[name] = key
	}

	switch cfg.Recovery.Orphans {
	case models.OrphanRequeue, models.OrphanManual:
	default:
		errs = append(errs, fmt.Sprintf("recovery.orphans %q is invalid, must be one of: requeue, manual", cfg.Recovery.Orphans))
	}

	switch strings.ToLower(cfg.State.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Sprintf("state.log_level %q is invalid, must be one of: debug, info, warn, error", cfg.State.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func validateRelative(p string) error {
	if strings.TrimSpace(p) == "" {
		return fmt.Errorf("must not be empty")
	}
	if filepath.IsAbs(p) {
		return fmt.Errorf("%q must be relative to the root", p)
	}
	if c := filepath.Clean(p); c == ".." || strings.HasPrefix(c, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%q must stay inside the root", p)
	}
	return nil
}

// RenderConfig serialises cfg as YAML in the layout of .vaultd.yaml.
func RenderConfig(cfg *models.Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshalling configuration: %w", err)
	}
	return data, nil
}

// WriteDefaultConfig writes the default configuration to the root's config
// file. An existing file is left untouched unless force is set.
func WriteDefaultConfig(root string, force bool) (string, error) {
	path := filepath.Join(root, ConfigFileName+".yaml")
	if !force {
		if _, err := os.Stat(path); err == nil {
			return path, fmt.Errorf("%s already exists", path)
		}
	}
	data, err := RenderConfig(DefaultConfig(root))
	if err != nil {
		return path, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return path, fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

// ResolveRoot picks the directory the daemon manages: $VAULTD_ROOT when set,
// else the nearest ancestor of cwd holding .vaultd.yaml, else cwd itself.
func ResolveRoot(cwd string) (string, error) {
	if env := strings.TrimSpace(os.Getenv(RootEnvVar)); env != "" {
		abs, err := filepath.Abs(env)
		if err != nil {
			return "", fmt.Errorf("resolving %s: %w", RootEnvVar, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return "", fmt.Errorf("%s=%s: %w", RootEnvVar, env, err)
		}
		if !info.IsDir() {
			return "", fmt.Errorf("%s=%s is not a directory", RootEnvVar, env)
		}
		return abs, nil
	}

	start, err := filepath.Abs(cwd)
	if err != nil {
		return "", fmt.Errorf("resolving working directory: %w", err)
	}
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, ConfigFileName+".yaml")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return start, nil
		}
		dir = parent
	}
}
