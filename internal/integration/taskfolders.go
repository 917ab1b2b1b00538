package integration

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/valter-silva-au/vaultd/pkg/models"
	"gopkg.in/yaml.v3"
)

// TaskFolders implements the lifecycle folders of the task area. A task's
// folder is its state; moving between folders uses rename(2) so a file is
// never visible half-copied.
type TaskFolders struct {
	dirs      map[models.Location]string
	extension string
}

// TaskFoldersConfig holds the absolute folder for each location.
type TaskFoldersConfig struct {
	Dirs      map[models.Location]string
	Extension string
}

// NewTaskFolders creates every lifecycle folder that does not exist yet.
func NewTaskFolders(cfg TaskFoldersConfig) (*TaskFolders, error) {
	if cfg.Extension == "" {
		return nil, fmt.Errorf("creating task folders: extension is empty")
	}
	dirs := make(map[models.Location]string, len(models.AllLocations))
	for _, loc := range models.AllLocations {
		dir := cfg.Dirs[loc]
		if dir == "" {
			return nil, fmt.Errorf("creating task folders: no directory for %s", loc)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating task folder %s: %w", dir, err)
		}
		dirs[loc] = filepath.Clean(dir)
	}
	return &TaskFolders{dirs: dirs, extension: cfg.Extension}, nil
}

// Dir returns the folder backing loc.
func (f *TaskFolders) Dir(loc models.Location) string {
	return f.dirs[loc]
}

// Path returns where a task named name lives when it is in loc.
func (f *TaskFolders) Path(loc models.Location, name string) string {
	return filepath.Join(f.dirs[loc], name)
}

// IsTaskFile reports whether a file name is eligible as a task: it carries
// the task extension and is not hidden or a temporary file.
func (f *TaskFolders) IsTaskFile(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") {
		return false
	}
	return strings.EqualFold(filepath.Ext(name), f.extension)
}

// LocationOf maps a file path to the location whose folder directly contains it.
func (f *TaskFolders) LocationOf(path string) (models.Location, bool) {
	dir := filepath.Dir(filepath.Clean(path))
	for loc, d := range f.dirs {
		if d == dir {
			return loc, true
		}
	}
	return "", false
}

// List returns the tasks in loc ordered by modification time, oldest first.
func (f *TaskFolders) List(loc models.Location) ([]models.Task, error) {
	entries, err := os.ReadDir(f.dirs[loc])
	if err != nil {
		return nil, fmt.Errorf("reading %s folder: %w", loc, err)
	}

	var tasks []models.Task
	for _, entry := range entries {
		if entry.IsDir() || !f.IsTaskFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Moved away between ReadDir and Info.
			continue
		}
		tasks = append(tasks, models.Task{
			Name:     entry.Name(),
			Path:     f.Path(loc, entry.Name()),
			Location: loc,
			Modified: info.ModTime(),
		})
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Modified.Equal(tasks[j].Modified) {
			return tasks[i].Name < tasks[j].Name
		}
		return tasks[i].Modified.Before(tasks[j].Modified)
	})
	return tasks, nil
}

// Find returns the location currently holding a task named name.
func (f *TaskFolders) Find(name string) (models.Location, error) {
	for _, loc := range models.AllLocations {
		if _, err := os.Stat(f.Path(loc, name)); err == nil {
			return loc, nil
		}
	}
	return "", fmt.Errorf("%w: %s", models.ErrTaskNotFound, name)
}

// Read loads a task's content from loc.
func (f *TaskFolders) Read(loc models.Location, name string) (string, error) {
	data, err := os.ReadFile(f.Path(loc, name))
	if err != nil {
		return "", wrapNotFound(err, loc, name)
	}
	return string(data), nil
}

// WriteExisting replaces the content of a task that must already exist in
// loc. It never creates the file, so a task moved away by a concurrent
// component yields models.ErrTaskNotFound instead of a stray copy.
func (f *TaskFolders) WriteExisting(loc models.Location, name, content string) error {
	file, err := os.OpenFile(f.Path(loc, name), os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return wrapNotFound(err, loc, name)
	}
	if _, err := file.WriteString(content); err != nil {
		_ = file.Close()
		return fmt.Errorf("writing task %s: %w", name, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing task %s: %w", name, err)
	}
	return nil
}

// Move relocates a task between lifecycle folders and returns its new path.
// An existing file of the same name in the target folder is replaced.
func (f *TaskFolders) Move(name string, from, to models.Location) (string, error) {
	src := f.Path(from, name)
	dst := f.Path(to, name)
	if err := os.Rename(src, dst); err != nil {
		return "", wrapNotFound(err, from, name)
	}
	return dst, nil
}

// Create writes a new task into the inbox. The content is staged in a hidden
// temp file first so watchers never see a partially written task.
func (f *TaskFolders) Create(name, content string) (string, error) {
	if !f.IsTaskFile(name) {
		return "", fmt.Errorf("creating task: %q is not a %s file", name, f.extension)
	}
	if strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("creating task: name %q must not contain path separators", name)
	}
	if loc, err := f.Find(name); err == nil {
		return "", fmt.Errorf("creating task: %s already exists in %s", name, loc)
	}

	dst := f.Path(models.LocationInbox, name)
	tmp := filepath.Join(f.dirs[models.LocationInbox], "."+name+".tmp")
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("creating task: writing temp file: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("creating task: renaming: %w", err)
	}
	return dst, nil
}

func wrapNotFound(err error, loc models.Location, name string) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s in %s", models.ErrTaskNotFound, name, loc)
	}
	return fmt.Errorf("task %s in %s: %w", name, loc, err)
}

// taskFrontmatter is the optional YAML header of a task file.
type taskFrontmatter struct {
	Title string `yaml:"title"`
}

// TaskTitle derives a display title for a task: the frontmatter title, else
// the first markdown heading, else the first non-empty line.
func TaskTitle(content string) string {
	body := content
	if strings.HasPrefix(content, "---\n") {
		rest := content[4:]
		if idx := strings.Index(rest, "\n---"); idx >= 0 {
			var fm taskFrontmatter
			if err := yaml.Unmarshal([]byte(rest[:idx]), &fm); err == nil && fm.Title != "" {
				return fm.Title
			}
			body = rest[idx+4:]
		}
	}

	first := ""
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			return strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		}
		if first == "" {
			first = trimmed
		}
	}
	if r := []rune(first); len(r) > 80 {
		first = string(r[:77]) + "..."
	}
	return first
}
