// Package storage persists daemon state that external observers read.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/valter-silva-au/vaultd/pkg/models"
)

// StatusStore persists the daemon status snapshot.
type StatusStore interface {
	Save(status models.DaemonStatus) error
	Load() (*models.DaemonStatus, error)
	Path() string
}

type fileStatusStore struct {
	path string
}

// NewStatusStore creates a StatusStore writing JSON to path.
func NewStatusStore(path string) StatusStore {
	return &fileStatusStore{path: path}
}

func (s *fileStatusStore) Path() string {
	return s.path
}

// Save writes the snapshot atomically so readers never observe a partial file.
func (s *fileStatusStore) Save(status models.DaemonStatus) error {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("saving status: marshaling JSON: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("saving status: creating directory: %w", err)
	}
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("saving status: writing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("saving status: renaming: %w", err)
	}
	return nil
}

// Load reads the last written snapshot. It returns nil, nil when no status
// file exists yet.
func (s *fileStatusStore) Load() (*models.DaemonStatus, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading status: %w", err)
	}
	var status models.DaemonStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("loading status: parsing JSON: %w", err)
	}
	return &status, nil
}
