//go:build windows

package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrLocked reports that another daemon already serves the root.
var ErrLocked = errors.New("another vaultd instance is running")

// acquireInstanceLock creates path exclusively; a leftover file from a crash
// must be removed by hand.
func acquireInstanceLock(path string) (unlock func() error, err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w (lock %s)", ErrLocked, path)
		}
		return nil, fmt.Errorf("opening lock file: %w", err)
	}
	return func() error {
		_ = f.Close()
		return os.Remove(path)
	}, nil
}
