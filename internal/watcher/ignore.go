package watcher

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// IgnoreMatcher matches paths under a root against doublestar glob patterns
// such as "**/.git/**" or "tasks/**". Patterns are evaluated against the
// slash-separated path relative to the root.
type IgnoreMatcher struct {
	root     string
	patterns []string
}

// NewIgnoreMatcher validates patterns and returns a matcher rooted at root.
func NewIgnoreMatcher(root string, patterns []string) (*IgnoreMatcher, error) {
	m := &IgnoreMatcher{root: filepath.Clean(root)}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid ignore pattern %q", p)
		}
		m.patterns = append(m.patterns, p)
	}
	return m, nil
}

// Patterns returns the active patterns.
func (m *IgnoreMatcher) Patterns() []string {
	return append([]string(nil), m.patterns...)
}

// Match reports whether path should be ignored. Paths outside the root are
// never ignored. A directory also matches a pattern of the form "X/**" when
// the directory itself is X, so walks can prune it.
func (m *IgnoreMatcher) Match(path string, isDir bool) bool {
	if m == nil {
		return false
	}
	rel, err := filepath.Rel(m.root, filepath.Clean(path))
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return false
	}
	rel = filepath.ToSlash(rel)

	for _, p := range m.patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
		if isDir && strings.HasSuffix(p, "/**") {
			if ok, _ := doublestar.Match(strings.TrimSuffix(p, "/**"), rel); ok {
				return true
			}
		}
	}
	return false
}
