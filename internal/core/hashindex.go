package core

import (
	"encoding/hex"
	"sync"

	"github.com/zeebo/blake3"
)

// ContentHash returns the hex BLAKE3 digest of data.
func ContentHash(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashIndex remembers the last known content hash per key (a task name or a
// document path) so that events caused by unchanged content can be ignored.
type HashIndex struct {
	mu     sync.Mutex
	hashes map[string]string
}

// NewHashIndex creates an empty index.
func NewHashIndex() *HashIndex {
	return &HashIndex{hashes: make(map[string]string)}
}

// Set records the hash of content under key.
func (h *HashIndex) Set(key string, content []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hashes[key] = ContentHash(content)
}

// Seed records content under key unless key is already tracked. It reports
// whether the key was new.
func (h *HashIndex) Seed(key string, content []byte) bool {
	sum := ContentHash(content)
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.hashes[key]; ok {
		return false
	}
	h.hashes[key] = sum
	return true
}

// Changed reports whether content differs from what was recorded for key.
// Unknown keys count as changed.
func (h *HashIndex) Changed(key string, content []byte) bool {
	sum := ContentHash(content)
	h.mu.Lock()
	defer h.mu.Unlock()
	prev, ok := h.hashes[key]
	return !ok || prev != sum
}

// Forget drops key.
func (h *HashIndex) Forget(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.hashes, key)
}

// Len returns the number of tracked keys.
func (h *HashIndex) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.hashes)
}
