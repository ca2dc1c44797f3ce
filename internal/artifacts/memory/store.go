// Package memory stores artifact content in-memory for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Store keeps artifacts in a map and returns pseudo URIs.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New creates a new in-memory artifact store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

// PutObject persists the content and returns a URI.
func (s *Store) PutObject(_ context.Context, path string, _ string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[path] = append([]byte(nil), data...)
	return fmt.Sprintf("memory://%s", path), nil
}

// Get returns the stored content for a path.
func (s *Store) Get(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[path]
	return data, ok
}
