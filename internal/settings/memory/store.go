// Package memory is an in-process settings store for tests and single-node
// deployments without Postgres.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Store keeps settings in a mutex-guarded map.
type Store struct {
	mu   sync.Mutex
	data map[string]json.RawMessage
}

// New creates an empty store.
func New() *Store {
	return &Store{data: make(map[string]json.RawMessage)}
}

// Get unmarshals the value under key into out and reports whether it exists.
func (s *Store) Get(_ context.Context, key string, out any) (bool, error) {
	s.mu.Lock()
	raw, ok := s.data[key]
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode setting %q: %w", key, err)
	}
	return true, nil
}

// Set stores the JSON encoding of value under key.
func (s *Store) Set(_ context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode setting %q: %w", key, err)
	}
	s.mu.Lock()
	s.data[key] = raw
	s.mu.Unlock()
	return nil
}

// GetAll returns a copy of every stored value.
func (s *Store) GetAll(context.Context) (map[string]json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]json.RawMessage, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out, nil
}

// Delete removes the key. Missing keys are not an error.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

// Close is a no-op.
func (s *Store) Close() {}
