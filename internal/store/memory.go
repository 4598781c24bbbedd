package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/vyrodovalexey/storefront/internal/model"
)

// MemoryStore implements Store with in-memory storage. Values are kept in
// their serialized form so callers never share slices with the store.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string][]byte
}

// NewMemoryStore creates a new MemoryStore instance.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states: make(map[string][]byte),
	}
}

// Load returns the state saved under key.
func (s *MemoryStore) Load(ctx context.Context, key string) (*model.PersistedState, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("load state: %w", ctx.Err())
	default:
	}

	if err := validateKey(key); err != nil {
		return nil, err
	}

	s.mu.RLock()
	data, exists := s.states[key]
	s.mu.RUnlock()

	if !exists {
		return nil, ErrNotFound
	}

	return decodeState(data)
}

// Save replaces the state saved under key.
func (s *MemoryStore) Save(ctx context.Context, key string, state model.PersistedState) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("save state: %w", ctx.Err())
	default:
	}

	if err := validateKey(key); err != nil {
		return err
	}

	data, err := encodeState(state)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[key] = data

	return nil
}

// Delete removes the state saved under key.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("delete state: %w", ctx.Err())
	default:
	}

	if err := validateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.states, key)

	return nil
}

// Len returns the number of stored keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}
