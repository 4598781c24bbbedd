// Package store provides durable key-value persistence for cart state.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/vyrodovalexey/storefront/internal/model"
)

// Store errors.
var (
	ErrNotFound       = errors.New("state not found")
	ErrInvalidKey     = errors.New("invalid storage key")
	ErrUnknownBackend = errors.New("unknown store backend")
)

// Backend names accepted by New.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Store defines the interface for persisted state operations.
type Store interface {
	// Load returns the state saved under key, or ErrNotFound.
	Load(ctx context.Context, key string) (*model.PersistedState, error)

	// Save replaces the state saved under key.
	Save(ctx context.Context, key string, state model.PersistedState) error

	// Delete removes the state saved under key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any underlying resources.
	Close() error
}

// New opens the backend by name. dsn is a directory for the file backend,
// a database path for sqlite and a connection string for postgres.
func New(ctx context.Context, backend, dsn string) (Store, error) {
	switch backend {
	case BackendMemory, "":
		return NewMemoryStore(), nil
	case BackendFile:
		return NewFileStore(dsn)
	case BackendSQLite:
		return NewSQLiteStore(ctx, dsn)
	case BackendPostgres:
		return NewPostgresStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, backend)
	}
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	return nil
}

func encodeState(state model.PersistedState) ([]byte, error) {
	if state.Cart == nil {
		state.Cart = []model.CartItem{}
	}
	if state.Favorites == nil {
		state.Favorites = []int{}
	}
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return data, nil
}

func decodeState(data []byte) (*model.PersistedState, error) {
	var state model.PersistedState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &state, nil
}
