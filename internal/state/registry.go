package state

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/storefront/internal/store"
)

// DefaultStorageName is the storage name used when none is configured.
const DefaultStorageName = "ecommerce-store"

type session struct {
	store    *Store
	lastUsed time.Time
	loaded   sync.Once
}

// Registry hands out one Store per session, rehydrating it from the backend
// on first use.
type Registry struct {
	mu       sync.Mutex
	name     string
	backend  store.Store
	logger   *zap.Logger
	sessions map[string]*session
	now      func() time.Time
}

// NewRegistry creates a Registry whose stores persist under
// "<name>:<session id>".
func NewRegistry(name string, backend store.Store, logger *zap.Logger) *Registry {
	if name == "" {
		name = DefaultStorageName
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		name:     name,
		backend:  backend,
		logger:   logger,
		sessions: make(map[string]*session),
		now:      time.Now,
	}
}

// Key returns the storage key of a session.
func (r *Registry) Key(sessionID string) string {
	return r.name + ":" + sessionID
}

// Get returns the Store of the session, creating and rehydrating it if
// needed. Rehydration failures are logged and yield an empty store.
// Only callers of the same session wait for its rehydration.
func (r *Registry) Get(ctx context.Context, sessionID string) *Store {
	r.mu.Lock()
	sess, ok := r.sessions[sessionID]
	if !ok {
		sess = &session{store: New(r.Key(sessionID), r.backend, r.logger)}
		r.sessions[sessionID] = sess
	}
	sess.lastUsed = r.now()
	r.mu.Unlock()

	sess.loaded.Do(func() {
		// Shared by every caller of the session, so one hanging up must
		// not leave the others with an empty cart.
		if err := sess.store.Load(context.WithoutCancel(ctx)); err != nil {
			r.logger.Warn("failed to rehydrate state, starting empty",
				zap.String("key", sess.store.key),
				zap.Error(err),
			)
		}
	})

	return sess.store
}

// Len returns the number of sessions held in memory.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Prune drops sessions idle for longer than idle and without listeners.
// Their state remains in the backend and is rehydrated on next use.
func (r *Registry) Prune(idle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-idle)
	pruned := 0
	for id, sess := range r.sessions {
		if sess.lastUsed.Before(cutoff) && sess.store.listenerCount() == 0 {
			delete(r.sessions, id)
			pruned++
		}
	}

	if pruned > 0 {
		r.logger.Debug("pruned idle sessions", zap.Int("count", pruned))
	}
	return pruned
}

// RunPruner prunes idle sessions every interval until ctx is done.
func (r *Registry) RunPruner(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Prune(idle)
		}
	}
}
