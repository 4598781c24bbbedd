package catalog

import (
	"context"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/vyrodovalexey/storefront/internal/model"
)

// Search defaults.
const (
	DefaultMinQueryLength = 2
	DefaultMaxResults     = 5
)

// Search returns the products whose title or description contains query,
// case-insensitively, in source order. Queries shorter than
// DefaultMinQueryLength after trimming match nothing.
func Search(products []model.Product, query string) []model.Product {
	return SearchMin(products, query, DefaultMinQueryLength)
}

// SearchMin is Search with a custom minimum query length.
func SearchMin(products []model.Product, query string, minLength int) []model.Product {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" || utf8.RuneCountInString(needle) < minLength {
		return []model.Product{}
	}

	out := make([]model.Product, 0)
	for _, p := range products {
		if strings.Contains(strings.ToLower(p.Title), needle) ||
			strings.Contains(strings.ToLower(p.Description), needle) {
			out = append(out, p)
		}
	}
	return out
}

// Limit truncates products to at most n entries. n <= 0 keeps everything.
func Limit(products []model.Product, n int) []model.Product {
	if n <= 0 || len(products) <= n {
		return products
	}
	return products[:n]
}

// Sequencer orders the searches of one live connection. Each Begin cancels
// the previous in-flight search, and only the latest ticket is current.
type Sequencer struct {
	mu     sync.Mutex
	latest uint64
	cancel context.CancelFunc
}

// Begin starts a new search derived from parent and returns its context and
// ticket. The previous search, if still running, is cancelled.
func (s *Sequencer) Begin(parent context.Context) (context.Context, uint64) {
	ctx, cancel := context.WithCancel(parent)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.latest++
	s.cancel = cancel
	return ctx, s.latest
}

// IsLatest reports whether ticket belongs to the most recent search.
func (s *Sequencer) IsLatest(ticket uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ticket == s.latest
}

// Deliver runs fn only if ticket is still the latest search. No newer
// search can begin while fn runs, so results are never delivered out of
// order.
func (s *Sequencer) Deliver(ticket uint64, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ticket != s.latest {
		return false
	}
	fn()
	return true
}

// Finish releases the context of ticket if it is still the latest search.
func (s *Sequencer) Finish(ticket uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ticket == s.latest && s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Stop cancels any in-flight search.
func (s *Sequencer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
