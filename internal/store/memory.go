package store

import (
	"context"
	"sync"

	"github.com/mshop/cart-agent/internal/domain"
)

// MemoryStore keeps the snapshot in process memory. Used in tests and as the
// zero-dependency default when no backing store is configured.
type MemoryStore struct {
	mu    sync.RWMutex
	lines []domain.CartLine
	saved bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(context.Context) ([]domain.CartLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.saved {
		return nil, ErrNotFound
	}
	out := make([]domain.CartLine, len(s.lines))
	copy(out, s.lines)
	return out, nil
}

func (s *MemoryStore) Save(_ context.Context, lines []domain.CartLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = make([]domain.CartLine, len(lines))
	copy(s.lines, lines)
	s.saved = true
	return nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = nil
	s.saved = false
	return nil
}
