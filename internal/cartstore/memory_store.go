package cartstore

import (
	"context"
	"sync"
	"time"

	"medishop/backend/internal/domain"
)

type entry struct {
	cart      domain.Cart
	expiresAt time.Time
}

// MemoryStore mirrors the Redis TTL behavior for dev and tests: entries
// expire lazily on access, and saving an existing cart keeps its deadline.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]entry),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) (*domain.Cart, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[sessionID]
	if !ok {
		return nil, false, nil
	}
	if s.now().After(e.expiresAt) {
		delete(s.entries, sessionID)
		return nil, false, nil
	}
	cart := e.cart
	return &cart, true, nil
}

func (s *MemoryStore) Save(_ context.Context, cart domain.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	deadline := s.now().Add(domain.CartTTL)
	if existing, ok := s.entries[cart.SessionID]; ok && s.now().Before(existing.expiresAt) {
		deadline = existing.expiresAt
	}
	s.entries[cart.SessionID] = entry{cart: cart, expiresAt: deadline}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, sessionID)
	return nil
}
