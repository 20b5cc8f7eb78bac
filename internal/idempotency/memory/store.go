package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dejobratic/storefront/internal/orders/ports"
)

type entryKey struct {
	scope string
	key   string
}

type entry struct {
	response ports.StoredResponse
	storedAt time.Time
}

// Store retains idempotency responses for replaying duplicate requests.
type Store struct {
	mu    sync.RWMutex
	items map[entryKey]entry
	ttl   time.Duration
	now   func() time.Time
}

type Option func(*Store)

// WithTTL expires entries older than ttl. The default keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(opts ...Option) *Store {
	s := &Store{items: make(map[entryKey]entry), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) expired(e entry) bool {
	return s.ttl > 0 && !e.storedAt.After(s.now().Add(-s.ttl))
}

// Get returns the live response for a key within scope, or nil.
func (s *Store) Get(_ context.Context, scope, key string) (*ports.StoredResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.items[entryKey{scope: scope, key: key}]
	if !ok || s.expired(e) {
		return nil, nil
	}
	resp := e.response
	resp.Body = append([]byte(nil), resp.Body...)
	return &resp, nil
}

// Save keeps the first live response stored for a key.
func (s *Store) Save(_ context.Context, scope, key string, response ports.StoredResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := entryKey{scope: scope, key: key}
	if e, exists := s.items[k]; exists && !s.expired(e) {
		return nil
	}
	response.Body = append([]byte(nil), response.Body...)
	s.items[k] = entry{response: response, storedAt: s.now()}
	return nil
}

// Purge drops expired entries.
func (s *Store) Purge(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for k, e := range s.items {
		if s.expired(e) {
			delete(s.items, k)
			removed++
		}
	}
	return removed, nil
}
