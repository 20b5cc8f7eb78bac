package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dejobratic/storefront/internal/orders/ports"
)

type entry struct {
	token     uint64
	expiresAt time.Time
}

// Locker is an in-process advisory lock with expiry.
type Locker struct {
	mu    sync.Mutex
	locks map[string]entry
	seq   uint64
	now   func() time.Time
}

func NewLocker() *Locker {
	return &Locker{
		locks: make(map[string]entry),
		now:   time.Now,
	}
}

func (l *Locker) Acquire(_ context.Context, key string, ttl time.Duration) (ports.ReleaseFunc, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if held, ok := l.locks[key]; ok && now.Before(held.expiresAt) {
		return nil, ports.ErrLockHeld
	}

	l.seq++
	token := l.seq
	l.locks[key] = entry{token: token, expiresAt: now.Add(ttl)}

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if held, ok := l.locks[key]; ok && held.token == token {
			delete(l.locks, key)
		}
		return nil
	}, nil
}
