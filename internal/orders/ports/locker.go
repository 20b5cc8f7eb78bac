package ports

import (
	"context"
	"errors"
	"time"
)

// ErrLockHeld is returned when another holder owns the lock.
var ErrLockHeld = errors.New("lock held")

// ReleaseFunc releases a previously acquired lock.
type ReleaseFunc func(ctx context.Context) error

// CheckoutLocker serializes checkouts per user. Locks expire after ttl so a
// crashed holder cannot wedge a customer.
type CheckoutLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, error)
}
