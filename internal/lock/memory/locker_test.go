package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dejobratic/storefront/internal/orders/ports"
)

func TestLockerExcludesConcurrentHolders(t *testing.T) {
	locker := NewLocker()
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "checkout:user-1", time.Minute)
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}

	if _, err := locker.Acquire(ctx, "checkout:user-1", time.Minute); !errors.Is(err, ports.ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}

	if err := release(ctx); err != nil {
		t.Fatalf("release error: %v", err)
	}

	if _, err := locker.Acquire(ctx, "checkout:user-1", time.Minute); err != nil {
		t.Fatalf("expected lock to be free after release, got %v", err)
	}
}

func TestLockerExpiry(t *testing.T) {
	locker := NewLocker()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	locker.now = func() time.Time { return now }
	ctx := context.Background()

	stale, err := locker.Acquire(ctx, "k", time.Second)
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}

	now = now.Add(2 * time.Second)

	current, err := locker.Acquire(ctx, "k", time.Minute)
	if err != nil {
		t.Fatalf("expected expired lock to be re-acquirable, got %v", err)
	}

	_ = stale(ctx)

	if _, err := locker.Acquire(ctx, "k", time.Minute); !errors.Is(err, ports.ErrLockHeld) {
		t.Fatalf("stale release dropped the new holder's lock: %v", err)
	}

	_ = current(ctx)
}
