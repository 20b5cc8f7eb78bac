package ports

import (
	"context"

	"github.com/dejobratic/storefront/internal/orders/domain"
)

// AddressDirectory resolves delivery addresses owned by the profile service.
type AddressDirectory interface {
	GetAddress(ctx context.Context, id string) (*domain.Address, error)
}

// RiderDirectory resolves riders and records which orders they carry.
type RiderDirectory interface {
	GetRider(ctx context.Context, id string) (*domain.Rider, error)
	AttachOrder(ctx context.Context, riderID, orderID string) error
}

// UserDirectory resolves customers for notification targeting.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
}

// NotificationRepository is the notification sink.
type NotificationRepository interface {
	Save(ctx context.Context, notification domain.Notification) error
}

// Notifier emits best-effort notifications. It never reports failure.
type Notifier interface {
	Notify(ctx context.Context, notification domain.Notification)
}
