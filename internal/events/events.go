package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
)

// Routing keys of the order lifecycle events.
const (
	TopicOrderCreated       = "order.created"
	TopicOrderPaid          = "order.paid"
	TopicOrderFailed        = "order.failed"
	TopicOrderStatusChanged = "order.status_changed"
)

// OrderEvent is the payload published for every order lifecycle event.
type OrderEvent struct {
	Type       string             `json:"type"`
	OrderID    string             `json:"order_id"`
	Status     domain.OrderStatus `json:"status,omitempty"`
	Reason     string             `json:"reason,omitempty"`
	OccurredAt time.Time          `json:"occurred_at"`
}

// NoopEventBus logs events without sending them to a broker. Used when no
// broker is configured.
type NoopEventBus struct {
	logger *slog.Logger
}

// NewNoopEventBus returns a new no-op event publisher.
func NewNoopEventBus(logger *slog.Logger) *NoopEventBus {
	return &NoopEventBus{logger: logger}
}

func (n *NoopEventBus) PublishOrderCreated(ctx context.Context, orderID string) error {
	n.logger.DebugContext(ctx, "event::order_created", "order_id", orderID)
	return nil
}

func (n *NoopEventBus) PublishOrderPaid(ctx context.Context, orderID string) error {
	n.logger.DebugContext(ctx, "event::order_paid", "order_id", orderID)
	return nil
}

func (n *NoopEventBus) PublishOrderFailed(ctx context.Context, orderID string, reason string) error {
	n.logger.DebugContext(ctx, "event::order_failed", "order_id", orderID, "reason", reason)
	return nil
}

func (n *NoopEventBus) PublishOrderStatusChanged(ctx context.Context, orderID string, status domain.OrderStatus) error {
	n.logger.DebugContext(ctx, "event::order_status_changed", "order_id", orderID, "status", status)
	return nil
}
