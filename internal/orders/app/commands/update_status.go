package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
)

// UpdateStatusCommand is an administrator override of an order's status.
type UpdateStatusCommand struct {
	OrderID string
	Status  string
}

type UpdateStatusHandler interface {
	Handle(ctx context.Context, cmd UpdateStatusCommand) (*domain.Order, error)
}

type UpdateStatusCommandHandler struct {
	orders   ports.OrderRepository
	events   ports.EventBus
	notifier ports.Notifier
	logger   *slog.Logger
}

func NewUpdateStatusCommandHandler(
	orders ports.OrderRepository,
	events ports.EventBus,
	notifier ports.Notifier,
	logger *slog.Logger,
) *UpdateStatusCommandHandler {
	return &UpdateStatusCommandHandler{
		orders:   orders,
		events:   events,
		notifier: notifier,
		logger:   logger,
	}
}

func (h *UpdateStatusCommandHandler) Handle(ctx context.Context, cmd UpdateStatusCommand) (*domain.Order, error) {
	status, err := domain.ParseAdminStatus(cmd.Status)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cmd.OrderID) == "" {
		return nil, domain.NewValidationError(domain.MsgInvalidOrder)
	}

	order, err := h.orders.UpdateStatus(ctx, cmd.OrderID, status)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, domain.NewNotFoundError(domain.MsgInvalidOrder)
	}
	if errors.Is(err, ports.ErrConflict) {
		return nil, domain.NewConflictError(domain.MsgInvalidStatus)
	}
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}

	if err := h.events.PublishOrderStatusChanged(ctx, order.ID, order.Status); err != nil {
		h.logger.WarnContext(ctx, "failed to publish status change", "order_id", order.ID, "error", err)
	}
	h.notifier.Notify(ctx, userNotice(order.UserID, "Order Status Updated", statusMessage(order.ID, order.Status)))

	return order, nil
}
