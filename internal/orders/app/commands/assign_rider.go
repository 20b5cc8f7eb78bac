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

type AssignRiderCommand struct {
	OrderID string
	RiderID string
}

func (c AssignRiderCommand) Validate() error {
	if strings.TrimSpace(c.OrderID) == "" {
		return domain.NewValidationError(domain.MsgInvalidOrder)
	}
	if strings.TrimSpace(c.RiderID) == "" {
		return domain.NewValidationError(domain.MsgInvalidRider)
	}
	return nil
}

// AssignRiderResult carries the confirmation message shown to the admin.
type AssignRiderResult struct {
	Order   *domain.Order
	Rider   *domain.Rider
	Message string
}

type AssignRiderHandler interface {
	Handle(ctx context.Context, cmd AssignRiderCommand) (*AssignRiderResult, error)
}

type AssignRiderCommandHandler struct {
	orders   ports.OrderRepository
	riders   ports.RiderDirectory
	events   ports.EventBus
	notifier ports.Notifier
	logger   *slog.Logger
}

func NewAssignRiderCommandHandler(
	orders ports.OrderRepository,
	riders ports.RiderDirectory,
	events ports.EventBus,
	notifier ports.Notifier,
	logger *slog.Logger,
) *AssignRiderCommandHandler {
	return &AssignRiderCommandHandler{
		orders:   orders,
		riders:   riders,
		events:   events,
		notifier: notifier,
		logger:   logger,
	}
}

func (h *AssignRiderCommandHandler) Handle(ctx context.Context, cmd AssignRiderCommand) (*AssignRiderResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	order, err := h.orders.GetByID(ctx, cmd.OrderID)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, domain.NewNotFoundError(domain.MsgInvalidOrder)
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if !order.IsSettled() {
		return nil, domain.NewValidationError(domain.MsgPaymentNotVerified)
	}
	if !domain.StatusIn(order.Status, domain.AssignableStatuses) {
		return nil, domain.NewValidationError(domain.MsgInvalidOrder)
	}

	rider, err := h.riders.GetRider(ctx, cmd.RiderID)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, domain.NewNotFoundError(domain.MsgInvalidRider)
	}
	if err != nil {
		return nil, fmt.Errorf("get rider: %w", err)
	}

	updated, err := h.orders.AssignRider(ctx, order.ID, rider.ID)
	if errors.Is(err, ports.ErrConflict) || errors.Is(err, ports.ErrNotFound) {
		return nil, domain.NewConflictError(domain.MsgInvalidOrder)
	}
	if err != nil {
		return nil, fmt.Errorf("assign rider: %w", err)
	}

	if err := h.riders.AttachOrder(ctx, rider.ID, updated.ID); err != nil {
		h.logger.ErrorContext(ctx, "rider assigned but order not attached to rider",
			"order_id", updated.ID,
			"rider_id", rider.ID,
			"error", err,
		)
	}

	if updated.Status != order.Status {
		if err := h.events.PublishOrderStatusChanged(ctx, updated.ID, updated.Status); err != nil {
			h.logger.WarnContext(ctx, "failed to publish status change", "order_id", updated.ID, "error", err)
		}
	}
	h.notifier.Notify(ctx, riderNotice(rider.ID, "New Delivery", fmt.Sprintf("You have been assigned to order %s", updated.ID)))
	h.notifier.Notify(ctx, userNotice(updated.UserID, "Order Shipped", statusMessage(updated.ID, updated.Status)))

	return &AssignRiderResult{
		Order:   updated,
		Rider:   rider,
		Message: fmt.Sprintf("Rider %s, assigned to order %s", rider.DisplayName(), updated.ID),
	}, nil
}
