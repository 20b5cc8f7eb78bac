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

// RiderAction is what a rider does with an order they carry.
type RiderAction string

const (
	RiderComplete RiderAction = "complete"
	RiderCancel   RiderAction = "cancel"
)

func (a RiderAction) target() (domain.OrderStatus, bool) {
	switch a {
	case RiderComplete:
		return domain.StatusDelivered, true
	case RiderCancel:
		return domain.StatusCancelled, true
	default:
		return "", false
	}
}

type RiderActionCommand struct {
	OrderID string
	RiderID string
	Action  RiderAction
}

type RiderActionHandler interface {
	Handle(ctx context.Context, cmd RiderActionCommand) (*domain.Order, error)
}

type RiderActionCommandHandler struct {
	orders   ports.OrderRepository
	riders   ports.RiderDirectory
	events   ports.EventBus
	notifier ports.Notifier
	logger   *slog.Logger
}

func NewRiderActionCommandHandler(
	orders ports.OrderRepository,
	riders ports.RiderDirectory,
	events ports.EventBus,
	notifier ports.Notifier,
	logger *slog.Logger,
) *RiderActionCommandHandler {
	return &RiderActionCommandHandler{
		orders:   orders,
		riders:   riders,
		events:   events,
		notifier: notifier,
		logger:   logger,
	}
}

// Handle applies the action only when the order is assigned to the calling
// rider and still actionable; anything else is "Invalid Order" with no change.
func (h *RiderActionCommandHandler) Handle(ctx context.Context, cmd RiderActionCommand) (*domain.Order, error) {
	target, ok := cmd.Action.target()
	if !ok {
		return nil, domain.NewValidationError("Invalid Action")
	}
	if strings.TrimSpace(cmd.OrderID) == "" {
		return nil, domain.NewValidationError(domain.MsgInvalidOrder)
	}

	rider, err := h.riders.GetRider(ctx, cmd.RiderID)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, domain.NewUnauthorizedError(domain.MsgInvalidRider)
	}
	if err != nil {
		return nil, fmt.Errorf("get rider: %w", err)
	}

	order, err := h.orders.TransitionForRider(ctx, cmd.OrderID, rider.ID, domain.RiderActionableStatuses, target)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, domain.NewNotFoundError(domain.MsgInvalidOrder)
	}
	if err != nil {
		return nil, fmt.Errorf("rider %s order: %w", cmd.Action, err)
	}

	if err := h.events.PublishOrderStatusChanged(ctx, order.ID, order.Status); err != nil {
		h.logger.WarnContext(ctx, "failed to publish status change", "order_id", order.ID, "error", err)
	}

	verb := "delivered"
	title := "Order Delivered"
	if cmd.Action == RiderCancel {
		verb = "cancelled"
		title = "Order Cancelled"
	}
	h.notifier.Notify(ctx, adminNotice(title, fmt.Sprintf("Rider %s has %s order %s", rider.DisplayName(), verb, order.ID)))
	h.notifier.Notify(ctx, userNotice(order.UserID, title, fmt.Sprintf("Your order %s was %s by rider %s", order.ID, verb, rider.DisplayName())))

	return order, nil
}
