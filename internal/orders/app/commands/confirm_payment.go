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

// SettlementOutcome classifies how a payment confirmation ended.
type SettlementOutcome string

const (
	OutcomeSettled               SettlementOutcome = "settled"
	OutcomeAlreadySettled        SettlementOutcome = "already_settled"
	OutcomeDeclined              SettlementOutcome = "declined"
	OutcomeGatewayError          SettlementOutcome = "gateway_error"
	OutcomeMaterializationFailed SettlementOutcome = "materialization_failed"
)

// ConfirmPaymentCommand identifies the order by id, by gateway reference, or
// both. When both are given they must agree. A non-empty OwnerID limits the
// command to that customer's orders; anyone else's order is reported as not
// found and left untouched.
type ConfirmPaymentCommand struct {
	OrderID   string
	Reference string
	OwnerID   string
}

func (c ConfirmPaymentCommand) Validate() error {
	if strings.TrimSpace(c.OrderID) == "" && strings.TrimSpace(c.Reference) == "" {
		return domain.NewValidationError(domain.MsgInvalidReference)
	}
	return nil
}

// ConfirmPaymentResult is returned alongside any error once the order has
// been located, so callers can see where the order ended up.
type ConfirmPaymentResult struct {
	Order   *domain.Order
	Outcome SettlementOutcome
}

type ConfirmPaymentHandler interface {
	Handle(ctx context.Context, cmd ConfirmPaymentCommand) (*ConfirmPaymentResult, error)
}

type ConfirmPaymentCommandHandler struct {
	orders       ports.OrderRepository
	gateway      ports.PaymentGateway
	materializer *Materializer
	events       ports.EventBus
	notifier     ports.Notifier
	logger       *slog.Logger
}

func NewConfirmPaymentCommandHandler(
	orders ports.OrderRepository,
	gateway ports.PaymentGateway,
	materializer *Materializer,
	events ports.EventBus,
	notifier ports.Notifier,
	logger *slog.Logger,
) *ConfirmPaymentCommandHandler {
	return &ConfirmPaymentCommandHandler{
		orders:       orders,
		gateway:      gateway,
		materializer: materializer,
		events:       events,
		notifier:     notifier,
		logger:       logger,
	}
}

func (h *ConfirmPaymentCommandHandler) Handle(ctx context.Context, cmd ConfirmPaymentCommand) (*ConfirmPaymentResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	order, reference, err := h.locate(ctx, cmd)
	if err != nil {
		return nil, err
	}

	if order.IsSettled() {
		return &ConfirmPaymentResult{Order: order, Outcome: OutcomeAlreadySettled}, nil
	}

	verification, err := h.gateway.Verify(ctx, reference)
	if err != nil {
		return h.recordFailure(ctx, order, OutcomeGatewayError, domain.NewGatewayError(domain.MsgPaymentVerifyFailed, err))
	}
	if verification.Reference != "" && verification.Reference != reference {
		return &ConfirmPaymentResult{Order: order, Outcome: OutcomeDeclined}, domain.NewValidationError(domain.MsgInvalidReference)
	}
	if !verification.Succeeded() {
		return h.recordFailure(ctx, order, OutcomeDeclined, domain.NewValidationError(domain.MsgPaymentUnsuccessful))
	}
	if verification.Amount.LessThan(order.SumTotal) {
		h.logger.WarnContext(ctx, "charged amount below order total",
			"order_id", order.ID,
			"reference", reference,
			"charged", verification.Amount.String(),
			"total", order.SumTotal.String(),
		)
		return h.recordFailure(ctx, order, OutcomeDeclined, domain.NewValidationError(domain.MsgPaymentAmountShort))
	}

	claimed, err := h.orders.ClaimSettlement(ctx, order.ID, reference, verification.TransactionID)
	if errors.Is(err, ports.ErrConflict) {
		return h.alreadySettled(ctx, order)
	}
	if err != nil {
		return nil, fmt.Errorf("claim settlement: %w", err)
	}

	settled, err := h.materializer.Materialize(ctx, claimed)
	if err != nil {
		h.publishFailed(ctx, order.ID, domain.MessageOf(err))
		h.notifier.Notify(ctx, adminNotice(
			"Order Fulfilment Failed",
			fmt.Sprintf("Payment for order %s was received but the order could not be fulfilled: %s", order.ID, domain.MessageOf(err)),
		))
		return &ConfirmPaymentResult{Order: settled, Outcome: OutcomeMaterializationFailed}, err
	}

	if err := h.events.PublishOrderPaid(ctx, settled.ID); err != nil {
		h.logger.WarnContext(ctx, "failed to publish order paid event", "order_id", settled.ID, "error", err)
	}
	h.notifier.Notify(ctx, adminNotice("New Order", fmt.Sprintf("Order %s has been paid and is ready for processing", settled.ID)))
	h.notifier.Notify(ctx, userNotice(settled.UserID, "Order Confirmed", fmt.Sprintf("Payment for order %s was successful", settled.ID)))

	return &ConfirmPaymentResult{Order: settled, Outcome: OutcomeSettled}, nil
}

// locate resolves the order and the reference to verify.
func (h *ConfirmPaymentCommandHandler) locate(ctx context.Context, cmd ConfirmPaymentCommand) (*domain.Order, string, error) {
	if cmd.OrderID == "" {
		order, err := h.orders.GetByReference(ctx, cmd.Reference)
		if errors.Is(err, ports.ErrNotFound) || (err == nil && !ownedBy(order, cmd.OwnerID)) {
			return nil, "", domain.NewNotFoundError(domain.MsgOrderNotFound)
		}
		if err != nil {
			return nil, "", fmt.Errorf("get order by reference: %w", err)
		}
		return order, cmd.Reference, nil
	}

	order, err := h.orders.GetByID(ctx, cmd.OrderID)
	if errors.Is(err, ports.ErrNotFound) || (err == nil && !ownedBy(order, cmd.OwnerID)) {
		return nil, "", domain.NewNotFoundError(domain.MsgOrderNotFound)
	}
	if err != nil {
		return nil, "", fmt.Errorf("get order: %w", err)
	}

	reference := cmd.Reference
	switch {
	case reference == "":
		reference = order.TransactionReference
	case order.TransactionReference != "" && order.TransactionReference != reference:
		return nil, "", domain.NewValidationError(domain.MsgInvalidReference)
	}
	if reference == "" {
		return nil, "", domain.NewValidationError(domain.MsgInvalidReference)
	}

	return order, reference, nil
}

func ownedBy(order *domain.Order, ownerID string) bool {
	return ownerID == "" || order.UserID == ownerID
}

func (h *ConfirmPaymentCommandHandler) recordFailure(ctx context.Context, order *domain.Order, outcome SettlementOutcome, cause error) (*ConfirmPaymentResult, error) {
	failed, err := h.orders.RecordPaymentFailure(ctx, order.ID, domain.TransactionFailed)
	if errors.Is(err, ports.ErrConflict) {
		return h.alreadySettled(ctx, order)
	}
	if err != nil {
		return &ConfirmPaymentResult{Order: order, Outcome: outcome}, errors.Join(cause, fmt.Errorf("record payment failure: %w", err))
	}

	h.publishFailed(ctx, order.ID, domain.MessageOf(cause))
	return &ConfirmPaymentResult{Order: failed, Outcome: outcome}, cause
}

// alreadySettled reloads an order another confirmation has claimed.
func (h *ConfirmPaymentCommandHandler) alreadySettled(ctx context.Context, order *domain.Order) (*ConfirmPaymentResult, error) {
	current, err := h.orders.GetByID(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("reload order: %w", err)
	}
	return &ConfirmPaymentResult{Order: current, Outcome: OutcomeAlreadySettled}, nil
}

func (h *ConfirmPaymentCommandHandler) publishFailed(ctx context.Context, orderID, reason string) {
	if err := h.events.PublishOrderFailed(ctx, orderID, reason); err != nil {
		h.logger.WarnContext(ctx, "failed to publish order failed event", "order_id", orderID, "error", err)
	}
}
