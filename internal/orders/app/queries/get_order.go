package queries

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
)

// GetOrderQuery represents a request to retrieve an order by its ID.
type GetOrderQuery struct {
	OrderID string
}

// OrderDetails is an order with its lines eagerly loaded.
type OrderDetails struct {
	Order *domain.Order      `json:"order"`
	Lines []domain.OrderLine `json:"order_products"`
}

// GetOrderQueryHandler executes GetOrderQuery and returns the order if found.
type GetOrderQueryHandler struct {
	orders ports.OrderRepository
	lines  ports.OrderLineRepository
}

// NewGetOrderQueryHandler constructs a GetOrderQueryHandler.
func NewGetOrderQueryHandler(orders ports.OrderRepository, lines ports.OrderLineRepository) *GetOrderQueryHandler {
	return &GetOrderQueryHandler{orders: orders, lines: lines}
}

// Handle executes the query and retrieves the order with its lines.
func (h *GetOrderQueryHandler) Handle(ctx context.Context, query GetOrderQuery) (*OrderDetails, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	order, err := h.orders.GetByID(ctx, query.OrderID)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, domain.NewNotFoundError(domain.MsgInvalidOrder)
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}

	lines, err := h.lines.ListByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("list order lines: %w", err)
	}

	return &OrderDetails{Order: order, Lines: lines}, nil
}

// Validate ensures the query has valid parameters.
func (q GetOrderQuery) Validate() error {
	if strings.TrimSpace(q.OrderID) == "" {
		return domain.NewValidationError(domain.MsgInvalidOrder)
	}
	return nil
}
