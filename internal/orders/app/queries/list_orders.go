package queries

import (
	"context"
	"fmt"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
)

var knownStatuses = map[domain.OrderStatus]struct{}{
	domain.StatusPending:       {},
	domain.StatusPaymentFailed: {},
	domain.StatusProcessing:    {},
	domain.StatusShipped:       {},
	domain.StatusDelivered:     {},
	domain.StatusCancelled:     {},
	domain.StatusReturned:      {},
}

// ListOrdersQuery filters orders. UserID and RiderID scope the listing to
// one customer or one rider.
type ListOrdersQuery struct {
	Status   string
	UserID   string
	RiderID  string
	Page     int
	PageSize int
}

func (q ListOrdersQuery) filter() (ports.ListFilter, error) {
	filter := ports.ListFilter{
		UserID:   q.UserID,
		RiderID:  q.RiderID,
		Page:     q.Page,
		PageSize: q.PageSize,
	}
	if q.Status != "" {
		status := domain.OrderStatus(q.Status)
		if _, ok := knownStatuses[status]; !ok {
			return ports.ListFilter{}, domain.NewValidationError(domain.MsgInvalidStatus)
		}
		filter.Status = &status
	}
	return filter.Normalize(), nil
}

type ListOrdersQueryHandler struct {
	orders ports.OrderRepository
}

func NewListOrdersQueryHandler(orders ports.OrderRepository) *ListOrdersQueryHandler {
	return &ListOrdersQueryHandler{orders: orders}
}

func (h *ListOrdersQueryHandler) Handle(ctx context.Context, query ListOrdersQuery) ([]domain.Order, error) {
	filter, err := query.filter()
	if err != nil {
		return nil, err
	}

	orders, err := h.orders.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}
