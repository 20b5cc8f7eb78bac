package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
)

// OrderRepository provides an in-memory order store useful for local
// development and tests. Each conditional update runs under one lock, which
// gives the same single-row atomicity the postgres adapter relies on.
type OrderRepository struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
	now    func() time.Time
}

// NewOrderRepository constructs a new in-memory order repository.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders: make(map[string]domain.Order),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new order instance.
func (r *OrderRepository) Create(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.orders[order.ID]; exists {
		return ports.ErrConflict
	}
	r.orders[order.ID] = cloneOrder(order)
	return nil
}

// GetByID fetches a single order by identifier.
func (r *OrderRepository) GetByID(_ context.Context, id string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	c := cloneOrder(order)
	return &c, nil
}

// GetByReference fetches the order carrying the gateway reference.
func (r *OrderRepository) GetByReference(_ context.Context, reference string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if reference == "" {
		return nil, ports.ErrNotFound
	}
	for _, order := range r.orders {
		if order.TransactionReference == reference {
			c := cloneOrder(order)
			return &c, nil
		}
	}
	return nil, ports.ErrNotFound
}

// List returns orders respecting the provided filter. Pagination is 1-based
// and results are newest first.
func (r *OrderRepository) List(_ context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	filter = filter.Normalize()

	var result []domain.Order
	for _, order := range r.orders {
		if filter.Status != nil && order.Status != *filter.Status {
			continue
		}
		if filter.UserID != "" && order.UserID != filter.UserID {
			continue
		}
		if filter.RiderID != "" && !order.IsAssignedTo(filter.RiderID) {
			continue
		}
		result = append(result, order)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	start := filter.Offset()
	if start >= len(result) {
		return []domain.Order{}, nil
	}

	end := start + filter.PageSize
	if end > len(result) {
		end = len(result)
	}

	slice := make([]domain.Order, 0, end-start)
	for _, order := range result[start:end] {
		slice = append(slice, cloneOrder(order))
	}

	return slice, nil
}

// UpdateStatus applies an administrator override when the order allows it.
func (r *OrderRepository) UpdateStatus(_ context.Context, id string, status domain.OrderStatus) (*domain.Order, error) {
	return r.mutate(id, func(order *domain.Order) error {
		if !order.AllowsOverride(status) {
			return ports.ErrConflict
		}
		order.Status = status
		return nil
	})
}

func (r *OrderRepository) AttachTransaction(_ context.Context, id, reference, transactionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return ports.ErrNotFound
	}
	if order.TransactionReference != "" && order.TransactionReference != reference {
		return ports.ErrConflict
	}
	for otherID, other := range r.orders {
		if otherID != id && reference != "" && other.TransactionReference == reference {
			return ports.ErrConflict
		}
	}

	order.TransactionReference = reference
	order.TransactionID = transactionID
	order.UpdatedAt = r.now()
	r.orders[id] = order
	return nil
}

func (r *OrderRepository) RecordPaymentFailure(_ context.Context, id string, txStatus domain.TransactionStatus) (*domain.Order, error) {
	return r.mutate(id, func(order *domain.Order) error {
		if order.IsSettled() {
			return ports.ErrConflict
		}
		order.Status = domain.StatusPaymentFailed
		order.TransactionStatus = txStatus
		order.PaymentAttempts++
		return nil
	})
}

func (r *OrderRepository) ClaimSettlement(_ context.Context, id, reference, transactionID string) (*domain.Order, error) {
	return r.mutate(id, func(order *domain.Order) error {
		if order.IsSettled() {
			return ports.ErrConflict
		}
		order.TransactionStatus = domain.TransactionCompleted
		order.Materialization = domain.MaterializationInProgress
		if order.TransactionReference == "" {
			order.TransactionReference = reference
		}
		if transactionID != "" {
			order.TransactionID = transactionID
		}
		return nil
	})
}

func (r *OrderRepository) CompleteSettlement(_ context.Context, id string, lineIDs []string) (*domain.Order, error) {
	return r.mutate(id, func(order *domain.Order) error {
		if order.Materialization != domain.MaterializationInProgress {
			return ports.ErrConflict
		}
		order.Status = domain.StatusProcessing
		order.Materialization = domain.MaterializationDone
		order.OrderProducts = append([]string(nil), lineIDs...)
		return nil
	})
}

func (r *OrderRepository) FailSettlement(_ context.Context, id string) (*domain.Order, error) {
	return r.mutate(id, func(order *domain.Order) error {
		if order.Materialization != domain.MaterializationInProgress {
			return ports.ErrConflict
		}
		order.Status = domain.StatusPaymentFailed
		order.Materialization = domain.MaterializationFailed
		return nil
	})
}

func (r *OrderRepository) AssignRider(_ context.Context, id, riderID string) (*domain.Order, error) {
	return r.mutate(id, func(order *domain.Order) error {
		if !order.IsSettled() || !domain.StatusIn(order.Status, domain.AssignableStatuses) {
			return ports.ErrConflict
		}
		rider := riderID
		order.AssignedRiderID = &rider
		order.Status = domain.StatusShipped
		return nil
	})
}

func (r *OrderRepository) TransitionForRider(_ context.Context, id, riderID string, from []domain.OrderStatus, to domain.OrderStatus) (*domain.Order, error) {
	return r.mutate(id, func(order *domain.Order) error {
		if !order.IsAssignedTo(riderID) || !domain.StatusIn(order.Status, from) {
			return ports.ErrNotFound
		}
		order.Status = to
		return nil
	})
}

func (r *OrderRepository) ListStalled(_ context.Context, olderThan time.Time) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.Order
	for _, order := range r.orders {
		if order.Materialization == domain.MaterializationInProgress && order.UpdatedAt.Before(olderThan) {
			result = append(result, cloneOrder(order))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UpdatedAt.Before(result[j].UpdatedAt) })
	return result, nil
}

// mutate applies fn to a copy of the order under the write lock and stores
// it only when fn succeeds.
func (r *OrderRepository) mutate(id string, fn func(order *domain.Order) error) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, ports.ErrNotFound
	}

	updated := cloneOrder(order)
	if err := fn(&updated); err != nil {
		return nil, err
	}
	updated.UpdatedAt = r.now()
	r.orders[id] = updated

	result := cloneOrder(updated)
	return &result, nil
}

func cloneOrder(order domain.Order) domain.Order {
	order.OrderProducts = append([]string{}, order.OrderProducts...)
	if order.AssignedRiderID != nil {
		rider := *order.AssignedRiderID
		order.AssignedRiderID = &rider
	}
	return order
}
