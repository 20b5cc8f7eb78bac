package ports

import (
	"context"
	"errors"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
)

// OrderRepository exposes persistence operations required by the application layer.
// Every mutating method is a single conditional update; callers never
// read-modify-write an order.
type OrderRepository interface {
	Create(ctx context.Context, order domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	GetByReference(ctx context.Context, reference string) (*domain.Order, error)
	List(ctx context.Context, filter ListFilter) ([]domain.Order, error)

	// UpdateStatus is an administrator override. It yields ErrConflict when
	// the order does not allow the status (see domain.Order.AllowsOverride).
	UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error)

	// AttachTransaction stores the gateway reference and access handle. A
	// reference that is already set to a different value yields ErrConflict.
	AttachTransaction(ctx context.Context, id, reference, transactionID string) error

	// RecordPaymentFailure moves the order to payment_failed and increments
	// payment_attempts, unless the transaction already completed (ErrConflict).
	RecordPaymentFailure(ctx context.Context, id string, txStatus domain.TransactionStatus) (*domain.Order, error)

	// ClaimSettlement marks the transaction completed and the materialization
	// marker in_progress. Only one caller can win; the rest get ErrConflict.
	ClaimSettlement(ctx context.Context, id, reference, transactionID string) (*domain.Order, error)

	// CompleteSettlement attaches the materialized lines and moves the order to processing.
	CompleteSettlement(ctx context.Context, id string, lineIDs []string) (*domain.Order, error)

	// FailSettlement moves a claimed order to payment_failed with marker failed.
	FailSettlement(ctx context.Context, id string) (*domain.Order, error)

	// AssignRider sets the rider on a settled processing/shipped order and
	// moves it to shipped. Guard mismatch yields ErrConflict.
	AssignRider(ctx context.Context, id, riderID string) (*domain.Order, error)

	// TransitionForRider moves an order assigned to riderID from one of the
	// given statuses to the target. Mismatch yields ErrNotFound.
	TransitionForRider(ctx context.Context, id, riderID string, from []domain.OrderStatus, to domain.OrderStatus) (*domain.Order, error)

	// ListStalled returns orders whose materialization marker has been
	// in_progress since before olderThan.
	ListStalled(ctx context.Context, olderThan time.Time) ([]domain.Order, error)
}

// ListFilter narrows list queries by status, owner and pagination.
type ListFilter struct {
	Status   *domain.OrderStatus
	UserID   string
	RiderID  string
	Page     int
	PageSize int
}

// Normalize clamps pagination to sane bounds.
func (f ListFilter) Normalize() ListFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = 20
	}
	if f.PageSize > 100 {
		f.PageSize = 100
	}
	return f
}

// Offset returns the row offset of the requested page.
func (f ListFilter) Offset() int {
	n := f.Normalize()
	return (n.Page - 1) * n.PageSize
}

// OrderLineRepository stores immutable order lines.
type OrderLineRepository interface {
	CreateBatch(ctx context.Context, lines []domain.OrderLine) error
	ListByOrder(ctx context.Context, orderID string) ([]domain.OrderLine, error)
}

// CartRepository persists carts with optimistic concurrency. Save inserts
// when Version is zero and otherwise updates only if the stored version
// still matches; on success the cart's Version is advanced.
type CartRepository interface {
	Get(ctx context.Context, userID string) (*domain.Cart, error)
	Save(ctx context.Context, cart *domain.Cart) error
}

// ProductRepository is the inventory ledger.
type ProductRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Product, error)

	// DecrementStock atomically takes quantity units, failing with
	// ErrInsufficientStock instead of going below zero.
	DecrementStock(ctx context.Context, id string, quantity int) (*domain.Product, error)
	IncrementStock(ctx context.Context, id string, quantity int) error
}

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a conditional update did not match.
	ErrConflict = errors.New("conflict")

	// ErrInsufficientStock is returned when a decrement would oversell.
	ErrInsufficientStock = errors.New("insufficient stock")
)
