package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus captures the fulfilment lifecycle of an order.
type OrderStatus string

const (
	StatusPending       OrderStatus = "pending"
	StatusPaymentFailed OrderStatus = "payment_failed"
	StatusProcessing    OrderStatus = "processing"
	StatusShipped       OrderStatus = "shipped"
	StatusDelivered     OrderStatus = "delivered"
	StatusCancelled     OrderStatus = "cancelled"
	StatusReturned      OrderStatus = "returned"
)

// adminStatuses are the values an administrator may set directly.
// processing and payment_failed are reserved for the payment path.
var adminStatuses = map[OrderStatus]struct{}{
	StatusPending:    {},
	StatusShipped:    {},
	StatusDelivered:  {},
	StatusCancelled:  {},
	StatusReturned:   {},
}

// ParseAdminStatus validates a status supplied by an administrator.
func ParseAdminStatus(value string) (OrderStatus, error) {
	status := OrderStatus(strings.TrimSpace(value))
	if _, ok := adminStatuses[status]; !ok {
		return "", NewValidationError(MsgInvalidStatus)
	}
	return status, nil
}

// TransactionStatus tracks the payment side of an order.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
)

// Materialization is the saga marker for converting a cart into order lines.
type Materialization string

const (
	MaterializationNone       Materialization = "none"
	MaterializationInProgress Materialization = "in_progress"
	MaterializationDone       Materialization = "done"
	MaterializationFailed     Materialization = "failed"
)

// Order represents one checkout attempt and its fulfilment.
type Order struct {
	ID                   string            `json:"id"`
	UserID               string            `json:"user_id"`
	AddressID            string            `json:"address_id"`
	Status               OrderStatus       `json:"order_status"`
	TransactionStatus    TransactionStatus `json:"transaction_status"`
	TransactionReference string            `json:"transaction_reference,omitempty"`
	TransactionID        string            `json:"transaction_id,omitempty"`
	PaymentAttempts      int               `json:"payment_attempts"`
	SumTotal             decimal.Decimal   `json:"sum_total"`
	AssignedRiderID      *string           `json:"assigned_rider_id"`
	OrderProducts        []string          `json:"order_products"`
	Materialization      Materialization   `json:"materialization"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// NewPendingOrder builds the order row written at checkout.
func NewPendingOrder(id, userID, addressID string, total decimal.Decimal, now time.Time) Order {
	return Order{
		ID:                id,
		UserID:            userID,
		AddressID:         addressID,
		Status:            StatusPending,
		TransactionStatus: TransactionPending,
		SumTotal:          total,
		OrderProducts:     []string{},
		Materialization:   MaterializationNone,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Validate ensures the order adheres to business constraints.
func (o Order) Validate() error {
	if strings.TrimSpace(o.UserID) == "" {
		return errors.New("user_id is required")
	}
	if strings.TrimSpace(o.AddressID) == "" {
		return errors.New("address_id is required")
	}
	if !o.SumTotal.IsPositive() {
		return errors.New("sum_total must be positive")
	}
	if o.PaymentAttempts < 0 {
		return errors.New("payment_attempts must not be negative")
	}
	if o.Status == StatusPending && len(o.OrderProducts) > 0 {
		return errors.New("pending order must not have order products")
	}
	if o.AssignedRiderID != nil && !o.IsSettled() {
		return errors.New("rider assigned before payment completed")
	}
	return nil
}

// IsSettled reports whether payment for the order has been confirmed.
func (o Order) IsSettled() bool {
	return o.TransactionStatus == TransactionCompleted
}

// IsAssignedTo reports whether riderID is the order's assigned rider.
func (o Order) IsAssignedTo(riderID string) bool {
	return o.AssignedRiderID != nil && *o.AssignedRiderID == riderID
}

// AllowsOverride reports whether an administrator may set the order to
// status. No override applies while a settlement is in flight, and an order
// that is paid or holds order products never returns to pending.
func (o Order) AllowsOverride(status OrderStatus) bool {
	if o.Materialization == MaterializationInProgress {
		return false
	}
	if status == StatusPending {
		return !o.IsSettled() && len(o.OrderProducts) == 0
	}
	return true
}

// AssignableStatuses are the statuses in which a rider may be assigned.
var AssignableStatuses = []OrderStatus{StatusProcessing, StatusShipped}

// RiderActionableStatuses are the statuses a rider may complete or cancel from.
var RiderActionableStatuses = []OrderStatus{StatusProcessing, StatusShipped}

// StatusIn reports whether status is one of candidates.
func StatusIn(status OrderStatus, candidates []OrderStatus) bool {
	for _, c := range candidates {
		if c == status {
			return true
		}
	}
	return false
}
