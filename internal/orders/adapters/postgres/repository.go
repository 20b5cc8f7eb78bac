package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const orderColumns = `
	id, user_id, address_id, order_status, transaction_status,
	transaction_reference, transaction_id, payment_attempts, sum_total,
	assigned_rider_id, order_products, materialization, created_at, updated_at`

// Repository is the order store. Every transition is one conditional UPDATE
// so concurrent writers race on the row, not in application memory.
type Repository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{
		pool: pool,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (r *Repository) Create(ctx context.Context, order domain.Order) error {
	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $10, $11, $12, $13, $14)
	`

	products := order.OrderProducts
	if products == nil {
		products = []string{}
	}

	_, err := r.pool.Exec(ctx, query,
		order.ID,
		order.UserID,
		order.AddressID,
		order.Status,
		order.TransactionStatus,
		order.TransactionReference,
		order.TransactionID,
		order.PaymentAttempts,
		order.SumTotal,
		order.AssignedRiderID,
		products,
		order.Materialization,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ports.ErrConflict
		}
		return fmt.Errorf("insert order: %w", err)
	}

	return nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("select order: %w", err)
	}

	return order, nil
}

func (r *Repository) GetByReference(ctx context.Context, reference string) (*domain.Order, error) {
	if reference == "" {
		return nil, ports.ErrNotFound
	}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE transaction_reference = $1`

	order, err := scanOrder(r.pool.QueryRow(ctx, query, reference))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("select order by reference: %w", err)
	}

	return order, nil
}

func (r *Repository) List(ctx context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	filter = filter.Normalize()

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE ($1::text IS NULL OR order_status = $1)
		  AND ($2::text = '' OR user_id = $2)
		  AND ($3::text = '' OR assigned_rider_id = $3)
		ORDER BY created_at DESC, id ASC
		LIMIT $4 OFFSET $5
	`

	var statusFilter *string
	if filter.Status != nil {
		s := string(*filter.Status)
		statusFilter = &s
	}

	rows, err := r.pool.Query(ctx, query, statusFilter, filter.UserID, filter.RiderID, filter.PageSize, filter.Offset())
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}

	return collectOrders(rows)
}

func (r *Repository) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error) {
	query := `
		UPDATE orders
		SET order_status = $2, updated_at = $3
		WHERE id = $1
		  AND materialization <> $4
		  AND ($2 <> $5 OR (transaction_status <> $6 AND cardinality(order_products) = 0))
		RETURNING ` + orderColumns

	return r.conditionalUpdate(ctx, "update order status", id, query,
		id, status, r.now(), domain.MaterializationInProgress, domain.StatusPending, domain.TransactionCompleted)
}

func (r *Repository) AttachTransaction(ctx context.Context, id, reference, transactionID string) error {
	query := `
		UPDATE orders
		SET transaction_reference = NULLIF($2, ''), transaction_id = $3, updated_at = $4
		WHERE id = $1
		  AND (transaction_reference IS NULL OR transaction_reference = $2)
	`

	result, err := r.pool.Exec(ctx, query, id, reference, transactionID, r.now())
	if err != nil {
		if isUniqueViolation(err) {
			return ports.ErrConflict
		}
		return fmt.Errorf("attach transaction: %w", err)
	}

	if result.RowsAffected() == 0 {
		return r.missOrConflict(ctx, id)
	}

	return nil
}

func (r *Repository) RecordPaymentFailure(ctx context.Context, id string, txStatus domain.TransactionStatus) (*domain.Order, error) {
	query := `
		UPDATE orders
		SET order_status = $2,
		    transaction_status = $3,
		    payment_attempts = payment_attempts + 1,
		    updated_at = $4
		WHERE id = $1 AND transaction_status <> $5
		RETURNING ` + orderColumns

	return r.conditionalUpdate(ctx, "record payment failure", id, query,
		id, domain.StatusPaymentFailed, txStatus, r.now(), domain.TransactionCompleted)
}

func (r *Repository) ClaimSettlement(ctx context.Context, id, reference, transactionID string) (*domain.Order, error) {
	query := `
		UPDATE orders
		SET transaction_status = $2,
		    materialization = $3,
		    transaction_reference = COALESCE(transaction_reference, NULLIF($4::text, '')),
		    transaction_id = CASE WHEN $5::text = '' THEN transaction_id ELSE $5::text END,
		    updated_at = $6
		WHERE id = $1 AND transaction_status <> $2
		RETURNING ` + orderColumns

	return r.conditionalUpdate(ctx, "claim settlement", id, query,
		id, domain.TransactionCompleted, domain.MaterializationInProgress, reference, transactionID, r.now())
}

func (r *Repository) CompleteSettlement(ctx context.Context, id string, lineIDs []string) (*domain.Order, error) {
	query := `
		UPDATE orders
		SET order_status = $2, materialization = $3, order_products = $4, updated_at = $5
		WHERE id = $1 AND materialization = $6
		RETURNING ` + orderColumns

	if lineIDs == nil {
		lineIDs = []string{}
	}

	return r.conditionalUpdate(ctx, "complete settlement", id, query,
		id, domain.StatusProcessing, domain.MaterializationDone, lineIDs, r.now(), domain.MaterializationInProgress)
}

func (r *Repository) FailSettlement(ctx context.Context, id string) (*domain.Order, error) {
	query := `
		UPDATE orders
		SET order_status = $2, materialization = $3, updated_at = $4
		WHERE id = $1 AND materialization = $5
		RETURNING ` + orderColumns

	return r.conditionalUpdate(ctx, "fail settlement", id, query,
		id, domain.StatusPaymentFailed, domain.MaterializationFailed, r.now(), domain.MaterializationInProgress)
}

func (r *Repository) AssignRider(ctx context.Context, id, riderID string) (*domain.Order, error) {
	query := `
		UPDATE orders
		SET assigned_rider_id = $2, order_status = $3, updated_at = $4
		WHERE id = $1
		  AND transaction_status = $5
		  AND order_status = ANY($6)
		RETURNING ` + orderColumns

	return r.conditionalUpdate(ctx, "assign rider", id, query,
		id, riderID, domain.StatusShipped, r.now(), domain.TransactionCompleted, statusStrings(domain.AssignableStatuses))
}

func (r *Repository) TransitionForRider(ctx context.Context, id, riderID string, from []domain.OrderStatus, to domain.OrderStatus) (*domain.Order, error) {
	query := `
		UPDATE orders
		SET order_status = $3, updated_at = $4
		WHERE id = $1
		  AND assigned_rider_id = $2
		  AND order_status = ANY($5)
		RETURNING ` + orderColumns

	order, err := scanOrder(r.pool.QueryRow(ctx, query, id, riderID, to, r.now(), statusStrings(from)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("rider transition: %w", err)
	}

	return order, nil
}

func (r *Repository) ListStalled(ctx context.Context, olderThan time.Time) ([]domain.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE materialization = $1 AND updated_at < $2
		ORDER BY updated_at ASC
	`

	rows, err := r.pool.Query(ctx, query, domain.MaterializationInProgress, olderThan)
	if err != nil {
		return nil, fmt.Errorf("query stalled orders: %w", err)
	}

	return collectOrders(rows)
}

// conditionalUpdate runs a guarded UPDATE ... RETURNING. A guard miss is
// reported as ErrConflict when the row exists and ErrNotFound otherwise.
func (r *Repository) conditionalUpdate(ctx context.Context, op, id, query string, args ...any) (*domain.Order, error) {
	order, err := scanOrder(r.pool.QueryRow(ctx, query, args...))
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return nil, r.missOrConflict(ctx, id)
}

func (r *Repository) missOrConflict(ctx context.Context, id string) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check order exists: %w", err)
	}
	if !exists {
		return ports.ErrNotFound
	}
	return ports.ErrConflict
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		order     domain.Order
		reference *string
	)

	err := row.Scan(
		&order.ID,
		&order.UserID,
		&order.AddressID,
		&order.Status,
		&order.TransactionStatus,
		&reference,
		&order.TransactionID,
		&order.PaymentAttempts,
		&order.SumTotal,
		&order.AssignedRiderID,
		&order.OrderProducts,
		&order.Materialization,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if reference != nil {
		order.TransactionReference = *reference
	}
	if order.OrderProducts == nil {
		order.OrderProducts = []string{}
	}

	return &order, nil
}

func collectOrders(rows pgx.Rows) ([]domain.Order, error) {
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	return orders, nil
}

func statusStrings(statuses []domain.OrderStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
