package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type OrderLineRepository struct {
	pool *pgxpool.Pool
}

func NewOrderLineRepository(pool *pgxpool.Pool) *OrderLineRepository {
	return &OrderLineRepository{pool: pool}
}

// CreateBatch inserts every line in one transaction; either all lines land
// or none do.
func (r *OrderLineRepository) CreateBatch(ctx context.Context, lines []domain.OrderLine) error {
	if len(lines) == 0 {
		return nil
	}

	query := `
		INSERT INTO order_lines (id, order_id, product_id, quantity, product_price, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, line := range lines {
			batch.Queue(query, line.ID, line.OrderID, line.ProductID, line.Quantity, line.ProductPrice, line.CreatedAt)
		}

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert order lines: %w", err)
		}
		return nil
	})
}

func (r *OrderLineRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.OrderLine, error) {
	query := `
		SELECT id, order_id, product_id, quantity, product_price, created_at
		FROM order_lines
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order lines: %w", err)
	}
	defer rows.Close()

	lines := []domain.OrderLine{}
	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(
			&line.ID,
			&line.OrderID,
			&line.ProductID,
			&line.Quantity,
			&line.ProductPrice,
			&line.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order lines: %w", err)
	}

	return lines, nil
}

// ProductRepository is the inventory ledger. Stock moves only through
// single-statement arithmetic so two buyers never read the same count.
type ProductRepository struct {
	pool *pgxpool.Pool
}

func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

const productColumns = `id, product_name, normal_price, discounted_price, quantity, updated_at`

func (r *ProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	product, err := scanProduct(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("select product: %w", err)
	}

	return product, nil
}

func (r *ProductRepository) DecrementStock(ctx context.Context, id string, quantity int) (*domain.Product, error) {
	query := `
		UPDATE products
		SET quantity = quantity - $2, updated_at = $3
		WHERE id = $1 AND quantity >= $2
		RETURNING ` + productColumns

	product, err := scanProduct(r.pool.QueryRow(ctx, query, id, quantity, time.Now().UTC()))
	if err == nil {
		return product, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("decrement stock: %w", err)
	}

	if _, err := r.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return nil, ports.ErrInsufficientStock
}

func (r *ProductRepository) IncrementStock(ctx context.Context, id string, quantity int) error {
	query := `
		UPDATE products
		SET quantity = quantity + $2, updated_at = $3
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, quantity, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("increment stock: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ports.ErrNotFound
	}

	return nil
}

// Upsert writes a catalog row. The catalog is owned by another service; this
// exists for seeding and tests.
func (r *ProductRepository) Upsert(ctx context.Context, product domain.Product) error {
	query := `
		INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET product_name = EXCLUDED.product_name,
		    normal_price = EXCLUDED.normal_price,
		    discounted_price = EXCLUDED.discounted_price,
		    quantity = EXCLUDED.quantity,
		    updated_at = EXCLUDED.updated_at
	`

	discounted := decimal.NullDecimal{}
	if product.DiscountedPrice != nil {
		discounted = decimal.NewNullDecimal(*product.DiscountedPrice)
	}

	updatedAt := product.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err := r.pool.Exec(ctx, query, product.ID, product.Name, product.NormalPrice, discounted, product.Quantity, updatedAt)
	if err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}

	return nil
}

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var (
		product    domain.Product
		discounted decimal.NullDecimal
	)

	if err := row.Scan(
		&product.ID,
		&product.Name,
		&product.NormalPrice,
		&discounted,
		&product.Quantity,
		&product.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if discounted.Valid {
		price := discounted.Decimal
		product.DiscountedPrice = &price
	}

	return &product, nil
}

// CartRepository keeps one JSONB cart per user guarded by a version column.
type CartRepository struct {
	pool *pgxpool.Pool
}

func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

func (r *CartRepository) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	query := `
		SELECT user_id, items, total, version, updated_at
		FROM carts
		WHERE user_id = $1
	`

	var (
		cart  domain.Cart
		items []byte
	)
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&cart.UserID,
		&items,
		&cart.Total,
		&cart.Version,
		&cart.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("select cart: %w", err)
	}

	if err := json.Unmarshal(items, &cart.Items); err != nil {
		return nil, fmt.Errorf("decode cart items: %w", err)
	}
	if cart.Items == nil {
		cart.Items = []domain.CartItem{}
	}

	return &cart, nil
}

// Save inserts a new cart when Version is zero and otherwise swaps only if
// the stored version still matches.
func (r *CartRepository) Save(ctx context.Context, cart *domain.Cart) error {
	items := cart.Items
	if items == nil {
		items = []domain.CartItem{}
	}
	encoded, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode cart items: %w", err)
	}

	now := time.Now().UTC()

	var query string
	var args []any
	if cart.Version == 0 {
		query = `
			INSERT INTO carts (user_id, items, total, version, updated_at)
			VALUES ($1, $2, $3, 1, $4)
			ON CONFLICT (user_id) DO NOTHING
		`
		args = []any{cart.UserID, encoded, cart.Total, now}
	} else {
		query = `
			UPDATE carts
			SET items = $2, total = $3, version = version + 1, updated_at = $4
			WHERE user_id = $1 AND version = $5
		`
		args = []any{cart.UserID, encoded, cart.Total, now, cart.Version}
	}

	result, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("save cart: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ports.ErrConflict
	}

	cart.Version++
	cart.UpdatedAt = now
	return nil
}
