package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/google/uuid"
)

// Materializer converts a claimed order's cart into order lines. It runs as
// a compensating saga over single-row atomic updates:
//
//  1. decrement stock line by line (floor-checked)
//  2. clear the cart with a version compare-and-swap
//  3. insert all order lines in one batch
//  4. attach the lines and move the order to processing
//
// A failure in steps 1-3 undoes the earlier steps and marks the order
// payment_failed. A failure in step 4 leaves the marker in_progress for
// settlement recovery, since the lines already exist.
type Materializer struct {
	orders   ports.OrderRepository
	lines    ports.OrderLineRepository
	carts    ports.CartRepository
	products ports.ProductRepository
	logger   *slog.Logger
}

func NewMaterializer(
	orders ports.OrderRepository,
	lines ports.OrderLineRepository,
	carts ports.CartRepository,
	products ports.ProductRepository,
	logger *slog.Logger,
) *Materializer {
	return &Materializer{
		orders:   orders,
		lines:    lines,
		carts:    carts,
		products: products,
		logger:   logger,
	}
}

type takenStock struct {
	productID string
	quantity  int
}

// Materialize expects an order whose settlement has been claimed. It returns
// the order as last persisted, together with the failure when one occurred.
func (m *Materializer) Materialize(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	cart, err := m.carts.Get(ctx, order.UserID)
	if errors.Is(err, ports.ErrNotFound) {
		return m.fail(ctx, order, domain.NewValidationError(domain.MsgEmptyCart))
	}
	if err != nil {
		return m.fail(ctx, order, fmt.Errorf("get cart: %w", err))
	}
	if cart.IsEmpty() {
		return m.fail(ctx, order, domain.NewValidationError(domain.MsgEmptyCart))
	}

	now := time.Now().UTC()
	lines := make([]domain.OrderLine, 0, len(cart.Items))
	taken := make([]takenStock, 0, len(cart.Items))

	for _, item := range cart.Items {
		product, err := m.products.GetByID(ctx, item.ProductID)
		if err != nil {
			m.restock(ctx, order.ID, taken)
			if errors.Is(err, ports.ErrNotFound) {
				return m.fail(ctx, order, domain.NewValidationError(domain.MsgProductUnavailable))
			}
			return m.fail(ctx, order, fmt.Errorf("get product %s: %w", item.ProductID, err))
		}

		if _, err := m.products.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			m.restock(ctx, order.ID, taken)
			return m.fail(ctx, order, m.stockError(ctx, product, err))
		}
		taken = append(taken, takenStock{productID: item.ProductID, quantity: item.Quantity})

		lines = append(lines, domain.NewOrderLine(uuid.NewString(), order.ID, *product, item.Quantity, now))
	}

	snapshot := *cart
	snapshot.Items = append([]domain.CartItem(nil), cart.Items...)

	cart.Clear()
	if err := m.carts.Save(ctx, cart); err != nil {
		m.restock(ctx, order.ID, taken)
		if errors.Is(err, ports.ErrConflict) {
			return m.fail(ctx, order, domain.NewConflictError(domain.MsgCartChanged))
		}
		return m.fail(ctx, order, fmt.Errorf("clear cart: %w", err))
	}

	if err := m.lines.CreateBatch(ctx, lines); err != nil {
		m.restock(ctx, order.ID, taken)
		m.restoreCart(ctx, order.ID, cart, snapshot)
		return m.fail(ctx, order, fmt.Errorf("create order lines: %w", err))
	}

	lineIDs := make([]string, len(lines))
	for i, line := range lines {
		lineIDs[i] = line.ID
	}

	settled, err := m.orders.CompleteSettlement(ctx, order.ID, lineIDs)
	if err != nil {
		m.logger.ErrorContext(ctx, "order lines created but settlement not completed; left for recovery",
			"order_id", order.ID,
			"error", err,
		)
		return order, fmt.Errorf("complete settlement: %w", err)
	}

	return settled, nil
}

func (m *Materializer) stockError(ctx context.Context, product *domain.Product, err error) error {
	switch {
	case errors.Is(err, ports.ErrNotFound):
		return domain.NewValidationError(domain.MsgProductUnavailable)
	case errors.Is(err, ports.ErrInsufficientStock):
		available := product.Quantity
		if current, getErr := m.products.GetByID(ctx, product.ID); getErr == nil {
			available = current.Quantity
		}
		return domain.InsufficientStockError(product.Name, available)
	default:
		return fmt.Errorf("decrement stock for %s: %w", product.ID, err)
	}
}

// fail marks the claimed order payment_failed and returns it with cause.
func (m *Materializer) fail(ctx context.Context, order *domain.Order, cause error) (*domain.Order, error) {
	ctx = context.WithoutCancel(ctx)
	failed, err := m.orders.FailSettlement(ctx, order.ID)
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to mark settlement failed",
			"order_id", order.ID,
			"error", err,
		)
		return order, errors.Join(cause, fmt.Errorf("fail settlement: %w", err))
	}
	return failed, cause
}

func (m *Materializer) restock(ctx context.Context, orderID string, taken []takenStock) {
	ctx = context.WithoutCancel(ctx)
	for _, t := range taken {
		if err := m.products.IncrementStock(ctx, t.productID, t.quantity); err != nil {
			m.logger.ErrorContext(ctx, "failed to restock product during compensation",
				"order_id", orderID,
				"product_id", t.productID,
				"quantity", t.quantity,
				"error", err,
			)
		}
	}
}

func (m *Materializer) restoreCart(ctx context.Context, orderID string, cart *domain.Cart, snapshot domain.Cart) {
	ctx = context.WithoutCancel(ctx)
	cart.Items = snapshot.Items
	cart.Total = snapshot.Total
	if err := m.carts.Save(ctx, cart); err != nil {
		m.logger.ErrorContext(ctx, "failed to restore cart during compensation",
			"order_id", orderID,
			"user_id", cart.UserID,
			"error", err,
		)
	}
}
