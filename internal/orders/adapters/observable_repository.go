package adapters

import (
	"context"
	"time"

	"github.com/dejobratic/storefront/internal/database"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/dejobratic/storefront/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// observeQuery runs fn inside a span named spanName and records its duration
// under operation.
func observeQuery[T any](
	ctx context.Context,
	metrics *database.Metrics,
	spanName, operation string,
	attrs []attribute.KeyValue,
	fn func(ctx context.Context) (T, error),
) (T, error) {
	ctx, span := telemetry.StartSpan(ctx, spanName)
	defer span.End()

	telemetry.AddSpanAttributes(span, append(attrs, attribute.String("operation", operation))...)

	start := time.Now()
	result, err := fn(ctx)
	duration := time.Since(start).Seconds()

	metrics.RecordQuery(ctx, operation, duration, err == nil)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		var zero T
		return zero, err
	}

	telemetry.SetSpanSuccess(span)
	return result, nil
}

func observeExec(
	ctx context.Context,
	metrics *database.Metrics,
	spanName, operation string,
	attrs []attribute.KeyValue,
	fn func(ctx context.Context) error,
) error {
	_, err := observeQuery(ctx, metrics, spanName, operation, attrs, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func orderAttr(id string) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.String("order.id", id)}
}

type ObservableRepository struct {
	repo    ports.OrderRepository
	metrics *database.Metrics
}

func NewObservableRepository(repo ports.OrderRepository, metrics *database.Metrics) *ObservableRepository {
	return &ObservableRepository{
		repo:    repo,
		metrics: metrics,
	}
}

func (r *ObservableRepository) Create(ctx context.Context, order domain.Order) error {
	return observeExec(ctx, r.metrics, "OrderRepository.Create", "create_order", orderAttr(order.ID),
		func(ctx context.Context) error { return r.repo.Create(ctx, order) })
}

func (r *ObservableRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	return observeQuery(ctx, r.metrics, "OrderRepository.GetByID", "get_order_by_id", orderAttr(id),
		func(ctx context.Context) (*domain.Order, error) { return r.repo.GetByID(ctx, id) })
}

func (r *ObservableRepository) GetByReference(ctx context.Context, reference string) (*domain.Order, error) {
	return observeQuery(ctx, r.metrics, "OrderRepository.GetByReference", "get_order_by_reference",
		[]attribute.KeyValue{attribute.String("payment.reference", reference)},
		func(ctx context.Context) (*domain.Order, error) { return r.repo.GetByReference(ctx, reference) })
}

func (r *ObservableRepository) List(ctx context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	attrs := []attribute.KeyValue{
		attribute.Int("page", filter.Page),
		attribute.Int("page_size", filter.PageSize),
	}
	if filter.Status != nil {
		attrs = append(attrs, attribute.String("filter.status", string(*filter.Status)))
	}
	if filter.RiderID != "" {
		attrs = append(attrs, attribute.String("filter.rider_id", filter.RiderID))
	}

	return observeQuery(ctx, r.metrics, "OrderRepository.List", "list_orders", attrs,
		func(ctx context.Context) ([]domain.Order, error) { return r.repo.List(ctx, filter) })
}

func (r *ObservableRepository) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error) {
	attrs := append(orderAttr(id), attribute.String("order.new_status", string(status)))
	return observeQuery(ctx, r.metrics, "OrderRepository.UpdateStatus", "update_order_status", attrs,
		func(ctx context.Context) (*domain.Order, error) { return r.repo.UpdateStatus(ctx, id, status) })
}

func (r *ObservableRepository) AttachTransaction(ctx context.Context, id, reference, transactionID string) error {
	attrs := append(orderAttr(id), attribute.String("payment.reference", reference))
	return observeExec(ctx, r.metrics, "OrderRepository.AttachTransaction", "attach_transaction", attrs,
		func(ctx context.Context) error { return r.repo.AttachTransaction(ctx, id, reference, transactionID) })
}

func (r *ObservableRepository) RecordPaymentFailure(ctx context.Context, id string, txStatus domain.TransactionStatus) (*domain.Order, error) {
	return observeQuery(ctx, r.metrics, "OrderRepository.RecordPaymentFailure", "record_payment_failure", orderAttr(id),
		func(ctx context.Context) (*domain.Order, error) { return r.repo.RecordPaymentFailure(ctx, id, txStatus) })
}

func (r *ObservableRepository) ClaimSettlement(ctx context.Context, id, reference, transactionID string) (*domain.Order, error) {
	attrs := append(orderAttr(id), attribute.String("payment.reference", reference))
	return observeQuery(ctx, r.metrics, "OrderRepository.ClaimSettlement", "claim_settlement", attrs,
		func(ctx context.Context) (*domain.Order, error) {
			return r.repo.ClaimSettlement(ctx, id, reference, transactionID)
		})
}

func (r *ObservableRepository) CompleteSettlement(ctx context.Context, id string, lineIDs []string) (*domain.Order, error) {
	attrs := append(orderAttr(id), attribute.Int("order.lines", len(lineIDs)))
	return observeQuery(ctx, r.metrics, "OrderRepository.CompleteSettlement", "complete_settlement", attrs,
		func(ctx context.Context) (*domain.Order, error) { return r.repo.CompleteSettlement(ctx, id, lineIDs) })
}

func (r *ObservableRepository) FailSettlement(ctx context.Context, id string) (*domain.Order, error) {
	return observeQuery(ctx, r.metrics, "OrderRepository.FailSettlement", "fail_settlement", orderAttr(id),
		func(ctx context.Context) (*domain.Order, error) { return r.repo.FailSettlement(ctx, id) })
}

func (r *ObservableRepository) AssignRider(ctx context.Context, id, riderID string) (*domain.Order, error) {
	attrs := append(orderAttr(id), attribute.String("rider.id", riderID))
	return observeQuery(ctx, r.metrics, "OrderRepository.AssignRider", "assign_rider", attrs,
		func(ctx context.Context) (*domain.Order, error) { return r.repo.AssignRider(ctx, id, riderID) })
}

func (r *ObservableRepository) TransitionForRider(ctx context.Context, id, riderID string, from []domain.OrderStatus, to domain.OrderStatus) (*domain.Order, error) {
	attrs := append(orderAttr(id),
		attribute.String("rider.id", riderID),
		attribute.String("order.new_status", string(to)),
	)
	return observeQuery(ctx, r.metrics, "OrderRepository.TransitionForRider", "rider_transition", attrs,
		func(ctx context.Context) (*domain.Order, error) {
			return r.repo.TransitionForRider(ctx, id, riderID, from, to)
		})
}

func (r *ObservableRepository) ListStalled(ctx context.Context, olderThan time.Time) ([]domain.Order, error) {
	return observeQuery(ctx, r.metrics, "OrderRepository.ListStalled", "list_stalled_settlements", nil,
		func(ctx context.Context) ([]domain.Order, error) { return r.repo.ListStalled(ctx, olderThan) })
}

// ObservableProductRepository traces the inventory ledger.
type ObservableProductRepository struct {
	repo    ports.ProductRepository
	metrics *database.Metrics
}

func NewObservableProductRepository(repo ports.ProductRepository, metrics *database.Metrics) *ObservableProductRepository {
	return &ObservableProductRepository{repo: repo, metrics: metrics}
}

func productAttrs(id string, quantity int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("product.id", id),
		attribute.Int("product.quantity", quantity),
	}
}

func (r *ObservableProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	return observeQuery(ctx, r.metrics, "ProductRepository.GetByID", "get_product", []attribute.KeyValue{attribute.String("product.id", id)},
		func(ctx context.Context) (*domain.Product, error) { return r.repo.GetByID(ctx, id) })
}

func (r *ObservableProductRepository) DecrementStock(ctx context.Context, id string, quantity int) (*domain.Product, error) {
	return observeQuery(ctx, r.metrics, "ProductRepository.DecrementStock", "decrement_stock", productAttrs(id, quantity),
		func(ctx context.Context) (*domain.Product, error) { return r.repo.DecrementStock(ctx, id, quantity) })
}

func (r *ObservableProductRepository) IncrementStock(ctx context.Context, id string, quantity int) error {
	return observeExec(ctx, r.metrics, "ProductRepository.IncrementStock", "increment_stock", productAttrs(id, quantity),
		func(ctx context.Context) error { return r.repo.IncrementStock(ctx, id, quantity) })
}

// ObservableCartRepository traces cart reads and compare-and-swap writes.
type ObservableCartRepository struct {
	repo    ports.CartRepository
	metrics *database.Metrics
}

func NewObservableCartRepository(repo ports.CartRepository, metrics *database.Metrics) *ObservableCartRepository {
	return &ObservableCartRepository{repo: repo, metrics: metrics}
}

func (r *ObservableCartRepository) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	return observeQuery(ctx, r.metrics, "CartRepository.Get", "get_cart", []attribute.KeyValue{attribute.String("user.id", userID)},
		func(ctx context.Context) (*domain.Cart, error) { return r.repo.Get(ctx, userID) })
}

func (r *ObservableCartRepository) Save(ctx context.Context, cart *domain.Cart) error {
	attrs := []attribute.KeyValue{
		attribute.String("user.id", cart.UserID),
		attribute.Int64("cart.version", cart.Version),
		attribute.Int("cart.items", len(cart.Items)),
	}
	return observeExec(ctx, r.metrics, "CartRepository.Save", "save_cart", attrs,
		func(ctx context.Context) error { return r.repo.Save(ctx, cart) })
}

// ObservableOrderLineRepository traces order line writes and reads.
type ObservableOrderLineRepository struct {
	repo    ports.OrderLineRepository
	metrics *database.Metrics
}

func NewObservableOrderLineRepository(repo ports.OrderLineRepository, metrics *database.Metrics) *ObservableOrderLineRepository {
	return &ObservableOrderLineRepository{repo: repo, metrics: metrics}
}

func (r *ObservableOrderLineRepository) CreateBatch(ctx context.Context, lines []domain.OrderLine) error {
	return observeExec(ctx, r.metrics, "OrderLineRepository.CreateBatch", "create_order_lines",
		[]attribute.KeyValue{attribute.Int("order.lines", len(lines))},
		func(ctx context.Context) error { return r.repo.CreateBatch(ctx, lines) })
}

func (r *ObservableOrderLineRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.OrderLine, error) {
	return observeQuery(ctx, r.metrics, "OrderLineRepository.ListByOrder", "list_order_lines", orderAttr(orderID),
		func(ctx context.Context) ([]domain.OrderLine, error) { return r.repo.ListByOrder(ctx, orderID) })
}
