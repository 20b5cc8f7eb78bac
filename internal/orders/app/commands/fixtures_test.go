package commands_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	lockmemory "github.com/dejobratic/storefront/internal/lock/memory"
	"github.com/dejobratic/storefront/internal/orders/adapters/memory"
	"github.com/dejobratic/storefront/internal/orders/app/commands"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockGateway struct {
	mock.Mock
	orders ports.OrderRepository
}

func (m *mockGateway) Initialize(ctx context.Context, req ports.PaymentRequest) (*ports.PaymentAuthorization, error) {
	args := m.Called(ctx, req)
	auth, _ := args.Get(0).(*ports.PaymentAuthorization)
	return auth, args.Error(1)
}

// Verify reports the order total as the charged amount unless the
// expectation sets one.
func (m *mockGateway) Verify(ctx context.Context, reference string) (*ports.PaymentVerification, error) {
	args := m.Called(ctx, reference)
	verification, _ := args.Get(0).(*ports.PaymentVerification)
	if verification == nil || !verification.Amount.IsZero() || m.orders == nil {
		return verification, args.Error(1)
	}
	charged := *verification
	if order, err := m.orders.GetByReference(ctx, reference); err == nil {
		charged.Amount = order.SumTotal
	}
	return &charged, args.Error(1)
}

type publishedEvent struct {
	kind    string
	orderID string
	detail  string
}

type recordingEventBus struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (b *recordingEventBus) record(kind, orderID, detail string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, publishedEvent{kind: kind, orderID: orderID, detail: detail})
	return nil
}

func (b *recordingEventBus) PublishOrderCreated(_ context.Context, orderID string) error {
	return b.record("created", orderID, "")
}

func (b *recordingEventBus) PublishOrderPaid(_ context.Context, orderID string) error {
	return b.record("paid", orderID, "")
}

func (b *recordingEventBus) PublishOrderFailed(_ context.Context, orderID string, reason string) error {
	return b.record("failed", orderID, reason)
}

func (b *recordingEventBus) PublishOrderStatusChanged(_ context.Context, orderID string, status domain.OrderStatus) error {
	return b.record("status_changed", orderID, string(status))
}

func (b *recordingEventBus) kinds() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	kinds := make([]string, len(b.events))
	for i, e := range b.events {
		kinds[i] = e.kind
	}
	return kinds
}

func (b *recordingEventBus) count(kind string) int {
	n := 0
	for _, k := range b.kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, notification domain.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
}

func (n *recordingNotifier) to(target domain.NotificationTarget) []domain.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var result []domain.Notification
	for _, s := range n.sent {
		if s.Target == target {
			result = append(result, s)
		}
	}
	return result
}

const (
	testUser    = "user-1"
	testAddress = "addr-1"
	testEmail   = "ada@example.com"
	testRider   = "rider-1"
)

type fixture struct {
	orders    *memory.OrderRepository
	lines     *memory.OrderLineRepository
	carts     *memory.CartRepository
	products  *memory.ProductRepository
	directory *memory.Directory
	locker    *lockmemory.Locker
	gateway   *mockGateway
	events    *recordingEventBus
	notifier  *recordingNotifier
	logger    *slog.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	directory := memory.NewDirectory()
	directory.PutUser(domain.User{ID: testUser, Username: "ada", Email: testEmail})
	directory.PutAddress(domain.Address{ID: testAddress, UserID: testUser, Title: "Home", City: "Lagos"})
	directory.PutAddress(domain.Address{ID: "addr-other", UserID: "user-2", Title: "Office"})
	directory.PutRider(domain.Rider{ID: testRider, Name: "Bolu Ade", Username: "bolu"})
	directory.PutRider(domain.Rider{ID: "rider-2", Name: "Chidi Obi"})

	orders := memory.NewOrderRepository()

	return &fixture{
		orders: orders,
		lines:  memory.NewOrderLineRepository(),
		carts:  memory.NewCartRepository(),
		products: memory.NewProductRepository(
			domain.Product{ID: "p1", Name: "Rice", NormalPrice: decimal.NewFromInt(50), Quantity: 10},
			domain.Product{ID: "p2", Name: "Beans", NormalPrice: decimal.RequireFromString("12.50"), Quantity: 2},
		),
		directory: directory,
		locker:    lockmemory.NewLocker(),
		gateway:   &mockGateway{orders: orders},
		events:    &recordingEventBus{},
		notifier:  &recordingNotifier{},
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func (f *fixture) checkoutHandler() *commands.CheckoutCommandHandler {
	return commands.NewCheckoutCommandHandler(
		f.orders, f.carts, f.products, f.directory, f.gateway, f.locker, f.events, f.logger, 0,
	)
}

func (f *fixture) confirmHandler() *commands.ConfirmPaymentCommandHandler {
	materializer := commands.NewMaterializer(f.orders, f.lines, f.carts, f.products, f.logger)
	return commands.NewConfirmPaymentCommandHandler(f.orders, f.gateway, materializer, f.events, f.notifier, f.logger)
}

type cartLine struct {
	productID string
	quantity  int
}

// fillCart stores a cart for testUser holding the given lines.
func (f *fixture) fillCart(t *testing.T, lines ...cartLine) {
	t.Helper()
	ctx := context.Background()

	cart, err := f.carts.Get(ctx, testUser)
	if err != nil {
		cart = domain.NewCart(testUser)
	}
	for _, line := range lines {
		product, err := f.products.GetByID(ctx, line.productID)
		require.NoError(t, err)
		require.NoError(t, cart.Add(*product, line.quantity))
	}
	require.NoError(t, f.carts.Save(ctx, cart))
}

func (f *fixture) stock(t *testing.T, productID string) int {
	t.Helper()
	product, err := f.products.GetByID(context.Background(), productID)
	require.NoError(t, err)
	return product.Quantity
}

// expectInitialize makes the next checkout receive reference.
func (f *fixture) expectInitialize(reference string) {
	f.gateway.On("Initialize", mock.Anything, mock.Anything).Return(&ports.PaymentAuthorization{
		AuthorizationURL: "https://checkout.paystack.com/" + reference,
		AccessCode:       "access-" + reference,
		Reference:        reference,
	}, nil).Once()
}

func verification(reference, status string) *ports.PaymentVerification {
	return &ports.PaymentVerification{
		Status:        status,
		TransactionID: "tx-" + reference,
		Reference:     reference,
	}
}

// checkout runs a checkout for testUser and returns the created order.
func (f *fixture) checkout(t *testing.T, reference string) *domain.Order {
	t.Helper()
	f.expectInitialize(reference)

	result, err := f.checkoutHandler().Handle(context.Background(), commands.CheckoutCommand{
		UserID:    testUser,
		AddressID: testAddress,
		Email:     testEmail,
	})
	require.NoError(t, err)

	order, err := f.orders.GetByID(context.Background(), result.OrderID)
	require.NoError(t, err)
	return order
}

// settledOrder checks out and confirms payment, leaving the order processing.
func (f *fixture) settledOrder(t *testing.T, reference string) *domain.Order {
	t.Helper()
	f.fillCart(t, cartLine{productID: "p1", quantity: 3})
	f.checkout(t, reference)

	f.gateway.On("Verify", mock.Anything, reference).Return(verification(reference, "success"), nil)
	result, err := f.confirmHandler().Handle(context.Background(), commands.ConfirmPaymentCommand{Reference: reference})
	require.NoError(t, err)
	require.Equal(t, domain.StatusProcessing, result.Order.Status)
	return result.Order
}
