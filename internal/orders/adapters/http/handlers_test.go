package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dejobratic/storefront/internal/events"
	idemmemory "github.com/dejobratic/storefront/internal/idempotency/memory"
	lockmemory "github.com/dejobratic/storefront/internal/lock/memory"
	"github.com/dejobratic/storefront/internal/notifications"
	orderhttp "github.com/dejobratic/storefront/internal/orders/adapters/http"
	"github.com/dejobratic/storefront/internal/orders/adapters/memory"
	"github.com/dejobratic/storefront/internal/orders/app"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/metrics"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/dejobratic/storefront/internal/payments/paystack"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

const webhookSecret = "sk_test_secret"

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

type testServer struct {
	handler   http.Handler
	gateway   *mockGateway
	orders    *memory.OrderRepository
	products  *memory.ProductRepository
	directory *memory.Directory
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orderMetrics, err := metrics.NewMetrics(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	directory := memory.NewDirectory()
	directory.PutUser(domain.User{ID: "user-1", Username: "ada", Email: "ada@example.com"})
	directory.PutAddress(domain.Address{ID: "addr-1", UserID: "user-1", Title: "Home"})
	directory.PutRider(domain.Rider{ID: "rider-1", Name: "Bolu Ade", Username: "bolu"})
	directory.PutRider(domain.Rider{ID: "rider-2", Name: "Chidi Obi"})

	orders := memory.NewOrderRepository()
	products := memory.NewProductRepository(
		domain.Product{ID: "p1", Name: "Rice", NormalPrice: decimal.NewFromInt(50), Quantity: 10},
		domain.Product{ID: "p2", Name: "Beans", NormalPrice: decimal.RequireFromString("12.50"), Quantity: 2},
	)
	gateway := &mockGateway{orders: orders}

	service := app.NewService(app.Dependencies{
		Orders:       orders,
		Lines:        memory.NewOrderLineRepository(),
		Carts:        memory.NewCartRepository(),
		Products:     products,
		Addresses:    directory,
		Riders:       directory,
		Gateway:      gateway,
		Locker:       lockmemory.NewLocker(),
		Events:       events.NewNoopEventBus(logger),
		Notifier:     notifications.NewEmitter(memory.NewNotificationRepository(), directory, directory, logger),
		Idempotency:  idemmemory.NewStore(),
		CheckoutLock: 30 * time.Second,
		Logger:       logger,
		Metrics:      orderMetrics,
	})

	mux := http.NewServeMux()
	orderhttp.NewHandler(service, webhookSecret, logger).Register(mux)

	return &testServer{
		handler:   orderhttp.WithRecovery(mux, logger),
		gateway:   gateway,
		orders:    orders,
		products:  products,
		directory: directory,
	}
}

type actor struct {
	id   string
	role orderhttp.Role
}

var (
	customer = actor{id: "user-1", role: orderhttp.RoleCustomer}
	admin    = actor{id: "admin-1", role: orderhttp.RoleAdmin}
	rider    = actor{id: "rider-1", role: orderhttp.RoleRider}
)

type response struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (s *testServer) do(t *testing.T, as *actor, method, path string, body any, headers ...string) (*httptest.ResponseRecorder, response) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	if as != nil {
		req.Header.Set(orderhttp.HeaderActorID, as.id)
		req.Header.Set(orderhttp.HeaderActorRole, string(as.role))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var env response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func (s *testServer) addToCart(t *testing.T, productID string, quantity int) {
	t.Helper()
	rec, env := s.do(t, &customer, http.MethodPost, "/user/cart/add", map[string]any{"productId": productID, "quantity": quantity})
	require.Equal(t, http.StatusOK, rec.Code, env.Message)
}

func (s *testServer) expectInitialize(reference string) {
	s.gateway.On("Initialize", mock.Anything, mock.Anything).Return(&ports.PaymentAuthorization{
		AuthorizationURL: "https://checkout.paystack.com/" + reference,
		AccessCode:       "access-" + reference,
		Reference:        reference,
	}, nil).Once()
}

func (s *testServer) expectVerify(reference, status string) {
	s.gateway.On("Verify", mock.Anything, reference).Return(&ports.PaymentVerification{
		Status:        status,
		TransactionID: "tx-" + reference,
		Reference:     reference,
	}, nil)
}

type checkoutData struct {
	AuthorizationURL string `json:"authorization_url"`
	Reference        string `json:"reference"`
	OrderID          string `json:"order_id"`
}

func (s *testServer) checkout(t *testing.T, reference string) checkoutData {
	t.Helper()
	s.expectInitialize(reference)
	rec, env := s.do(t, &customer, http.MethodPost, "/order", map[string]string{"addressId": "addr-1", "email": "ada@example.com"})
	require.Equal(t, http.StatusCreated, rec.Code, env.Message)

	var data checkoutData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	return data
}

func (s *testServer) webhook(t *testing.T, payload string, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/order/paystack-webhook", strings.NewReader(payload))
	req.Header.Set(paystack.SignatureHeader, signature)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func chargeSuccess(reference string) string {
	return `{"event":"charge.success","data":{"id":1,"reference":"` + reference + `","status":"success","amount":15000}}`
}

func TestIdentity(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(t, nil, http.MethodGet, "/user/cart", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, env.Success)

	rec, env = s.do(t, &rider, http.MethodGet, "/user/cart", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Forbidden", env.Message)

	rec, _ = s.do(t, &customer, http.MethodGet, "/order", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "listing every order is admin only")
}

func TestCartEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(t, &customer, http.MethodGet, "/user/cart", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Cart Items Acquired", env.Message)

	s.addToCart(t, "p1", 2)
	s.addToCart(t, "p2", 1)

	rec, env = s.do(t, &customer, http.MethodPost, "/user/cart/decrease", map[string]any{"productId": "p1", "quantity": 1})
	require.Equal(t, http.StatusOK, rec.Code)

	var cart domain.Cart
	require.NoError(t, json.Unmarshal(env.Data, &cart))
	assert.True(t, cart.Total.Equal(decimal.RequireFromString("62.50")))

	rec, env = s.do(t, &customer, http.MethodPost, "/user/cart/remove", map[string]any{"productId": "p9"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, domain.MsgNotInCart, env.Message)

	rec, env = s.do(t, &customer, http.MethodPost, "/user/cart/remove", map[string]any{"productId": "p2"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Product removed from cart", env.Message)

	req := httptest.NewRequest(http.MethodPost, "/user/cart/add", strings.NewReader("{"))
	req.Header.Set(orderhttp.HeaderActorID, customer.id)
	req.Header.Set(orderhttp.HeaderActorRole, string(customer.role))
	raw := httptest.NewRecorder()
	s.handler.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestCheckoutEndpoint(t *testing.T) {
	t.Run("returns the authorization handle", func(t *testing.T) {
		s := newTestServer(t)
		s.addToCart(t, "p1", 3)

		data := s.checkout(t, "ref-1")
		assert.Equal(t, "https://checkout.paystack.com/ref-1", data.AuthorizationURL)
		assert.Equal(t, "ref-1", data.Reference)
		assert.NotEmpty(t, data.OrderID)

		order, err := s.orders.GetByID(context.Background(), data.OrderID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, order.Status)
	})

	t.Run("rejects insufficient stock", func(t *testing.T) {
		s := newTestServer(t)
		s.addToCart(t, "p2", 5)

		rec, env := s.do(t, &customer, http.MethodPost, "/order", map[string]string{"addressId": "addr-1", "email": "ada@example.com"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Insufficient stock for Beans. Only 2 available.", env.Message)
		s.gateway.AssertNotCalled(t, "Initialize", mock.Anything, mock.Anything)
	})

	t.Run("empty cart", func(t *testing.T) {
		s := newTestServer(t)
		s.addToCart(t, "p1", 1)
		rec, _ := s.do(t, &customer, http.MethodPost, "/user/cart/remove", map[string]any{"productId": "p1"})
		require.Equal(t, http.StatusOK, rec.Code)

		rec, env := s.do(t, &customer, http.MethodPost, "/order", map[string]string{"addressId": "addr-1", "email": "ada@example.com"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, domain.MsgEmptyCart, env.Message)
	})

	t.Run("replays an idempotent retry", func(t *testing.T) {
		s := newTestServer(t)
		s.addToCart(t, "p1", 1)
		s.expectInitialize("ref-1")

		body := map[string]string{"addressId": "addr-1", "email": "ada@example.com"}
		first, _ := s.do(t, &customer, http.MethodPost, "/order", body, orderhttp.IdempotencyKeyHeader, "key-1")
		require.Equal(t, http.StatusCreated, first.Code)

		second, _ := s.do(t, &customer, http.MethodPost, "/order", body, orderhttp.IdempotencyKeyHeader, "key-1")
		assert.Equal(t, http.StatusCreated, second.Code)
		assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
		assert.JSONEq(t, first.Body.String(), second.Body.String())

		s.gateway.AssertNumberOfCalls(t, "Initialize", 1)
	})
}

func TestWebhookEndpoint(t *testing.T) {
	t.Run("rejects a bad signature without touching the order", func(t *testing.T) {
		s := newTestServer(t)
		s.addToCart(t, "p1", 3)
		data := s.checkout(t, "ref-1")

		rec := s.webhook(t, chargeSuccess("ref-1"), "deadbeef")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Unauthorized\n", rec.Body.String())

		order, err := s.orders.GetByID(context.Background(), data.OrderID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, order.Status)
		s.gateway.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
	})

	t.Run("settles on charge.success and ignores redelivery", func(t *testing.T) {
		s := newTestServer(t)
		s.addToCart(t, "p1", 3)
		data := s.checkout(t, "ref-1")
		s.expectVerify("ref-1", "success")

		payload := chargeSuccess("ref-1")
		rec := s.webhook(t, payload, paystack.Sign(webhookSecret, []byte(payload)))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Webhook processed", rec.Body.String())

		rec = s.webhook(t, payload, paystack.Sign(webhookSecret, []byte(payload)))
		assert.Equal(t, http.StatusOK, rec.Code)

		order, err := s.orders.GetByID(context.Background(), data.OrderID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusProcessing, order.Status)

		product, err := s.products.GetByID(context.Background(), "p1")
		require.NoError(t, err)
		assert.Equal(t, 7, product.Quantity)
		s.gateway.AssertNumberOfCalls(t, "Verify", 1)
	})

	t.Run("acknowledges other events", func(t *testing.T) {
		s := newTestServer(t)
		payload := `{"event":"transfer.success","data":{"reference":"x"}}`
		rec := s.webhook(t, payload, paystack.Sign(webhookSecret, []byte(payload)))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Event ignored", rec.Body.String())
	})

	t.Run("rejects an unknown reference", func(t *testing.T) {
		s := newTestServer(t)
		payload := chargeSuccess("ref-unknown")
		rec := s.webhook(t, payload, paystack.Sign(webhookSecret, []byte(payload)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, domain.MsgOrderNotFound+"\n", rec.Body.String())
	})

	t.Run("rejects a malformed body", func(t *testing.T) {
		s := newTestServer(t)
		payload := `not json`
		rec := s.webhook(t, payload, paystack.Sign(webhookSecret, []byte(payload)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestVerifyPaymentEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.addToCart(t, "p1", 3)
	data := s.checkout(t, "ref-1")
	s.expectVerify("ref-1", "success")

	rec, env := s.do(t, &customer, http.MethodPost, "/order/verify-payment", map[string]string{"orderId": data.OrderID, "reference": "ref-1"})
	require.Equal(t, http.StatusOK, rec.Code, env.Message)
	assert.Equal(t, "Payment verified and order processed", env.Message)

	var order domain.Order
	require.NoError(t, json.Unmarshal(env.Data, &order))
	assert.Equal(t, domain.StatusProcessing, order.Status)
	assert.Len(t, order.OrderProducts, 1)

	rec, env = s.do(t, &customer, http.MethodPost, "/order/verify-payment", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, domain.MsgInvalidReference, env.Message)
}

func TestVerifyPaymentForAnotherCustomersOrder(t *testing.T) {
	s := newTestServer(t)
	s.addToCart(t, "p1", 3)
	data := s.checkout(t, "ref-1")
	s.expectVerify("ref-1", "abandoned")

	other := actor{id: "user-2", role: orderhttp.RoleCustomer}
	for _, body := range []map[string]string{
		{"orderId": data.OrderID},
		{"reference": "ref-1"},
	} {
		rec, env := s.do(t, &other, http.MethodPost, "/order/verify-payment", body)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, domain.MsgOrderNotFound, env.Message)
	}

	s.gateway.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
	order, err := s.orders.GetByID(context.Background(), data.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, order.Status)
	assert.Equal(t, domain.TransactionPending, order.TransactionStatus)
	assert.Zero(t, order.PaymentAttempts)
}

func TestStatusOverrideKeepsSettledOrdersOutOfPending(t *testing.T) {
	s := newTestServer(t)
	s.addToCart(t, "p1", 3)
	data := s.checkout(t, "ref-1")
	s.expectVerify("ref-1", "success")

	rec, env := s.do(t, &customer, http.MethodPost, "/order/verify-payment", map[string]string{"orderId": data.OrderID})
	require.Equal(t, http.StatusOK, rec.Code, env.Message)

	rec, env = s.do(t, &admin, http.MethodPut, "/order/"+data.OrderID+"/status", map[string]string{"order_status": "pending"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, domain.MsgInvalidStatus, env.Message)

	order, err := s.orders.GetByID(context.Background(), data.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, order.Status)
	assert.NoError(t, order.Validate())

	rec, env = s.do(t, &admin, http.MethodPut, "/order/"+data.OrderID+"/status", map[string]string{"order_status": "cancelled"})
	require.Equal(t, http.StatusOK, rec.Code, env.Message)
}

func TestCallbackPage(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/order/paystack/callback", nil)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "No reference provided")
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	s.addToCart(t, "p1", 3)
	data := s.checkout(t, "ref-1")
	s.expectVerify("ref-1", "success")

	req = httptest.NewRequest(http.MethodGet, "/order/paystack/callback?reference=ref-1", nil)
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Payment Successful")
	assert.Contains(t, rec.Body.String(), data.OrderID)
	assert.Contains(t, rec.Body.String(), "processing")
}

func TestAdminAndRiderEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.addToCart(t, "p1", 3)
	data := s.checkout(t, "ref-1")
	path := "/order/" + data.OrderID

	rec, env := s.do(t, &admin, http.MethodPost, "/admin/assign-rider/"+data.OrderID, map[string]string{"riderId": "rider-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, domain.MsgPaymentNotVerified, env.Message)

	rec, env = s.do(t, &admin, http.MethodPut, path+"/status", map[string]string{"order_status": "lost"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, domain.MsgInvalidStatus, env.Message)

	s.expectVerify("ref-1", "success")
	rec, _ = s.do(t, &customer, http.MethodPost, "/order/verify-payment", map[string]string{"orderId": data.OrderID})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = s.do(t, &admin, http.MethodPost, "/admin/assign-rider/"+data.OrderID, map[string]string{"riderId": "rider-1"})
	require.Equal(t, http.StatusOK, rec.Code, env.Message)
	assert.Equal(t, "Rider bolu, assigned to order "+data.OrderID, env.Message)

	other := actor{id: "rider-2", role: orderhttp.RoleRider}
	rec, env = s.do(t, &other, http.MethodPost, "/rider/orders/complete/"+data.OrderID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, domain.MsgInvalidOrder, env.Message)

	rec, env = s.do(t, &rider, http.MethodGet, "/rider/orders", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var assigned []domain.Order
	require.NoError(t, json.Unmarshal(env.Data, &assigned))
	require.Len(t, assigned, 1)

	rec, env = s.do(t, &rider, http.MethodPost, "/rider/orders/complete/"+data.OrderID, nil)
	require.Equal(t, http.StatusOK, rec.Code, env.Message)
	assert.Equal(t, "Order Delivered", env.Message)

	rec, env = s.do(t, &admin, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Order Acquired", env.Message)

	intruder := actor{id: "user-9", role: orderhttp.RoleCustomer}
	rec, _ = s.do(t, &intruder, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env = s.do(t, &customer, http.MethodGet, "/user/orders", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []domain.Order
	require.NoError(t, json.Unmarshal(env.Data, &history))
	require.Len(t, history, 1)
	assert.Equal(t, domain.StatusDelivered, history[0].Status)

	rec, env = s.do(t, &admin, http.MethodGet, "/order?status=delivered&page=1&page_size=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []domain.Order
	require.NoError(t, json.Unmarshal(env.Data, &listed))
	assert.Len(t, listed, 1)
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := orderhttp.WithRecovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), logger)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"message":"internal server error"}`, rec.Body.String())
}
