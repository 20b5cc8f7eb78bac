package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/dejobratic/storefront/internal/orders/app/commands"
	"github.com/dejobratic/storefront/internal/orders/app/queries"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/metrics"
	"github.com/dejobratic/storefront/internal/orders/ports"
)

// Dependencies are the adapters the order service is built from.
type Dependencies struct {
	Orders       ports.OrderRepository
	Lines        ports.OrderLineRepository
	Carts        ports.CartRepository
	Products     ports.ProductRepository
	Addresses    ports.AddressDirectory
	Riders       ports.RiderDirectory
	Gateway      ports.PaymentGateway
	Locker       ports.CheckoutLocker
	Events       ports.EventBus
	Notifier     ports.Notifier
	Idempotency  ports.IdempotencyStore
	CheckoutLock time.Duration
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
}

// Service bundles use cases for handling orders via the API.
type Service struct {
	idemStore ports.IdempotencyStore

	checkout       commands.CheckoutHandler
	confirmPayment commands.ConfirmPaymentHandler
	updateStatus   commands.UpdateStatusHandler
	assignRider    commands.AssignRiderHandler
	riderAction    commands.RiderActionHandler
	updateCart     commands.UpdateCartHandler
	recovery       *commands.SettlementRecovery

	getOrder   *queries.GetOrderQueryHandler
	listOrders *queries.ListOrdersQueryHandler
	getCart    *queries.GetCartQueryHandler
}

// NewService wires command and query handlers, wrapping every state-changing
// command with its observable decorator.
func NewService(deps Dependencies) *Service {
	logger, m := deps.Logger, deps.Metrics

	checkout := commands.NewCheckoutCommandHandler(
		deps.Orders, deps.Carts, deps.Products, deps.Addresses,
		deps.Gateway, deps.Locker, deps.Events, logger, deps.CheckoutLock,
	)
	materializer := commands.NewMaterializer(deps.Orders, deps.Lines, deps.Carts, deps.Products, logger)
	confirm := commands.NewConfirmPaymentCommandHandler(deps.Orders, deps.Gateway, materializer, deps.Events, deps.Notifier, logger)
	updateStatus := commands.NewUpdateStatusCommandHandler(deps.Orders, deps.Events, deps.Notifier, logger)
	assignRider := commands.NewAssignRiderCommandHandler(deps.Orders, deps.Riders, deps.Events, deps.Notifier, logger)
	riderAction := commands.NewRiderActionCommandHandler(deps.Orders, deps.Riders, deps.Events, deps.Notifier, logger)

	return &Service{
		idemStore: deps.Idempotency,

		checkout:       commands.NewObservableCheckoutHandler(checkout, logger, m),
		confirmPayment: commands.NewObservableConfirmPaymentHandler(confirm, logger, m),
		updateStatus:   commands.NewObservableUpdateStatusHandler(updateStatus, logger, m),
		assignRider:    commands.NewObservableAssignRiderHandler(assignRider, logger, m),
		riderAction:    commands.NewObservableRiderActionHandler(riderAction, logger, m),
		updateCart:     commands.NewUpdateCartCommandHandler(deps.Carts, deps.Products),
		recovery:       commands.NewSettlementRecovery(deps.Orders, deps.Lines, deps.Events, logger),

		getOrder:   queries.NewGetOrderQueryHandler(deps.Orders, deps.Lines),
		listOrders: queries.NewListOrdersQueryHandler(deps.Orders),
		getCart:    queries.NewGetCartQueryHandler(deps.Carts),
	}
}

// CheckoutInput captures the payload for starting a checkout.
type CheckoutInput struct {
	AddressID string `json:"addressId"`
	Email     string `json:"email"`
}

// Checkout converts the caller's cart into a pending order and starts payment.
func (s *Service) Checkout(ctx context.Context, userID string, input CheckoutInput) (*commands.CheckoutResult, error) {
	return s.checkout.Handle(ctx, commands.CheckoutCommand{
		UserID:    userID,
		AddressID: input.AddressID,
		Email:     input.Email,
	})
}

// ConfirmPayment verifies the payment with the gateway and settles the order.
// Both the explicit verify endpoint and the webhook end up here.
func (s *Service) ConfirmPayment(ctx context.Context, orderID, reference string) (*commands.ConfirmPaymentResult, error) {
	return s.confirmPayment.Handle(ctx, commands.ConfirmPaymentCommand{
		OrderID:   orderID,
		Reference: reference,
	})
}

// VerifyPayment is ConfirmPayment on behalf of a customer. Orders that do
// not belong to ownerID are reported as not found.
func (s *Service) VerifyPayment(ctx context.Context, ownerID, orderID, reference string) (*commands.ConfirmPaymentResult, error) {
	return s.confirmPayment.Handle(ctx, commands.ConfirmPaymentCommand{
		OrderID:   orderID,
		Reference: reference,
		OwnerID:   ownerID,
	})
}

// GetOrder retrieves an order and its lines.
func (s *Service) GetOrder(ctx context.Context, id string) (*queries.OrderDetails, error) {
	return s.getOrder.Handle(ctx, queries.GetOrderQuery{OrderID: id})
}

// ListOrders returns orders using a filter.
func (s *Service) ListOrders(ctx context.Context, query queries.ListOrdersQuery) ([]domain.Order, error) {
	return s.listOrders.Handle(ctx, query)
}

// UpdateStatus applies an administrator status override.
func (s *Service) UpdateStatus(ctx context.Context, orderID, status string) (*domain.Order, error) {
	return s.updateStatus.Handle(ctx, commands.UpdateStatusCommand{OrderID: orderID, Status: status})
}

func (s *Service) AssignRider(ctx context.Context, orderID, riderID string) (*commands.AssignRiderResult, error) {
	return s.assignRider.Handle(ctx, commands.AssignRiderCommand{OrderID: orderID, RiderID: riderID})
}

// RiderAction lets the assigned rider complete or cancel an order.
func (s *Service) RiderAction(ctx context.Context, riderID, orderID string, action commands.RiderAction) (*domain.Order, error) {
	return s.riderAction.Handle(ctx, commands.RiderActionCommand{OrderID: orderID, RiderID: riderID, Action: action})
}

func (s *Service) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	return s.getCart.Handle(ctx, queries.GetCartQuery{UserID: userID})
}

// UpdateCartInput is one cart edit.
type UpdateCartInput struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func (s *Service) UpdateCart(ctx context.Context, userID string, op commands.CartOperation, input UpdateCartInput) (*domain.Cart, error) {
	return s.updateCart.Handle(ctx, commands.UpdateCartCommand{
		UserID:    userID,
		ProductID: input.ProductID,
		Quantity:  input.Quantity,
		Operation: op,
	})
}

// RecoverSettlements resumes settlements interrupted for longer than threshold.
func (s *Service) RecoverSettlements(ctx context.Context, threshold time.Duration) (commands.RecoveryReport, error) {
	return s.recovery.Run(ctx, threshold)
}

// SaveIdempotentResponse writes response details for a key.
func (s *Service) SaveIdempotentResponse(ctx context.Context, scope, key string, response ports.StoredResponse) error {
	return s.idemStore.Save(ctx, scope, key, response)
}

// GetIdempotentResponse retrieves previously stored response data.
func (s *Service) GetIdempotentResponse(ctx context.Context, scope, key string) (*ports.StoredResponse, error) {
	return s.idemStore.Get(ctx, scope, key)
}
