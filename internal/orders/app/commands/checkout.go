package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DefaultCheckoutLockTTL bounds how long a crashed checkout can block the
// same customer.
const DefaultCheckoutLockTTL = 30 * time.Second

// maxConcurrentLookups caps parallel product reads during stock validation.
const maxConcurrentLookups = 8

type CheckoutCommand struct {
	UserID    string
	AddressID string
	Email     string
}

func (c CheckoutCommand) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return domain.NewValidationError("user is required")
	}
	if strings.TrimSpace(c.AddressID) == "" {
		return domain.NewValidationError(domain.MsgInvalidAddress)
	}
	if !strings.Contains(c.Email, "@") {
		return domain.NewValidationError("A valid email is required")
	}
	return nil
}

// CheckoutResult is what the customer needs to continue to the payment page.
type CheckoutResult struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
	OrderID          string `json:"order_id"`
}

type CheckoutHandler interface {
	Handle(ctx context.Context, cmd CheckoutCommand) (*CheckoutResult, error)
}

type CheckoutCommandHandler struct {
	orders    ports.OrderRepository
	carts     ports.CartRepository
	products  ports.ProductRepository
	addresses ports.AddressDirectory
	gateway   ports.PaymentGateway
	locker    ports.CheckoutLocker
	events    ports.EventBus
	logger    *slog.Logger
	lockTTL   time.Duration
}

func NewCheckoutCommandHandler(
	orders ports.OrderRepository,
	carts ports.CartRepository,
	products ports.ProductRepository,
	addresses ports.AddressDirectory,
	gateway ports.PaymentGateway,
	locker ports.CheckoutLocker,
	events ports.EventBus,
	logger *slog.Logger,
	lockTTL time.Duration,
) *CheckoutCommandHandler {
	if lockTTL <= 0 {
		lockTTL = DefaultCheckoutLockTTL
	}
	return &CheckoutCommandHandler{
		orders:    orders,
		carts:     carts,
		products:  products,
		addresses: addresses,
		gateway:   gateway,
		locker:    locker,
		events:    events,
		logger:    logger,
		lockTTL:   lockTTL,
	}
}

func checkoutLockKey(userID string) string {
	return "checkout:" + userID
}

func (h *CheckoutCommandHandler) Handle(ctx context.Context, cmd CheckoutCommand) (*CheckoutResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	release, err := h.locker.Acquire(ctx, checkoutLockKey(cmd.UserID), h.lockTTL)
	if errors.Is(err, ports.ErrLockHeld) {
		return nil, domain.NewConflictError(domain.MsgCheckoutInProgress)
	}
	if err != nil {
		return nil, fmt.Errorf("acquire checkout lock: %w", err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			h.logger.WarnContext(ctx, "failed to release checkout lock", "user_id", cmd.UserID, "error", err)
		}
	}()

	cart, err := h.carts.Get(ctx, cmd.UserID)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, domain.NewValidationError(domain.MsgInvalidCart)
	}
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	if cart.IsEmpty() {
		return nil, domain.NewValidationError(domain.MsgEmptyCart)
	}

	address, err := h.addresses.GetAddress(ctx, cmd.AddressID)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, domain.NewValidationError(domain.MsgInvalidAddress)
	}
	if err != nil {
		return nil, fmt.Errorf("get address: %w", err)
	}
	if !address.BelongsTo(cmd.UserID) {
		return nil, domain.NewValidationError(domain.MsgInvalidAddress)
	}

	if err := h.checkStock(ctx, cart); err != nil {
		return nil, err
	}

	order := domain.NewPendingOrder(uuid.NewString(), cmd.UserID, address.ID, cart.Total, time.Now().UTC())
	if err := order.Validate(); err != nil {
		return nil, &domain.Error{Kind: domain.KindValidation, Message: domain.MsgInvalidCart, Err: err}
	}

	if err := h.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	auth, err := h.gateway.Initialize(ctx, ports.PaymentRequest{
		Email:  cmd.Email,
		Amount: order.SumTotal,
		Metadata: map[string]string{
			"order_id": order.ID,
			"user_id":  order.UserID,
		},
	})
	if err != nil {
		if _, recErr := h.orders.RecordPaymentFailure(ctx, order.ID, domain.TransactionFailed); recErr != nil {
			h.logger.ErrorContext(ctx, "failed to record payment initialization failure",
				"order_id", order.ID,
				"error", recErr,
			)
		}
		h.publishFailed(ctx, order.ID, domain.MsgPaymentInitFailed)
		return nil, domain.NewGatewayError(domain.MsgPaymentInitFailed, err)
	}

	if err := h.orders.AttachTransaction(ctx, order.ID, auth.Reference, auth.AccessCode); err != nil {
		return nil, fmt.Errorf("attach transaction reference: %w", err)
	}

	if err := h.events.PublishOrderCreated(ctx, order.ID); err != nil {
		h.logger.WarnContext(ctx, "order saved but failed to publish event", "order_id", order.ID, "error", err)
	}

	return &CheckoutResult{
		AuthorizationURL: auth.AuthorizationURL,
		AccessCode:       auth.AccessCode,
		Reference:        auth.Reference,
		OrderID:          order.ID,
	}, nil
}

// checkStock reads every cart product concurrently, then reports the first
// failing line in cart order.
func (h *CheckoutCommandHandler) checkStock(ctx context.Context, cart *domain.Cart) error {
	products := make([]*domain.Product, len(cart.Items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLookups)
	for i, item := range cart.Items {
		g.Go(func() error {
			product, err := h.products.GetByID(gctx, item.ProductID)
			if errors.Is(err, ports.ErrNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("get product %s: %w", item.ProductID, err)
			}
			products[i] = product
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, item := range cart.Items {
		product := products[i]
		if product == nil {
			return domain.NewValidationError(domain.MsgProductUnavailable)
		}
		if !product.HasStock(item.Quantity) {
			return domain.InsufficientStockError(product.Name, product.Quantity)
		}
	}
	return nil
}

func (h *CheckoutCommandHandler) publishFailed(ctx context.Context, orderID, reason string) {
	if err := h.events.PublishOrderFailed(ctx, orderID, reason); err != nil {
		h.logger.WarnContext(ctx, "failed to publish order failed event", "order_id", orderID, "error", err)
	}
}
