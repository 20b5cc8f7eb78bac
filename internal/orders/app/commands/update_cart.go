package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
)

// maxCartAttempts bounds optimistic-concurrency retries for one cart edit.
const maxCartAttempts = 3

type CartOperation string

const (
	CartAdd      CartOperation = "add"
	CartRemove   CartOperation = "remove"
	CartIncrease CartOperation = "increase"
	CartDecrease CartOperation = "decrease"
)

type UpdateCartCommand struct {
	UserID    string
	ProductID string
	Quantity  int
	Operation CartOperation
}

func (c UpdateCartCommand) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return domain.NewValidationError("user is required")
	}
	if strings.TrimSpace(c.ProductID) == "" {
		return domain.NewValidationError(domain.MsgInvalidProduct)
	}
	switch c.Operation {
	case CartRemove:
		return nil
	case CartAdd, CartIncrease, CartDecrease:
		if c.Quantity <= 0 {
			return domain.NewValidationError(domain.MsgInvalidQuantity)
		}
		return nil
	default:
		return domain.NewValidationError("Invalid cart operation")
	}
}

type UpdateCartHandler interface {
	Handle(ctx context.Context, cmd UpdateCartCommand) (*domain.Cart, error)
}

type UpdateCartCommandHandler struct {
	carts    ports.CartRepository
	products ports.ProductRepository
}

func NewUpdateCartCommandHandler(carts ports.CartRepository, products ports.ProductRepository) *UpdateCartCommandHandler {
	return &UpdateCartCommandHandler{
		carts:    carts,
		products: products,
	}
}

// Handle applies one edit with a read, mutate, compare-and-swap loop.
func (h *UpdateCartCommandHandler) Handle(ctx context.Context, cmd UpdateCartCommand) (*domain.Cart, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var product *domain.Product
	if cmd.Operation == CartAdd {
		p, err := h.products.GetByID(ctx, cmd.ProductID)
		if errors.Is(err, ports.ErrNotFound) {
			return nil, domain.NewNotFoundError(domain.MsgInvalidProduct)
		}
		if err != nil {
			return nil, fmt.Errorf("get product: %w", err)
		}
		product = p
	}

	for attempt := 0; attempt < maxCartAttempts; attempt++ {
		cart, err := h.carts.Get(ctx, cmd.UserID)
		switch {
		case errors.Is(err, ports.ErrNotFound) && cmd.Operation == CartAdd:
			cart = domain.NewCart(cmd.UserID)
		case errors.Is(err, ports.ErrNotFound):
			return nil, domain.NewNotFoundError(domain.MsgCartNotFound)
		case err != nil:
			return nil, fmt.Errorf("get cart: %w", err)
		}

		if err := apply(cart, cmd, product); err != nil {
			return nil, err
		}

		err = h.carts.Save(ctx, cart)
		if errors.Is(err, ports.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("save cart: %w", err)
		}
		return cart, nil
	}

	return nil, domain.NewConflictError(domain.MsgCartBusy)
}

func apply(cart *domain.Cart, cmd UpdateCartCommand, product *domain.Product) error {
	switch cmd.Operation {
	case CartAdd:
		return cart.Add(*product, cmd.Quantity)
	case CartRemove:
		return cart.Remove(cmd.ProductID)
	case CartIncrease:
		return cart.Increase(cmd.ProductID, cmd.Quantity)
	case CartDecrease:
		return cart.Decrease(cmd.ProductID, cmd.Quantity)
	default:
		return domain.NewValidationError("Invalid cart operation")
	}
}
