package queries

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
)

type GetCartQuery struct {
	UserID string
}

// GetCartQueryHandler returns the caller's cart, creating an empty one on
// first access.
type GetCartQueryHandler struct {
	carts ports.CartRepository
}

func NewGetCartQueryHandler(carts ports.CartRepository) *GetCartQueryHandler {
	return &GetCartQueryHandler{carts: carts}
}

func (h *GetCartQueryHandler) Handle(ctx context.Context, query GetCartQuery) (*domain.Cart, error) {
	if strings.TrimSpace(query.UserID) == "" {
		return nil, domain.NewValidationError("user is required")
	}

	cart, err := h.carts.Get(ctx, query.UserID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, ports.ErrNotFound) {
		return nil, fmt.Errorf("get cart: %w", err)
	}

	cart = domain.NewCart(query.UserID)
	err = h.carts.Save(ctx, cart)
	if errors.Is(err, ports.ErrConflict) {
		// Created concurrently by another request.
		return h.carts.Get(ctx, query.UserID)
	}
	if err != nil {
		return nil, fmt.Errorf("create cart: %w", err)
	}
	return cart, nil
}
