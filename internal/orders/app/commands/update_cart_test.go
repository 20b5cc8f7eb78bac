package commands_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/dejobratic/storefront/internal/orders/adapters/memory"
	"github.com/dejobratic/storefront/internal/orders/app/commands"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// contendedCarts loses the first n saves to a simulated concurrent writer.
type contendedCarts struct {
	*memory.CartRepository
	conflicts atomic.Int32
}

func (c *contendedCarts) Save(ctx context.Context, cart *domain.Cart) error {
	if c.conflicts.Add(-1) >= 0 {
		return ports.ErrConflict
	}
	return c.CartRepository.Save(ctx, cart)
}

func TestUpdateCart(t *testing.T) {
	ctx := context.Background()

	t.Run("add creates the cart and merges repeated adds", func(t *testing.T) {
		f := newFixture(t)
		handler := commands.NewUpdateCartCommandHandler(f.carts, f.products)

		_, err := handler.Handle(ctx, commands.UpdateCartCommand{UserID: testUser, ProductID: "p1", Quantity: 2, Operation: commands.CartAdd})
		require.NoError(t, err)
		cart, err := handler.Handle(ctx, commands.UpdateCartCommand{UserID: testUser, ProductID: "p1", Quantity: 1, Operation: commands.CartAdd})
		require.NoError(t, err)

		require.Len(t, cart.Items, 1)
		assert.Equal(t, 3, cart.Items[0].Quantity)
		assert.True(t, cart.Total.Equal(decimal.NewFromInt(150)))
		assert.Equal(t, int64(2), cart.Version)
	})

	t.Run("increase, decrease and remove keep the total exact", func(t *testing.T) {
		f := newFixture(t)
		handler := commands.NewUpdateCartCommandHandler(f.carts, f.products)
		f.fillCart(t, cartLine{productID: "p1", quantity: 1}, cartLine{productID: "p2", quantity: 1})

		cart, err := handler.Handle(ctx, commands.UpdateCartCommand{UserID: testUser, ProductID: "p2", Quantity: 3, Operation: commands.CartIncrease})
		require.NoError(t, err)
		assert.True(t, cart.Total.Equal(decimal.NewFromInt(100)), "got %s", cart.Total)

		cart, err = handler.Handle(ctx, commands.UpdateCartCommand{UserID: testUser, ProductID: "p2", Quantity: 4, Operation: commands.CartDecrease})
		require.NoError(t, err)
		assert.Len(t, cart.Items, 1)
		assert.True(t, cart.Total.Equal(decimal.NewFromInt(50)), "got %s", cart.Total)

		cart, err = handler.Handle(ctx, commands.UpdateCartCommand{UserID: testUser, ProductID: "p1", Operation: commands.CartRemove})
		require.NoError(t, err)
		assert.True(t, cart.IsEmpty())
		assert.True(t, cart.Total.IsZero())
	})

	t.Run("rejects unknown products and missing carts", func(t *testing.T) {
		f := newFixture(t)
		handler := commands.NewUpdateCartCommandHandler(f.carts, f.products)

		_, err := handler.Handle(ctx, commands.UpdateCartCommand{UserID: testUser, ProductID: "ghost", Quantity: 1, Operation: commands.CartAdd})
		assert.Equal(t, domain.MsgInvalidProduct, domain.MessageOf(err))

		_, err = handler.Handle(ctx, commands.UpdateCartCommand{UserID: testUser, ProductID: "p1", Operation: commands.CartRemove})
		assert.Equal(t, domain.MsgCartNotFound, domain.MessageOf(err))

		f.fillCart(t, cartLine{productID: "p1", quantity: 1})
		_, err = handler.Handle(ctx, commands.UpdateCartCommand{UserID: testUser, ProductID: "p2", Quantity: 1, Operation: commands.CartIncrease})
		assert.Equal(t, domain.MsgNotInCart, domain.MessageOf(err))
	})

	t.Run("validates quantity and operation", func(t *testing.T) {
		f := newFixture(t)
		handler := commands.NewUpdateCartCommandHandler(f.carts, f.products)

		_, err := handler.Handle(ctx, commands.UpdateCartCommand{UserID: testUser, ProductID: "p1", Quantity: 0, Operation: commands.CartAdd})
		assert.Equal(t, domain.MsgInvalidQuantity, domain.MessageOf(err))

		_, err = handler.Handle(ctx, commands.UpdateCartCommand{UserID: testUser, ProductID: "p1", Quantity: 1, Operation: "swap"})
		assert.Equal(t, domain.KindValidation, domain.KindOf(err))
	})

	t.Run("retries lost compare-and-swap races", func(t *testing.T) {
		f := newFixture(t)
		carts := &contendedCarts{CartRepository: f.carts}
		carts.conflicts.Store(2)
		handler := commands.NewUpdateCartCommandHandler(carts, f.products)

		cart, err := handler.Handle(ctx, commands.UpdateCartCommand{UserID: testUser, ProductID: "p1", Quantity: 1, Operation: commands.CartAdd})
		require.NoError(t, err)
		assert.Len(t, cart.Items, 1)
	})

	t.Run("gives up after repeated conflicts", func(t *testing.T) {
		f := newFixture(t)
		carts := &contendedCarts{CartRepository: f.carts}
		carts.conflicts.Store(10)
		handler := commands.NewUpdateCartCommandHandler(carts, f.products)

		_, err := handler.Handle(ctx, commands.UpdateCartCommand{UserID: testUser, ProductID: "p1", Quantity: 1, Operation: commands.CartAdd})
		assert.Equal(t, domain.KindConflict, domain.KindOf(err))
		assert.Equal(t, domain.MsgCartBusy, domain.MessageOf(err))
	})
}
