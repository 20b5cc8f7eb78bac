package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartItem is one (product, quantity) pair. UnitPrice is the price captured
// the last time the product was added, so the cart total stays exact.
type CartItem struct {
	ProductID string          `json:"product"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (i CartItem) subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart is the per-user mutable basket. Version guards concurrent writers.
type Cart struct {
	UserID    string          `json:"user"`
	Items     []CartItem      `json:"cartItems"`
	Total     decimal.Decimal `json:"total"`
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewCart returns an empty, never-persisted cart for userID.
func NewCart(userID string) *Cart {
	return &Cart{
		UserID: userID,
		Items:  []CartItem{},
		Total:  decimal.Zero,
	}
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Item returns the line for productID, if present.
func (c *Cart) Item(productID string) (CartItem, bool) {
	if i := c.indexOf(productID); i >= 0 {
		return c.Items[i], true
	}
	return CartItem{}, false
}

// Add puts quantity units of product in the cart, merging with an existing
// line and refreshing its unit price.
func (c *Cart) Add(product Product, quantity int) error {
	if quantity <= 0 {
		return NewValidationError(MsgInvalidQuantity)
	}

	price := product.UnitPrice()
	if i := c.indexOf(product.ID); i >= 0 {
		old := c.Items[i]
		updated := CartItem{ProductID: product.ID, Quantity: old.Quantity + quantity, UnitPrice: price}
		c.Total = c.Total.Sub(old.subtotal()).Add(updated.subtotal())
		c.Items[i] = updated
		return nil
	}

	item := CartItem{ProductID: product.ID, Quantity: quantity, UnitPrice: price}
	c.Items = append(c.Items, item)
	c.Total = c.Total.Add(item.subtotal())
	return nil
}

// Remove drops the line for productID entirely.
func (c *Cart) Remove(productID string) error {
	i := c.indexOf(productID)
	if i < 0 {
		return NewNotFoundError(MsgNotInCart)
	}
	c.Total = c.Total.Sub(c.Items[i].subtotal())
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	c.normalizeTotal()
	return nil
}

// Increase adds quantity units to an existing line at its captured price.
func (c *Cart) Increase(productID string, quantity int) error {
	if quantity <= 0 {
		return NewValidationError(MsgInvalidQuantity)
	}
	i := c.indexOf(productID)
	if i < 0 {
		return NewNotFoundError(MsgNotInCart)
	}
	c.Items[i].Quantity += quantity
	c.Total = c.Total.Add(c.Items[i].UnitPrice.Mul(decimal.NewFromInt(int64(quantity))))
	return nil
}

// Decrease removes up to quantity units from a line; the line is dropped when
// it reaches zero.
func (c *Cart) Decrease(productID string, quantity int) error {
	if quantity <= 0 {
		return NewValidationError(MsgInvalidQuantity)
	}
	i := c.indexOf(productID)
	if i < 0 {
		return NewNotFoundError(MsgNotInCart)
	}
	if quantity >= c.Items[i].Quantity {
		return c.Remove(productID)
	}
	c.Items[i].Quantity -= quantity
	c.Total = c.Total.Sub(c.Items[i].UnitPrice.Mul(decimal.NewFromInt(int64(quantity))))
	c.normalizeTotal()
	return nil
}

// Clear empties the cart and zeroes the total. The cart itself survives.
func (c *Cart) Clear() {
	c.Items = []CartItem{}
	c.Total = decimal.Zero
}

// ComputeTotal recomputes the total from the lines.
func (c *Cart) ComputeTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.subtotal())
	}
	return total
}

// normalizeTotal keeps an emptied cart at exactly zero.
func (c *Cart) normalizeTotal() {
	if len(c.Items) == 0 || c.Total.IsNegative() {
		c.Total = c.ComputeTotal()
	}
}

func (c *Cart) indexOf(productID string) int {
	for i, item := range c.Items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}
