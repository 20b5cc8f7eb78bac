package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the inventory view of a catalog product.
type Product struct {
	ID              string           `json:"id"`
	Name            string           `json:"product_name"`
	NormalPrice     decimal.Decimal  `json:"normal_price"`
	DiscountedPrice *decimal.Decimal `json:"discounted_price,omitempty"`
	Quantity        int              `json:"quantity"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// UnitPrice is the price a buyer pays right now: the discounted price when
// one is set and positive, otherwise the normal price.
func (p Product) UnitPrice() decimal.Decimal {
	if p.DiscountedPrice != nil && p.DiscountedPrice.IsPositive() {
		return *p.DiscountedPrice
	}
	return p.NormalPrice
}

// HasStock reports whether quantity units can be taken.
func (p Product) HasStock(quantity int) bool {
	return p.Quantity >= quantity
}
