package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderLine is the immutable record of one purchased product, priced at the
// moment payment was confirmed.
type OrderLine struct {
	ID           string          `json:"id"`
	OrderID      string          `json:"order_id"`
	ProductID    string          `json:"product_id"`
	Quantity     int             `json:"quantity"`
	ProductPrice decimal.Decimal `json:"product_price"`
	CreatedAt    time.Time       `json:"created_at"`
}

// NewOrderLine snapshots product's current unit price for quantity units.
func NewOrderLine(id, orderID string, product Product, quantity int, now time.Time) OrderLine {
	return OrderLine{
		ID:           id,
		OrderID:      orderID,
		ProductID:    product.ID,
		Quantity:     quantity,
		ProductPrice: product.UnitPrice(),
		CreatedAt:    now,
	}
}

// Subtotal is quantity times the snapshotted price.
func (l OrderLine) Subtotal() decimal.Decimal {
	return l.ProductPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}
