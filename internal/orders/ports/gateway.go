package ports

import (
	"context"

	"github.com/shopspring/decimal"
)

// PaymentRequest is the input to a payment initialization. Amount is in
// major currency units; the adapter converts it.
type PaymentRequest struct {
	Email    string
	Amount   decimal.Decimal
	Metadata map[string]string
}

// PaymentAuthorization is the redirect handle returned by the provider.
type PaymentAuthorization struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// PaymentVerification is the provider's verdict on a transaction.
type PaymentVerification struct {
	Status        string
	TransactionID string
	Reference     string
	Amount        decimal.Decimal
}

// Succeeded reports whether the provider considers the charge successful.
func (v PaymentVerification) Succeeded() bool {
	return v.Status == "success"
}

// PaymentGateway wraps the third-party payment provider.
type PaymentGateway interface {
	Initialize(ctx context.Context, req PaymentRequest) (*PaymentAuthorization, error)
	Verify(ctx context.Context, reference string) (*PaymentVerification, error)
}
