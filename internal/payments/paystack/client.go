package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/dejobratic/storefront/internal/telemetry"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultBaseURL = "https://api.paystack.co"
	DefaultTimeout = 10 * time.Second

	maxResponseBytes = 1 << 20
)

// minorUnitsPerMajor converts naira (or any two-decimal currency) to kobo.
var minorUnitsPerMajor = decimal.NewFromInt(100)

// ErrRequestFailed is returned for non-2xx responses and for responses whose
// status flag is false.
var ErrRequestFailed = errors.New("paystack request failed")

type Config struct {
	BaseURL     string
	SecretKey   string
	CallbackURL string
	// Currency is sent on initialize when set; the account default applies otherwise.
	Currency string
	Timeout  time.Duration
}

// Client talks to the Paystack transaction API. It holds no state between
// calls.
type Client struct {
	baseURL     string
	secretKey   string
	callbackURL string
	currency    string
	http        *http.Client
	metrics     *Metrics
}

func NewClient(cfg Config, metrics *Metrics) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		baseURL:     baseURL,
		secretKey:   cfg.SecretKey,
		callbackURL: cfg.CallbackURL,
		currency:    cfg.Currency,
		http:        &http.Client{Timeout: timeout},
		metrics:     metrics,
	}
}

type envelope[T any] struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type initializeRequest struct {
	Email       string            `json:"email"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency,omitempty"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type initializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type verifyData struct {
	ID        int64  `json:"id"`
	Status    string `json:"status"`
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
}

// ToMinorUnits converts a major-unit amount to the integer minor units the
// API expects, rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(minorUnitsPerMajor).Round(0).IntPart()
}

// FromMinorUnits is the inverse of ToMinorUnits.
func FromMinorUnits(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}

// Initialize starts a transaction and returns the checkout redirect handle.
func (c *Client) Initialize(ctx context.Context, req ports.PaymentRequest) (*ports.PaymentAuthorization, error) {
	ctx, span := telemetry.StartSpan(ctx, "Paystack.Initialize")
	defer span.End()

	payload := initializeRequest{
		Email:       req.Email,
		Amount:      ToMinorUnits(req.Amount),
		Currency:    c.currency,
		CallbackURL: c.callbackURL,
		Metadata:    req.Metadata,
	}
	telemetry.AddSpanAttributes(span, attribute.Int64("payment.amount_minor", payload.Amount))

	var resp envelope[initializeData]
	if err := c.do(ctx, "initialize", http.MethodPost, "/transaction/initialize", payload, &resp); err != nil {
		telemetry.RecordSpanError(span, err)
		return nil, err
	}

	telemetry.AddSpanAttributes(span, attribute.String("payment.reference", resp.Data.Reference))
	telemetry.SetSpanSuccess(span)

	return &ports.PaymentAuthorization{
		AuthorizationURL: resp.Data.AuthorizationURL,
		AccessCode:       resp.Data.AccessCode,
		Reference:        resp.Data.Reference,
	}, nil
}

// Verify fetches the provider's verdict for reference.
func (c *Client) Verify(ctx context.Context, reference string) (*ports.PaymentVerification, error) {
	ctx, span := telemetry.StartSpan(ctx, "Paystack.Verify")
	defer span.End()

	telemetry.AddSpanAttributes(span, attribute.String("payment.reference", reference))

	var resp envelope[verifyData]
	path := "/transaction/verify/" + url.PathEscape(reference)
	if err := c.do(ctx, "verify", http.MethodGet, path, nil, &resp); err != nil {
		telemetry.RecordSpanError(span, err)
		return nil, err
	}

	telemetry.AddSpanAttributes(span, attribute.String("payment.status", resp.Data.Status))
	telemetry.SetSpanSuccess(span)

	var transactionID string
	if resp.Data.ID != 0 {
		transactionID = strconv.FormatInt(resp.Data.ID, 10)
	}

	return &ports.PaymentVerification{
		Status:        resp.Data.Status,
		TransactionID: transactionID,
		Reference:     resp.Data.Reference,
		Amount:        FromMinorUnits(resp.Data.Amount),
	}, nil
}

func (c *Client) do(ctx context.Context, operation, method, path string, payload any, out any) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.RecordRequest(ctx, operation, time.Since(start).Seconds(), err == nil)
	}()

	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", operation, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", operation, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("paystack %s: %w", operation, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read %s response: %w", operation, err)
	}

	var status envelope[json.RawMessage]
	_ = json.Unmarshal(raw, &status)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s returned %d: %s", ErrRequestFailed, operation, resp.StatusCode, messageOr(status.Message, http.StatusText(resp.StatusCode)))
	}
	if !status.Status {
		return fmt.Errorf("%w: %s: %s", ErrRequestFailed, operation, messageOr(status.Message, "unexpected response"))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func messageOr(message, fallback string) string {
	if message != "" {
		return message
	}
	return fallback
}
