package commands

import (
	"context"
	"log/slog"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/metrics"
	"github.com/dejobratic/storefront/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

type ObservableCheckoutHandler struct {
	handler CheckoutHandler
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewObservableCheckoutHandler(handler CheckoutHandler, logger *slog.Logger, metrics *metrics.Metrics) *ObservableCheckoutHandler {
	return &ObservableCheckoutHandler{
		handler: handler,
		logger:  logger,
		metrics: metrics,
	}
}

func (o *ObservableCheckoutHandler) Handle(ctx context.Context, cmd CheckoutCommand) (*CheckoutResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "CheckoutCommand.Handle")
	defer span.End()

	start := time.Now()
	var success bool
	defer func() {
		duration := time.Since(start).Seconds()
		o.metrics.RecordCheckoutDuration(ctx, duration)
		o.metrics.RecordCheckout(ctx, success)
	}()

	telemetry.AddSpanAttributes(span,
		attribute.String("user.id", cmd.UserID),
		attribute.String("address.id", cmd.AddressID),
	)

	o.logger.InfoContext(ctx, "starting checkout",
		"user_id", cmd.UserID,
		"address_id", cmd.AddressID,
	)

	result, err := o.handler.Handle(ctx, cmd)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		level := slog.LevelWarn
		if domain.KindOf(err) == domain.KindInternal || domain.KindOf(err) == domain.KindGateway {
			level = slog.LevelError
		}
		o.logger.Log(ctx, level, "checkout failed",
			"error", err,
			"kind", domain.KindOf(err).String(),
			"user_id", cmd.UserID,
		)
		return nil, err
	}

	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", result.OrderID),
		attribute.String("payment.reference", result.Reference),
	)

	o.logger.InfoContext(ctx, "checkout initialized",
		"order_id", result.OrderID,
		"reference", result.Reference,
		"user_id", cmd.UserID,
	)

	success = true
	telemetry.SetSpanSuccess(span)

	return result, nil
}
