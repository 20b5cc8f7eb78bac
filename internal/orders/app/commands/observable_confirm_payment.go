package commands

import (
	"context"
	"log/slog"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/metrics"
	"github.com/dejobratic/storefront/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

type ObservableConfirmPaymentHandler struct {
	handler ConfirmPaymentHandler
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewObservableConfirmPaymentHandler(handler ConfirmPaymentHandler, logger *slog.Logger, metrics *metrics.Metrics) *ObservableConfirmPaymentHandler {
	return &ObservableConfirmPaymentHandler{
		handler: handler,
		logger:  logger,
		metrics: metrics,
	}
}

func (o *ObservableConfirmPaymentHandler) Handle(ctx context.Context, cmd ConfirmPaymentCommand) (*ConfirmPaymentResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "ConfirmPaymentCommand.Handle")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", cmd.OrderID),
		attribute.String("payment.reference", cmd.Reference),
	)

	result, err := o.handler.Handle(ctx, cmd)

	if result != nil {
		o.metrics.RecordSettlement(ctx, string(result.Outcome))
		telemetry.AddSpanAttributes(span,
			attribute.String("settlement.outcome", string(result.Outcome)),
			attribute.String("order.id", result.Order.ID),
			attribute.String("order.status", string(result.Order.Status)),
		)
		if result.Outcome != OutcomeAlreadySettled {
			o.metrics.RecordTransition(ctx, string(result.Order.Status))
		}
	}

	if err != nil {
		telemetry.RecordSpanError(span, err)
		o.logger.WarnContext(ctx, "payment confirmation failed",
			"error", err,
			"kind", domain.KindOf(err).String(),
			"order_id", cmd.OrderID,
			"reference", cmd.Reference,
		)
		return result, err
	}

	o.logger.InfoContext(ctx, "payment confirmed",
		"order_id", result.Order.ID,
		"outcome", result.Outcome,
		"status", result.Order.Status,
	)

	telemetry.SetSpanSuccess(span)
	return result, nil
}
