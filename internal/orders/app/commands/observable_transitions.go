package commands

import (
	"context"
	"log/slog"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/metrics"
	"github.com/dejobratic/storefront/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// observeTransition wraps a status-changing command with a span, a log line
// and the transition counter.
func observeTransition(
	ctx context.Context,
	logger *slog.Logger,
	m *metrics.Metrics,
	spanName string,
	attrs []attribute.KeyValue,
	run func(ctx context.Context) (*domain.Order, error),
) (*domain.Order, error) {
	ctx, span := telemetry.StartSpan(ctx, spanName)
	defer span.End()

	telemetry.AddSpanAttributes(span, attrs...)

	order, err := run(ctx)
	if err != nil {
		telemetry.RecordSpanError(span, err)
		logger.WarnContext(ctx, "order transition rejected",
			"operation", spanName,
			"error", err,
			"kind", domain.KindOf(err).String(),
		)
		return nil, err
	}

	m.RecordTransition(ctx, string(order.Status))
	telemetry.AddSpanAttributes(span, attribute.String("order.status", string(order.Status)))
	logger.InfoContext(ctx, "order transitioned",
		"operation", spanName,
		"order_id", order.ID,
		"status", order.Status,
	)
	telemetry.SetSpanSuccess(span)
	return order, nil
}

type ObservableUpdateStatusHandler struct {
	handler UpdateStatusHandler
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewObservableUpdateStatusHandler(handler UpdateStatusHandler, logger *slog.Logger, metrics *metrics.Metrics) *ObservableUpdateStatusHandler {
	return &ObservableUpdateStatusHandler{handler: handler, logger: logger, metrics: metrics}
}

func (o *ObservableUpdateStatusHandler) Handle(ctx context.Context, cmd UpdateStatusCommand) (*domain.Order, error) {
	return observeTransition(ctx, o.logger, o.metrics, "UpdateStatusCommand.Handle",
		[]attribute.KeyValue{
			attribute.String("order.id", cmd.OrderID),
			attribute.String("order.requested_status", cmd.Status),
		},
		func(ctx context.Context) (*domain.Order, error) { return o.handler.Handle(ctx, cmd) },
	)
}

type ObservableRiderActionHandler struct {
	handler RiderActionHandler
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewObservableRiderActionHandler(handler RiderActionHandler, logger *slog.Logger, metrics *metrics.Metrics) *ObservableRiderActionHandler {
	return &ObservableRiderActionHandler{handler: handler, logger: logger, metrics: metrics}
}

func (o *ObservableRiderActionHandler) Handle(ctx context.Context, cmd RiderActionCommand) (*domain.Order, error) {
	return observeTransition(ctx, o.logger, o.metrics, "RiderActionCommand.Handle",
		[]attribute.KeyValue{
			attribute.String("order.id", cmd.OrderID),
			attribute.String("rider.id", cmd.RiderID),
			attribute.String("rider.action", string(cmd.Action)),
		},
		func(ctx context.Context) (*domain.Order, error) { return o.handler.Handle(ctx, cmd) },
	)
}

type ObservableAssignRiderHandler struct {
	handler AssignRiderHandler
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewObservableAssignRiderHandler(handler AssignRiderHandler, logger *slog.Logger, metrics *metrics.Metrics) *ObservableAssignRiderHandler {
	return &ObservableAssignRiderHandler{handler: handler, logger: logger, metrics: metrics}
}

func (o *ObservableAssignRiderHandler) Handle(ctx context.Context, cmd AssignRiderCommand) (*AssignRiderResult, error) {
	var result *AssignRiderResult
	_, err := observeTransition(ctx, o.logger, o.metrics, "AssignRiderCommand.Handle",
		[]attribute.KeyValue{
			attribute.String("order.id", cmd.OrderID),
			attribute.String("rider.id", cmd.RiderID),
		},
		func(ctx context.Context) (*domain.Order, error) {
			r, err := o.handler.Handle(ctx, cmd)
			if err != nil {
				return nil, err
			}
			result = r
			return r.Order, nil
		},
	)
	if err != nil {
		return nil, err
	}
	return result, nil
}
