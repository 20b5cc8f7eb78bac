package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Metrics struct {
	checkoutsTotal   metric.Int64Counter
	checkoutDuration metric.Float64Histogram
	settlementsTotal metric.Int64Counter
	orderTransitions metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.checkoutsTotal, err = meter.Int64Counter(
		"checkouts_total",
		metric.WithDescription("Total number of checkout attempts"),
		metric.WithUnit("{checkout}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create checkouts_total counter: %w", err)
	}

	m.checkoutDuration, err = meter.Float64Histogram(
		"checkout_duration_seconds",
		metric.WithDescription("Duration of checkout operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create checkout_duration histogram: %w", err)
	}

	m.settlementsTotal, err = meter.Int64Counter(
		"payment_settlements_total",
		metric.WithDescription("Payment confirmations by outcome"),
		metric.WithUnit("{settlement}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create payment_settlements_total counter: %w", err)
	}

	m.orderTransitions, err = meter.Int64Counter(
		"order_transitions_total",
		metric.WithDescription("Order status transitions by target status"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create order_transitions_total counter: %w", err)
	}

	return m, nil
}

func (m *Metrics) RecordCheckout(ctx context.Context, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.checkoutsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
	))
}

func (m *Metrics) RecordCheckoutDuration(ctx context.Context, durationSeconds float64) {
	m.checkoutDuration.Record(ctx, durationSeconds)
}

func (m *Metrics) RecordSettlement(ctx context.Context, outcome string) {
	m.settlementsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) RecordTransition(ctx context.Context, to string) {
	m.orderTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("to", to),
	))
}
