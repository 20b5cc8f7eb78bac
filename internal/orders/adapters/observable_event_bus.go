package adapters

import (
	"context"
	"time"

	"github.com/dejobratic/storefront/internal/events"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/dejobratic/storefront/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

type ObservableEventBus struct {
	bus     ports.EventBus
	metrics *events.Metrics
}

func NewObservableEventBus(bus ports.EventBus, metrics *events.Metrics) *ObservableEventBus {
	return &ObservableEventBus{
		bus:     bus,
		metrics: metrics,
	}
}

func (e *ObservableEventBus) observe(ctx context.Context, topic, orderID string, extra []attribute.KeyValue, publish func(ctx context.Context) error) error {
	ctx, span := telemetry.StartSpan(ctx, "EventBus.Publish "+topic)
	defer span.End()

	telemetry.AddSpanAttributes(span, append([]attribute.KeyValue{
		attribute.String("order.id", orderID),
		attribute.String("event.type", topic),
		attribute.String("topic", topic),
	}, extra...)...)

	start := time.Now()
	err := publish(ctx)
	duration := time.Since(start).Seconds()

	e.metrics.RecordPublish(ctx, topic, duration, err == nil)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return err
	}

	telemetry.SetSpanSuccess(span)
	return nil
}

func (e *ObservableEventBus) PublishOrderCreated(ctx context.Context, orderID string) error {
	return e.observe(ctx, events.TopicOrderCreated, orderID, nil, func(ctx context.Context) error {
		return e.bus.PublishOrderCreated(ctx, orderID)
	})
}

func (e *ObservableEventBus) PublishOrderPaid(ctx context.Context, orderID string) error {
	return e.observe(ctx, events.TopicOrderPaid, orderID, nil, func(ctx context.Context) error {
		return e.bus.PublishOrderPaid(ctx, orderID)
	})
}

func (e *ObservableEventBus) PublishOrderFailed(ctx context.Context, orderID string, reason string) error {
	extra := []attribute.KeyValue{attribute.String("failure.reason", reason)}
	return e.observe(ctx, events.TopicOrderFailed, orderID, extra, func(ctx context.Context) error {
		return e.bus.PublishOrderFailed(ctx, orderID, reason)
	})
}

func (e *ObservableEventBus) PublishOrderStatusChanged(ctx context.Context, orderID string, status domain.OrderStatus) error {
	extra := []attribute.KeyValue{attribute.String("order.status", string(status))}
	return e.observe(ctx, events.TopicOrderStatusChanged, orderID, extra, func(ctx context.Context) error {
		return e.bus.PublishOrderStatusChanged(ctx, orderID, status)
	})
}
