package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dejobratic/storefront/internal/events"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/google/uuid"
	"github.com/streadway/amqp"
)

// Channel is the subset of *amqp.Channel the publisher needs.
type Channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends order events to a durable topic exchange, routed by event type.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  Channel
	exchange string
	logger   *slog.Logger
	now      func() time.Time
}

// Dial connects to the broker and declares the exchange.
func Dial(amqpURL, exchange string, logger *slog.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchange,
		amqp.ExchangeTopic,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	p := NewPublisher(channel, exchange, logger)
	p.conn = conn
	return p, nil
}

// NewPublisher wraps an already-open channel.
func NewPublisher(channel Channel, exchange string, logger *slog.Logger) *Publisher {
	return &Publisher{
		channel:  channel,
		exchange: exchange,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (p *Publisher) PublishOrderCreated(ctx context.Context, orderID string) error {
	return p.publish(ctx, events.OrderEvent{Type: events.TopicOrderCreated, OrderID: orderID})
}

func (p *Publisher) PublishOrderPaid(ctx context.Context, orderID string) error {
	return p.publish(ctx, events.OrderEvent{Type: events.TopicOrderPaid, OrderID: orderID})
}

func (p *Publisher) PublishOrderFailed(ctx context.Context, orderID string, reason string) error {
	return p.publish(ctx, events.OrderEvent{Type: events.TopicOrderFailed, OrderID: orderID, Reason: reason})
}

func (p *Publisher) PublishOrderStatusChanged(ctx context.Context, orderID string, status domain.OrderStatus) error {
	return p.publish(ctx, events.OrderEvent{Type: events.TopicOrderStatusChanged, OrderID: orderID, Status: status})
}

func (p *Publisher) publish(ctx context.Context, event events.OrderEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	event.OccurredAt = p.now()
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Type, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.Publish(
		p.exchange,
		event.Type,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    event.OccurredAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s event: %w", event.Type, err)
	}

	p.logger.DebugContext(ctx, "published order event",
		"exchange", p.exchange,
		"routing_key", event.Type,
		"order_id", event.OrderID,
	)
	return nil
}

// Close releases the channel and connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			firstErr = err
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
