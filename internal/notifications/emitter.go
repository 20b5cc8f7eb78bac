package notifications

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/dejobratic/storefront/internal/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const defaultTimeout = 2 * time.Second

// Emitter persists notifications on a best-effort basis. Failures are logged
// and never returned, so an order transition is never aborted by the
// notification sink.
type Emitter struct {
	sink    ports.NotificationRepository
	users   ports.UserDirectory
	riders  ports.RiderDirectory
	logger  *slog.Logger
	timeout time.Duration
}

func NewEmitter(
	sink ports.NotificationRepository,
	users ports.UserDirectory,
	riders ports.RiderDirectory,
	logger *slog.Logger,
) *Emitter {
	return &Emitter{
		sink:    sink,
		users:   users,
		riders:  riders,
		logger:  logger,
		timeout: defaultTimeout,
	}
}

// Notify stores the notification after confirming that a user or rider
// recipient exists. It detaches from the caller's cancellation so a client
// hanging up does not drop the message.
func (e *Emitter) Notify(ctx context.Context, n domain.Notification) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()

	ctx, span := telemetry.StartSpan(ctx, "Notifier.Notify")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("notification.target", string(n.Target)),
		attribute.String("notification.type", n.Type),
	)

	if err := e.checkRecipient(ctx, n); err != nil {
		telemetry.RecordSpanError(span, err)
		e.logger.WarnContext(ctx, "notification recipient not found",
			"target", n.Target,
			"recipient_id", n.RecipientID,
			"error", err,
		)
		return
	}

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	if err := e.sink.Save(ctx, n); err != nil {
		telemetry.RecordSpanError(span, err)
		e.logger.ErrorContext(ctx, "failed to save notification",
			"target", n.Target,
			"recipient_id", n.RecipientID,
			"error", err,
		)
		return
	}

	telemetry.SetSpanSuccess(span)
}

var errMissingRecipient = errors.New("recipient id is required")

func (e *Emitter) checkRecipient(ctx context.Context, n domain.Notification) error {
	switch n.Target {
	case domain.TargetUser:
		if n.RecipientID == "" {
			return errMissingRecipient
		}
		_, err := e.users.GetUser(ctx, n.RecipientID)
		return err
	case domain.TargetRider:
		if n.RecipientID == "" {
			return errMissingRecipient
		}
		_, err := e.riders.GetRider(ctx, n.RecipientID)
		return err
	default:
		return nil
	}
}
