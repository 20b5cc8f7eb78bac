package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dejobratic/storefront/internal/orders/ports"
)

// RecoveryReport summarises a settlement recovery pass.
type RecoveryReport struct {
	Completed int
	Failed    int
	Errors    int
}

// SettlementRecovery resumes settlements whose materialization marker was
// left in_progress by a crash. Orders whose lines exist are finalized;
// the rest are marked payment_failed for manual review.
type SettlementRecovery struct {
	orders ports.OrderRepository
	lines  ports.OrderLineRepository
	events ports.EventBus
	logger *slog.Logger
}

func NewSettlementRecovery(
	orders ports.OrderRepository,
	lines ports.OrderLineRepository,
	events ports.EventBus,
	logger *slog.Logger,
) *SettlementRecovery {
	return &SettlementRecovery{
		orders: orders,
		lines:  lines,
		events: events,
		logger: logger,
	}
}

// Run recovers orders stalled for longer than threshold.
func (r *SettlementRecovery) Run(ctx context.Context, threshold time.Duration) (RecoveryReport, error) {
	var report RecoveryReport

	stalled, err := r.orders.ListStalled(ctx, time.Now().UTC().Add(-threshold))
	if err != nil {
		return report, fmt.Errorf("list stalled settlements: %w", err)
	}

	for _, order := range stalled {
		lines, err := r.lines.ListByOrder(ctx, order.ID)
		if err != nil {
			report.Errors++
			r.logger.ErrorContext(ctx, "failed to load order lines for recovery", "order_id", order.ID, "error", err)
			continue
		}

		if len(lines) == 0 {
			if _, err := r.orders.FailSettlement(ctx, order.ID); err != nil {
				report.Errors++
				r.logger.ErrorContext(ctx, "failed to fail stalled settlement", "order_id", order.ID, "error", err)
				continue
			}
			report.Failed++
			r.logger.WarnContext(ctx, "stalled settlement had no order lines; marked payment_failed, stock needs review",
				"order_id", order.ID,
				"user_id", order.UserID,
			)
			if err := r.events.PublishOrderFailed(ctx, order.ID, "settlement interrupted"); err != nil {
				r.logger.WarnContext(ctx, "failed to publish order failed event", "order_id", order.ID, "error", err)
			}
			continue
		}

		lineIDs := make([]string, len(lines))
		for i, line := range lines {
			lineIDs[i] = line.ID
		}
		if _, err := r.orders.CompleteSettlement(ctx, order.ID, lineIDs); err != nil {
			report.Errors++
			r.logger.ErrorContext(ctx, "failed to complete stalled settlement", "order_id", order.ID, "error", err)
			continue
		}
		report.Completed++
		r.logger.InfoContext(ctx, "recovered stalled settlement", "order_id", order.ID, "lines", len(lineIDs))
		if err := r.events.PublishOrderPaid(ctx, order.ID); err != nil {
			r.logger.WarnContext(ctx, "failed to publish order paid event", "order_id", order.ID, "error", err)
		}
	}

	return report, nil
}
