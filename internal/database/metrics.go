package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Metrics struct {
	queryDuration metric.Float64Histogram
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.queryDuration, err = meter.Float64Histogram(
		"db_query_duration_seconds",
		metric.WithDescription("Repository call duration by operation"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create db_query_duration histogram: %w", err)
	}

	return m, nil
}

// RecordQuery records one repository call. Business misses such as a
// guarded update that matched no row count as errors too.
func (m *Metrics) RecordQuery(ctx context.Context, operation string, durationSeconds float64, success bool) {
	status := "ok"
	if !success {
		status = "error"
	}
	m.queryDuration.Record(ctx, durationSeconds, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	))
}

// ObservePool registers gauges that sample pool.Stat on every collection.
func ObservePool(meter metric.Meter, pool *pgxpool.Pool) error {
	acquired, err := meter.Int64ObservableGauge(
		"db_pool_acquired_connections",
		metric.WithDescription("Connections currently checked out of the pool"),
	)
	if err != nil {
		return fmt.Errorf("create db_pool_acquired_connections gauge: %w", err)
	}

	idle, err := meter.Int64ObservableGauge(
		"db_pool_idle_connections",
		metric.WithDescription("Idle connections held by the pool"),
	)
	if err != nil {
		return fmt.Errorf("create db_pool_idle_connections gauge: %w", err)
	}

	maxConns, err := meter.Int64ObservableGauge(
		"db_pool_max_connections",
		metric.WithDescription("Configured pool size"),
	)
	if err != nil {
		return fmt.Errorf("create db_pool_max_connections gauge: %w", err)
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stat := pool.Stat()
		o.ObserveInt64(acquired, int64(stat.AcquiredConns()))
		o.ObserveInt64(idle, int64(stat.IdleConns()))
		o.ObserveInt64(maxConns, int64(stat.MaxConns()))
		return nil
	}, acquired, idle, maxConns)
	if err != nil {
		return fmt.Errorf("register pool callback: %w", err)
	}

	return nil
}
