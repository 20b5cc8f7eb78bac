package metrics

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	metrics, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() failed: %v", err)
	}
	return metrics, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Failed to collect metrics: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func TestInitializeMetrics(t *testing.T) {
	t.Run("initializes all metric instruments successfully", func(t *testing.T) {
		metrics, _ := newTestMetrics(t)

		if metrics.checkoutsTotal == nil {
			t.Error("checkoutsTotal is nil")
		}
		if metrics.checkoutDuration == nil {
			t.Error("checkoutDuration is nil")
		}
		if metrics.settlementsTotal == nil {
			t.Error("settlementsTotal is nil")
		}
		if metrics.orderTransitions == nil {
			t.Error("orderTransitions is nil")
		}
	})
}

func TestRecordCheckout(t *testing.T) {
	t.Run("records checkout count by status", func(t *testing.T) {
		metrics, reader := newTestMetrics(t)
		ctx := context.Background()

		metrics.RecordCheckout(ctx, true)
		metrics.RecordCheckout(ctx, false)
		metrics.RecordCheckoutDuration(ctx, 0.25)

		rm := collect(t, reader)

		m, found := findMetric(rm, "checkouts_total")
		if !found {
			t.Fatal("checkouts_total metric not found")
		}
		sum, ok := m.Data.(metricdata.Sum[int64])
		if !ok {
			t.Fatal("Expected Sum[int64] data type")
		}
		if len(sum.DataPoints) != 2 {
			t.Errorf("Expected 2 data points, got %d", len(sum.DataPoints))
		}

		m, found = findMetric(rm, "checkout_duration_seconds")
		if !found {
			t.Fatal("checkout_duration_seconds metric not found")
		}
		histogram, ok := m.Data.(metricdata.Histogram[float64])
		if !ok {
			t.Fatal("Expected Histogram[float64] data type")
		}
		if histogram.DataPoints[0].Count != 1 {
			t.Errorf("Expected 1 observation, got %d", histogram.DataPoints[0].Count)
		}
	})
}

func TestRecordSettlement(t *testing.T) {
	t.Run("records one data point per outcome", func(t *testing.T) {
		metrics, reader := newTestMetrics(t)
		ctx := context.Background()

		metrics.RecordSettlement(ctx, "settled")
		metrics.RecordSettlement(ctx, "already_settled")
		metrics.RecordSettlement(ctx, "already_settled")
		metrics.RecordSettlement(ctx, "declined")

		m, found := findMetric(collect(t, reader), "payment_settlements_total")
		if !found {
			t.Fatal("payment_settlements_total metric not found")
		}
		sum := m.Data.(metricdata.Sum[int64])
		if len(sum.DataPoints) != 3 {
			t.Errorf("Expected 3 data points, got %d", len(sum.DataPoints))
		}

		var total int64
		for _, dp := range sum.DataPoints {
			total += dp.Value
		}
		if total != 4 {
			t.Errorf("Expected total 4, got %d", total)
		}
	})
}

func TestRecordTransition(t *testing.T) {
	metrics, reader := newTestMetrics(t)

	metrics.RecordTransition(context.Background(), "shipped")

	if _, found := findMetric(collect(t, reader), "order_transitions_total"); !found {
		t.Error("order_transitions_total metric not found")
	}
}
