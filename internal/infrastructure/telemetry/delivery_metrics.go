package telemetry

import (
	"context"
	"time"

	"github.com/pharmaerp/backend/internal/domain/shared"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DeliveryMetrics records cascade task and reconciliation metrics
type DeliveryMetrics struct {
	tasks        metric.Int64Counter
	taskDuration metric.Float64Histogram
	sweeps       metric.Int64Counter
	mismatches   metric.Int64Counter
	repairs      metric.Int64Counter
}

// NewDeliveryMetrics creates the instruments on meter
func NewDeliveryMetrics(meter metric.Meter) (*DeliveryMetrics, error) {
	tasks, err := meter.Int64Counter("delivery.cascade.tasks",
		metric.WithDescription("Cascade tasks processed, by event type and outcome"),
		metric.WithUnit("{task}"))
	if err != nil {
		return nil, err
	}
	taskDuration, err := meter.Float64Histogram("delivery.cascade.duration",
		metric.WithDescription("Cascade task processing time"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000))
	if err != nil {
		return nil, err
	}
	sweeps, err := meter.Int64Counter("delivery.reconcile.sweeps",
		metric.WithDescription("Reconciliation sweeps run"),
		metric.WithUnit("{sweep}"))
	if err != nil {
		return nil, err
	}
	mismatches, err := meter.Int64Counter("delivery.reconcile.mismatches",
		metric.WithDescription("Sheets found with mismatched short/return totals"),
		metric.WithUnit("{sheet}"))
	if err != nil {
		return nil, err
	}
	repairs, err := meter.Int64Counter("delivery.reconcile.repairs",
		metric.WithDescription("Sheets repaired by a sweep, by outcome"),
		metric.WithUnit("{sheet}"))
	if err != nil {
		return nil, err
	}

	return &DeliveryMetrics{
		tasks:        tasks,
		taskDuration: taskDuration,
		sweeps:       sweeps,
		mismatches:   mismatches,
		repairs:      repairs,
	}, nil
}

// ObserveTask records one processed cascade task
func (m *DeliveryMetrics) ObserveTask(ctx context.Context, eventType string, status shared.OutboxStatus, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("status", string(status)),
	)
	m.tasks.Add(ctx, 1, attrs)
	m.taskDuration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
}

// ObserveSweep records the outcome of one reconciliation sweep
func (m *DeliveryMetrics) ObserveSweep(ctx context.Context, mismatched, repaired, failed int) {
	m.sweeps.Add(ctx, 1)
	m.mismatches.Add(ctx, int64(mismatched))
	m.repairs.Add(ctx, int64(repaired), metric.WithAttributes(attribute.String("outcome", "repaired")))
	m.repairs.Add(ctx, int64(failed), metric.WithAttributes(attribute.String("outcome", "failed")))
}
