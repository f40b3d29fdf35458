package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/archon-research/event-store/internal/ports/outbound"
)

// Compile-time check that PersisterMetrics implements outbound.PersisterMetricsRecorder
var _ outbound.PersisterMetricsRecorder = (*PersisterMetrics)(nil)

// PersisterMetrics records event persister metrics with OpenTelemetry.
type PersisterMetrics struct {
	batchLatency    metric.Float64Histogram
	eventsPersisted metric.Int64Counter
}

// NewPersisterMetrics creates the instruments on the global meter provider.
// meterName should typically be the service name.
func NewPersisterMetrics(meterName string) (*PersisterMetrics, error) {
	return newPersisterMetrics(otel.Meter(meterName))
}

func newPersisterMetrics(meter metric.Meter) (*PersisterMetrics, error) {
	latency, err := meter.Float64Histogram(
		"event_batch_duration_seconds",
		metric.WithDescription("Time taken to persist one event batch"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create event_batch_duration_seconds histogram: %w", err)
	}

	persisted, err := meter.Int64Counter(
		"events_persisted_total",
		metric.WithDescription("Total number of events handed to storage"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create events_persisted_total counter: %w", err)
	}

	return &PersisterMetrics{
		batchLatency:    latency,
		eventsPersisted: persisted,
	}, nil
}

// RecordBatchLatency records how long a batch took, labelled by outcome.
func (m *PersisterMetrics) RecordBatchLatency(ctx context.Context, duration time.Duration, status string) {
	m.batchLatency.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("status", status)))
}

// RecordEventsPersisted adds count to the per-contract persisted counter.
func (m *PersisterMetrics) RecordEventsPersisted(ctx context.Context, contractName string, count int) {
	m.eventsPersisted.Add(ctx, int64(count), metric.WithAttributes(attribute.String("contract", contractName)))
}
