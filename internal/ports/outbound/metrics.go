package outbound

import (
	"context"
	"time"
)

// PersisterMetricsRecorder records ingestion metrics without tying the
// persister to a telemetry implementation.
type PersisterMetricsRecorder interface {
	// RecordBatchLatency records how long a batch took to persist.
	// status is "success" or "error".
	RecordBatchLatency(ctx context.Context, duration time.Duration, status string)

	// RecordEventsPersisted adds count to the persisted events counter for contractName.
	RecordEventsPersisted(ctx context.Context, contractName string, count int)
}
