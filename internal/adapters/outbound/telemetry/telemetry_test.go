package telemetry

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{ServiceName: "event-api"}.withDefaults()
	if cfg.ServiceName != "event-api" {
		t.Errorf("expected ServiceName to be kept, got %s", cfg.ServiceName)
	}
	if cfg.SampleRate != 1.0 {
		t.Errorf("expected SampleRate 1.0, got %v", cfg.SampleRate)
	}
	if cfg.Environment != "development" {
		t.Errorf("expected Environment development, got %s", cfg.Environment)
	}
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{rate: 1.0, want: "AlwaysOnSampler"},
		{rate: 2.0, want: "AlwaysOnSampler"},
		{rate: -1, want: "AlwaysOffSampler"},
		{rate: 0.5, want: "TraceIDRatioBased{0.5}"},
	}
	for _, tt := range tests {
		if got := sampler(tt.rate).Description(); got != tt.want {
			t.Errorf("sampler(%v) = %s, want %s", tt.rate, got, tt.want)
		}
	}
}

func TestInitMetrics_NoEndpointIsNoop(t *testing.T) {
	shutdown, err := InitMetrics(context.Background(), Config{})
	if err != nil {
		t.Fatalf("InitMetrics: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestPersisterMetrics_Records(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(ctx)

	m, err := newPersisterMetrics(provider.Meter("test"))
	if err != nil {
		t.Fatalf("newPersisterMetrics: %v", err)
	}

	m.RecordBatchLatency(ctx, 250*time.Millisecond, "success")
	m.RecordEventsPersisted(ctx, "KittyCore", 3)
	m.RecordEventsPersisted(ctx, "KittyCore", 2)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}

	found := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			found[md.Name] = true
			if md.Name != "events_persisted_total" {
				continue
			}
			sum, ok := md.Data.(metricdata.Sum[int64])
			if !ok || len(sum.DataPoints) != 1 {
				t.Fatalf("unexpected counter data %#v", md.Data)
			}
			dp := sum.DataPoints[0]
			if dp.Value != 5 {
				t.Errorf("expected 5 events, got %d", dp.Value)
			}
			if v, ok := dp.Attributes.Value(attribute.Key("contract")); !ok || v.AsString() != "KittyCore" {
				t.Errorf("expected contract attribute, got %v", dp.Attributes)
			}
		}
	}
	for _, name := range []string{"event_batch_duration_seconds", "events_persisted_total"} {
		if !found[name] {
			t.Errorf("expected metric %s to be recorded", name)
		}
	}
}
