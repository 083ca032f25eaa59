package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func TestNewMetricsRecords(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(ctx) })

	m, err := NewMetrics(provider.Meter(MeterName))
	require.NoError(t, err)

	m.SessionsClaimed.Add(ctx, 2, metric.WithAttributes(attribute.String("pod_id", "pod-a")))
	m.InFlightSessions.Add(ctx, 1)
	m.InFlightSessions.Add(ctx, -1)

	assert.Equal(t, int64(2), SumInt64(t, reader, "tarsy.queue.claims"))
	assert.Equal(t, int64(0), SumInt64(t, reader, "tarsy.queue.in_flight"))
	assert.Equal(t, int64(0), SumInt64(t, reader, "tarsy.db.retries"))
}

func TestNoop(t *testing.T) {
	m := Noop()
	require.NotNil(t, m.SessionsClaimed)
	m.DBRetries.Add(context.Background(), 1)
}


func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	p, err := Setup(context.Background(), ExportConfig{})
	require.NoError(t, err)
	require.NotNil(t, p.Metrics)
	p.Metrics.SessionsClaimed.Add(context.Background(), 1)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestSetupWithEndpoint(t *testing.T) {
	// The exporter connects lazily, so no collector is needed here.
	p, err := Setup(context.Background(), ExportConfig{
		Endpoint:    "localhost:4317",
		Insecure:    true,
		ServiceName: "tarsy-core",
		Version:     "test",
	})
	require.NoError(t, err)
	require.NotNil(t, p.Metrics)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = p.Shutdown(ctx)
}
