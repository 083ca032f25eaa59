// Package telemetry defines the OpenTelemetry instruments emitted by the
// queue worker, the history retry wrapper and the maintenance sweeps.
package telemetry

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// MeterName is the instrumentation scope for all tarsy instruments.
const MeterName = "github.com/codeready-toolchain/tarsy-core"

// Metrics holds all instruments.
type Metrics struct {
	SessionsClaimed   metric.Int64Counter
	DispatchFailures  metric.Int64Counter
	InFlightSessions  metric.Int64UpDownCounter
	SessionOutcomes   metric.Int64Counter
	DBRetries         metric.Int64Counter
	DBRetryExhausted  metric.Int64Counter
	OrphansRecovered  metric.Int64Counter
	PodSweepRecovered metric.Int64Counter
	SessionsPurged    metric.Int64Counter
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.SessionsClaimed, err = meter.Int64Counter("tarsy.queue.claims",
		metric.WithDescription("Sessions claimed from the pending queue by this pod"),
	); err != nil {
		return nil, err
	}
	if m.DispatchFailures, err = meter.Int64Counter("tarsy.queue.dispatch_failures",
		metric.WithDescription("Claimed sessions that could not be handed to the processor"),
	); err != nil {
		return nil, err
	}
	if m.InFlightSessions, err = meter.Int64UpDownCounter("tarsy.queue.in_flight",
		metric.WithDescription("Sessions currently being processed by this pod"),
	); err != nil {
		return nil, err
	}
	if m.SessionOutcomes, err = meter.Int64Counter("tarsy.session.outcomes",
		metric.WithDescription("Finished sessions by final status"),
	); err != nil {
		return nil, err
	}
	if m.DBRetries, err = meter.Int64Counter("tarsy.db.retries",
		metric.WithDescription("Database operation attempts retried after a transient error"),
	); err != nil {
		return nil, err
	}
	if m.DBRetryExhausted, err = meter.Int64Counter("tarsy.db.retry_exhausted",
		metric.WithDescription("Database operations that failed after all attempts"),
	); err != nil {
		return nil, err
	}
	if m.OrphansRecovered, err = meter.Int64Counter("tarsy.maintenance.orphans_recovered",
		metric.WithDescription("Sessions failed by the inactivity sweep"),
	); err != nil {
		return nil, err
	}
	if m.PodSweepRecovered, err = meter.Int64Counter("tarsy.maintenance.pod_sessions_interrupted",
		metric.WithDescription("Sessions failed by the pod-shutdown sweep"),
	); err != nil {
		return nil, err
	}
	if m.SessionsPurged, err = meter.Int64Counter("tarsy.retention.sessions_deleted",
		metric.WithDescription("Sessions deleted by the retention policy"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// Noop returns instruments that record nothing. Components fall back to it
// when no meter is configured.
func Noop() *Metrics {
	m, err := NewMetrics(noop.NewMeterProvider().Meter(MeterName))
	if err != nil {
		// The noop meter never fails.
		panic(err)
	}
	return m
}
