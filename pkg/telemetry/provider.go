package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// ExportConfig configures OTLP metric export. An empty Endpoint disables
// export.
type ExportConfig struct {
	Endpoint    string
	Insecure    bool
	Interval    time.Duration
	ServiceName string
	Version     string
}

// Provider owns the meter provider behind a Metrics set.
type Provider struct {
	Metrics *Metrics
	mp      *sdkmetric.MeterProvider
}

// Setup builds instruments exported over OTLP/gRPC, or no-op instruments
// when export is disabled.
func Setup(ctx context.Context, cfg ExportConfig) (*Provider, error) {
	if cfg.Endpoint == "" {
		return &Provider{Metrics: Noop()}, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP metric exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.Version),
	))
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))),
		sdkmetric.WithResource(res),
	)
	m, err := NewMetrics(mp.Meter(MeterName))
	if err != nil {
		_ = mp.Shutdown(ctx)
		return nil, fmt.Errorf("creating instruments: %w", err)
	}
	return &Provider{Metrics: m, mp: mp}, nil
}

// Shutdown flushes pending metrics.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.mp == nil {
		return nil
	}
	return p.mp.Shutdown(ctx)
}
