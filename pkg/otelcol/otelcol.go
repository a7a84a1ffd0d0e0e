package otelcol

import (
	"context"

	"engage-ledger/pkg/config"
	"engage-ledger/pkg/otelcol/exporters"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("otelcol",
	fx.Provide(
		NewExporter,
		ProvideTrace,
		ProvideMetric,
	),
)

// NewExporter returns nil when no collector address is configured.
func NewExporter(cfg *config.Config) (sdktrace.SpanExporter, error) {
	if cfg.Otel.Addr == "" {
		return nil, nil
	}
	switch cfg.Otel.Protocol {
	case "grpc":
		return exporters.ProvideGrpc(cfg)
	default:
		return exporters.ProvideHttp(cfg)
	}
}

func newResource(cfg *config.Config) *resource.Resource {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.AppName),
		attribute.String("service.version", cfg.AppVersion),
		attribute.String("deployment.environment", cfg.AppEnv),
	))
	if err != nil {
		return resource.Default()
	}
	return res
}

// ProvideTrace installs the global tracer provider. Without an exporter
// spans are dropped.
func ProvideTrace(lc fx.Lifecycle, cfg *config.Config, exporter sdktrace.SpanExporter) trace.TracerProvider {
	if exporter == nil {
		zap.L().Info("[OTEL] tracing disabled")
		return tracenoop.NewTracerProvider()
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(newResource(cfg)),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	zap.L().Info("[OTEL] tracing enabled", zap.String("addr", cfg.Otel.Addr), zap.String("protocol", cfg.Otel.Protocol))
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})
	return tp
}

// ProvideMetric is a no-op meter provider; metrics are exported by the
// prometheus registry instead.
func ProvideMetric() metric.MeterProvider {
	return metricnoop.NewMeterProvider()
}
