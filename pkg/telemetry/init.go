package telemetry

import (
	"context"
	"errors"
	"fmt"

	"github.com/apex/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"

	"github.com/zoff-tech/amqp-producer/pkg/config"
)

// TracerName is the instrumentation scope of every span the producer emits.
const TracerName = "github.com/zoff-tech/amqp-producer"

// Init installs a tracer provider exporting to cfg.TracingURL over OTLP/HTTP,
// along with the propagators that carry trace context in message headers.
// The returned function flushes pending spans.
func Init(ctx context.Context, cfg config.Observability) (func(), error) {
	if cfg.ServiceName == "" {
		return nil, errors.New("observability.service_name is required for tracing")
	}
	if cfg.TracingURL == "" {
		return nil, errors.New("observability.tracing_url is required for tracing")
	}

	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(
		otlptracehttp.WithEndpoint(cfg.TracingURL),
		otlptracehttp.WithInsecure(),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := producerResource(ctx, cfg.ServiceName)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(Propagator())

	logger := log.WithFields(log.Fields{"service": cfg.ServiceName, "endpoint": cfg.TracingURL})
	logger.Debug("tracing enabled")

	return func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.WithError(err).Warn("failed to flush spans")
		}
	}, nil
}

// Propagator returns the W3C trace context and baggage propagator written into
// AMQP message headers.
func Propagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

func producerResource(ctx context.Context, serviceName string) (*resource.Resource, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.MessagingSystemKey.String("rabbitmq"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}
