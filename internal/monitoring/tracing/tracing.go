// Package tracing wires OpenTelemetry spans around refresh runs, login
// sessions and validity checks. Without an endpoint every span is a no-op.
package tracing

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"sessionkeeper-go/internal/config"
	"sessionkeeper-go/internal/version"
)

const instrumentation = "sessionkeeper"

var (
	mu       sync.Mutex
	provider *sdktrace.TracerProvider
)

func noop(context.Context) error { return nil }

// Init installs a batching OTLP exporter when an endpoint is configured and
// returns the shutdown that flushes it. Calling it again replaces nothing
// until the previous provider has been shut down.
func Init(ctx context.Context, cfg config.TracingConfig) (func(context.Context) error, error) {
	endpoint := firstNonEmpty(cfg.Endpoint, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if endpoint == "" {
		return noop, nil
	}

	mu.Lock()
	defer mu.Unlock()
	if provider != nil {
		return noop, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
	if insecure(cfg) {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return noop, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", firstNonEmpty(cfg.ServiceName, os.Getenv("OTEL_SERVICE_NAME"), instrumentation)),
			attribute.String("service.version", version.Version),
		),
		resource.WithHost(),
		resource.WithProcess(),
		resource.WithFromEnv(),
	)
	if err != nil {
		return noop, err
	}

	ratio := cfg.SampleRatio
	if ratio <= 0 {
		ratio = 1
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	provider = tp

	return func(ctx context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		if provider != tp {
			return nil
		}
		provider = nil
		return tp.Shutdown(ctx)
	}, nil
}

// insecure defaults to plaintext, as collectors usually run as a sidecar.
func insecure(cfg config.TracingConfig) bool {
	if cfg.Insecure != nil {
		return *cfg.Insecure
	}
	switch strings.ToLower(strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE"))) {
	case "false", "0":
		return false
	}
	return true
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// StartSpan starts a span on the tracer of component ("refresh", "login",
// "credential").
func StartSpan(ctx context.Context, component, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(instrumentation+"/"+component).Start(ctx, spanName, opts...)
}

// End records err, if any, as the span status and ends the span.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// Account tags a span with an account name. Pass it masked.
func Account(name string) attribute.KeyValue {
	return attribute.String("sessionkeeper.account", name)
}
