package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"sessionkeeper-go/internal/config"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	shutdown, err := Init(context.Background(), config.TracingConfig{})
	require.NoError(t, err)
	require.Nil(t, provider)
	require.NoError(t, shutdown(context.Background()))
}

func TestEndRecordsStatus(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, ok := StartSpan(context.Background(), "refresh", "refresh.account")
	ok.SetAttributes(Account("a***e"))
	End(ok, nil)
	_, failed := StartSpan(context.Background(), "login", "login.session")
	End(failed, errors.New("captcha not solved"))

	spans := rec.Ended()
	require.Len(t, spans, 2)
	require.Equal(t, "refresh.account", spans[0].Name())
	require.Equal(t, "sessionkeeper/refresh", spans[0].InstrumentationScope().Name)
	require.Equal(t, codes.Ok, spans[0].Status().Code)
	require.Equal(t, "a***e", spans[0].Attributes()[0].Value.AsString())

	require.Equal(t, codes.Error, spans[1].Status().Code)
	require.Equal(t, "captcha not solved", spans[1].Status().Description)
	require.Len(t, spans[1].Events(), 1)
}

func TestSettingsPrecedence(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "false")
	require.False(t, insecure(config.TracingConfig{}))
	yes := true
	require.True(t, insecure(config.TracingConfig{Insecure: &yes}))
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "")
	require.True(t, insecure(config.TracingConfig{}))

	require.Equal(t, "collector:4317", firstNonEmpty(" ", "collector:4317", "other"))
	require.Empty(t, firstNonEmpty("", " "))
}
