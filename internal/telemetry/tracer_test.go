package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestNewTracerProvider_Disabled(t *testing.T) {
	t.Parallel()

	tp, err := NewTracerProvider(context.Background(), WithTracingConfig(&TracingConfig{Enabled: false}))
	require.NoError(t, err)
	_, ok := tp.(noop.TracerProvider)
	assert.True(t, ok, "expected no-op tracer provider")
}

func TestNewTracerProvider_ExportsSampledSpans(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	exporter := tracetest.NewInMemoryExporter()
	tp, err := NewTracerProvider(ctx,
		WithTracingConfig(&TracingConfig{Enabled: true, Sampling: 1.0}),
		WithSpanExporter(exporter),
	)
	require.NoError(t, err)
	sdkTP, ok := tp.(*sdktrace.TracerProvider)
	require.True(t, ok)

	_, span := tp.Tracer("test").Start(ctx, "connection.Job")
	span.End()
	require.NoError(t, sdkTP.ForceFlush(ctx))
	require.NoError(t, sdkTP.Shutdown(ctx))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "connection.Job", spans[0].Name)
	assert.Contains(t, spans[0].Resource.Attributes(), serviceNameAttr(DefaultServiceName))
}
