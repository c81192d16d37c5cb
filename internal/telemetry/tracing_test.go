package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobboard/server/internal/config"
)

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), config.TracingConfig{}, "test")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestNewProviderRejectsBadSampleRate(t *testing.T) {
	for _, rate := range []float64{-0.1, 1.5} {
		_, err := newProvider(context.Background(), config.TracingConfig{Exporter: ExporterNone, SampleRate: rate}, "test", nil)
		assert.Error(t, err, "rate %g", rate)
	}
}

func TestNewProviderRejectsUnknownExporter(t *testing.T) {
	_, err := newProvider(context.Background(), config.TracingConfig{Exporter: "zipkin", SampleRate: 1}, "test", nil)
	assert.ErrorContains(t, err, "zipkin")
}

func TestOTLPExporterNeedsEndpoint(t *testing.T) {
	_, err := newExporter(context.Background(), config.TracingConfig{Exporter: ExporterOTLP}, nil)
	assert.ErrorContains(t, err, "OTLP_ENDPOINT")
}

func TestStdoutExporterWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()
	tp, err := newProvider(ctx, config.TracingConfig{
		Exporter:    ExporterStdout,
		ServiceName: "jobboard-test",
		SampleRate:  1,
	}, "v1.2.3", &buf)
	require.NoError(t, err)

	_, span := tp.Tracer("test").Start(ctx, "list jobs")
	span.End()
	require.NoError(t, tp.Shutdown(ctx))

	assert.Contains(t, buf.String(), "list jobs")
	assert.Contains(t, buf.String(), "jobboard-test")
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, sampler(0.5).Description(), "TraceIDRatioBased")
}
