package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInitMeterProvider(t *testing.T) {
	mp, err := InitMeterProvider(Config{
		ServiceName:    "test-service",
		ServiceVersion: "1.0.0",
		Environment:    "test",
	})
	require.NoError(t, err)
	require.NotNil(t, mp.provider)
	require.NotNil(t, mp.Exporter())

	assert.NoError(t, mp.Shutdown(context.Background(), discardLogger()))
}

func TestInitMetrics(t *testing.T) {
	mp, err := InitMeterProvider(Config{ServiceName: "test-service"})
	require.NoError(t, err)
	defer mp.Shutdown(context.Background(), discardLogger())

	metrics, err := InitMetrics(discardLogger())
	require.NoError(t, err)
	require.NotNil(t, metrics)

	require.NotNil(t, metrics.requestDuration)
	require.NotNil(t, metrics.requestCounter)
	require.NotNil(t, metrics.errorCounter)
	require.NotNil(t, metrics.activeRequests)
	require.NotNil(t, metrics.queryDuration)
	require.NotNil(t, metrics.batchCacheHits)
}

func TestInitTracerProvider_HTTPInsecure(t *testing.T) {
	// Exporters connect lazily, so no collector is needed.
	tp, err := InitTracerProvider(Config{
		ServiceName:      "test-service",
		TraceSampleRatio: 1,
		OTLPConfig: OTLPExporterConfig{
			Endpoint: "http://127.0.0.1:4318",
			Protocol: "http/protobuf",
			Insecure: true,
			Timeout:  time.Second,
		},
	})
	require.NoError(t, err)
	assert.NoError(t, tp.Shutdown(context.Background(), discardLogger()))
}

func TestInitLoggerProvider_GRPCInsecure(t *testing.T) {
	lp, err := InitLoggerProvider(Config{
		ServiceName: "test-service",
		OTLPConfig: OTLPExporterConfig{
			Endpoint:    "127.0.0.1:4317",
			Protocol:    "grpc",
			Insecure:    true,
			Compression: "gzip",
		},
	})
	require.NoError(t, err)
	require.NotNil(t, lp.Provider())
	assert.NoError(t, lp.Shutdown(context.Background(), discardLogger()))
}

func TestInitTracerProvider_RejectsUnknownProtocol(t *testing.T) {
	_, err := InitTracerProvider(Config{OTLPConfig: OTLPExporterConfig{Protocol: "carrier-pigeon"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported OTLP protocol")
}

func TestNewExporterSettings(t *testing.T) {
	s, err := newExporterSettings(OTLPExporterConfig{
		Endpoint:         "https://collector:4318/v1/traces",
		Protocol:         "http",
		Compression:      "gzip",
		RetryEnabled:     true,
		RetryMaxAttempts: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, otlpProtocolHTTP, s.protocol)
	assert.True(t, s.endpointURL)
	assert.True(t, s.gzip)
	assert.True(t, s.retry)
	require.NotNil(t, s.tls)
	assert.Len(t, s.traceHTTPOptions(), 4)
	assert.Len(t, s.logHTTPOptions(), 4)

	s, err = newExporterSettings(OTLPExporterConfig{Endpoint: "collector:4317", Insecure: true})
	require.NoError(t, err)
	assert.Equal(t, otlpProtocolGRPC, s.protocol)
	assert.False(t, s.endpointURL)
	assert.Nil(t, s.tls)
	assert.Len(t, s.traceGRPCOptions(), 2)
	assert.Len(t, s.logGRPCOptions(), 2)
}

func TestBuildTLSConfig_FileNotFound(t *testing.T) {
	_, err := buildTLSConfig(OTLPExporterConfig{
		TLSCertFile: "/nonexistent/ca.pem",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read OTLP TLS CA file")
}

func TestBuildTLSConfig_InvalidCertFormat(t *testing.T) {
	path := t.TempDir() + "/ca.pem"
	require.NoError(t, os.WriteFile(path, []byte("not-a-cert"), 0600))

	_, err := buildTLSConfig(OTLPExporterConfig{
		TLSCertFile: path,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse OTLP TLS CA file")
}

func TestBuildTLSConfig_MissingClientKeyPair(t *testing.T) {
	path := t.TempDir() + "/client.crt"
	require.NoError(t, os.WriteFile(path, []byte("not-a-cert"), 0600))

	_, err := buildTLSConfig(OTLPExporterConfig{
		TLSClientCertFile: path,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OTLP TLS client cert and key must both be set")
}

func TestTraceSamplerForRatio_Boundaries(t *testing.T) {
	decisionNever := traceSamplerForRatio(0).ShouldSample(sdktrace.SamplingParameters{
		ParentContext: context.Background(),
		TraceID:       trace.TraceID{1},
		Name:          "test",
	}).Decision
	assert.Equal(t, sdktrace.Drop, decisionNever)

	decisionAlways := traceSamplerForRatio(1).ShouldSample(sdktrace.SamplingParameters{
		ParentContext: context.Background(),
		TraceID:       trace.TraceID{2},
		Name:          "test",
	}).Decision
	assert.Equal(t, sdktrace.RecordAndSample, decisionAlways)
}

func TestTraceSamplerForRatio_ParentAwareMidRange(t *testing.T) {
	sampler := traceSamplerForRatio(0.5)

	parentSampled := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{3},
		SpanID:     trace.SpanID{1},
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	}))
	decision := sampler.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: parentSampled,
		TraceID:       trace.TraceID{4},
		Name:          "child",
	}).Decision
	assert.Equal(t, sdktrace.RecordAndSample, decision)

	parentNotSampled := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{5},
		SpanID:  trace.SpanID{2},
		Remote:  true,
	}))
	decision = sampler.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: parentNotSampled,
		TraceID:       trace.TraceID{6},
		Name:          "child",
	}).Decision
	assert.Equal(t, sdktrace.Drop, decision)
}
