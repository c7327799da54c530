package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/browserflow/config"
)

// keepGlobalProviders 测试结束时恢复全局 provider
func keepGlobalProviders(t *testing.T) {
	t.Helper()
	tp, mp := otel.GetTracerProvider(), otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetMeterProvider(mp)
	})
}

func TestInit_Disabled(t *testing.T) {
	keepGlobalProviders(t)

	p, err := Init(config.TelemetryConfig{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Nil(t, p.tp)
	assert.Nil(t, p.mp)
	assert.NoError(t, p.Shutdown(context.Background()))

	_, span := Tracer().Start(context.Background(), "browserflow.run")
	defer span.End()
	assert.False(t, span.IsRecording())
}

func TestInit_Enabled(t *testing.T) {
	keepGlobalProviders(t)

	p, err := Init(config.TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "browserflow-test",
		SampleRate:   1,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		// 没有 collector，导出失败属预期
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})

	_, tpIsSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	_, mpIsSDK := otel.GetMeterProvider().(*sdkmetric.MeterProvider)
	assert.True(t, tpIsSDK)
	assert.True(t, mpIsSDK)

	_, span := Tracer().Start(context.Background(), "browserflow.run")
	assert.True(t, span.IsRecording())
	span.End()
}

func TestInit_EnabledWithoutEndpoint(t *testing.T) {
	keepGlobalProviders(t)

	_, err := Init(config.TelemetryConfig{Enabled: true, SampleRate: 1}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "otlp_endpoint")
}

func TestExporterOptions(t *testing.T) {
	tr, me := exporterOptions("collector:4317")
	assert.Len(t, tr, 2, "endpoint + insecure")
	assert.Len(t, me, 2)

	tr, me = exporterOptions("https://otel.example.com:4317")
	assert.Len(t, tr, 1, "scheme decides transport security")
	assert.Len(t, me, 1)
}

func TestProviders_ShutdownNil(t *testing.T) {
	var p *Providers
	assert.NoError(t, p.Shutdown(context.Background()))
}

// =============================================================================
// 🧪 RunInstruments
// =============================================================================

func TestRunInstruments_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	ri, err := NewRunInstruments(mp.Meter(InstrumentationName))
	require.NoError(t, err)

	ctx := context.Background()
	ri.Record(ctx, "login", "success", 2*time.Second)
	ri.Record(ctx, "login", "success", time.Second)
	ri.Record(ctx, "login", "failed", 500*time.Millisecond)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	byName := map[string]metricdata.Metrics{}
	for _, m := range rm.ScopeMetrics[0].Metrics {
		byName[m.Name] = m
	}

	runs, ok := byName["browserflow.runs"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	counts := map[string]int64{}
	for _, dp := range runs.DataPoints {
		status, _ := dp.Attributes.Value(attribute.Key("status"))
		counts[status.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{"success": 2, "failed": 1}, counts)

	hist, ok := byName["browserflow.run.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var total uint64
	for _, dp := range hist.DataPoints {
		total += dp.Count
	}
	assert.EqualValues(t, 3, total)
}

func TestRunInstruments_NilSafe(t *testing.T) {
	var ri *RunInstruments
	assert.NotPanics(t, func() {
		ri.Record(context.Background(), "login", "success", time.Second)
	})
}

func TestBuildVersion(t *testing.T) {
	// 测试二进制的主模块版本是 (devel)
	assert.Equal(t, "dev", buildVersion())
}
