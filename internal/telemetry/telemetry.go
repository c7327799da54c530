// =============================================================================
// BrowserFlow OpenTelemetry SDK 初始化
// =============================================================================
// 关闭时不创建任何 exporter，全局 provider 保持 noop，
// Tracer()/Meter() 与 RunInstruments 照常可用。
// =============================================================================

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/browserflow/config"
)

// InstrumentationName 本服务 tracer/meter 的名字
const InstrumentationName = "github.com/BaSui01/browserflow"

// Providers 持有 SDK provider；遥测关闭时两者皆为 nil
type Providers struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

// Init 初始化 OTel SDK。cfg.Enabled 为 false 时返回 noop Providers，不连接外部服务
func Init(cfg config.TelemetryConfig, logger *zap.Logger) (*Providers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		logger.Info("telemetry disabled, using noop providers")
		return &Providers{}, nil
	}
	if cfg.OTLPEndpoint == "" {
		return nil, errors.New("telemetry enabled but otlp_endpoint is empty")
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "browserflow"
	}

	ctx := context.Background()
	res, err := resource.New(ctx,
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(buildVersion()),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}

	traceOpts, metricOpts := exporterOptions(cfg.OTLPEndpoint)
	traceExporter, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	metricExporter, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		_ = traceExporter.Shutdown(ctx)
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("telemetry initialized",
		zap.String("endpoint", cfg.OTLPEndpoint),
		zap.String("service_name", serviceName),
		zap.Float64("sample_rate", cfg.SampleRate),
	)
	return &Providers{tp: tp, mp: mp}, nil
}

// exporterOptions 带 scheme 的端点按 URL 解析（https 走 TLS），裸 host:port 视为明文 gRPC
func exporterOptions(endpoint string) ([]otlptracegrpc.Option, []otlpmetricgrpc.Option) {
	if strings.Contains(endpoint, "://") {
		return []otlptracegrpc.Option{otlptracegrpc.WithEndpointURL(endpoint)},
			[]otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpointURL(endpoint)}
	}
	return []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure()},
		[]otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(endpoint), otlpmetricgrpc.WithInsecure()}
}

// Tracer 全局 provider 下的 browserflow tracer；未初始化时为 noop
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// Meter 全局 provider 下的 browserflow meter；未初始化时为 noop
func Meter() metric.Meter {
	return otel.Meter(InstrumentationName)
}

// Shutdown 刷新未发送的 span/指标并关闭 exporter，noop Providers 上调用安全
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.tp != nil {
		if err := p.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	if p.mp != nil {
		if err := p.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

// =============================================================================
// 📈 无人值守运行的 OTel 指标
// =============================================================================

// RunInstruments 运行次数与耗时，随 OTLP 导出；nil 接收者上调用是空操作
type RunInstruments struct {
	runs     metric.Int64Counter
	duration metric.Float64Histogram
}

// NewRunInstruments 在 m 上注册运行指标
func NewRunInstruments(m metric.Meter) (*RunInstruments, error) {
	runs, err := m.Int64Counter("browserflow.runs",
		metric.WithDescription("Unattended recording runs by final status"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}
	duration, err := m.Float64Histogram("browserflow.run.duration",
		metric.WithDescription("Wall time of unattended recording runs"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	return &RunInstruments{runs: runs, duration: duration}, nil
}

// Record 记录一次结束的运行
func (ri *RunInstruments) Record(ctx context.Context, recording, status string, d time.Duration) {
	if ri == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("recording", recording),
		attribute.String("status", status),
	)
	ri.runs.Add(ctx, 1, attrs)
	ri.duration.Record(ctx, d.Seconds(), attrs)
}

// buildVersion 从构建信息读取模块版本，拿不到时为 "dev"
func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}
