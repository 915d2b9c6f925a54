// =============================================================================
// imagegen OpenTelemetry SDK 初始化
// =============================================================================
// 禁用时不创建 exporter，全局 provider 保持 noop。
// resource 上标注存储驱动与已注册厂商，便于在后端按部署区分 span。
// =============================================================================

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"

	"github.com/BaSui01/imagegen/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// resource 属性键
const (
	AttrStorageDriver = attribute.Key("imagegen.storage.driver")
	AttrProviders     = attribute.Key("imagegen.providers")
)

// Deployment 描述当前进程的图像生成部署
type Deployment struct {
	StorageDriver string
	ProviderIDs   []string
}

// Option Init 选项
type Option func(*Deployment)

// WithDeployment 设置存储驱动与已注册厂商
func WithDeployment(storageDriver string, providerIDs []string) Option {
	return func(d *Deployment) {
		d.StorageDriver = storageDriver
		d.ProviderIDs = append([]string(nil), providerIDs...)
	}
}

// Providers 持有 SDK 的 TracerProvider 与 MeterProvider，禁用时均为 nil
type Providers struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

// Init 初始化 OTel SDK 并注册为全局 provider。
// cfg.Enabled 为 false 时返回空 Providers，不连接任何外部服务。
func Init(cfg config.TelemetryConfig, logger *zap.Logger, opts ...Option) (*Providers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		logger.Info("telemetry disabled, using noop providers")
		return &Providers{}, nil
	}

	var d Deployment
	for _, opt := range opts {
		opt(&d)
	}

	ctx := context.Background()
	res, err := newResource(ctx, cfg.ServiceName, d)
	if err != nil {
		return nil, err
	}

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newSampler(cfg.SampleRate)),
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
		zap.String("service_name", cfg.ServiceName),
		zap.Float64("sample_rate", cfg.SampleRate),
		zap.String("storage_driver", d.StorageDriver),
		zap.Strings("providers", d.ProviderIDs),
	)

	return &Providers{tp: tp, mp: mp}, nil
}

// newResource 服务名、版本与部署属性
func newResource(ctx context.Context, serviceName string, d Deployment) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String(buildVersion()),
	}
	if d.StorageDriver != "" {
		attrs = append(attrs, AttrStorageDriver.String(d.StorageDriver))
	}
	if len(d.ProviderIDs) > 0 {
		ids := append([]string(nil), d.ProviderIDs...)
		sort.Strings(ids)
		attrs = append(attrs, AttrProviders.StringSlice(ids))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}
	return res, nil
}

// newSampler 跟随上游采样决定；根 span 按比例采样，比例截断到 [0,1]
func newSampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case rate <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

// Tracer 返回图像生成使用的 tracer；未启用 SDK 时退回全局 provider
func (p *Providers) Tracer() trace.Tracer {
	if p == nil || p.tp == nil {
		return otel.Tracer(TracerName)
	}
	return p.tp.Tracer(TracerName)
}

// Shutdown 刷新未导出的 span 与指标并关闭 exporter，nil 或 noop 时直接返回
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

// buildVersion 从构建信息读取模块版本，取不到时为 "dev"
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
