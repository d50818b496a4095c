// Package telemetry 提供 Prometheus 指标与 OpenTelemetry 追踪。
package telemetry

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/wordflowlab/abapagents"
)

// TracingConfig 追踪配置
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string

	// OTLPEndpoint 为空时不导出 span, 例如 "localhost:4318"
	OTLPEndpoint string
	OTLPInsecure bool

	// SamplingRate 0.0 - 1.0
	SamplingRate float64
}

// TracingManager 追踪管理器
type TracingManager struct {
	config   TracingConfig
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracingManager 创建追踪管理器, 配置了 OTLP endpoint 时注册全局 TracerProvider
func NewTracingManager(config TracingConfig) (*TracingManager, error) {
	if config.ServiceName == "" {
		config.ServiceName = DefaultNamespace
	}
	if config.ServiceVersion == "" {
		config.ServiceVersion = abapagents.Version
	}
	if config.OTLPEndpoint == "" {
		return &TracingManager{config: config, tracer: otel.Tracer(config.ServiceName)}, nil
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(config.OTLPEndpoint)}
	if config.OTLPInsecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}
	return newTracingManager(config, sdktrace.WithBatcher(exporter))
}

// newTracingManager 使用给定的 span processor 创建 provider
func newTracingManager(config TracingConfig, processor sdktrace.TracerProviderOption) (*TracingManager, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(config.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	rate := config.SamplingRate
	if rate <= 0 {
		rate = 1.0
	}
	provider := sdktrace.NewTracerProvider(
		processor,
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracingManager{
		config:   config,
		provider: provider,
		tracer:   provider.Tracer(config.ServiceName),
	}, nil
}

// Enabled 是否导出 span
func (t *TracingManager) Enabled() bool {
	return t.provider != nil
}

// Tracer 返回 tracer
func (t *TracingManager) Tracer() trace.Tracer {
	return t.tracer
}

// Middleware 返回 gin 追踪中间件
func (t *TracingManager) Middleware() gin.HandlerFunc {
	if t.provider == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return otelgin.Middleware(t.config.ServiceName, otelgin.WithTracerProvider(t.provider))
}

// Shutdown 刷新并关闭 provider
func (t *TracingManager) Shutdown(ctx context.Context) error {
	if t.provider != nil {
		return t.provider.Shutdown(ctx)
	}
	return nil
}

// TraceID 返回当前 span 的 trace ID, 没有时为空
func TraceID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
