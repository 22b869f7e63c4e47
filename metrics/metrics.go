package metrics

import (
	"context"
	"fmt"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"
)

// ============================================================================
// 工厂函数
// ============================================================================

// New 创建 Meter 实例
//
// cfg.Enabled 为 false 时返回 noop Meter。
// 否则创建 OTel MeterProvider + Prometheus Exporter，
// 指标通过 Handler() 暴露，由上层挂载。
func New(cfg *Config, opts ...Option) (Meter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	if !cfg.Enabled {
		return &noopMeter{}, nil
	}

	options := &options{}
	for _, opt := range opts {
		opt(options)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	// 每个 Meter 使用独立的 prometheus Registry，
	// 避免同进程多个组件（注册中心 + 通知枢纽）的指标互相覆盖
	promRegistry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(promRegistry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)

	return &meterImpl{
		meter:    mp.Meter("nexus"),
		provider: mp,
		registry: promRegistry,
	}, nil
}

// Discard 返回一个丢弃所有指标的 Meter
func Discard() Meter {
	return &noopMeter{}
}

// ============================================================================
// Meter 实现
// ============================================================================

type meterImpl struct {
	meter    metric.Meter
	provider *sdkmetric.MeterProvider
	registry *promclient.Registry
}

func (m *meterImpl) Counter(name string, desc string) (Counter, error) {
	c, err := m.meter.Float64Counter(name, metric.WithDescription(desc))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter %s: %w", name, err)
	}
	return &counterImpl{counter: c}, nil
}

func (m *meterImpl) Gauge(name string, desc string) (Gauge, error) {
	g, err := m.meter.Float64UpDownCounter(name, metric.WithDescription(desc))
	if err != nil {
		return nil, fmt.Errorf("failed to create gauge %s: %w", name, err)
	}
	return &gaugeImpl{gauge: g}, nil
}

func (m *meterImpl) Histogram(name string, desc string) (Histogram, error) {
	h, err := m.meter.Float64Histogram(name, metric.WithDescription(desc))
	if err != nil {
		return nil, fmt.Errorf("failed to create histogram %s: %w", name, err)
	}
	return &histogramImpl{histogram: h}, nil
}

func (m *meterImpl) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *meterImpl) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}

// ============================================================================
// 指标实现
// ============================================================================

type counterImpl struct {
	counter metric.Float64Counter
}

func (c *counterImpl) Inc(ctx context.Context, labels ...Label) {
	c.Add(ctx, 1, labels...)
}

func (c *counterImpl) Add(ctx context.Context, val float64, labels ...Label) {
	c.counter.Add(ctx, val, metric.WithAttributes(toAttributes(labels)...))
}

type gaugeImpl struct {
	gauge metric.Float64UpDownCounter
}

func (g *gaugeImpl) Set(ctx context.Context, val float64, labels ...Label) {
	// UpDownCounter 没有绝对 Set 语义，registry 等组件只用 Inc/Dec，
	// Set 作为增量清零后的近似实现保留
	g.gauge.Add(ctx, val, metric.WithAttributes(toAttributes(labels)...))
}

func (g *gaugeImpl) Inc(ctx context.Context, labels ...Label) {
	g.gauge.Add(ctx, 1, metric.WithAttributes(toAttributes(labels)...))
}

func (g *gaugeImpl) Dec(ctx context.Context, labels ...Label) {
	g.gauge.Add(ctx, -1, metric.WithAttributes(toAttributes(labels)...))
}

type histogramImpl struct {
	histogram metric.Float64Histogram
}

func (h *histogramImpl) Record(ctx context.Context, val float64, labels ...Label) {
	h.histogram.Record(ctx, val, metric.WithAttributes(toAttributes(labels)...))
}

// ============================================================================
// Noop 实现
// ============================================================================

type noopMeter struct{}

func (m *noopMeter) Counter(name, desc string) (Counter, error)     { return &noopCounter{}, nil }
func (m *noopMeter) Gauge(name, desc string) (Gauge, error)         { return &noopGauge{}, nil }
func (m *noopMeter) Histogram(name, desc string) (Histogram, error) { return &noopHistogram{}, nil }
func (m *noopMeter) Handler() http.Handler                          { return http.NotFoundHandler() }
func (m *noopMeter) Shutdown(ctx context.Context) error             { return nil }

type noopCounter struct{}

func (c *noopCounter) Inc(ctx context.Context, labels ...Label)              {}
func (c *noopCounter) Add(ctx context.Context, val float64, labels ...Label) {}

type noopGauge struct{}

func (g *noopGauge) Set(ctx context.Context, val float64, labels ...Label) {}
func (g *noopGauge) Inc(ctx context.Context, labels ...Label)              {}
func (g *noopGauge) Dec(ctx context.Context, labels ...Label)              {}

type noopHistogram struct{}

func (h *noopHistogram) Record(ctx context.Context, val float64, labels ...Label) {}
