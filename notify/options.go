package notify

import (
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/nexus/clog"
	"github.com/ceyewan/nexus/metrics"
)

// Option 组件初始化选项函数
type Option func(*options)

// options 组件初始化选项配置（内部使用，小写）
type options struct {
	logger clog.Logger
	meter  metrics.Meter
	tracer oteltrace.Tracer
}

// WithLogger 设置 Logger，传入 nil 时使用 clog.Discard()
// 内部会自动添加 namespace: "notify"
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger == nil {
			o.logger = clog.Discard()
		} else {
			o.logger = logger.WithNamespace("notify")
		}
	}
}

// WithMeter 设置 Meter，记录发布/投递/丢弃指标
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		o.meter = meter
	}
}

// WithTracer 设置消息链路追踪的 Tracer
//
// 发布时把 traceparent 注入事件头，投递时以 Link 关联发布方
// 的 Span。传入 nil 时使用全局 TracerProvider。
func WithTracer(tracer oteltrace.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

// applyDefaults 填充缺省选项（内部使用）
func (o *options) applyDefaults() {
	if o.logger == nil {
		o.logger = clog.Discard()
	}
}
