package breaker

import (
	"github.com/ceyewan/nexus/clog"
	"github.com/ceyewan/nexus/metrics"
)

// Option 组件初始化选项函数
type Option func(*options)

// options 组件初始化选项配置（内部使用，小写）
type options struct {
	logger      clog.Logger
	name        string
	transitions metrics.Counter
}

// WithLogger 设置 Logger，传入 nil 时使用 clog.Discard()
// 内部会自动添加 namespace: "breaker"
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger == nil {
			o.logger = clog.Discard()
		} else {
			o.logger = logger.WithNamespace("breaker")
		}
	}
}

// WithName 设置熔断器名称，用于日志和指标标识
// 通常是目标端点名，如 "registry" 或 "tgf4000-dev"
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithMeter 设置 Meter，记录状态切换指标
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		if meter == nil {
			return
		}
		c, err := meter.Counter(
			"breaker_transitions_total",
			"熔断器状态切换总数")
		if err == nil {
			o.transitions = c
		}
	}
}

// applyDefaults 填充缺省选项（内部使用）
func (o *options) applyDefaults() {
	if o.logger == nil {
		o.logger = clog.Discard()
	}
	if o.name == "" {
		o.name = "default"
	}
}
