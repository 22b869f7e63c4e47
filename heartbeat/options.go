package heartbeat

import (
	"github.com/ceyewan/nexus/clog"
	"github.com/ceyewan/nexus/metrics"
)

// Option 组件初始化选项函数
type Option func(*options)

// options 组件初始化选项配置（内部使用，小写）
type options struct {
	logger  clog.Logger
	meter   metrics.Meter
	onStale func(status string)
}

// WithLogger 设置 Logger，传入 nil 时使用 clog.Discard()
// 内部会自动添加 namespace: "heartbeat"
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger == nil {
			o.logger = clog.Discard()
		} else {
			o.logger = logger.WithNamespace("heartbeat")
		}
	}
}

// WithMeter 设置 Meter，记录心跳收发指标
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		o.meter = meter
	}
}

// WithOnStale 设置失活回调
//
// 心跳应答状态为 SUSPECT 或 UNKNOWN 时触发，registry.Client
// 用它驱动自动重新注册。回调在连接器的 reader goroutine 上
// 调用，不应阻塞。
func WithOnStale(fn func(status string)) Option {
	return func(o *options) {
		o.onStale = fn
	}
}

// applyDefaults 填充缺省选项（内部使用）
func (o *options) applyDefaults() {
	if o.logger == nil {
		o.logger = clog.Discard()
	}
}
