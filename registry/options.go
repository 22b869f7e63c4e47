package registry

import (
	"github.com/ceyewan/nexus/clog"
	"github.com/ceyewan/nexus/metrics"
)

// Option 组件初始化选项函数
type Option func(*options)

// options 组件初始化选项配置（内部使用，小写）
type options struct {
	logger    clog.Logger
	meter     metrics.Meter
	publisher Publisher
}

// WithLogger 设置 Logger，传入 nil 时使用 clog.Discard()
// 内部会自动添加 namespace: "registry"
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger == nil {
			o.logger = clog.Discard()
		} else {
			o.logger = logger.WithNamespace("registry")
		}
	}
}

// WithMeter 设置 Meter，记录注册表规模与心跳指标
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		o.meter = meter
	}
}

// WithPublisher 设置事件发布器（仅服务端有效）
//
// 注册记录被清除时向 TopicServiceExpired 广播事件，
// 订阅了该主题的消费方可以及时作废本地缓存。
func WithPublisher(p Publisher) Option {
	return func(o *options) {
		o.publisher = p
	}
}

// applyDefaults 填充缺省选项（内部使用）
func (o *options) applyDefaults() {
	if o.logger == nil {
		o.logger = clog.Discard()
	}
}
