// Package heartbeat 提供心跳通道的两端实现。
//
// Emitter 运行在服务进程内，按固定周期向注册中心发送带单调
// 递增序号的心跳帧，fire-and-forget：发送从不等待应答，应答
// 由连接器的 reader 异步送回 HandleAck。Receiver 运行在注册
// 中心内，消化心跳帧、刷新注册表时间戳，并按配置回送应答。
//
// 心跳丢失本身不是错误：判活交给注册中心的扫描逻辑（宽限期
// 语义见 registry 包），心跳端只负责节拍不乱、序号不回退。
package heartbeat

import (
	"context"
	"time"

	"github.com/ceyewan/nexus/wire"
)

// Notifier 心跳发送所需的最小连接器能力。
// connector.TCPConnector 满足此接口。
type Notifier interface {
	Notify(ctx context.Context, f *wire.Frame) error
}

// Emitter 心跳发射器接口
type Emitter interface {
	// Start 启动心跳节拍，幂等
	Start()

	// Stop 停止心跳并等待后台 goroutine 退出，幂等
	Stop()

	// Seq 返回最近一次发出的心跳序号
	Seq() uint64

	// HandleAck 消化一帧心跳应答
	//
	// 由连接器的帧处理函数路由进来。应答状态为 SUSPECT 或
	// UNKNOWN 时触发 OnStale 回调（服务应重新注册）。
	HandleAck(f *wire.Frame)
}

// Recorder 注册表为心跳接收方暴露的最小能力。
type Recorder interface {
	// Touch 刷新 serviceID 的活性时间戳
	//
	// 返回刷新后的状态；注册表不认识该 serviceID 时 ok 为 false。
	// 乱序到达的旧心跳不得回拨时间戳。
	Touch(serviceID string, seq uint64, at time.Time) (status string, ok bool)
}

// NewEmitter 创建心跳发射器
func NewEmitter(cfg *EmitterConfig, n Notifier, opts ...Option) (Emitter, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if n == nil {
		return nil, ErrNotifierNil
	}

	opt := &options{}
	for _, o := range opts {
		o(opt)
	}
	opt.applyDefaults()

	return newEmitter(cfg, n, opt), nil
}
