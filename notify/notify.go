// Package notify 提供发布/订阅通知枢纽。
//
// 通知是控制面的"广播板"：配置变更、服务过期、设备状态翻转等
// 事件按主题扇出给所有在线订阅者。投递承诺是 at-most-once：
// 不落盘、不重放，订阅者离线期间的事件直接错过——需要历史的
// 场景走存储服务，不走通知。
//
// 三种后端共享同一套 Broker 接口：
//   - embedded：进程内扇出，通知枢纽服务端的默认底座
//   - nats：NATS core（非 JetStream，保持 at-most-once 语义）
//   - redis：Redis Pub/Sub
//
// 帧协议侧由 Hub（服务端）与 Client（订阅客户端）封装：
// 客户端断线重连后自动补订阅，调用方感知不到会话翻转。
//
// 投递顺序：同一发布者、同一主题的事件对每个订阅者保序；
// 不同订阅者之间的进度互不影响，慢订阅者只会丢自己的事件。
package notify

import (
	"context"
)

// ========================================
// 接口定义 (Interface Definitions)
// ========================================

// Event 一条通知事件
type Event struct {
	// Topic 事件主题
	Topic string

	// Payload 事件载荷，语义由主题约定
	Payload []byte

	// Headers 附加头，携带 traceparent 等追踪上下文
	Headers map[string]string
}

// Handler 事件处理函数
//
// 在投递 goroutine 上调用：阻塞的 Handler 只会堵住
// 自己的队列，不影响其他订阅者。
type Handler func(ctx context.Context, ev *Event)

// Subscription 一次订阅
type Subscription interface {
	// Topic 返回订阅的主题
	Topic() string

	// Unsubscribe 取消订阅，幂等
	//
	// 取消后不再投递（at-most-once 允许丢弃已入队未投递的事件）。
	Unsubscribe() error
}

// Broker 发布/订阅后端接口
type Broker interface {
	// Publish 发布事件到主题，at-most-once
	Publish(ctx context.Context, topic string, payload []byte, headers map[string]string) error

	// Subscribe 订阅主题（精确匹配）
	Subscribe(ctx context.Context, topic string, h Handler) (Subscription, error)

	// Close 关闭后端并释放所有订阅，幂等
	Close() error
}
