// Package wire 定义控制面的二进制帧协议。
//
// 注册、心跳、发现、通知全部走同一种帧：固定 8 字节帧头
// （魔数 + 版本 + 帧体长度）加 msgpack 编码的帧体。
// 接收方先读帧头确定帧体长度，再精确读取帧体，避免 TCP 粘包。
//
// 帧格式：
//
//	0      2  3  4         8
//	┌──────┬──┬──┬─────────┬───────────────┐
//	│magic │v │r │ bodyLen │  body ...      │
//	│ "nx" │01│00│ uint32  │ msgpack(Frame) │
//	└──────┴──┴──┴─────────┴───────────────┘
//
// 交换模式是异步的：任何一方随时可以发帧，应答通过 Seq 匹配而不是
// 严格的一问一答，对端中途消失不会把连接卡死在等待应答的状态。
package wire

import "time"

// Kind 帧类型
type Kind uint8

const (
	KindRegister      Kind = iota + 1 // 注册请求
	KindRegisterAck                   // 注册应答 {ServiceID, Status}
	KindHeartbeat                     // 心跳 {ServiceID, Seq, Timestamp}
	KindHeartbeatAck                  // 心跳应答 {ServiceID, Status}
	KindLookup                        // 发现请求 {ServiceType}
	KindLookupAck                     // 发现应答 {Endpoint} 或 Err
	KindDeregister                    // 注销请求 {ServiceID}
	KindDeregisterAck                 // 注销应答（幂等）
	KindDeregisterAll                 // 按类型批量注销（管理操作）
	KindSubscribe                     // 订阅 {Topic}
	KindUnsubscribe                   // 退订 {Topic}
	KindPublish                       // 发布 {Topic, Payload, Headers}
	KindEvent                         // 投递给订阅者的事件
	KindData                          // 透传数据（设备控制会话）
	KindError                         // 通用错误应答
	KindSubscribeAck                  // 订阅应答 {Topic}
	KindUnsubscribeAck                // 退订应答 {Topic}
	KindPublishAck                    // 发布应答 {Topic}
)

// String 返回帧类型的字符串表示
func (k Kind) String() string {
	switch k {
	case KindRegister:
		return "register"
	case KindRegisterAck:
		return "register_ack"
	case KindHeartbeat:
		return "heartbeat"
	case KindHeartbeatAck:
		return "heartbeat_ack"
	case KindLookup:
		return "lookup"
	case KindLookupAck:
		return "lookup_ack"
	case KindDeregister:
		return "deregister"
	case KindDeregisterAck:
		return "deregister_ack"
	case KindDeregisterAll:
		return "deregister_all"
	case KindSubscribe:
		return "subscribe"
	case KindUnsubscribe:
		return "unsubscribe"
	case KindPublish:
		return "publish"
	case KindEvent:
		return "event"
	case KindData:
		return "data"
	case KindError:
		return "error"
	case KindSubscribeAck:
		return "subscribe_ack"
	case KindUnsubscribeAck:
		return "unsubscribe_ack"
	case KindPublishAck:
		return "publish_ack"
	default:
		return "unknown"
	}
}

// Endpoint 服务端点
type Endpoint struct {
	Protocol string `msgpack:"p"` // "tcp"
	Host     string `msgpack:"h"`
	Port     int    `msgpack:"n"`
}

// Frame 协议帧
//
// 单一结构承载所有帧类型，未用字段经 omitempty 不占线上字节。
// Seq 同时承担两种职责：请求/应答的关联标识，以及心跳帧的
// 单调递增序号。
type Frame struct {
	Kind        Kind              `msgpack:"k"`
	Seq         uint64            `msgpack:"q,omitempty"`
	ServiceType string            `msgpack:"t,omitempty"`
	ServiceID   string            `msgpack:"s,omitempty"`
	Endpoint    *Endpoint         `msgpack:"e,omitempty"`
	Metadata    map[string]string `msgpack:"m,omitempty"`
	Status      string            `msgpack:"u,omitempty"` // 注册表视角的服务状态
	Topic       string            `msgpack:"o,omitempty"`
	Headers     map[string]string `msgpack:"d,omitempty"` // 追踪上下文等
	Payload     []byte            `msgpack:"b,omitempty"`
	Timestamp   int64             `msgpack:"ts,omitempty"` // UnixNano
	Err         string            `msgpack:"x,omitempty"`
}

// NewHeartbeat 构造心跳帧
func NewHeartbeat(serviceID string, seq uint64, at time.Time) *Frame {
	return &Frame{
		Kind:      KindHeartbeat,
		ServiceID: serviceID,
		Seq:       seq,
		Timestamp: at.UnixNano(),
	}
}

// IsReply 判断帧是否是应答类帧
func (f *Frame) IsReply() bool {
	switch f.Kind {
	case KindRegisterAck, KindHeartbeatAck, KindLookupAck, KindDeregisterAck,
		KindSubscribeAck, KindUnsubscribeAck, KindPublishAck, KindError:
		return true
	default:
		return false
	}
}
