// Package trace 为 Nexus 提供轻量的分布式追踪约定。
// 基于 OpenTelemetry，覆盖通知枢纽的发布/消费链路：
// 发布端注入 W3C traceparent 到帧头，订阅端提取并建立关联 Span。
package trace

const (
	// Messaging 语义属性键
	AttrMessagingSystem      = "messaging.system"
	AttrMessagingDestination = "messaging.destination"
	AttrMessagingOperation   = "messaging.operation"
)

const (
	// 通知枢纽支持的消息系统标识
	MessagingSystemEmbedded = "nexus-hub"
	MessagingSystemNATS     = "nats"
	MessagingSystemRedis    = "redis"
)

const (
	MessagingOperationPublish = "publish"
	MessagingOperationDeliver = "deliver"
)

// SpanNamePublish 返回发布到主题的标准 Span Name
func SpanNamePublish(topic string) string {
	if topic == "" {
		return "hub.publish"
	}
	return "hub.publish " + topic
}

// SpanNameDeliver 返回从主题投递的标准 Span Name
func SpanNameDeliver(topic string) string {
	if topic == "" {
		return "hub.deliver"
	}
	return "hub.deliver " + topic
}
