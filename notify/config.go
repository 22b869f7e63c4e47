package notify

import (
	"time"

	"github.com/ceyewan/nexus/breaker"
	"github.com/ceyewan/nexus/xerrors"
)

// ========================================
// 配置
// ========================================

// DefaultQueueSize 每个订阅者投递队列的默认容量
//
// 队列满即丢弃新事件（at-most-once）：慢订阅者只丢自己的，
// 不反压发布方，也不拖累其他订阅者。
const DefaultQueueSize = 256

// EmbeddedConfig 进程内扇出后端配置
type EmbeddedConfig struct {
	// QueueSize 每个订阅者的投递队列容量（默认：256）
	QueueSize int `yaml:"queue_size" json:"queue_size"`
}

func (c *EmbeddedConfig) validate() error {
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	return nil
}

// HubConfig 通知枢纽服务端配置
type HubConfig struct {
	// Addr 帧协议监听地址，如 "0.0.0.0:4243"
	Addr string `yaml:"addr" json:"addr"`

	// QueueSize 每个远端订阅者的投递队列容量（默认：256）
	QueueSize int `yaml:"queue_size" json:"queue_size"`
}

func (c *HubConfig) validate() error {
	if c.Addr == "" {
		return xerrors.Wrap(ErrInvalidConfig, "addr is required")
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	return nil
}

// ClientConfig 通知枢纽客户端配置
type ClientConfig struct {
	// Addr 枢纽地址，如 "127.0.0.1:4243"
	Addr string `yaml:"addr" json:"addr"`

	// RequestTimeout 订阅/发布交换的超时（默认：5s）
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`

	// QueueSize 本地投递队列容量（默认：256）
	QueueSize int `yaml:"queue_size" json:"queue_size"`

	// Breaker 连接器的熔断配置，nil 时使用默认值
	Breaker *breaker.Config `yaml:"breaker" json:"breaker"`
}

func (c *ClientConfig) validate() error {
	if c.Addr == "" {
		return xerrors.Wrap(ErrInvalidConfig, "addr is required")
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 5 * time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	return nil
}
