package heartbeat

import (
	"time"

	"github.com/ceyewan/nexus/xerrors"
)

// DefaultInterval 默认心跳周期
const DefaultInterval = 5 * time.Second

// EmitterConfig 心跳发射器配置
type EmitterConfig struct {
	// ServiceID 本服务在注册表中的实例标识
	ServiceID string `yaml:"service_id" json:"service_id"`

	// Interval 心跳周期（默认：5s）
	Interval time.Duration `yaml:"interval" json:"interval"`

	// SendTimeout 单次发送的超时，应远小于 Interval（默认：Interval 的一半）
	SendTimeout time.Duration `yaml:"send_timeout" json:"send_timeout"`
}

func (c *EmitterConfig) validate() error {
	if c.ServiceID == "" {
		return xerrors.Wrap(ErrInvalidConfig, "service_id is required")
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.SendTimeout <= 0 || c.SendTimeout > c.Interval {
		c.SendTimeout = c.Interval / 2
	}
	return nil
}

// ReceiverConfig 心跳接收方配置
type ReceiverConfig struct {
	// AckEnabled 是否回送心跳应答（默认：true）
	//
	// 应答让服务及时得知自己被标记 SUSPECT 或已被注册表遗忘，
	// 从而主动重新注册；关闭后服务只能等到下一次交互才发现。
	AckEnabled bool `yaml:"ack_enabled" json:"ack_enabled"`

	// RatePerSecond 单连接心跳限速，防御节拍失控的客户端（默认：20）
	RatePerSecond float64 `yaml:"rate_per_second" json:"rate_per_second"`

	// Burst 限速桶容量（默认：10）
	Burst int `yaml:"burst" json:"burst"`
}

// DefaultReceiverConfig 返回默认接收方配置
func DefaultReceiverConfig() *ReceiverConfig {
	return &ReceiverConfig{
		AckEnabled:    true,
		RatePerSecond: 20,
		Burst:         10,
	}
}

func (c *ReceiverConfig) validate() error {
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = 20
	}
	if c.Burst <= 0 {
		c.Burst = 10
	}
	return nil
}
