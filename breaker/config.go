package breaker

import "time"

// Config 熔断引擎配置
type Config struct {
	// FailureThreshold 连续失败次数阈值，越过后熔断（默认：5）
	FailureThreshold int `yaml:"failure_threshold" json:"failure_threshold"`

	// MinBackoff 首次熔断的退避时长（默认：500ms）
	MinBackoff time.Duration `yaml:"min_backoff" json:"min_backoff"`

	// MaxBackoff 退避时长上限（默认：30s）
	MaxBackoff time.Duration `yaml:"max_backoff" json:"max_backoff"`

	// JitterRatio 抖动系数，实际退避追加 [0, backoff*JitterRatio) 的
	// 随机量，避免多个客户端同时重连共享注册中心（默认：0.2）
	JitterRatio float64 `yaml:"jitter_ratio" json:"jitter_ratio"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		FailureThreshold: 5,
		MinBackoff:       500 * time.Millisecond,
		MaxBackoff:       30 * time.Second,
		JitterRatio:      0.2,
	}
}

// validate 填充默认值并校验（内部使用）
func (c *Config) validate() error {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.MinBackoff <= 0 {
		c.MinBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.MaxBackoff < c.MinBackoff {
		return ErrInvalidConfig
	}
	if c.JitterRatio < 0 || c.JitterRatio > 1 {
		return ErrInvalidConfig
	}
	return nil
}
