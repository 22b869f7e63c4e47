package registry

import (
	"time"

	"github.com/ceyewan/nexus/breaker"
	"github.com/ceyewan/nexus/heartbeat"
	"github.com/ceyewan/nexus/xerrors"
)

// ========================================
// 配置
// ========================================

const (
	// DefaultGrace 默认宽限期：连续错过多少个扫描周期后清除记录
	DefaultGrace = 3

	// DefaultCacheTTL 解析器缓存的默认 TTL
	DefaultCacheTTL = 10 * time.Second

	// DefaultCacheSize 解析器缓存的默认容量
	DefaultCacheSize = 256

	// probeTimeout Active 探测的拨号超时
	probeTimeout = time.Second
)

// ServerConfig 注册中心服务端配置
type ServerConfig struct {
	// Addr 帧协议监听地址，如 "0.0.0.0:4242"
	Addr string `yaml:"addr" json:"addr"`

	// AdminAddr 管理端 HTTP 监听地址，空串表示不启动管理端
	AdminAddr string `yaml:"admin_addr" json:"admin_addr"`

	// SweepInterval 扫描周期，应等于客户端的心跳周期（默认：5s）
	SweepInterval time.Duration `yaml:"sweep_interval" json:"sweep_interval"`

	// Grace 宽限期：连续错过 Grace 个扫描周期后记录被清除（默认：3）
	//
	// 错过第一个周期即降级 SUSPECT；宽限期内一次心跳即复活。
	Grace int `yaml:"grace" json:"grace"`

	// Heartbeat 心跳消化配置，nil 时使用默认值（应答开启）
	Heartbeat *heartbeat.ReceiverConfig `yaml:"heartbeat" json:"heartbeat"`
}

func (c *ServerConfig) validate() error {
	if c.Addr == "" {
		return xerrors.Wrap(ErrInvalidConfig, "addr is required")
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = heartbeat.DefaultInterval
	}
	if c.Grace <= 0 {
		c.Grace = DefaultGrace
	}
	if c.Heartbeat == nil {
		c.Heartbeat = heartbeat.DefaultReceiverConfig()
	}
	return nil
}

// ClientConfig 注册中心客户端配置
type ClientConfig struct {
	// Addr 注册中心地址，如 "127.0.0.1:4242"
	Addr string `yaml:"addr" json:"addr"`

	// HeartbeatInterval 心跳周期，必须与服务端扫描周期一致（默认：5s）
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" json:"heartbeat_interval"`

	// RequestTimeout 单次注册/查询的超时（默认：5s）
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`

	// Breaker 连接器的熔断配置，nil 时使用默认值
	Breaker *breaker.Config `yaml:"breaker" json:"breaker"`
}

func (c *ClientConfig) validate() error {
	if c.Addr == "" {
		return xerrors.Wrap(ErrInvalidConfig, "addr is required")
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = heartbeat.DefaultInterval
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 5 * time.Second
	}
	return nil
}

// ResolverConfig 端点解析器配置
type ResolverConfig struct {
	// CommandingPorts 服务类型到指令端口的映射
	//
	// 端口非零：固定端点，直接拼接 StaticHost:port，不访问注册中心。
	// 端口为零（或缺失）：动态查询注册中心。
	CommandingPorts map[string]int `yaml:"commanding_ports" json:"commanding_ports"`

	// StaticHost 固定端点使用的主机名（默认："127.0.0.1"）
	StaticHost string `yaml:"static_host" json:"static_host"`

	// CacheTTL 动态查询结果的缓存时长（默认：10s）
	CacheTTL time.Duration `yaml:"cache_ttl" json:"cache_ttl"`

	// CacheSize 缓存容量（默认：256）
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

func (c *ResolverConfig) validate() error {
	if c.StaticHost == "" {
		c.StaticHost = "127.0.0.1"
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.CacheSize <= 0 {
		c.CacheSize = DefaultCacheSize
	}
	return nil
}
