package connector

import (
	"time"

	"github.com/ceyewan/nexus/breaker"
	"github.com/ceyewan/nexus/xerrors"
)

// =============================================================================
// 配置
// =============================================================================

const (
	defaultDialTimeout = 5 * time.Second
	defaultSendTimeout = 5 * time.Second
)

// TCPConfig 控制面 TCP 连接器配置。
type TCPConfig struct {
	// Name 连接器名称，用于日志与指标。默认取 Addr。
	Name string `json:"name" yaml:"name"`

	// Addr 远端地址，host:port 格式。
	Addr string `json:"addr" yaml:"addr"`

	// DialTimeout 拨号超时，默认 5s。
	DialTimeout time.Duration `json:"dialTimeout" yaml:"dialTimeout"`

	// SendTimeout 单次请求默认超时，默认 5s。
	// 调用方 ctx 携带更早的 deadline 时以 ctx 为准。
	SendTimeout time.Duration `json:"sendTimeout" yaml:"sendTimeout"`

	// Breaker 熔断配置，nil 时使用默认值。
	Breaker *breaker.Config `json:"breaker" yaml:"breaker"`
}

func (c *TCPConfig) setDefaults() {
	if c.Name == "" {
		c.Name = c.Addr
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = defaultSendTimeout
	}
}

func (c *TCPConfig) validate() error {
	if c.Addr == "" {
		return xerrors.Wrap(ErrInvalidConfig, "addr is required")
	}
	return nil
}

// NATSConfig NATS 连接器配置。
type NATSConfig struct {
	Name string `json:"name" yaml:"name"`

	// URL NATS 服务器地址，默认 nats://127.0.0.1:4222。
	URL string `json:"url" yaml:"url"`

	// Subject Send 使用的请求主题，默认 nexus.rpc。
	Subject string `json:"subject" yaml:"subject"`

	DialTimeout time.Duration   `json:"dialTimeout" yaml:"dialTimeout"`
	SendTimeout time.Duration   `json:"sendTimeout" yaml:"sendTimeout"`
	Breaker     *breaker.Config `json:"breaker" yaml:"breaker"`
}

func (c *NATSConfig) setDefaults() {
	if c.URL == "" {
		c.URL = "nats://127.0.0.1:4222"
	}
	if c.Name == "" {
		c.Name = c.URL
	}
	if c.Subject == "" {
		c.Subject = "nexus.rpc"
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = defaultSendTimeout
	}
}

func (c *NATSConfig) validate() error {
	if c.URL == "" {
		return xerrors.Wrap(ErrInvalidConfig, "url is required")
	}
	return nil
}

// RedisConfig Redis 连接器配置。
type RedisConfig struct {
	Name string `json:"name" yaml:"name"`

	// Addr Redis 地址，默认 127.0.0.1:6379。
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`

	// PoolSize 连接池大小，默认 10。
	PoolSize int `json:"poolSize" yaml:"poolSize"`

	DialTimeout time.Duration   `json:"dialTimeout" yaml:"dialTimeout"`
	Breaker     *breaker.Config `json:"breaker" yaml:"breaker"`
}

func (c *RedisConfig) setDefaults() {
	if c.Addr == "" {
		c.Addr = "127.0.0.1:6379"
	}
	if c.Name == "" {
		c.Name = c.Addr
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
}

// EtcdConfig Etcd 连接器配置。
type EtcdConfig struct {
	Name string `json:"name" yaml:"name"`

	// Endpoints 集群地址列表，默认 ["127.0.0.1:2379"]。
	Endpoints []string `json:"endpoints" yaml:"endpoints"`
	Username  string   `json:"username" yaml:"username"`
	Password  string   `json:"password" yaml:"password"`

	DialTimeout time.Duration   `json:"dialTimeout" yaml:"dialTimeout"`
	Breaker     *breaker.Config `json:"breaker" yaml:"breaker"`
}

func (c *EtcdConfig) setDefaults() {
	if len(c.Endpoints) == 0 {
		c.Endpoints = []string{"127.0.0.1:2379"}
	}
	if c.Name == "" {
		c.Name = c.Endpoints[0]
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
}

// MySQLConfig MySQL 连接器配置。
type MySQLConfig struct {
	Name string `json:"name" yaml:"name"`

	// DSN 数据源，如 user:pass@tcp(127.0.0.1:3306)/nexus?parseTime=true。
	DSN string `json:"dsn" yaml:"dsn"`

	// MaxOpenConns 最大打开连接数，默认 25。
	MaxOpenConns int `json:"maxOpenConns" yaml:"maxOpenConns"`
	// MaxIdleConns 最大空闲连接数，默认 5。
	MaxIdleConns int `json:"maxIdleConns" yaml:"maxIdleConns"`

	DialTimeout time.Duration   `json:"dialTimeout" yaml:"dialTimeout"`
	Breaker     *breaker.Config `json:"breaker" yaml:"breaker"`
}

func (c *MySQLConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "mysql"
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 5
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
}

func (c *MySQLConfig) validate() error {
	if c.DSN == "" {
		return xerrors.Wrap(ErrInvalidConfig, "dsn is required")
	}
	return nil
}

// SQLiteConfig SQLite 连接器配置。
type SQLiteConfig struct {
	Name string `json:"name" yaml:"name"`

	// Path 数据库文件路径，":memory:" 表示内存数据库。默认内存库。
	Path string `json:"path" yaml:"path"`

	Breaker *breaker.Config `json:"breaker" yaml:"breaker"`
}

func (c *SQLiteConfig) setDefaults() {
	if c.Path == "" {
		c.Path = ":memory:"
	}
	if c.Name == "" {
		c.Name = "sqlite"
	}
}
