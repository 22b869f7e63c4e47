package config

import "strings"

// Config 配置加载器自身的配置
type Config struct {
	Name      string   // 配置文件名称（不含扩展名），默认 "nexus"
	Paths     []string // 配置文件搜索路径，默认 ["./", "./config"]
	FileType  string   // 配置文件类型 (yaml, json, etc.)
	EnvPrefix string   // 环境变量前缀，默认 "NEXUS"
}

// validate 设置默认值并验证配置
func (c *Config) validate() error {
	if c.Name == "" {
		c.Name = "nexus"
	}
	if c.Paths == nil {
		c.Paths = []string{".", "./config"}
	}
	if c.FileType == "" {
		c.FileType = "yaml"
	}
	if c.EnvPrefix == "" {
		c.EnvPrefix = "NEXUS"
	}
	c.EnvPrefix = strings.ToUpper(c.EnvPrefix)
	return nil
}

// New 创建配置加载器。cfg 为 nil 时使用默认配置。
func New(cfg *Config) (Loader, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return newLoader(cfg), nil
}

// Bootstrap 是控制面核心依赖的外部配置
//
// CommandingPorts 按服务类型给出固定的指令端口；值为 0 表示该类型
// 没有固定端口，端点必须通过注册中心动态解析。
type Bootstrap struct {
	// Registry 注册中心自身的监听地址（唯一必须预先知道的端点）
	Registry RegistryConfig `mapstructure:"registry" yaml:"registry" json:"registry"`

	// CommandingPorts 服务类型 → 固定端口（0 = 动态发现）
	CommandingPorts map[string]int `mapstructure:"commanding_ports" yaml:"commanding_ports" json:"commanding_ports"`
}

// RegistryConfig 注册中心地址配置
type RegistryConfig struct {
	Host string `mapstructure:"host" yaml:"host" json:"host"`
	Port int    `mapstructure:"port" yaml:"port" json:"port"`
}

// CommandingPort 返回服务类型的固定端口；未配置时返回 0（动态发现）
func (b *Bootstrap) CommandingPort(serviceType string) int {
	if b == nil || b.CommandingPorts == nil {
		return 0
	}
	return b.CommandingPorts[serviceType]
}
