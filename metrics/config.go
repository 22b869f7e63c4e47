package metrics

// Config 指标系统配置
//
// 典型配置示例（YAML）：
//
//	metrics:
//	  enabled: true
//	  service_name: "registry"
//	  version: "v1.0.0"
type Config struct {
	// Enabled 是否启用指标收集
	// 为 false 时 metrics.New() 返回 noop Meter，所有操作都是空操作
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// ServiceName 服务名称，作为 OTel Resource 的 service.name 属性
	ServiceName string `mapstructure:"service_name" yaml:"service_name" json:"service_name"`

	// Version 服务版本，作为 OTel Resource 的 service.version 属性
	Version string `mapstructure:"version" yaml:"version" json:"version"`
}

// NewDevDefaultConfig 返回适合开发/测试环境的默认配置（禁用导出）
func NewDevDefaultConfig(serviceName string) *Config {
	return &Config{
		Enabled:     false,
		ServiceName: serviceName,
	}
}

// NewProdDefaultConfig 返回适合生产环境的默认配置
func NewProdDefaultConfig(serviceName string) *Config {
	return &Config{
		Enabled:     true,
		ServiceName: serviceName,
	}
}
