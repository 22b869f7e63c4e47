// Package clog 为 Nexus 控制面基础库提供基于 slog 的结构化日志组件。
//
// 特性：
//   - 抽象接口，不暴露底层实现（slog）
//   - 支持层级命名空间，适配"一个注册中心 + 多个控制服务"的部署形态
//   - 支持运行时动态调整级别（NEXUS_DEBUG 环境变量可直接提升为 debug）
//   - 采用函数式选项模式，符合 Nexus 组件标准
//
// 基本使用：
//
//	logger, _ := clog.New(&clog.Config{
//	    Level:  "info",
//	    Format: "console",
//	    Output: "stdout",
//	})
//	logger.Info("service registered", clog.String("service_type", "STORAGE"))
//
// 心跳、熔断等时序敏感路径只应使用 Debug 级别输出诊断细节，
// 保证诊断量不影响这些路径的节拍。
package clog

import (
	"fmt"
	"os"
)

// New 创建一个新的 Logger 实例
//
// config - 日志配置，如果为 nil 会使用默认配置
// opts   - 函数式选项列表，用于命名空间等配置
func New(config *Config, opts ...Option) (Logger, error) {
	if config == nil {
		config = NewDevDefaultConfig("nexus")
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// NEXUS_DEBUG 环境变量强制提升为 debug 级别
	if v := os.Getenv("NEXUS_DEBUG"); v == "1" || v == "true" {
		config.Level = "debug"
	}

	options := applyOptions(opts...)

	return newLogger(config, options)
}

// Discard 创建一个静默的 Logger 实例
//
// 返回的 Logger 实现了 Logger 接口，但所有方法体都是空操作。
func Discard() Logger {
	return &noopLogger{}
}
