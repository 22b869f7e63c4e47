// Package metrics 为 Nexus 提供统一的指标收集能力。
// 基于 OpenTelemetry 标准构建，提供简洁的 Counter、Gauge、Histogram 指标接口，
// 并通过 Prometheus Exporter 暴露。
//
// 快速开始：
//
//	meter, _ := metrics.New(&metrics.Config{
//	    Enabled:     true,
//	    ServiceName: "registry",
//	})
//	counter, _ := meter.Counter("registry_heartbeats_total", "收到的心跳帧总数")
//	counter.Inc(ctx, metrics.L("service_type", "STORAGE"))
package metrics

import (
	"context"
	"net/http"
)

// Counter 计数器接口，记录只增不减的累计值
//
// 典型场景：心跳帧总数、熔断器状态切换次数、发布事件总数。
type Counter interface {
	// Inc 将计数器增加 1
	Inc(ctx context.Context, labels ...Label)

	// Add 将计数器增加给定的值（应为正数）
	Add(ctx context.Context, val float64, labels ...Label)
}

// Gauge 仪表盘接口，记录可增可减的瞬时值
//
// 典型场景：注册表当前记录数、活跃订阅数、连接器会话状态。
type Gauge interface {
	// Set 将 gauge 设置为给定的值
	Set(ctx context.Context, val float64, labels ...Label)

	// Inc 将 gauge 增加 1
	Inc(ctx context.Context, labels ...Label)

	// Dec 将 gauge 减少 1
	Dec(ctx context.Context, labels ...Label)
}

// Histogram 直方图接口，记录数值分布
//
// 典型场景：拨号耗时、事件投递耗时。
type Histogram interface {
	// Record 记录一个观测值
	Record(ctx context.Context, val float64, labels ...Label)
}

// Meter 指标工厂接口
type Meter interface {
	// Counter 创建计数器
	Counter(name string, desc string) (Counter, error)

	// Gauge 创建仪表盘
	Gauge(name string, desc string) (Gauge, error)

	// Histogram 创建直方图
	Histogram(name string, desc string) (Histogram, error)

	// Handler 返回 Prometheus 指标的 HTTP Handler，
	// 由上层（如 registry 管理端）挂载到自身的 HTTP 服务上
	Handler() http.Handler

	// Shutdown 关闭 MeterProvider 并刷出未导出的指标
	Shutdown(ctx context.Context) error
}
