// Package registry 提供服务注册中心的服务端与客户端实现。
//
// 注册中心是控制面的权威名录：服务进程启动后注册自己的端点，
// 周期心跳维持活性，消费方按服务类型查询端点。活性判定完全由
// 服务端的扫描循环驱动——心跳缺失的记录先降级 SUSPECT，宽限期
// 耗尽后清除并广播事件，期间一次心跳即可复活。
//
// 包内分四个角色：
//   - Server：TCP 帧服务 + gin 管理端，持有权威注册表
//   - Client：服务进程内嵌的注册/心跳/查询客户端，
//     基于弹性连接器，断线自动重连、失活自动重注册
//   - Resolver：消费方的端点解析器，固定端口直连与
//     动态查询（带 otter 缓存）统一在一个入口后面
//   - table：单写者内存注册表（内部实现）
//
// 基本使用（服务侧）：
//
//	cli, _ := registry.NewClient(&registry.ClientConfig{
//		Addr: "127.0.0.1:4242",
//	}, registry.WithLogger(logger))
//	id, _ := cli.Register(ctx, registry.Registration{
//		ServiceType: "STORAGE",
//		Endpoint:    wire.Endpoint{Protocol: "tcp", Host: "10.0.0.5", Port: 6000},
//	})
//	defer cli.Close()
//
// 基本使用（消费侧）：
//
//	res, _ := registry.NewResolver(&registry.ResolverConfig{
//		CommandingPorts: map[string]int{"STORAGE": 0, "tgf4000_cs": 7010},
//	}, cli)
//	ep, err := res.Resolve(ctx, "STORAGE")
package registry

import (
	"context"
	"time"

	"github.com/ceyewan/nexus/wire"
)

// ========================================
// 接口定义 (Interface Definitions)
// ========================================

// Status 注册表视角的服务状态
type Status string

const (
	// StatusActive 心跳正常
	StatusActive Status = wire.StatusActive
	// StatusSuspect 心跳缺失但仍在宽限期内
	StatusSuspect Status = wire.StatusSuspect
)

// ServiceRecord 注册表中的一条服务记录（只读快照）
type ServiceRecord struct {
	ServiceID    string            `json:"serviceId"`
	ServiceType  string            `json:"serviceType"`
	Endpoint     wire.Endpoint     `json:"endpoint"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Status       Status            `json:"status"`
	RegisteredAt time.Time         `json:"registeredAt"`
	LastSeen     time.Time         `json:"lastSeen"`
	LastSeq      uint64            `json:"lastSeq"`
}

// Registration 服务注册参数
type Registration struct {
	// ServiceType 服务类型，如 "STORAGE"、"tgf4000_cs"
	ServiceType string

	// Endpoint 服务的指令端点
	Endpoint wire.Endpoint

	// Metadata 附加元数据，如 monitoring_port
	Metadata map[string]string
}

// Client 服务进程内嵌的注册中心客户端接口
type Client interface {
	// Register 注册服务并启动心跳
	//
	// 返回注册表分配的 serviceId。重复调用（同一 Client）视为
	// 刷新：携带仍然存活的 serviceId，记录被原地更新。
	// 注册成功后心跳自动开始；应答显示 SUSPECT/UNKNOWN 时
	// 客户端在后台自动重新注册。
	Register(ctx context.Context, reg Registration) (string, error)

	// Lookup 按服务类型查询端点
	//
	// 未找到存活实例时返回 ErrServiceNotFound。
	Lookup(ctx context.Context, serviceType string) (*wire.Endpoint, error)

	// Deregister 注销本客户端注册的服务并停止心跳，幂等
	Deregister(ctx context.Context) error

	// ServiceID 返回当前持有的 serviceId，未注册时为空串
	ServiceID() string

	// Close 停止心跳、关闭连接，幂等
	Close() error
}

// Resolver 消费方端点解析器接口
//
// 固定端口（配置的指令端口非零）与动态查询（为零，走注册中心）
// 两种部署形态对调用方完全透明。
type Resolver interface {
	// Resolve 解析服务类型到端点
	//
	// 动态查询的结果带 TTL 缓存；解析失败返回 ErrEndpointUnavailable。
	Resolve(ctx context.Context, serviceType string) (*wire.Endpoint, error)

	// Invalidate 作废某服务类型的缓存条目
	//
	// 消费方连接端点失败后调用，下一次 Resolve 重新查询。
	Invalidate(serviceType string)

	// Active 探测某服务类型当前是否可达
	//
	// 解析端点并做一次 TCP 探测，不建立会话。探测失败时
	// 顺带作废缓存条目。
	Active(ctx context.Context, serviceType string) bool

	// Close 释放缓存资源
	Close() error
}

// Publisher 注册中心向通知枢纽广播事件所需的最小能力。
// notify 包的客户端与内嵌枢纽均满足此接口。
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, headers map[string]string) error
}

// TopicServiceExpired 服务记录被清除时广播的主题
const TopicServiceExpired = "registry.service.expired"

// ExpiredEvent 服务过期事件载荷（msgpack 编码后发布）
type ExpiredEvent struct {
	ServiceID   string        `msgpack:"s" json:"serviceId"`
	ServiceType string        `msgpack:"t" json:"serviceType"`
	Endpoint    wire.Endpoint `msgpack:"e" json:"endpoint"`
	ExpiredAt   int64         `msgpack:"ts" json:"expiredAt"` // UnixNano
}
