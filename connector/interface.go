// Package connector 为 Nexus 提供弹性连接管理能力。
//
// 每个连接器维护到一个命名远端的逻辑会话，内置独立的熔断引擎：
// 连接失败按指数退避重试，熔断打开时快速失败而不触碰网络，
// 一个抖动的对端不会拖垮无关链路。注册中心客户端、通知枢纽客户端
// 和各设备控制服务的下游会话都复用这套语义。
//
// 核心特性：
//   - 统一抽象：Connector 接口提供一致的会话管理 API
//   - 熔断保护：每个连接器实例持有自己的 breaker，互不共享
//   - 单飞拨号：同一连接器任一时刻至多一次拨号在途
//   - 类型安全：TypedConnector[T] 泛型接口暴露底层客户端
//   - 多端点支持：控制面 TCP、NATS、Redis、Etcd、MySQL、SQLite
//   - 两种执行模型：同步变体在调用方 goroutine 上拨号，
//     并发变体（NewAsync）由后台 goroutine 负责重连，语义相同
//
// 基本使用：
//
//	conn, _ := connector.NewTCP(&connector.TCPConfig{
//		Name: "registry",
//		Addr: "127.0.0.1:4242",
//	}, connector.WithLogger(logger))
//	defer conn.Close()
//
//	if err := conn.EnsureConnected(ctx); err != nil {
//		// 熔断打开时得到 ErrCircuitOpen，调用方不会阻塞在注定失败的拨号上
//		return err
//	}
//	reply, err := conn.Request(ctx, frame)
//
// 失败语义：
//
//	传输类失败（拨号失败、发送失败、超时）计入熔断统计并关闭会话，
//	下次使用时重建；协议类错误（链路正常但载荷有问题）原样上抛，
//	不触发熔断——链路没坏，坏的是请求。
//
// 资源所有权：
//
//	Connector 拥有底层会话的生命周期，应通过 defer 确保 Close() 被调用。
//	上层组件（registry.Client、notify 订阅端）仅借用连接器，不调用 Close()。
package connector

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	clientv3 "go.etcd.io/etcd/client/v3"
	"gorm.io/gorm"

	"github.com/ceyewan/nexus/breaker"
	"github.com/ceyewan/nexus/wire"
)

// =============================================================================
// 基础接口
// =============================================================================

// Connector 定义所有弹性连接器的通用行为。
//
// 接口方法均为并发安全，可从多个 goroutine 同时调用。
type Connector interface {
	// Connect 尝试建立会话。
	//
	// 幂等：已连接时直接返回 nil。熔断允许时发起拨号并把结果
	// 上报给熔断引擎；熔断打开时返回 ErrCircuitOpen，不触碰网络。
	// 同一连接器任一时刻至多一次拨号在途。
	Connect(ctx context.Context) error

	// EnsureConnected 在每次使用会话前调用。
	//
	// 会话可用时零开销返回；不可用时行为取决于执行模型：
	// 同步变体就地调用 Connect，并发变体唤醒后台重连循环后
	// 立即返回 ErrNotConnected 或 ErrCircuitOpen。
	EnsureConnected(ctx context.Context) error

	// Close 关闭会话并释放资源，幂等。
	Close() error

	// IsConnected 返回会话当前是否可用（无阻塞）。
	IsConnected() bool

	// State 返回熔断引擎的当前状态。
	State() breaker.State

	// NextDelay 返回距下一次允许拨号的剩余时长（熔断打开时非零）。
	NextDelay() time.Duration

	// Generation 返回会话代数，每次成功建连递增。
	// 缓存上次见到的代数即可察觉会话翻转（断开又重连）。
	Generation() uint64

	// Name 返回连接器实例名称，用于日志和指标标识。
	Name() string
}

// Sender 支持请求/应答式数据交换的连接器。
//
// 控制面 TCP 会话和 NATS 会话实现此接口；数据库类连接器
// 通过 TypedConnector 暴露原生客户端，不提供 Send。
type Sender interface {
	Connector

	// Send 在活动会话上发送载荷并等待应答。
	//
	// 传输类失败会关闭会话并计入熔断统计；协议类错误
	//（ErrProtocol 包装）原样上抛、不计入熔断。
	Send(ctx context.Context, payload []byte) ([]byte, error)
}

// TypedConnector 提供类型安全的客户端访问。
//
// 类型参数 T 是客户端类型，如 *redis.Client、*gorm.DB。
// 在 Connect 之前或 Close 之后调用 GetClient 可能返回零值。
type TypedConnector[T any] interface {
	Connector

	GetClient() T
}

// =============================================================================
// 具体连接器接口
// =============================================================================

// TCPConnector 控制面 TCP 连接器接口。
//
// 在 wire 帧协议上提供异步的、按 Seq 匹配应答的交换模式：
// 发送不被未完成的应答阻塞，对端中途消失不会卡死连接。
type TCPConnector interface {
	Sender

	// Request 发送一帧并等待 Seq 匹配的应答帧。
	Request(ctx context.Context, f *wire.Frame) (*wire.Frame, error)

	// Notify 发送一帧，不等待应答（心跳等 fire-and-forget 场景）。
	Notify(ctx context.Context, f *wire.Frame) error

	// Handle 设置未匹配帧（事件、心跳应答）的处理函数。
	// 处理函数在 reader goroutine 上调用，不应阻塞。
	Handle(fn func(*wire.Frame))
}

// NATSConnector NATS 连接器接口。
//
// 会话重建由本连接器的熔断引擎统一治理，NATS 客户端自带的
// 重连机制被关闭，避免两套重试策略叠加。
type NATSConnector interface {
	TypedConnector[*nats.Conn]
	Sender
}

// RedisConnector Redis 连接器接口。
type RedisConnector interface {
	TypedConnector[*redis.Client]
}

// EtcdConnector Etcd 连接器接口。
type EtcdConnector interface {
	TypedConnector[*clientv3.Client]
}

// MySQLConnector MySQL 连接器接口，基于 GORM。
type MySQLConnector interface {
	TypedConnector[*gorm.DB]
}

// SQLiteConnector SQLite 连接器接口，基于 GORM。
// 支持内存数据库和文件数据库，适合测试和嵌入式场景。
type SQLiteConnector interface {
	TypedConnector[*gorm.DB]
}
