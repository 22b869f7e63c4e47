package registry

import "github.com/ceyewan/nexus/xerrors"

// ========================================
// 预定义错误
// ========================================

var (
	// ErrConfigNil 配置为空
	ErrConfigNil = xerrors.New("registry: config is nil")

	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = xerrors.New("registry: invalid config")

	// ErrServiceNotFound 没有该类型的存活实例
	//
	// 这是协议层的"合法空结果"，不代表链路故障，
	// 不计入连接器的熔断统计。
	ErrServiceNotFound = xerrors.New("registry: service not found")

	// ErrNotRegistered 客户端尚未注册
	ErrNotRegistered = xerrors.New("registry: not registered")

	// ErrEndpointUnavailable 端点解析失败
	ErrEndpointUnavailable = xerrors.New("registry: endpoint unavailable")

	// ErrServerClosed 服务端已关闭
	ErrServerClosed = xerrors.New("registry: server closed")
)
