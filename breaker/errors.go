package breaker

import "github.com/ceyewan/nexus/xerrors"

// 错误定义
var (
	// ErrConfigNil 配置为空
	ErrConfigNil = xerrors.New("breaker: config is nil")

	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = xerrors.New("breaker: invalid config")

	// ErrOpenState 熔断器处于打开状态，尝试被拒绝
	ErrOpenState = xerrors.New("breaker: circuit breaker is open")

	// ErrKeyEmpty 熔断键为空（仅 Group 使用）
	ErrKeyEmpty = xerrors.New("breaker: key is empty")
)
