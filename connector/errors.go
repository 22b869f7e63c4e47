package connector

import "github.com/ceyewan/nexus/xerrors"

// =============================================================================
// 预定义错误
// =============================================================================

var (
	// ErrConnection 连接建立失败（拨号失败、握手失败）。
	ErrConnection = xerrors.New("connector: connection failed")

	// ErrCircuitOpen 熔断打开，本次操作被快速拒绝，未触碰网络。
	// 调用方可通过 NextDelay 查询下一次允许尝试的时间。
	ErrCircuitOpen = xerrors.New("connector: circuit open")

	// ErrNotConnected 会话当前不可用。并发变体在唤醒后台重连
	// 循环后立即返回此错误，调用方稍后重试。
	ErrNotConnected = xerrors.New("connector: not connected")

	// ErrTransport 传输层失败（发送失败、读失败、超时）。
	// 此类失败计入熔断统计并导致会话重建。
	ErrTransport = xerrors.New("connector: transport failure")

	// ErrProtocol 协议层错误：链路正常但载荷不合法。
	// 不计入熔断统计，不触发会话重建。
	ErrProtocol = xerrors.New("connector: protocol error")

	// ErrTimeout 操作超时。按传输失败处理。
	ErrTimeout = xerrors.New("connector: operation timed out")

	// ErrClosed 连接器已关闭，不再接受任何操作。
	ErrClosed = xerrors.New("connector: closed")

	// ErrInvalidConfig 配置无效。
	ErrInvalidConfig = xerrors.New("connector: invalid config")
)
