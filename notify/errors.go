package notify

import "github.com/ceyewan/nexus/xerrors"

// ========================================
// 预定义错误
// ========================================

var (
	// ErrConfigNil 配置为空
	ErrConfigNil = xerrors.New("notify: config is nil")

	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = xerrors.New("notify: invalid config")

	// ErrClosed 后端已关闭
	ErrClosed = xerrors.New("notify: closed")

	// ErrTopicEmpty 主题为空
	ErrTopicEmpty = xerrors.New("notify: topic is empty")

	// ErrHandlerNil 处理函数为空
	ErrHandlerNil = xerrors.New("notify: handler is nil")
)
