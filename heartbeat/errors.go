package heartbeat

import "github.com/ceyewan/nexus/xerrors"

var (
	// ErrConfigNil 配置为空
	ErrConfigNil = xerrors.New("heartbeat: config is nil")

	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = xerrors.New("heartbeat: invalid config")

	// ErrNotifierNil 未提供连接器
	ErrNotifierNil = xerrors.New("heartbeat: notifier is nil")

	// ErrRecorderNil 未提供注册表
	ErrRecorderNil = xerrors.New("heartbeat: recorder is nil")
)
