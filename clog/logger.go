package clog

import "context"

// Logger 日志接口，提供结构化日志记录功能
//
// 支持五个日志级别：Debug、Info、Warn、Error、Fatal，
// 每个级别都有带 Context 和不带 Context 的版本。
//
// 创建子 Logger：
//
//	hbLogger := logger.WithNamespace("heartbeat")
//	peerLogger := hbLogger.With(clog.String("service_id", id))
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	DebugContext(ctx context.Context, msg string, fields ...Field)
	InfoContext(ctx context.Context, msg string, fields ...Field)
	WarnContext(ctx context.Context, msg string, fields ...Field)
	ErrorContext(ctx context.Context, msg string, fields ...Field)
	FatalContext(ctx context.Context, msg string, fields ...Field)

	// With 创建一个带有预设字段的子 Logger，预设字段出现在所有日志中
	With(fields ...Field) Logger

	// WithNamespace 创建一个扩展命名空间的子 Logger
	//
	// 命名空间追加到现有命名空间后面，以 "." 连接：
	//
	//	logger.WithNamespace("registry").WithNamespace("sweep")
	//	// namespace = "registry.sweep"
	WithNamespace(parts ...string) Logger

	// SetLevel 动态调整日志级别，运行时生效，不需要重新创建 Logger
	SetLevel(level Level) error

	// Flush 强制同步所有缓冲区的日志
	Flush()
}
