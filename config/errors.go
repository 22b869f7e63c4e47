package config

import "github.com/ceyewan/nexus/xerrors"

// 错误定义
var (
	// ErrNotLoaded Load 尚未调用
	ErrNotLoaded = xerrors.New("config: not loaded")

	// ErrValidationFailed 验证失败
	ErrValidationFailed = xerrors.New("config: validation failed")
)
