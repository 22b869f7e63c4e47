package clog

import "strings"

// NamespaceKey 是日志中命名空间的字段名，用于标识服务模块
const NamespaceKey = "namespace"

// Option 组件初始化选项函数
type Option func(*options)

// options 组件初始化选项配置（内部使用，小写）
type options struct {
	namespaceParts []string
}

// applyOptions 应用所有选项并返回配置（内部使用）
func applyOptions(opts ...Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithNamespace 设置根命名空间
//
// 多个 parts 以 "." 连接：
//
//	clog.New(cfg, clog.WithNamespace("storage_cs", "devif"))
//	// namespace = "storage_cs.devif"
func WithNamespace(parts ...string) Option {
	return func(o *options) {
		o.namespaceParts = append(o.namespaceParts, parts...)
	}
}

// namespaceString 生成完整的命名空间字符串（内部使用）
func (o *options) namespaceString() string {
	if o == nil || len(o.namespaceParts) == 0 {
		return ""
	}
	return strings.Join(o.namespaceParts, ".")
}
