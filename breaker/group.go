package breaker

import (
	"context"
	"sync"
)

// Group 按键独立的熔断器组
//
// 每个键（通常是目标服务名或端点地址）持有独立的引擎实例，
// 一个目标的故障不会触发其他目标的熔断。
// 供 gRPC 拦截器等同时面对多个下游的场景使用。
type Group struct {
	cfg      *Config
	opts     []Option
	breakers sync.Map // map[string]Breaker
}

// NewGroup 创建熔断器组
//
// cfg 作为组内每个引擎的模板配置。
func NewGroup(cfg *Config, opts ...Option) (*Group, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Group{cfg: cfg, opts: opts}, nil
}

// Get 返回键对应的熔断器，不存在时创建
func (g *Group) Get(key string) (Breaker, error) {
	if key == "" {
		return nil, ErrKeyEmpty
	}

	if val, ok := g.breakers.Load(key); ok {
		return val.(Breaker), nil
	}

	opts := append([]Option{WithName(key)}, g.opts...)
	brk, err := New(g.cfg, opts...)
	if err != nil {
		return nil, err
	}

	actual, _ := g.breakers.LoadOrStore(key, brk)
	return actual.(Breaker), nil
}

// Execute 在键对应的熔断器上执行 fn
func (g *Group) Execute(ctx context.Context, key string, fn func() error) error {
	brk, err := g.Get(key)
	if err != nil {
		return err
	}
	return brk.Execute(ctx, fn)
}

// State 返回键对应熔断器的状态；从未使用过的键视为 CLOSED
func (g *Group) State(key string) State {
	if val, ok := g.breakers.Load(key); ok {
		return val.(Breaker).State()
	}
	return StateClosed
}

// Reset 丢弃键对应的熔断器，下次使用时重建为 CLOSED
// 用于运维场景的强制恢复
func (g *Group) Reset(key string) {
	g.breakers.Delete(key)
}
