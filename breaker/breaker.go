// Package breaker 提供退避/熔断引擎，是所有弹性连接器的决策核心。
//
// breaker 是 Nexus 控制面的纯状态机组件，不做任何 I/O，它提供了：
// - CLOSED / OPEN / HALF_OPEN 三态熔断
// - 连续失败计数，越过阈值后熔断
// - 指数退避（含抖动），避免共享注册中心被重连风暴打垮
// - HALF_OPEN 状态下恰好一次探测
// - 按键独立的熔断器组（Group），供 gRPC 拦截器等多目标场景使用
//
// 同步和并发两种连接器共用同一个状态机语义，差异只在外围 I/O。
//
// ## 基本使用
//
//	brk, _ := breaker.New(&breaker.Config{
//		FailureThreshold: 5,
//		MinBackoff:       500 * time.Millisecond,
//		MaxBackoff:       30 * time.Second,
//	}, breaker.WithLogger(logger))
//
//	if !brk.CanAttempt() {
//		return breaker.ErrOpenState
//	}
//	if err := dial(); err != nil {
//		brk.OnFailure()
//		return err
//	}
//	brk.OnSuccess()
//
// ## 状态语义
//
// - CLOSED: 所有尝试放行；OnFailure 递增连续失败计数，
//   越过 FailureThreshold 后转为 OPEN 并计算退避。
// - OPEN: CanAttempt 返回 false，直到退避期满；期满后自转为
//   HALF_OPEN 并放行恰好一次探测。
// - HALF_OPEN: OnSuccess 清零计数和退避、转回 CLOSED；
//   OnFailure 重新进入 OPEN，退避加倍（不超过上限）。
package breaker

import (
	"context"
	"time"
)

// ========================================
// 接口定义 (Interface Definitions)
// ========================================

// Breaker 单实例熔断引擎接口
//
// 每个弹性连接器持有自己的 Breaker 实例，互不共享，
// 保证一个抖动的对端不会波及无关链路。
type Breaker interface {
	// CanAttempt 判断当前是否允许发起一次连接尝试
	//
	// OPEN 状态退避期满时自转为 HALF_OPEN；HALF_OPEN 状态下
	// 本方法会占用唯一的探测名额：第一次调用返回 true，
	// 在 OnSuccess/OnFailure 报告结果之前的后续调用返回 false。
	CanAttempt() bool

	// OnSuccess 报告一次成功的尝试
	OnSuccess()

	// OnFailure 报告一次失败的尝试（传输类失败或超时）
	OnFailure()

	// NextDelay 返回距下一次允许尝试的剩余时长
	//
	// OPEN 状态返回剩余退避时间；CLOSED/HALF_OPEN 返回 0。
	NextDelay() time.Duration

	// State 返回当前熔断状态
	State() State

	// Execute 便捷封装：CanAttempt 闸门 + 执行 + 结果上报
	//
	// 熔断打开时返回 ErrOpenState，不触碰 fn。
	// fn 返回的错误原样透传并记为一次失败。
	Execute(ctx context.Context, fn func() error) error
}

// State 熔断器状态
type State int

const (
	// StateClosed 闭合状态（正常）
	StateClosed State = iota
	// StateHalfOpen 半开状态（探测恢复）
	StateHalfOpen
	// StateOpen 打开状态（熔断中）
	StateOpen
)

// String 返回状态的字符串表示
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// New 创建熔断引擎实例
//
// cfg 为 nil 时返回 ErrConfigNil。
func New(cfg *Config, opts ...Option) (Breaker, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	opt := &options{}
	for _, o := range opts {
		o(opt)
	}
	opt.applyDefaults()

	return newEngine(cfg, opt), nil
}
