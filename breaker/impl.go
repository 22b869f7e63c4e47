package breaker

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/ceyewan/nexus/clog"
)

// engine 熔断引擎实现（非导出）
//
// 所有方法并发安全；锁只保护内存状态，从不跨 I/O 持有。
type engine struct {
	mu  sync.Mutex
	cfg *Config
	opt *options

	state               State
	consecutiveFailures int
	currentBackoff      time.Duration
	nextRetryAt         time.Time
	probeTaken          bool // HALF_OPEN 下探测名额是否已被占用

	// now 可注入的时钟，测试用；默认 time.Now
	now func() time.Time
}

// newEngine 创建引擎实例（内部函数）
func newEngine(cfg *Config, opt *options) *engine {
	return &engine{
		cfg: cfg,
		opt: opt,
		now: time.Now,
	}
}

func (e *engine) CanAttempt() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateClosed:
		return true
	case StateOpen:
		if e.now().Before(e.nextRetryAt) {
			return false
		}
		// 退避期满，自转为 HALF_OPEN 并占用唯一探测名额
		e.transition(StateHalfOpen)
		e.probeTaken = true
		return true
	case StateHalfOpen:
		if e.probeTaken {
			return false
		}
		e.probeTaken = true
		return true
	default:
		return false
	}
}

func (e *engine) OnSuccess() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.consecutiveFailures = 0
	e.probeTaken = false

	if e.state != StateClosed {
		e.currentBackoff = 0
		e.nextRetryAt = time.Time{}
		e.transition(StateClosed)
	}
}

func (e *engine) OnFailure() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.consecutiveFailures++
	e.probeTaken = false

	switch e.state {
	case StateClosed:
		if e.consecutiveFailures >= e.cfg.FailureThreshold {
			e.trip()
		}
	case StateHalfOpen:
		// 探测失败，退避加倍后重新熔断
		e.trip()
	case StateOpen:
		// OPEN 状态不应有在途尝试；容忍乱序上报，仅延长退避起点
		e.trip()
	}
}

func (e *engine) NextDelay() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateOpen {
		return 0
	}
	d := e.nextRetryAt.Sub(e.now())
	if d < 0 {
		return 0
	}
	return d
}

func (e *engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	// 对外呈现与 CanAttempt 一致的视图：退避期满即视为 HALF_OPEN
	if e.state == StateOpen && !e.now().Before(e.nextRetryAt) {
		return StateHalfOpen
	}
	return e.state
}

func (e *engine) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if !e.CanAttempt() {
		return ErrOpenState
	}

	if err := fn(); err != nil {
		e.OnFailure()
		return err
	}

	e.OnSuccess()
	return nil
}

// trip 进入（或重新进入）OPEN 状态并计算退避，调用方必须持锁
func (e *engine) trip() {
	if e.currentBackoff == 0 {
		e.currentBackoff = e.cfg.MinBackoff
	} else {
		e.currentBackoff *= 2
		if e.currentBackoff > e.cfg.MaxBackoff {
			e.currentBackoff = e.cfg.MaxBackoff
		}
	}

	jitter := time.Duration(0)
	if e.cfg.JitterRatio > 0 {
		jitter = time.Duration(rand.Int63n(int64(float64(e.currentBackoff)*e.cfg.JitterRatio) + 1))
	}
	e.nextRetryAt = e.now().Add(e.currentBackoff + jitter)
	e.transition(StateOpen)
}

// transition 状态切换 + 日志/指标，调用方必须持锁
//
// 日志在此处产生，每次状态切换恰好一条，避免故障期间按尝试刷日志。
func (e *engine) transition(to State) {
	from := e.state
	if from == to {
		return
	}
	e.state = to

	e.opt.logger.Info("circuit breaker state changed",
		clog.String("from", from.String()),
		clog.String("to", to.String()),
		clog.Int("consecutive_failures", e.consecutiveFailures),
		clog.Duration("backoff", e.currentBackoff))

	if e.opt.transitions != nil {
		e.opt.transitions.Inc(context.Background(),
			transitionLabels(e.opt.name, from, to)...)
	}
}
