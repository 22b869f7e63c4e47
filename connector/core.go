package connector

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ceyewan/nexus/breaker"
	"github.com/ceyewan/nexus/clog"
	"github.com/ceyewan/nexus/metrics"
	"github.com/ceyewan/nexus/xerrors"
)

// =============================================================================
// 弹性核心
// =============================================================================

// core 封装所有连接器共享的弹性语义：熔断闸门、单飞拨号、
// 会话状态跟踪。各传输实现只提供 dialFn / closeFn，
// 拨号的时机与结果上报由 core 统一治理。
type core struct {
	name   string
	brk    breaker.Breaker
	logger clog.Logger

	dialTimeout time.Duration

	// dialFn 建立底层会话，closeFn 关闭它。
	// 两者仅在 mu 持有期间调用。
	dialFn  func(ctx context.Context) error
	closeFn func() error

	dials        metrics.Counter
	dialFailures metrics.Counter

	mu        sync.Mutex
	connected atomic.Bool
	closed    atomic.Bool

	// gen 每次成功建连递增，调用方据此察觉会话翻转
	gen atomic.Uint64
}

func newCore(name string, brkCfg *breaker.Config, dialTimeout time.Duration, opt *options) (*core, error) {
	if brkCfg == nil {
		brkCfg = breaker.DefaultConfig()
	}
	brk, err := breaker.New(brkCfg,
		breaker.WithName(name),
		breaker.WithLogger(opt.logger),
		breaker.WithMeter(opt.meter))
	if err != nil {
		return nil, err
	}

	c := &core{
		name:        name,
		brk:         brk,
		logger:      opt.logger.With(clog.String("connector", name)),
		dialTimeout: dialTimeout,
	}
	if opt.meter != nil {
		c.dials, _ = opt.meter.Counter(
			"connector_dials_total", "连接器拨号尝试总数")
		c.dialFailures, _ = opt.meter.Counter(
			"connector_dial_failures_total", "连接器拨号失败总数")
	}
	return c, nil
}

// Connect 尝试建立会话。熔断闸门内的单飞拨号：
// 同一连接器的并发 Connect 串行化，后到者复用先到者的结果。
func (c *core) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return ErrClosed
	}
	if c.connected.Load() {
		return nil
	}
	if !c.brk.CanAttempt() {
		return xerrors.Wrapf(ErrCircuitOpen, "retry in %s", c.brk.NextDelay())
	}

	if c.dials != nil {
		c.dials.Inc(ctx, metrics.L("connector", c.name))
	}

	dctx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	err := c.dialFn(dctx)
	cancel()
	if err != nil {
		c.brk.OnFailure()
		if c.dialFailures != nil {
			c.dialFailures.Inc(ctx, metrics.L("connector", c.name))
		}
		c.logger.Debug("拨号失败",
			clog.Error(err),
			clog.String("state", c.brk.State().String()))
		return xerrors.Wrapf(ErrConnection, "dial %s: %v", c.name, err)
	}

	c.brk.OnSuccess()
	c.connected.Store(true)
	gen := c.gen.Add(1)
	c.logger.Info("会话已建立", clog.Uint64("generation", gen))
	return nil
}

// EnsureConnected 会话可用时零开销返回，否则就地拨号。
func (c *core) EnsureConnected(ctx context.Context) error {
	if c.connected.Load() {
		return nil
	}
	return c.Connect(ctx)
}

// Close 关闭会话并释放资源，幂等。
func (c *core) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.connected.Store(false)
	var err error
	if c.closeFn != nil {
		err = c.closeFn()
	}
	c.logger.Info("连接器已关闭")
	return err
}

// markFailure 由传输实现在会话中途失败时调用：
// 关闭坏掉的会话、计入熔断统计，下次使用时重建。
func (c *core) markFailure() {
	if c.closed.Load() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected.CompareAndSwap(true, false) {
		return
	}
	c.brk.OnFailure()
	if c.closeFn != nil {
		_ = c.closeFn()
	}
	c.logger.Warn("会话失效，等待重建",
		clog.String("state", c.brk.State().String()),
		clog.Duration("next_delay", c.brk.NextDelay()))
}

func (c *core) IsConnected() bool { return c.connected.Load() }

func (c *core) State() breaker.State { return c.brk.State() }

func (c *core) NextDelay() time.Duration { return c.brk.NextDelay() }

// Generation 返回会话代数：每次成功建连加一。
// 调用方缓存上次见到的代数即可察觉"断开又重连"的会话翻转。
func (c *core) Generation() uint64 { return c.gen.Load() }

func (c *core) Name() string { return c.name }

func (c *core) isClosed() bool { return c.closed.Load() }
