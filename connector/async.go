package connector

import (
	"context"
	"sync"
	"time"

	"github.com/ceyewan/nexus/breaker"
	"github.com/ceyewan/nexus/clog"
	"github.com/ceyewan/nexus/xerrors"
)

// =============================================================================
// 并发变体
// =============================================================================

// asyncConnector 把任意同步连接器装饰成并发变体。
//
// 重连由后台 goroutine 负责：EnsureConnected 在会话缺失时只
// 唤醒重连循环并立即返回，调用方 goroutine 永不阻塞在拨号上。
// 熔断语义与同步变体完全一致，因为决策仍由被包装连接器的
// breaker 做出，装饰器只改变"谁去拨号"。
type asyncConnector struct {
	Connector

	logger clog.Logger

	trigger chan struct{}
	stop    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

// NewAsync 包装一个同步连接器，返回并发变体。
//
// Connect 仍为同步语义（初始建连时使用）；EnsureConnected 变为
// 非阻塞：会话缺失时唤醒后台重连循环，并返回 ErrNotConnected
// 或 ErrCircuitOpen 供调用方决定是否稍后重试。Close 会先停掉
// 后台循环，再关闭被包装的连接器。
func NewAsync(c Connector, opts ...Option) Connector {
	opt := &options{}
	for _, o := range opts {
		o(opt)
	}
	opt.applyDefaults()

	a := &asyncConnector{
		Connector: c,
		logger:    opt.logger.With(clog.String("connector", c.Name())),
		trigger:   make(chan struct{}, 1),
		stop:      make(chan struct{}),
	}
	a.wg.Add(1)
	go a.redialLoop()
	return a
}

func (a *asyncConnector) EnsureConnected(ctx context.Context) error {
	if a.IsConnected() {
		return nil
	}
	select {
	case a.trigger <- struct{}{}:
	default:
	}
	if a.State() == breaker.StateOpen {
		return xerrors.Wrapf(ErrCircuitOpen, "retry in %s", a.NextDelay())
	}
	return ErrNotConnected
}

func (a *asyncConnector) Close() error {
	a.once.Do(func() {
		close(a.stop)
	})
	a.wg.Wait()
	return a.Connector.Close()
}

// redialLoop 在会话缺失时按熔断节奏重试拨号，直到恢复或关闭。
func (a *asyncConnector) redialLoop() {
	defer a.wg.Done()
	for {
		select {
		case <-a.stop:
			return
		case <-a.trigger:
		}

		for !a.IsConnected() {
			if d := a.NextDelay(); d > 0 {
				if !a.sleep(d) {
					return
				}
				continue
			}

			err := a.Connector.Connect(context.Background())
			if err == nil {
				break
			}
			if xerrors.Is(err, ErrClosed) {
				return
			}
			a.logger.Debug("后台重连失败", clog.Error(err))

			d := a.NextDelay()
			if d <= 0 {
				d = 100 * time.Millisecond
			}
			if !a.sleep(d) {
				return
			}
		}
	}
}

// sleep 可被 Close 打断的等待，返回 false 表示应退出循环。
func (a *asyncConnector) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-a.stop:
		return false
	case <-t.C:
		return true
	}
}
