package connector

import (
	"context"
	"sync/atomic"

	"github.com/nats-io/nats.go"

	"github.com/ceyewan/nexus/xerrors"
)

// =============================================================================
// NATS 连接器
// =============================================================================

type natsConnector struct {
	*core
	cfg *NATSConfig

	client atomic.Pointer[nats.Conn]
}

// NewNATS 创建 NATS 连接器。
//
// NATS 客户端自带的重连机制被关闭（nats.NoReconnect），
// 会话重建统一由本连接器的熔断引擎治理，避免两套退避策略叠加。
func NewNATS(cfg *NATSConfig, opts ...Option) (NATSConnector, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(ErrInvalidConfig, "config is nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.setDefaults()

	opt := &options{}
	for _, o := range opts {
		o(opt)
	}
	opt.applyDefaults()

	c := &natsConnector{cfg: cfg}
	cr, err := newCore(cfg.Name, cfg.Breaker, cfg.DialTimeout, opt)
	if err != nil {
		return nil, err
	}
	cr.dialFn = c.dial
	cr.closeFn = c.closeSession
	c.core = cr
	return c, nil
}

func (c *natsConnector) dial(ctx context.Context) error {
	nc, err := nats.Connect(c.cfg.URL,
		nats.Name(c.cfg.Name),
		nats.Timeout(c.cfg.DialTimeout),
		nats.NoReconnect(),
		nats.RetryOnFailedConnect(false),
		nats.ClosedHandler(func(*nats.Conn) {
			// 会话被动关闭（网络断开）时宣告失效，主动 Close 走 closed 短路
			c.markFailure()
		}),
	)
	if err != nil {
		return err
	}
	c.client.Store(nc)
	return ctx.Err()
}

func (c *natsConnector) closeSession() error {
	if nc := c.client.Swap(nil); nc != nil {
		nc.Close()
	}
	return nil
}

// Send 实现 Sender：在配置的主题上做一次 request/reply。
func (c *natsConnector) Send(ctx context.Context, payload []byte) ([]byte, error) {
	if err := c.EnsureConnected(ctx); err != nil {
		return nil, err
	}
	nc := c.client.Load()
	if nc == nil {
		return nil, ErrNotConnected
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.SendTimeout)
		defer cancel()
	}

	msg, err := nc.RequestWithContext(ctx, c.cfg.Subject, payload)
	if err != nil {
		switch {
		case xerrors.Is(err, nats.ErrNoResponders):
			// 链路无恙，只是没有服务在听
			return nil, xerrors.Wrapf(ErrProtocol, "no responders on %s", c.cfg.Subject)
		case xerrors.Is(err, context.DeadlineExceeded):
			c.markFailure()
			return nil, xerrors.Wrapf(ErrTimeout, "request on %s", c.cfg.Subject)
		default:
			c.markFailure()
			return nil, xerrors.Wrapf(ErrTransport, "request on %s: %v", c.cfg.Subject, err)
		}
	}
	return msg.Data, nil
}

func (c *natsConnector) GetClient() *nats.Conn {
	return c.client.Load()
}
