package connector

import (
	"context"
	"sync/atomic"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/ceyewan/nexus/xerrors"
)

// =============================================================================
// Etcd 连接器
// =============================================================================

type etcdConnector struct {
	*core
	cfg *EtcdConfig

	client atomic.Pointer[clientv3.Client]
}

// NewEtcd 创建 Etcd 连接器。
//
// 拨号时对首个端点做 Status 探测，确认集群可达后才视为建连成功。
func NewEtcd(cfg *EtcdConfig, opts ...Option) (EtcdConnector, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(ErrInvalidConfig, "config is nil")
	}
	cfg.setDefaults()

	opt := &options{}
	for _, o := range opts {
		o(opt)
	}
	opt.applyDefaults()

	c := &etcdConnector{cfg: cfg}
	cr, err := newCore(cfg.Name, cfg.Breaker, cfg.DialTimeout, opt)
	if err != nil {
		return nil, err
	}
	cr.dialFn = c.dial
	cr.closeFn = c.closeSession
	c.core = cr
	return c, nil
}

func (c *etcdConnector) dial(ctx context.Context) error {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   c.cfg.Endpoints,
		Username:    c.cfg.Username,
		Password:    c.cfg.Password,
		DialTimeout: c.cfg.DialTimeout,
	})
	if err != nil {
		return err
	}
	if _, err := cli.Status(ctx, c.cfg.Endpoints[0]); err != nil {
		_ = cli.Close()
		return err
	}
	c.client.Store(cli)
	return nil
}

func (c *etcdConnector) closeSession() error {
	if cli := c.client.Swap(nil); cli != nil {
		return cli.Close()
	}
	return nil
}

func (c *etcdConnector) GetClient() *clientv3.Client {
	return c.client.Load()
}
