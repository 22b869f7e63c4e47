package connector

import (
	"context"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/nexus/xerrors"
)

// =============================================================================
// Redis 连接器
// =============================================================================

type redisConnector struct {
	*core
	cfg *RedisConfig

	client atomic.Pointer[redis.Client]
}

// NewRedis 创建 Redis 连接器。
//
// 拨号时执行 PING 验证可达性；go-redis 连接池自身的按需重连
// 保留，熔断引擎只治理初始建连与显式标记的失败。
func NewRedis(cfg *RedisConfig, opts ...Option) (RedisConnector, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(ErrInvalidConfig, "config is nil")
	}
	cfg.setDefaults()

	opt := &options{}
	for _, o := range opts {
		o(opt)
	}
	opt.applyDefaults()

	c := &redisConnector{cfg: cfg}
	cr, err := newCore(cfg.Name, cfg.Breaker, cfg.DialTimeout, opt)
	if err != nil {
		return nil, err
	}
	cr.dialFn = c.dial
	cr.closeFn = c.closeSession
	c.core = cr
	return c, nil
}

func (c *redisConnector) dial(ctx context.Context) error {
	rdb := redis.NewClient(&redis.Options{
		Addr:        c.cfg.Addr,
		Password:    c.cfg.Password,
		DB:          c.cfg.DB,
		PoolSize:    c.cfg.PoolSize,
		DialTimeout: c.cfg.DialTimeout,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return err
	}
	c.client.Store(rdb)
	return nil
}

func (c *redisConnector) closeSession() error {
	if rdb := c.client.Swap(nil); rdb != nil {
		return rdb.Close()
	}
	return nil
}

func (c *redisConnector) GetClient() *redis.Client {
	return c.client.Load()
}
