package registry

import (
	"context"
	"net"
	"strconv"

	"github.com/maypok86/otter/v2"

	"github.com/ceyewan/nexus/clog"
	"github.com/ceyewan/nexus/config"
	"github.com/ceyewan/nexus/wire"
	"github.com/ceyewan/nexus/xerrors"
)

// =============================================================================
// 端点解析器
// =============================================================================

// Lookuper 解析器进行动态查询所需的最小能力，Client 满足此接口。
type Lookuper interface {
	Lookup(ctx context.Context, serviceType string) (*wire.Endpoint, error)
}

// resolver 端点解析器实现
//
// 配置的指令端口非零时为固定端点（部署拓扑写死在配置里），
// 为零时动态查询注册中心，结果进 otter 缓存。两种形态对
// 调用方是同一个 Resolve。
type resolver struct {
	cfg    *ResolverConfig
	lk     Lookuper
	logger clog.Logger
	cache  *otter.Cache[string, wire.Endpoint]
}

// NewResolver 创建端点解析器。
//
// lk 为 nil 时只支持固定端点，动态查询一律返回
// ErrEndpointUnavailable。
func NewResolver(cfg *ResolverConfig, lk Lookuper, opts ...Option) (Resolver, error) {
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

	cache, err := otter.New(&otter.Options[string, wire.Endpoint]{
		MaximumSize:      cfg.CacheSize,
		ExpiryCalculator: otter.ExpiryWriting[string, wire.Endpoint](cfg.CacheTTL),
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "registry: build resolver cache")
	}

	return &resolver{
		cfg:    cfg,
		lk:     lk,
		logger: opt.logger,
		cache:  cache,
	}, nil
}

// NewResolverFromBootstrap 用引导配置创建解析器，
// 指令端口映射直接取自 Bootstrap。
func NewResolverFromBootstrap(bs *config.Bootstrap, lk Lookuper, opts ...Option) (Resolver, error) {
	cfg := &ResolverConfig{}
	if bs != nil {
		cfg.CommandingPorts = bs.CommandingPorts
		cfg.StaticHost = bs.Registry.Host
	}
	return NewResolver(cfg, lk, opts...)
}

func (r *resolver) Resolve(ctx context.Context, serviceType string) (*wire.Endpoint, error) {
	// 固定端口：不访问注册中心，也不进缓存
	if port := r.cfg.CommandingPorts[serviceType]; port != 0 {
		return &wire.Endpoint{
			Protocol: "tcp",
			Host:     r.cfg.StaticHost,
			Port:     port,
		}, nil
	}

	if ep, ok := r.cache.GetIfPresent(serviceType); ok {
		return &ep, nil
	}

	if r.lk == nil {
		return nil, xerrors.Wrapf(ErrEndpointUnavailable,
			"%s: no static port and no registry client", serviceType)
	}

	ep, err := r.lk.Lookup(ctx, serviceType)
	if err != nil {
		return nil, xerrors.Wrapf(ErrEndpointUnavailable, "%s: %v", serviceType, err)
	}

	r.cache.Set(serviceType, *ep)
	r.logger.Debug("端点已解析",
		clog.String("service_type", serviceType),
		clog.String("host", ep.Host),
		clog.Int("port", ep.Port))
	return ep, nil
}

func (r *resolver) Active(ctx context.Context, serviceType string) bool {
	ep, err := r.Resolve(ctx, serviceType)
	if err != nil {
		return false
	}

	d := net.Dialer{Timeout: probeTimeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(ep.Host, strconv.Itoa(ep.Port)))
	if err != nil {
		r.cache.Invalidate(serviceType)
		return false
	}
	_ = conn.Close()
	return true
}

func (r *resolver) Invalidate(serviceType string) {
	r.cache.Invalidate(serviceType)
}

func (r *resolver) Close() error {
	r.cache.StopAllGoroutines()
	return nil
}
