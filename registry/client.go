package registry

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ceyewan/nexus/clog"
	"github.com/ceyewan/nexus/connector"
	"github.com/ceyewan/nexus/heartbeat"
	"github.com/ceyewan/nexus/wire"
	"github.com/ceyewan/nexus/xerrors"
)

// =============================================================================
// 注册中心客户端
// =============================================================================

// client 服务进程内嵌的注册中心客户端。
//
// 底层是一条弹性 TCP 会话：断线重连、退避、熔断全部由
// 连接器治理。客户端只关心三件事——注册、让心跳一直跳、
// 在注册表把自己忘掉（SUSPECT/UNKNOWN 应答）时重新注册。
type client struct {
	cfg    *ClientConfig
	logger clog.Logger

	conn connector.TCPConnector

	mu        sync.Mutex
	reg       Registration
	emitter   heartbeat.Emitter
	closed    bool
	serviceID atomic.Value // string

	// reRegistering 保证任一时刻至多一个后台重注册在途
	reRegistering atomic.Bool
}

// NewClient 创建注册中心客户端，不触发拨号；首次 Register 时建连。
func NewClient(cfg *ClientConfig, opts ...Option) (Client, error) {
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

	conn, err := connector.NewTCP(&connector.TCPConfig{
		Name:        "registry",
		Addr:        cfg.Addr,
		SendTimeout: cfg.RequestTimeout,
		Breaker:     cfg.Breaker,
	}, connector.WithLogger(opt.logger))
	if err != nil {
		return nil, err
	}

	c := &client{
		cfg:    cfg,
		logger: opt.logger,
		conn:   conn,
	}
	c.serviceID.Store("")
	conn.Handle(c.handleFrame)
	return c, nil
}

func (c *client) Register(ctx context.Context, reg Registration) (string, error) {
	if reg.ServiceType == "" {
		return "", xerrors.Wrap(ErrInvalidConfig, "service type is required")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", connector.ErrClosed
	}
	c.reg = reg
	c.mu.Unlock()

	id, err := c.doRegister(ctx)
	if err != nil {
		return "", err
	}
	c.startHeartbeat(id)
	return id, nil
}

// doRegister 执行一次注册交换。携带当前 serviceId（如有）：
// 注册表里它还活着就是原地刷新，死了就拿到新 id。
func (c *client) doRegister(ctx context.Context) (string, error) {
	c.mu.Lock()
	reg := c.reg
	c.mu.Unlock()

	ep := reg.Endpoint
	reply, err := c.conn.Request(ctx, &wire.Frame{
		Kind:        wire.KindRegister,
		ServiceType: reg.ServiceType,
		ServiceID:   c.ServiceID(),
		Endpoint:    &ep,
		Metadata:    reg.Metadata,
	})
	if err != nil {
		return "", err
	}

	c.serviceID.Store(reply.ServiceID)
	c.logger.Info("注册完成",
		clog.String("service_type", reg.ServiceType),
		clog.String("service_id", reply.ServiceID))
	return reply.ServiceID, nil
}

// startHeartbeat 在首次注册成功后启动心跳。重注册拿到新 id 时
// 换一个发射器，旧的先停，序号从头再来（注册表按 id 隔离序号）。
func (c *client) startHeartbeat(serviceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if c.emitter != nil {
		c.emitter.Stop()
		c.emitter = nil
	}

	em, err := heartbeat.NewEmitter(&heartbeat.EmitterConfig{
		ServiceID: serviceID,
		Interval:  c.cfg.HeartbeatInterval,
	}, c.conn,
		heartbeat.WithLogger(c.logger),
		heartbeat.WithOnStale(c.onStale))
	if err != nil {
		c.logger.Error("创建心跳发射器失败", clog.Error(err))
		return
	}
	c.emitter = em
	em.Start()
}

// handleFrame 消化连接器送来的未匹配帧。
func (c *client) handleFrame(f *wire.Frame) {
	if f.Kind != wire.KindHeartbeatAck {
		return
	}
	c.mu.Lock()
	em := c.emitter
	c.mu.Unlock()
	if em != nil {
		em.HandleAck(f)
	}
}

// onStale 注册表侧认为本服务失活（SUSPECT）或不认识本服务
// （UNKNOWN，注册中心重启过）。后台重新注册，单飞。
func (c *client) onStale(status string) {
	if !c.reRegistering.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer c.reRegistering.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
		defer cancel()

		c.logger.Warn("注册表侧失活，重新注册", clog.String("status", status))
		id, err := c.doRegister(ctx)
		if err != nil {
			c.logger.Warn("重新注册失败", clog.Error(err))
			return
		}
		if status == wire.StatusUnknown {
			// 新 id：心跳发射器跟着换
			c.startHeartbeat(id)
		}
	}()
}

func (c *client) Lookup(ctx context.Context, serviceType string) (*wire.Endpoint, error) {
	reply, err := c.conn.Request(ctx, &wire.Frame{
		Kind:        wire.KindLookup,
		ServiceType: serviceType,
	})
	if err != nil {
		if xerrors.Is(err, connector.ErrProtocol) {
			return nil, xerrors.Wrapf(ErrServiceNotFound, "%s", serviceType)
		}
		return nil, err
	}
	if reply.Endpoint == nil {
		return nil, xerrors.Wrapf(ErrServiceNotFound, "%s", serviceType)
	}
	return reply.Endpoint, nil
}

func (c *client) Deregister(ctx context.Context) error {
	id := c.ServiceID()
	if id == "" {
		return nil
	}

	c.stopHeartbeat()
	c.serviceID.Store("")

	_, err := c.conn.Request(ctx, &wire.Frame{
		Kind:      wire.KindDeregister,
		ServiceID: id,
	})
	if err != nil && !xerrors.Is(err, connector.ErrProtocol) {
		return err
	}
	c.logger.Info("注销完成", clog.String("service_id", id))
	return nil
}

func (c *client) ServiceID() string {
	id, _ := c.serviceID.Load().(string)
	return id
}

func (c *client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.stopHeartbeat()
	return c.conn.Close()
}

func (c *client) stopHeartbeat() {
	c.mu.Lock()
	em := c.emitter
	c.emitter = nil
	c.mu.Unlock()
	if em != nil {
		em.Stop()
	}
}
