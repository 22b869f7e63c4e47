package registry

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ceyewan/nexus/clog"
	"github.com/ceyewan/nexus/heartbeat"
	"github.com/ceyewan/nexus/metrics"
	"github.com/ceyewan/nexus/wire"
	"github.com/ceyewan/nexus/xerrors"
)

// =============================================================================
// 注册中心服务端
// =============================================================================

// Server 注册中心服务端
//
// 监听帧协议端口，每个客户端连接一个处理 goroutine；
// 扫描循环独立推进活性状态。Start 返回后即可接受注册。
type Server struct {
	cfg    *ServerConfig
	logger clog.Logger
	meter  metrics.Meter

	table     *table
	publisher Publisher

	ln    net.Listener
	admin *adminServer

	services      metrics.Gauge
	registrations metrics.Counter
	expirations   metrics.Counter

	connMu sync.Mutex
	conns  map[*wire.Conn]struct{}

	closeOnce sync.Once
	stop      chan struct{}
	wg        sync.WaitGroup
}

// NewServer 创建注册中心服务端，不监听；调用 Start 启动。
func NewServer(cfg *ServerConfig, opts ...Option) (*Server, error) {
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

	s := &Server{
		cfg:       cfg,
		logger:    opt.logger,
		meter:     opt.meter,
		table:     newTable(cfg.Grace),
		publisher: opt.publisher,
		conns:     make(map[*wire.Conn]struct{}),
		stop:      make(chan struct{}),
	}
	if opt.meter != nil {
		s.services, _ = opt.meter.Gauge(
			"registry_services", "注册表当前记录数")
		s.registrations, _ = opt.meter.Counter(
			"registry_registrations_total", "处理的注册请求总数")
		s.expirations, _ = opt.meter.Counter(
			"registry_expirations_total", "宽限期耗尽被清除的记录总数")
	}
	return s, nil
}

// Start 开始监听并启动扫描循环。
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return xerrors.Wrapf(err, "registry: listen %s", s.cfg.Addr)
	}
	s.ln = ln

	s.wg.Add(2)
	go s.acceptLoop()
	go s.sweepLoop()

	if s.cfg.AdminAddr != "" {
		s.admin = newAdminServer(s.cfg.AdminAddr, s.table, s.meter, s.logger)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.admin.serve()
		}()
	}

	s.logger.Info("注册中心已启动",
		clog.String("addr", s.Addr()),
		clog.Duration("sweep_interval", s.cfg.SweepInterval),
		clog.Int("grace", s.cfg.Grace))
	return nil
}

// Addr 返回实际监听地址（配置端口为 0 时为系统分配的端口）。
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.cfg.Addr
	}
	return s.ln.Addr().String()
}

// Close 停止监听与扫描，幂等。
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stop)
		if s.ln != nil {
			err = s.ln.Close()
		}
		if s.admin != nil {
			s.admin.shutdown()
		}
		s.connMu.Lock()
		for conn := range s.conns {
			_ = conn.Close()
		}
		s.connMu.Unlock()
	})
	s.wg.Wait()
	return err
}

// Snapshot 返回全表快照（管理与测试用）。
func (s *Server) Snapshot() []ServiceRecord {
	return s.table.snapshot()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		raw, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.stop:
			default:
				s.logger.Error("accept 失败", clog.Error(err))
			}
			return
		}
		s.wg.Add(1)
		go s.handleConn(wire.NewConn(raw))
	}
}

// handleConn 单个客户端连接的帧循环。
// 限速桶按连接独立，一个失控客户端刷不垮别人的心跳。
func (s *Server) handleConn(conn *wire.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	s.connMu.Lock()
	s.conns[conn] = struct{}{}
	s.connMu.Unlock()
	defer func() {
		s.connMu.Lock()
		delete(s.conns, conn)
		s.connMu.Unlock()
	}()

	recv, err := heartbeat.NewReceiver(s.cfg.Heartbeat, s.table,
		heartbeat.WithLogger(s.logger), heartbeat.WithMeter(s.meter))
	if err != nil {
		s.logger.Error("创建心跳接收器失败", clog.Error(err))
		return
	}

	remote := conn.RemoteAddr().String()
	ctx := context.Background()

	for {
		select {
		case <-s.stop:
			return
		default:
		}

		f, err := conn.Read()
		if err != nil {
			s.logger.Debug("连接断开", clog.String("remote", remote))
			return
		}

		var reply *wire.Frame
		switch f.Kind {
		case wire.KindRegister:
			reply = s.handleRegister(ctx, f, remote)
		case wire.KindHeartbeat:
			reply = recv.Consume(ctx, f)
		case wire.KindLookup:
			reply = s.handleLookup(f)
		case wire.KindDeregister:
			s.table.deregister(f.ServiceID)
			s.updateGauge(ctx)
			reply = &wire.Frame{Kind: wire.KindDeregisterAck, Seq: f.Seq, ServiceID: f.ServiceID}
		case wire.KindDeregisterAll:
			n := s.table.deregisterAll(f.ServiceType)
			s.updateGauge(ctx)
			s.logger.Info("批量注销",
				clog.String("service_type", f.ServiceType), clog.Int("count", n))
			reply = &wire.Frame{Kind: wire.KindDeregisterAck, Seq: f.Seq, ServiceType: f.ServiceType}
		default:
			reply = &wire.Frame{Kind: wire.KindError, Seq: f.Seq,
				Err: "unsupported frame kind: " + f.Kind.String()}
		}

		if reply == nil {
			continue
		}
		wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = conn.Write(wctx, reply)
		cancel()
		if err != nil {
			s.logger.Debug("应答写入失败", clog.String("remote", remote), clog.Error(err))
			return
		}
	}
}

func (s *Server) handleRegister(ctx context.Context, f *wire.Frame, remote string) *wire.Frame {
	if f.ServiceType == "" || f.Endpoint == nil {
		return &wire.Frame{Kind: wire.KindError, Seq: f.Seq,
			Err: "register: service type and endpoint are required"}
	}

	rec := s.table.register(f.ServiceType, *f.Endpoint, f.Metadata, f.ServiceID)
	if s.registrations != nil {
		s.registrations.Inc(ctx, metrics.L("service_type", f.ServiceType))
	}
	s.updateGauge(ctx)

	s.logger.Info("服务已注册",
		clog.String("service_type", rec.ServiceType),
		clog.String("service_id", rec.ServiceID),
		clog.String("endpoint", rec.Endpoint.Host),
		clog.Int("port", rec.Endpoint.Port),
		clog.String("remote", remote))

	return &wire.Frame{
		Kind:      wire.KindRegisterAck,
		Seq:       f.Seq,
		ServiceID: rec.ServiceID,
		Status:    string(rec.Status),
	}
}

func (s *Server) handleLookup(f *wire.Frame) *wire.Frame {
	rec, ok := s.table.lookup(f.ServiceType)
	if !ok {
		return &wire.Frame{Kind: wire.KindError, Seq: f.Seq,
			Err: "service not found: " + f.ServiceType}
	}
	ep := rec.Endpoint
	return &wire.Frame{
		Kind:        wire.KindLookupAck,
		Seq:         f.Seq,
		ServiceType: rec.ServiceType,
		ServiceID:   rec.ServiceID,
		Endpoint:    &ep,
		Metadata:    rec.Metadata,
		Status:      string(rec.Status),
	}
}

// sweepLoop 按扫描周期推进活性状态，清除过期记录并广播事件。
func (s *Server) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

func (s *Server) sweepOnce() {
	expired := s.table.sweep()
	if len(expired) == 0 {
		return
	}

	ctx := context.Background()
	s.updateGauge(ctx)
	for _, rec := range expired {
		s.logger.Warn("服务过期，已清除",
			clog.String("service_type", rec.ServiceType),
			clog.String("service_id", rec.ServiceID),
			clog.Time("last_seen", rec.LastSeen))
		if s.expirations != nil {
			s.expirations.Inc(ctx, metrics.L("service_type", rec.ServiceType))
		}
		s.publishExpired(ctx, rec)
	}
}

func (s *Server) publishExpired(ctx context.Context, rec ServiceRecord) {
	if s.publisher == nil {
		return
	}
	payload, err := msgpack.Marshal(&ExpiredEvent{
		ServiceID:   rec.ServiceID,
		ServiceType: rec.ServiceType,
		Endpoint:    rec.Endpoint,
		ExpiredAt:   time.Now().UnixNano(),
	})
	if err != nil {
		return
	}
	if err := s.publisher.Publish(ctx, TopicServiceExpired, payload, nil); err != nil {
		s.logger.Debug("过期事件发布失败", clog.Error(err))
	}
}

func (s *Server) updateGauge(ctx context.Context) {
	if s.services != nil {
		s.services.Set(ctx, float64(s.table.size()))
	}
}
