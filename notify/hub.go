package notify

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/ceyewan/nexus/clog"
	"github.com/ceyewan/nexus/wire"
	"github.com/ceyewan/nexus/xerrors"
)

// =============================================================================
// 通知枢纽服务端
// =============================================================================

// Hub 通知枢纽服务端
//
// 在帧协议端口上接受远端客户端的订阅/发布，底座是一个
// Broker（默认进程内扇出，也可注入 NATS/Redis 后端把多个
// 枢纽桥成一张网）。每个远端订阅者走 Broker 自己的投递
// 队列，慢客户端丢自己的事件，不拖累别人。
type Hub struct {
	cfg    *HubConfig
	logger clog.Logger
	broker Broker

	// ownBroker 为 true 时 Close 连同底座一起关
	ownBroker bool

	ln net.Listener

	connMu sync.Mutex
	conns  map[*wire.Conn]struct{}

	closeOnce sync.Once
	stop      chan struct{}
	wg        sync.WaitGroup
}

// NewHub 创建通知枢纽，底座为进程内扇出后端。
func NewHub(cfg *HubConfig, opts ...Option) (*Hub, error) {
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

	broker, err := NewEmbedded(&EmbeddedConfig{QueueSize: cfg.QueueSize}, opts...)
	if err != nil {
		return nil, err
	}

	h := newHub(cfg, broker, opt)
	h.ownBroker = true
	return h, nil
}

// NewHubWithBroker 创建通知枢纽并指定底座后端。
//
// 调用方保留 broker 的所有权，Hub.Close 不关闭它。
func NewHubWithBroker(cfg *HubConfig, broker Broker, opts ...Option) (*Hub, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if broker == nil {
		return nil, xerrors.Wrap(ErrInvalidConfig, "broker is nil")
	}

	opt := &options{}
	for _, o := range opts {
		o(opt)
	}
	opt.applyDefaults()

	return newHub(cfg, broker, opt), nil
}

func newHub(cfg *HubConfig, broker Broker, opt *options) *Hub {
	return &Hub{
		cfg:    cfg,
		logger: opt.logger,
		broker: broker,
		conns:  make(map[*wire.Conn]struct{}),
		stop:   make(chan struct{}),
	}
}

// Broker 返回底座后端，同进程组件（注册中心）直接在上面发布。
func (h *Hub) Broker() Broker {
	return h.broker
}

// Start 开始监听。
func (h *Hub) Start() error {
	ln, err := net.Listen("tcp", h.cfg.Addr)
	if err != nil {
		return xerrors.Wrapf(err, "notify: listen %s", h.cfg.Addr)
	}
	h.ln = ln

	h.wg.Add(1)
	go h.acceptLoop()

	h.logger.Info("通知枢纽已启动", clog.String("addr", h.Addr()))
	return nil
}

// Addr 返回实际监听地址。
func (h *Hub) Addr() string {
	if h.ln == nil {
		return h.cfg.Addr
	}
	return h.ln.Addr().String()
}

// Close 停止监听并断开所有客户端，幂等。
func (h *Hub) Close() error {
	var err error
	h.closeOnce.Do(func() {
		close(h.stop)
		if h.ln != nil {
			err = h.ln.Close()
		}
		h.connMu.Lock()
		for conn := range h.conns {
			_ = conn.Close()
		}
		h.connMu.Unlock()
	})
	h.wg.Wait()
	if h.ownBroker {
		_ = h.broker.Close()
	}
	return err
}

func (h *Hub) acceptLoop() {
	defer h.wg.Done()
	for {
		raw, err := h.ln.Accept()
		if err != nil {
			select {
			case <-h.stop:
			default:
				h.logger.Error("accept 失败", clog.Error(err))
			}
			return
		}
		h.wg.Add(1)
		go h.handleConn(wire.NewConn(raw))
	}
}

// handleConn 单个客户端连接：订阅状态随连接生灭。
func (h *Hub) handleConn(conn *wire.Conn) {
	defer h.wg.Done()
	defer conn.Close()

	h.connMu.Lock()
	h.conns[conn] = struct{}{}
	h.connMu.Unlock()
	defer func() {
		h.connMu.Lock()
		delete(h.conns, conn)
		h.connMu.Unlock()
	}()

	subs := make(map[string]Subscription)
	defer func() {
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
	}()

	remote := conn.RemoteAddr().String()
	ctx := context.Background()

	for {
		f, err := conn.Read()
		if err != nil {
			h.logger.Debug("客户端断开", clog.String("remote", remote))
			return
		}

		var reply *wire.Frame
		switch f.Kind {
		case wire.KindSubscribe:
			reply = h.handleSubscribe(ctx, conn, subs, f)
		case wire.KindUnsubscribe:
			if s, ok := subs[f.Topic]; ok {
				_ = s.Unsubscribe()
				delete(subs, f.Topic)
			}
			// 幂等：未订阅的退订同样应答成功
			reply = &wire.Frame{Kind: wire.KindUnsubscribeAck, Seq: f.Seq, Topic: f.Topic}
		case wire.KindPublish:
			if err := h.broker.Publish(ctx, f.Topic, f.Payload, f.Headers); err != nil {
				reply = &wire.Frame{Kind: wire.KindError, Seq: f.Seq, Err: err.Error()}
			} else {
				reply = &wire.Frame{Kind: wire.KindPublishAck, Seq: f.Seq, Topic: f.Topic}
			}
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
			return
		}
	}
}

func (h *Hub) handleSubscribe(ctx context.Context, conn *wire.Conn, subs map[string]Subscription, f *wire.Frame) *wire.Frame {
	if f.Topic == "" {
		return &wire.Frame{Kind: wire.KindError, Seq: f.Seq, Err: ErrTopicEmpty.Error()}
	}
	if _, ok := subs[f.Topic]; ok {
		// 幂等：重复订阅直接应答成功
		return &wire.Frame{Kind: wire.KindSubscribeAck, Seq: f.Seq, Topic: f.Topic}
	}

	sub, err := h.broker.Subscribe(ctx, f.Topic, func(dctx context.Context, ev *Event) {
		wctx, cancel := context.WithTimeout(dctx, 5*time.Second)
		defer cancel()
		werr := conn.Write(wctx, &wire.Frame{
			Kind:    wire.KindEvent,
			Topic:   ev.Topic,
			Payload: ev.Payload,
			Headers: ev.Headers,
		})
		if werr != nil {
			// 连接已死：帧循环随后退出并清理订阅
			h.logger.Debug("事件写入失败", clog.String("topic", ev.Topic), clog.Error(werr))
		}
	})
	if err != nil {
		return &wire.Frame{Kind: wire.KindError, Seq: f.Seq, Err: err.Error()}
	}

	subs[f.Topic] = sub
	h.logger.Debug("订阅建立",
		clog.String("remote", conn.RemoteAddr().String()),
		clog.String("topic", f.Topic))
	return &wire.Frame{Kind: wire.KindSubscribeAck, Seq: f.Seq, Topic: f.Topic}
}
