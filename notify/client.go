package notify

import (
	"context"
	"sync"
	"time"

	"github.com/ceyewan/nexus/clog"
	"github.com/ceyewan/nexus/connector"
	"github.com/ceyewan/nexus/trace"
	"github.com/ceyewan/nexus/wire"
)

// =============================================================================
// 通知枢纽客户端
// =============================================================================

// hubClient 远端通知枢纽的客户端，实现 Broker 接口。
//
// 底层是一条弹性 TCP 会话。订阅意图保存在客户端本地：
// 会话翻转（枢纽重启、网络抖动）后监控循环自动补订阅，
// 调用方的 Subscription 一直有效。断线期间错过的事件
// 不补发（at-most-once）。
type hubClient struct {
	cfg    *ClientConfig
	logger clog.Logger
	opt    *options

	conn connector.TCPConnector

	mu     sync.Mutex
	subs   map[string]map[*clientSub]struct{}
	closed bool

	stop chan struct{}
	wg   sync.WaitGroup
}

type clientSub struct {
	client *hubClient
	topic  string
	h      Handler
	queue  chan *Event
	done   chan struct{}
	once   sync.Once
}

// NewClient 创建通知枢纽客户端，不触发拨号；首次使用时建连。
func NewClient(cfg *ClientConfig, opts ...Option) (Broker, error) {
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
		Name:        "notify-hub",
		Addr:        cfg.Addr,
		SendTimeout: cfg.RequestTimeout,
		Breaker:     cfg.Breaker,
	}, connector.WithLogger(opt.logger))
	if err != nil {
		return nil, err
	}

	c := &hubClient{
		cfg:    cfg,
		logger: opt.logger,
		opt:    opt,
		conn:   conn,
		subs:   make(map[string]map[*clientSub]struct{}),
		stop:   make(chan struct{}),
	}
	conn.Handle(c.handleFrame)

	c.wg.Add(1)
	go c.monitorLoop()
	return c, nil
}

func (c *hubClient) Publish(ctx context.Context, topic string, payload []byte, headers map[string]string) error {
	if topic == "" {
		return ErrTopicEmpty
	}

	_, span, traceHeaders := trace.StartProducerSpan(ctx, c.opt.tracer,
		trace.SpanNamePublish(topic), trace.MessagingMeta{
			System:      trace.MessagingSystemEmbedded,
			Destination: topic,
			Operation:   trace.MessagingOperationPublish,
		})
	defer span.End()

	_, err := c.conn.Request(ctx, &wire.Frame{
		Kind:    wire.KindPublish,
		Topic:   topic,
		Payload: payload,
		Headers: mergeHeaders(headers, traceHeaders),
	})
	if err != nil {
		trace.MarkSpanError(span, err)
		return err
	}
	return nil
}

func (c *hubClient) Subscribe(ctx context.Context, topic string, h Handler) (Subscription, error) {
	if topic == "" {
		return nil, ErrTopicEmpty
	}
	if h == nil {
		return nil, ErrHandlerNil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	first := len(c.subs[topic]) == 0
	c.mu.Unlock()

	// 同一主题的首个本地订阅者才需要和枢纽交换
	if first {
		if _, err := c.conn.Request(ctx, &wire.Frame{
			Kind:  wire.KindSubscribe,
			Topic: topic,
		}); err != nil {
			return nil, err
		}
	}

	s := &clientSub{
		client: c,
		topic:  topic,
		h:      h,
		queue:  make(chan *Event, c.cfg.QueueSize),
		done:   make(chan struct{}),
	}

	c.mu.Lock()
	if c.subs[topic] == nil {
		c.subs[topic] = make(map[*clientSub]struct{})
	}
	c.subs[topic][s] = struct{}{}
	c.mu.Unlock()

	go s.deliverLoop()
	return s, nil
}

func (c *hubClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	var subs []*clientSub
	for _, set := range c.subs {
		for s := range set {
			subs = append(subs, s)
		}
	}
	c.subs = make(map[string]map[*clientSub]struct{})
	c.mu.Unlock()

	close(c.stop)
	c.wg.Wait()
	for _, s := range subs {
		s.stopDelivery()
	}
	return c.conn.Close()
}

// handleFrame 消化枢纽推来的事件帧，扇出到本地订阅者。
func (c *hubClient) handleFrame(f *wire.Frame) {
	if f.Kind != wire.KindEvent {
		return
	}
	ev := &Event{Topic: f.Topic, Payload: f.Payload, Headers: f.Headers}

	c.mu.Lock()
	targets := make([]*clientSub, 0, len(c.subs[f.Topic]))
	for s := range c.subs[f.Topic] {
		targets = append(targets, s)
	}
	c.mu.Unlock()

	for _, s := range targets {
		select {
		case s.queue <- ev:
		default:
			c.logger.Warn("本地投递队列满，丢弃事件", clog.String("topic", f.Topic))
		}
	}
}

// monitorLoop 盯住会话代数：翻转后补订阅。
//
// 订阅意图随首次 Subscribe 落在某个会话代数上；代数前进说明
// 枢纽侧的订阅状态已随旧连接丢失，需要重放。
func (c *hubClient) monitorLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	lastGen := c.conn.Generation()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
		}

		if !c.conn.IsConnected() {
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
			err := c.conn.EnsureConnected(ctx)
			cancel()
			if err != nil {
				continue
			}
		}

		gen := c.conn.Generation()
		if gen == lastGen {
			continue
		}

		c.mu.Lock()
		topics := make([]string, 0, len(c.subs))
		for topic := range c.subs {
			topics = append(topics, topic)
		}
		c.mu.Unlock()

		if len(topics) == 0 || c.resubscribe(topics) {
			lastGen = gen
		}
	}
}

func (c *hubClient) resubscribe(topics []string) bool {
	ok := true
	for _, topic := range topics {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
		_, err := c.conn.Request(ctx, &wire.Frame{Kind: wire.KindSubscribe, Topic: topic})
		cancel()
		if err != nil {
			ok = false
			continue
		}
		c.logger.Info("订阅已恢复", clog.String("topic", topic))
	}
	return ok
}

func (s *clientSub) deliverLoop() {
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.queue:
			ctx, span := trace.StartConsumerSpanFromHeaders(context.Background(), s.client.opt.tracer,
				trace.SpanNameDeliver(ev.Topic), ev.Headers, trace.MessagingMeta{
					System:      trace.MessagingSystemEmbedded,
					Destination: ev.Topic,
					Operation:   trace.MessagingOperationDeliver,
				})
			s.h(ctx, ev)
			span.End()
		}
	}
}

func (s *clientSub) Topic() string { return s.topic }

func (s *clientSub) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		c := s.client

		c.mu.Lock()
		if set := c.subs[s.topic]; set != nil {
			delete(set, s)
			if len(set) == 0 {
				delete(c.subs, s.topic)
			}
		}
		last := len(c.subs[s.topic]) == 0
		closed := c.closed
		c.mu.Unlock()

		close(s.done)

		// 最后一个本地订阅者退场时通知枢纽
		if last && !closed {
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
			_, err = c.conn.Request(ctx, &wire.Frame{
				Kind:  wire.KindUnsubscribe,
				Topic: s.topic,
			})
			cancel()
		}
	})
	return err
}

func (s *clientSub) stopDelivery() {
	s.once.Do(func() {
		close(s.done)
	})
}
