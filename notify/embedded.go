package notify

import (
	"context"
	"sync"

	"github.com/ceyewan/nexus/clog"
	"github.com/ceyewan/nexus/metrics"
	"github.com/ceyewan/nexus/trace"
)

// =============================================================================
// 进程内扇出后端
// =============================================================================

// embeddedBroker 进程内发布/订阅。
//
// 每个订阅者一条带缓冲的投递队列和一个专属投递 goroutine：
// 同一主题的事件对单个订阅者保序，慢订阅者队列满时丢弃
// 新事件（at-most-once），发布路径永不阻塞。
type embeddedBroker struct {
	cfg    *EmbeddedConfig
	logger clog.Logger
	opt    *options

	published metrics.Counter
	delivered metrics.Counter
	droppedC  metrics.Counter

	mu     sync.Mutex
	closed bool
	topics map[string]map[*embeddedSub]struct{}
}

type embeddedSub struct {
	broker *embeddedBroker
	topic  string
	h      Handler
	queue  chan *Event
	done   chan struct{}
	once   sync.Once
}

// NewEmbedded 创建进程内扇出后端。
//
// 通知枢纽服务端用它做底座；单进程部署（注册中心与枢纽同进程）
// 时也可以直接把它当 Broker 用，省掉一次环回。
func NewEmbedded(cfg *EmbeddedConfig, opts ...Option) (Broker, error) {
	if cfg == nil {
		cfg = &EmbeddedConfig{}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	opt := &options{}
	for _, o := range opts {
		o(opt)
	}
	opt.applyDefaults()

	b := &embeddedBroker{
		cfg:    cfg,
		logger: opt.logger,
		opt:    opt,
		topics: make(map[string]map[*embeddedSub]struct{}),
	}
	if opt.meter != nil {
		b.published, _ = opt.meter.Counter(
			"notify_published_total", "发布的事件总数")
		b.delivered, _ = opt.meter.Counter(
			"notify_delivered_total", "投递成功的事件总数")
		b.droppedC, _ = opt.meter.Counter(
			"notify_dropped_total", "队列满被丢弃的事件总数")
	}
	return b, nil
}

func (b *embeddedBroker) Publish(ctx context.Context, topic string, payload []byte, headers map[string]string) error {
	if topic == "" {
		return ErrTopicEmpty
	}

	_, span, traceHeaders := trace.StartProducerSpan(ctx, b.opt.tracer,
		trace.SpanNamePublish(topic), trace.MessagingMeta{
			System:      trace.MessagingSystemEmbedded,
			Destination: topic,
			Operation:   trace.MessagingOperationPublish,
		})
	defer span.End()

	merged := mergeHeaders(headers, traceHeaders)
	ev := &Event{Topic: topic, Payload: payload, Headers: merged}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		trace.MarkSpanError(span, ErrClosed)
		return ErrClosed
	}
	subs := make([]*embeddedSub, 0, len(b.topics[topic]))
	for s := range b.topics[topic] {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	if b.published != nil {
		b.published.Inc(ctx, metrics.L("topic", topic))
	}

	for _, s := range subs {
		select {
		case s.queue <- ev:
		default:
			// at-most-once：慢订阅者只丢自己的
			if b.droppedC != nil {
				b.droppedC.Inc(ctx, metrics.L("topic", topic))
			}
			b.logger.Warn("投递队列满，丢弃事件", clog.String("topic", topic))
		}
	}
	return nil
}

func (b *embeddedBroker) Subscribe(_ context.Context, topic string, h Handler) (Subscription, error) {
	if topic == "" {
		return nil, ErrTopicEmpty
	}
	if h == nil {
		return nil, ErrHandlerNil
	}

	s := &embeddedSub{
		broker: b,
		topic:  topic,
		h:      h,
		queue:  make(chan *Event, b.cfg.QueueSize),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[*embeddedSub]struct{})
	}
	b.topics[topic][s] = struct{}{}
	b.mu.Unlock()

	go s.deliverLoop()
	return s, nil
}

func (b *embeddedBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var subs []*embeddedSub
	for _, set := range b.topics {
		for s := range set {
			subs = append(subs, s)
		}
	}
	b.topics = make(map[string]map[*embeddedSub]struct{})
	b.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
	return nil
}

// deliverLoop 订阅者专属的投递 goroutine。
func (s *embeddedSub) deliverLoop() {
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.queue:
			s.deliver(ev)
		}
	}
}

func (s *embeddedSub) deliver(ev *Event) {
	ctx, span := trace.StartConsumerSpanFromHeaders(context.Background(), s.broker.opt.tracer,
		trace.SpanNameDeliver(ev.Topic), ev.Headers, trace.MessagingMeta{
			System:      trace.MessagingSystemEmbedded,
			Destination: ev.Topic,
			Operation:   trace.MessagingOperationDeliver,
		})
	s.h(ctx, ev)
	span.End()
	if s.broker.delivered != nil {
		s.broker.delivered.Inc(ctx, metrics.L("topic", ev.Topic))
	}
}

func (s *embeddedSub) Topic() string { return s.topic }

func (s *embeddedSub) Unsubscribe() error {
	b := s.broker
	b.mu.Lock()
	if set := b.topics[s.topic]; set != nil {
		delete(set, s)
		if len(set) == 0 {
			delete(b.topics, s.topic)
		}
	}
	b.mu.Unlock()
	s.stop()
	return nil
}

func (s *embeddedSub) stop() {
	s.once.Do(func() {
		close(s.done)
	})
}

// mergeHeaders 合并调用方头与追踪头，追踪头优先。
func mergeHeaders(user, tr map[string]string) map[string]string {
	if len(user) == 0 {
		return tr
	}
	out := make(map[string]string, len(user)+len(tr))
	for k, v := range user {
		out[k] = v
	}
	for k, v := range tr {
		out[k] = v
	}
	return out
}
