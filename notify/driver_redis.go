package notify

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/nexus/clog"
	"github.com/ceyewan/nexus/connector"
	"github.com/ceyewan/nexus/trace"
	"github.com/ceyewan/nexus/xerrors"
)

// =============================================================================
// Redis Pub/Sub 后端
// =============================================================================

// redisBroker Redis Pub/Sub 后端。
//
// Redis 的 Pub/Sub 天然 at-most-once：没有订阅者时消息直接
// 消失，语义与通知的承诺一致。载荷编码同 NATS 后端。
type redisBroker struct {
	conn   connector.RedisConnector
	logger clog.Logger
	opt    *options

	mu     sync.Mutex
	closed bool
	subs   map[*redisSub]struct{}
}

// NewRedis 创建 Redis Pub/Sub 后端，底层会话由弹性连接器治理。
func NewRedis(conn connector.RedisConnector, opts ...Option) (Broker, error) {
	if conn == nil {
		return nil, xerrors.Wrap(ErrInvalidConfig, "redis connector is nil")
	}

	opt := &options{}
	for _, o := range opts {
		o(opt)
	}
	opt.applyDefaults()

	return &redisBroker{
		conn:   conn,
		logger: opt.logger,
		opt:    opt,
		subs:   make(map[*redisSub]struct{}),
	}, nil
}

func (b *redisBroker) Publish(ctx context.Context, topic string, payload []byte, headers map[string]string) error {
	if topic == "" {
		return ErrTopicEmpty
	}
	if err := b.conn.EnsureConnected(ctx); err != nil {
		return err
	}
	rdb := b.conn.GetClient()
	if rdb == nil {
		return connector.ErrNotConnected
	}

	_, span, traceHeaders := trace.StartProducerSpan(ctx, b.opt.tracer,
		trace.SpanNamePublish(topic), trace.MessagingMeta{
			System:      trace.MessagingSystemRedis,
			Destination: topic,
			Operation:   trace.MessagingOperationPublish,
		})
	defer span.End()

	data, err := encodeEvent(topic, payload, mergeHeaders(headers, traceHeaders))
	if err != nil {
		trace.MarkSpanError(span, err)
		return err
	}
	if err := rdb.Publish(ctx, topic, data).Err(); err != nil {
		trace.MarkSpanError(span, err)
		return xerrors.Wrapf(connector.ErrTransport, "redis publish %s: %v", topic, err)
	}
	return nil
}

func (b *redisBroker) Subscribe(ctx context.Context, topic string, h Handler) (Subscription, error) {
	if topic == "" {
		return nil, ErrTopicEmpty
	}
	if h == nil {
		return nil, ErrHandlerNil
	}
	if err := b.conn.EnsureConnected(ctx); err != nil {
		return nil, err
	}
	rdb := b.conn.GetClient()
	if rdb == nil {
		return nil, connector.ErrNotConnected
	}

	ps := rdb.Subscribe(ctx, topic)
	// 等订阅真正生效，之后的发布不会错过
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, xerrors.Wrapf(connector.ErrTransport, "redis subscribe %s: %v", topic, err)
	}

	s := &redisSub{broker: b, topic: topic, ps: ps}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go s.deliverLoop(h)
	return s, nil
}

func (b *redisBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var subs []*redisSub
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.subs = make(map[*redisSub]struct{})
	b.mu.Unlock()

	for _, s := range subs {
		_ = s.Unsubscribe()
	}
	return b.conn.Close()
}

type redisSub struct {
	broker *redisBroker
	topic  string
	ps     *redis.PubSub
	once   sync.Once
}

func (s *redisSub) deliverLoop(h Handler) {
	ch := s.ps.Channel()
	for msg := range ch {
		ev, err := decodeEvent([]byte(msg.Payload))
		if err != nil {
			s.broker.logger.Warn("事件解码失败",
				clog.String("topic", s.topic), clog.Error(err))
			continue
		}
		ctx, span := trace.StartConsumerSpanFromHeaders(context.Background(), s.broker.opt.tracer,
			trace.SpanNameDeliver(s.topic), ev.Headers, trace.MessagingMeta{
				System:      trace.MessagingSystemRedis,
				Destination: s.topic,
				Operation:   trace.MessagingOperationDeliver,
			})
		h(ctx, ev)
		span.End()
	}
}

func (s *redisSub) Topic() string { return s.topic }

func (s *redisSub) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		err = s.ps.Close()
		s.broker.mu.Lock()
		delete(s.broker.subs, s)
		s.broker.mu.Unlock()
	})
	return err
}
