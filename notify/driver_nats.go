package notify

import (
	"context"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/ceyewan/nexus/clog"
	"github.com/ceyewan/nexus/connector"
	"github.com/ceyewan/nexus/trace"
	"github.com/ceyewan/nexus/wire"
	"github.com/ceyewan/nexus/xerrors"
)

// =============================================================================
// NATS 后端
// =============================================================================

// natsBroker NATS core 发布/订阅后端。
//
// 刻意不用 JetStream：持久化与重放和通知的 at-most-once
// 承诺相悖，需要历史的场景走存储服务。事件以 wire.Frame
// （KindPublish）做载荷编码，头部随帧传输。
type natsBroker struct {
	conn   connector.NATSConnector
	logger clog.Logger
	opt    *options

	mu     sync.Mutex
	closed bool
}

// NewNATS 创建 NATS 后端，底层会话由弹性连接器治理。
func NewNATS(conn connector.NATSConnector, opts ...Option) (Broker, error) {
	if conn == nil {
		return nil, xerrors.Wrap(ErrInvalidConfig, "nats connector is nil")
	}

	opt := &options{}
	for _, o := range opts {
		o(opt)
	}
	opt.applyDefaults()

	return &natsBroker{
		conn:   conn,
		logger: opt.logger,
		opt:    opt,
	}, nil
}

func (b *natsBroker) Publish(ctx context.Context, topic string, payload []byte, headers map[string]string) error {
	if topic == "" {
		return ErrTopicEmpty
	}
	if err := b.conn.EnsureConnected(ctx); err != nil {
		return err
	}
	nc := b.conn.GetClient()
	if nc == nil {
		return connector.ErrNotConnected
	}

	_, span, traceHeaders := trace.StartProducerSpan(ctx, b.opt.tracer,
		trace.SpanNamePublish(topic), trace.MessagingMeta{
			System:      trace.MessagingSystemNATS,
			Destination: topic,
			Operation:   trace.MessagingOperationPublish,
		})
	defer span.End()

	data, err := encodeEvent(topic, payload, mergeHeaders(headers, traceHeaders))
	if err != nil {
		trace.MarkSpanError(span, err)
		return err
	}
	if err := nc.Publish(topic, data); err != nil {
		trace.MarkSpanError(span, err)
		return xerrors.Wrapf(connector.ErrTransport, "nats publish %s: %v", topic, err)
	}
	return nil
}

func (b *natsBroker) Subscribe(ctx context.Context, topic string, h Handler) (Subscription, error) {
	if topic == "" {
		return nil, ErrTopicEmpty
	}
	if h == nil {
		return nil, ErrHandlerNil
	}
	if err := b.conn.EnsureConnected(ctx); err != nil {
		return nil, err
	}
	nc := b.conn.GetClient()
	if nc == nil {
		return nil, connector.ErrNotConnected
	}

	sub, err := nc.Subscribe(topic, func(msg *nats.Msg) {
		ev, err := decodeEvent(msg.Data)
		if err != nil {
			b.logger.Warn("事件解码失败", clog.String("topic", topic), clog.Error(err))
			return
		}
		dctx, span := trace.StartConsumerSpanFromHeaders(context.Background(), b.opt.tracer,
			trace.SpanNameDeliver(topic), ev.Headers, trace.MessagingMeta{
				System:      trace.MessagingSystemNATS,
				Destination: topic,
				Operation:   trace.MessagingOperationDeliver,
			})
		h(dctx, ev)
		span.End()
	})
	if err != nil {
		return nil, xerrors.Wrapf(connector.ErrTransport, "nats subscribe %s: %v", topic, err)
	}
	return &natsSub{topic: topic, sub: sub}, nil
}

func (b *natsBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.conn.Close()
}

type natsSub struct {
	topic string
	sub   *nats.Subscription
	once  sync.Once
}

func (s *natsSub) Topic() string { return s.topic }

func (s *natsSub) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		err = s.sub.Unsubscribe()
	})
	return err
}

// encodeEvent 把事件编码为帧载荷，跨后端统一格式。
func encodeEvent(topic string, payload []byte, headers map[string]string) ([]byte, error) {
	return wire.EncodeBytes(&wire.Frame{
		Kind:    wire.KindPublish,
		Topic:   topic,
		Payload: payload,
		Headers: headers,
	})
}

func decodeEvent(data []byte) (*Event, error) {
	f, err := wire.DecodeBytes(data)
	if err != nil {
		return nil, err
	}
	return &Event{Topic: f.Topic, Payload: f.Payload, Headers: f.Headers}, nil
}
