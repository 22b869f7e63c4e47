package notify_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/nexus/notify"
	"github.com/ceyewan/nexus/testkit"
)

func uniqueTopic() string {
	return "test." + testkit.NewID() + ".status"
}

// eventSink 线程安全地收集跨驱动投递的事件
type eventSink struct {
	mu     sync.Mutex
	events []*notify.Event
}

func (s *eventSink) handler(_ context.Context, ev *notify.Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *eventSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *eventSink) first() *notify.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return nil
	}
	return s.events[0]
}

func TestNATSBrokerIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	conn := testkit.NewNATSContainerConnector(t)
	b, err := notify.NewNATS(conn, notify.WithLogger(testkit.NewLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	ctx, cancel := testkit.NewContext(t, 10*time.Second)
	defer cancel()

	topic := uniqueTopic()
	var sink eventSink
	sub, err := b.Subscribe(ctx, topic, sink.handler)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })

	// 等订阅在服务端生效
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, b.Publish(ctx, topic, []byte("nats-payload"), map[string]string{"origin": "itest"}))

	require.Eventually(t, func() bool { return sink.count() == 1 }, 5*time.Second, 20*time.Millisecond)
	ev := sink.first()
	assert.Equal(t, topic, ev.Topic)
	assert.Equal(t, "nats-payload", string(ev.Payload))
	assert.Equal(t, "itest", ev.Headers["origin"])
}

func TestNATSBrokerUnsubscribeIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	conn := testkit.NewNATSContainerConnector(t)
	b, err := notify.NewNATS(conn, notify.WithLogger(testkit.NewLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	ctx, cancel := testkit.NewContext(t, 10*time.Second)
	defer cancel()

	topic := uniqueTopic()
	var sink eventSink
	sub, err := b.Subscribe(ctx, topic, sink.handler)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, b.Publish(ctx, topic, []byte("before"), nil))
	require.Eventually(t, func() bool { return sink.count() == 1 }, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, sub.Unsubscribe())

	// 退订后的发布按至多一次语义直接消失
	require.NoError(t, b.Publish(ctx, topic, []byte("after"), nil))
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, sink.count())
}

func TestRedisBrokerIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	conn := testkit.NewRedisContainerConnector(t)
	b, err := notify.NewRedis(conn, notify.WithLogger(testkit.NewLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	ctx, cancel := testkit.NewContext(t, 10*time.Second)
	defer cancel()

	topic := uniqueTopic()
	var sink eventSink
	sub, err := b.Subscribe(ctx, topic, sink.handler)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, b.Publish(ctx, topic, []byte("redis-payload"), map[string]string{"origin": "itest"}))

	require.Eventually(t, func() bool { return sink.count() == 1 }, 5*time.Second, 20*time.Millisecond)
	ev := sink.first()
	assert.Equal(t, topic, ev.Topic)
	assert.Equal(t, "redis-payload", string(ev.Payload))
	assert.Equal(t, "itest", ev.Headers["origin"])
}

func TestRedisBrokerFanOutIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	conn := testkit.NewRedisContainerConnector(t)
	b, err := notify.NewRedis(conn, notify.WithLogger(testkit.NewLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	ctx, cancel := testkit.NewContext(t, 10*time.Second)
	defer cancel()

	topic := uniqueTopic()
	var s1, s2 eventSink
	sub1, err := b.Subscribe(ctx, topic, s1.handler)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub1.Unsubscribe() })
	sub2, err := b.Subscribe(ctx, topic, s2.handler)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub2.Unsubscribe() })

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, b.Publish(ctx, topic, []byte("fan-out"), nil))

	require.Eventually(t, func() bool {
		return s1.count() == 1 && s2.count() == 1
	}, 5*time.Second, 20*time.Millisecond)
}
