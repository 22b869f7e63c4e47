package heartbeat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/nexus/wire"
)

// fakeNotifier 收集发出的心跳帧
type fakeNotifier struct {
	mu     sync.Mutex
	frames []*wire.Frame
	err    error
}

func (n *fakeNotifier) Notify(_ context.Context, f *wire.Frame) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.frames = append(n.frames, f)
	return nil
}

func (n *fakeNotifier) snapshot() []*wire.Frame {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*wire.Frame, len(n.frames))
	copy(out, n.frames)
	return out
}

// fakeRecorder 固定返回给定状态
type fakeRecorder struct {
	mu     sync.Mutex
	status string
	known  bool
	calls  []uint64
}

func (r *fakeRecorder) Touch(_ string, seq uint64, _ time.Time) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, seq)
	return r.status, r.known
}

func TestNewEmitterValidation(t *testing.T) {
	_, err := NewEmitter(nil, &fakeNotifier{})
	assert.ErrorIs(t, err, ErrConfigNil)

	_, err = NewEmitter(&EmitterConfig{}, &fakeNotifier{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewEmitter(&EmitterConfig{ServiceID: "svc-1"}, nil)
	assert.ErrorIs(t, err, ErrNotifierNil)
}

func TestEmitterMonotonicSeq(t *testing.T) {
	n := &fakeNotifier{}
	e, err := NewEmitter(&EmitterConfig{
		ServiceID: "svc-1",
		Interval:  20 * time.Millisecond,
	}, n)
	require.NoError(t, err)

	e.Start()
	e.Start() // 幂等
	require.Eventually(t, func() bool {
		return len(n.snapshot()) >= 3
	}, 2*time.Second, 10*time.Millisecond)
	e.Stop()
	e.Stop() // 幂等

	frames := n.snapshot()
	for i, f := range frames {
		assert.Equal(t, wire.KindHeartbeat, f.Kind)
		assert.Equal(t, "svc-1", f.ServiceID)
		assert.Equal(t, uint64(i+1), f.Seq, "序号单调递增，从 1 开始")
	}
	assert.Equal(t, uint64(len(frames)), e.Seq())
}

func TestEmitterSurvivesSendFailure(t *testing.T) {
	n := &fakeNotifier{err: assert.AnError}
	e, err := NewEmitter(&EmitterConfig{
		ServiceID: "svc-1",
		Interval:  10 * time.Millisecond,
	}, n)
	require.NoError(t, err)

	e.Start()
	defer e.Stop()

	// 发送一直失败，节拍不停、序号照走
	require.Eventually(t, func() bool {
		return e.Seq() >= 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEmitterStaleCallback(t *testing.T) {
	var mu sync.Mutex
	var got []string
	e, err := NewEmitter(&EmitterConfig{
		ServiceID: "svc-1",
	}, &fakeNotifier{}, WithOnStale(func(status string) {
		mu.Lock()
		got = append(got, status)
		mu.Unlock()
	}))
	require.NoError(t, err)

	e.HandleAck(&wire.Frame{Kind: wire.KindHeartbeatAck, Status: wire.StatusActive})
	e.HandleAck(&wire.Frame{Kind: wire.KindHeartbeatAck, Status: wire.StatusSuspect})
	e.HandleAck(&wire.Frame{Kind: wire.KindHeartbeatAck, Status: wire.StatusUnknown})
	// 非应答帧被忽略
	e.HandleAck(&wire.Frame{Kind: wire.KindHeartbeat, Status: wire.StatusSuspect})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{wire.StatusSuspect, wire.StatusUnknown}, got)
}

func TestReceiverAck(t *testing.T) {
	rec := &fakeRecorder{status: wire.StatusActive, known: true}
	r, err := NewReceiver(nil, rec)
	require.NoError(t, err)

	ack := r.Consume(context.Background(), wire.NewHeartbeat("svc-1", 42, time.Now()))
	require.NotNil(t, ack, "AckEnabled 默认开启")
	assert.Equal(t, wire.KindHeartbeatAck, ack.Kind)
	assert.Equal(t, uint64(42), ack.Seq)
	assert.Equal(t, wire.StatusActive, ack.Status)
	assert.Equal(t, []uint64{42}, rec.calls)
}

func TestReceiverUnknownService(t *testing.T) {
	rec := &fakeRecorder{known: false}
	r, err := NewReceiver(nil, rec)
	require.NoError(t, err)

	ack := r.Consume(context.Background(), wire.NewHeartbeat("ghost", 1, time.Now()))
	require.NotNil(t, ack)
	assert.Equal(t, wire.StatusUnknown, ack.Status)
}

func TestReceiverAckDisabled(t *testing.T) {
	rec := &fakeRecorder{status: wire.StatusActive, known: true}
	r, err := NewReceiver(&ReceiverConfig{AckEnabled: false}, rec)
	require.NoError(t, err)

	ack := r.Consume(context.Background(), wire.NewHeartbeat("svc-1", 1, time.Now()))
	assert.Nil(t, ack)
	assert.Len(t, rec.calls, 1, "不应答但仍刷新注册表")
}

func TestReceiverRateLimit(t *testing.T) {
	rec := &fakeRecorder{status: wire.StatusActive, known: true}
	r, err := NewReceiver(&ReceiverConfig{
		AckEnabled:    true,
		RatePerSecond: 1,
		Burst:         2,
	}, rec)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		r.Consume(ctx, wire.NewHeartbeat("svc-1", uint64(i+1), time.Now()))
	}
	// 桶容量 2：只有前两帧落表，其余被丢弃
	assert.LessOrEqual(t, len(rec.calls), 3)
	assert.GreaterOrEqual(t, len(rec.calls), 2)
}

func TestReceiverIgnoresOtherKinds(t *testing.T) {
	rec := &fakeRecorder{status: wire.StatusActive, known: true}
	r, err := NewReceiver(nil, rec)
	require.NoError(t, err)

	assert.Nil(t, r.Consume(context.Background(), &wire.Frame{Kind: wire.KindLookup}))
	assert.Nil(t, r.Consume(context.Background(), nil))
	assert.Empty(t, rec.calls)
}
