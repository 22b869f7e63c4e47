package breaker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/nexus/xerrors"
)

// newTestEngine 返回一个使用假时钟的引擎
func newTestEngine(t *testing.T, cfg *Config) (*engine, *time.Time) {
	t.Helper()
	if cfg == nil {
		cfg = DefaultConfig()
	}
	// 抖动会让断言不确定，单元测试中关掉
	cfg.JitterRatio = 0

	brk, err := New(cfg)
	require.NoError(t, err)

	e := brk.(*engine)
	now := time.Unix(1000, 0)
	e.now = func() time.Time { return now }
	return e, &now
}

// TestNewNilConfig 测试 nil 配置
func TestNewNilConfig(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrConfigNil)
}

// TestInvalidConfig 测试非法配置
func TestInvalidConfig(t *testing.T) {
	_, err := New(&Config{MinBackoff: 10 * time.Second, MaxBackoff: time.Second})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(&Config{JitterRatio: 1.5})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

// TestClosedUntilThreshold 测试阈值之前保持 CLOSED，越过后立即 OPEN
func TestClosedUntilThreshold(t *testing.T) {
	e, _ := newTestEngine(t, &Config{FailureThreshold: 5})

	for i := 0; i < 4; i++ {
		assert.True(t, e.CanAttempt())
		e.OnFailure()
		assert.Equal(t, StateClosed, e.State(), "failure %d should not trip", i+1)
	}

	e.OnFailure() // 第 5 次，越过阈值
	assert.Equal(t, StateOpen, e.State())
	assert.False(t, e.CanAttempt())
}

// TestOpenRejectsUntilBackoffElapsed 测试 OPEN 状态在退避期内拒绝尝试
func TestOpenRejectsUntilBackoffElapsed(t *testing.T) {
	e, now := newTestEngine(t, &Config{FailureThreshold: 2, MinBackoff: time.Second})

	e.OnFailure()
	e.OnFailure()
	require.Equal(t, StateOpen, e.State())

	// t+0.5s：仍在退避期
	*now = now.Add(500 * time.Millisecond)
	assert.False(t, e.CanAttempt())
	assert.Equal(t, 500*time.Millisecond, e.NextDelay())

	// t+1.0s：退避期满，恰好一次探测
	*now = now.Add(500 * time.Millisecond)
	assert.True(t, e.CanAttempt())
	assert.Equal(t, StateHalfOpen, e.State())
}

// TestHalfOpenSingleProbe 测试 HALF_OPEN 只放行一次探测
func TestHalfOpenSingleProbe(t *testing.T) {
	e, now := newTestEngine(t, &Config{FailureThreshold: 1, MinBackoff: time.Second})

	e.OnFailure()
	*now = now.Add(time.Second)

	assert.True(t, e.CanAttempt())
	// 探测结果上报前，后续尝试一律拒绝
	assert.False(t, e.CanAttempt())
	assert.False(t, e.CanAttempt())
}

// TestHalfOpenSuccessResets 测试探测成功后完全复位
func TestHalfOpenSuccessResets(t *testing.T) {
	e, now := newTestEngine(t, &Config{FailureThreshold: 2, MinBackoff: time.Second})

	e.OnFailure()
	e.OnFailure()
	*now = now.Add(time.Second)
	require.True(t, e.CanAttempt())

	e.OnSuccess()
	assert.Equal(t, StateClosed, e.State())
	assert.Equal(t, time.Duration(0), e.NextDelay())

	// 复位后重新按阈值计数
	e.OnFailure()
	assert.Equal(t, StateClosed, e.State())
}

// TestHalfOpenFailureDoublesBackoff 测试探测失败后退避加倍
func TestHalfOpenFailureDoublesBackoff(t *testing.T) {
	e, now := newTestEngine(t, &Config{
		FailureThreshold: 1,
		MinBackoff:       time.Second,
		MaxBackoff:       3 * time.Second,
	})

	e.OnFailure() // OPEN, backoff = 1s
	assert.Equal(t, time.Second, e.currentBackoff)

	*now = now.Add(time.Second)
	require.True(t, e.CanAttempt())
	e.OnFailure() // 探测失败, backoff = 2s
	assert.Equal(t, 2*time.Second, e.currentBackoff)

	*now = now.Add(2 * time.Second)
	require.True(t, e.CanAttempt())
	e.OnFailure() // 再失败, 2s*2 = 4s 被钳到上限 3s
	assert.Equal(t, 3*time.Second, e.currentBackoff)
}

// TestExecute 测试便捷封装
func TestExecute(t *testing.T) {
	e, now := newTestEngine(t, &Config{FailureThreshold: 1, MinBackoff: time.Second})
	ctx := context.Background()

	boom := xerrors.New("dial failed")
	assert.ErrorIs(t, e.Execute(ctx, func() error { return boom }), boom)

	// 已熔断：不触碰 fn
	called := false
	err := e.Execute(ctx, func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpenState)
	assert.False(t, called)

	// 退避期满后探测成功
	*now = now.Add(time.Second)
	require.NoError(t, e.Execute(ctx, func() error { return nil }))
	assert.Equal(t, StateClosed, e.State())
}

// TestJitterBounds 测试抖动落在 [backoff, backoff*1.2] 区间
func TestJitterBounds(t *testing.T) {
	cfg := &Config{FailureThreshold: 1, MinBackoff: time.Second, JitterRatio: 0.2}
	brk, err := New(cfg)
	require.NoError(t, err)

	e := brk.(*engine)
	base := time.Unix(1000, 0)
	e.now = func() time.Time { return base }

	for i := 0; i < 50; i++ {
		e.OnFailure()
		delay := e.nextRetryAt.Sub(base)
		assert.GreaterOrEqual(t, delay, time.Second)
		assert.LessOrEqual(t, delay, 1200*time.Millisecond)
		e.OnSuccess()
	}
}

// TestGroupIsolation 测试组内各键独立熔断
func TestGroupIsolation(t *testing.T) {
	g, err := NewGroup(&Config{FailureThreshold: 1, MinBackoff: time.Second})
	require.NoError(t, err)

	a, err := g.Get("dev-a")
	require.NoError(t, err)
	a.OnFailure()

	assert.Equal(t, StateOpen, g.State("dev-a"))
	assert.Equal(t, StateClosed, g.State("dev-b"))

	g.Reset("dev-a")
	assert.Equal(t, StateClosed, g.State("dev-a"))
}

// TestGroupEmptyKey 测试空键报错
func TestGroupEmptyKey(t *testing.T) {
	g, err := NewGroup(DefaultConfig())
	require.NoError(t, err)

	_, err = g.Get("")
	assert.ErrorIs(t, err, ErrKeyEmpty)
}
