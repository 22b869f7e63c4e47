package registry

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/nexus/config"
	"github.com/ceyewan/nexus/wire"
)

// fakeLookuper 固定返回一个端点并统计调用次数
type fakeLookuper struct {
	ep    *wire.Endpoint
	err   error
	calls atomic.Int64
}

func (l *fakeLookuper) Lookup(_ context.Context, _ string) (*wire.Endpoint, error) {
	l.calls.Add(1)
	if l.err != nil {
		return nil, l.err
	}
	return l.ep, nil
}

func TestResolverStaticPort(t *testing.T) {
	lk := &fakeLookuper{}
	r, err := NewResolver(&ResolverConfig{
		CommandingPorts: map[string]int{"tgf4000_cs": 7010},
		StaticHost:      "192.168.1.20",
	}, lk)
	require.NoError(t, err)
	defer r.Close()

	ep, err := r.Resolve(context.Background(), "tgf4000_cs")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.20", ep.Host)
	assert.Equal(t, 7010, ep.Port)
	assert.Equal(t, int64(0), lk.calls.Load(), "固定端口不访问注册中心")
}

func TestResolverDynamicWithCache(t *testing.T) {
	lk := &fakeLookuper{ep: &wire.Endpoint{Protocol: "tcp", Host: "10.0.0.5", Port: 6000}}
	r, err := NewResolver(&ResolverConfig{
		CommandingPorts: map[string]int{"STORAGE": 0},
		CacheTTL:        time.Minute,
	}, lk)
	require.NoError(t, err)
	defer r.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		ep, err := r.Resolve(ctx, "STORAGE")
		require.NoError(t, err)
		assert.Equal(t, 6000, ep.Port)
	}
	assert.Equal(t, int64(1), lk.calls.Load(), "命中缓存不再查询")

	// 作废后重新查询
	r.Invalidate("STORAGE")
	_, err = r.Resolve(ctx, "STORAGE")
	require.NoError(t, err)
	assert.Equal(t, int64(2), lk.calls.Load())
}

func TestResolverLookupFailure(t *testing.T) {
	lk := &fakeLookuper{err: ErrServiceNotFound}
	r, err := NewResolver(&ResolverConfig{}, lk)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Resolve(context.Background(), "STORAGE")
	assert.ErrorIs(t, err, ErrEndpointUnavailable)
}

func TestResolverNoClient(t *testing.T) {
	r, err := NewResolver(&ResolverConfig{
		CommandingPorts: map[string]int{"tgf4000_cs": 7010},
	}, nil)
	require.NoError(t, err)
	defer r.Close()

	// 固定端口照常工作
	ep, err := r.Resolve(context.Background(), "tgf4000_cs")
	require.NoError(t, err)
	assert.Equal(t, 7010, ep.Port)

	// 动态类型没有查询通道
	_, err = r.Resolve(context.Background(), "STORAGE")
	assert.ErrorIs(t, err, ErrEndpointUnavailable)
}

func TestResolverActive(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			_ = c.Close()
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	lk := &fakeLookuper{ep: &wire.Endpoint{Protocol: "tcp", Host: "127.0.0.1", Port: port}}
	r, err := NewResolver(&ResolverConfig{CacheTTL: time.Minute}, lk)
	require.NoError(t, err)
	defer r.Close()

	ctx := context.Background()
	assert.True(t, r.Active(ctx, "STORAGE"))

	// 端点消失：探测失败并作废缓存
	require.NoError(t, ln.Close())
	assert.False(t, r.Active(ctx, "STORAGE"))
	assert.Equal(t, int64(1), lk.calls.Load(), "失败的探测命中的是缓存")

	// 缓存已作废，下一次探测重新查询
	assert.False(t, r.Active(ctx, "STORAGE"))
	assert.Equal(t, int64(2), lk.calls.Load())
}

func TestResolverFromBootstrap(t *testing.T) {
	bs := &config.Bootstrap{
		Registry:        config.RegistryConfig{Host: "192.168.1.10", Port: 4242},
		CommandingPorts: map[string]int{"tgf4000_cs": 7010},
	}
	r, err := NewResolverFromBootstrap(bs, nil)
	require.NoError(t, err)
	defer r.Close()

	ep, err := r.Resolve(context.Background(), "tgf4000_cs")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.10", ep.Host)
	assert.Equal(t, 7010, ep.Port)
}
