package breaker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// TestInterceptorTripsOnUnavailable 测试传输类错误触发熔断
func TestInterceptorTripsOnUnavailable(t *testing.T) {
	g, err := NewGroup(&Config{FailureThreshold: 2, MinBackoff: time.Minute})
	require.NoError(t, err)

	interceptor := g.UnaryClientInterceptor(WithKeyFunc(KeyByMethod))
	ctx := context.Background()

	failing := func(ctx context.Context, method string, req, reply any,
		cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		return status.Error(codes.Unavailable, "connection refused")
	}

	for i := 0; i < 2; i++ {
		err = interceptor(ctx, "/dev.Tgf4000/SetChannel", nil, nil, nil, failing)
		assert.Error(t, err)
	}
	assert.Equal(t, StateOpen, g.State("/dev.Tgf4000/SetChannel"))

	// 熔断后不再触达 invoker
	invoked := false
	err = interceptor(ctx, "/dev.Tgf4000/SetChannel", nil, nil, nil,
		func(ctx context.Context, method string, req, reply any,
			cc *grpc.ClientConn, opts ...grpc.CallOption) error {
			invoked = true
			return nil
		})
	assert.ErrorIs(t, err, ErrOpenState)
	assert.False(t, invoked)
}

// TestInterceptorIgnoresBusinessErrors 测试业务错误不计入熔断
func TestInterceptorIgnoresBusinessErrors(t *testing.T) {
	g, err := NewGroup(&Config{FailureThreshold: 1, MinBackoff: time.Minute})
	require.NoError(t, err)

	interceptor := g.UnaryClientInterceptor(WithKeyFunc(KeyByMethod))
	ctx := context.Background()

	badRequest := func(ctx context.Context, method string, req, reply any,
		cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		return status.Error(codes.InvalidArgument, "bad waveform type")
	}

	for i := 0; i < 5; i++ {
		err = interceptor(ctx, "/dev.Tgf4000/SetWaveform", nil, nil, nil, badRequest)
		assert.Error(t, err)
	}
	assert.Equal(t, StateClosed, g.State("/dev.Tgf4000/SetWaveform"))
}
