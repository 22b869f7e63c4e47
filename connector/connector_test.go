package connector

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/nexus/breaker"
	"github.com/ceyewan/nexus/wire"
)

// startFrameServer 启动一个进程内帧服务器，handle 决定如何应答。
func startFrameServer(t *testing.T, handle func(*wire.Conn, *wire.Frame)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			raw, err := ln.Accept()
			if err != nil {
				return
			}
			conn := wire.NewConn(raw)
			go func() {
				defer conn.Close()
				for {
					f, err := conn.Read()
					if err != nil {
						return
					}
					handle(conn, f)
				}
			}()
		}
	}()
	return ln.Addr().String()
}

// fastBreaker 返回测试用的小阈值、短退避熔断配置。
func fastBreaker() *breaker.Config {
	return &breaker.Config{
		FailureThreshold: 2,
		MinBackoff:       50 * time.Millisecond,
		MaxBackoff:       200 * time.Millisecond,
		JitterRatio:      0.1,
	}
}

func TestNewTCPValidation(t *testing.T) {
	_, err := NewTCP(nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewTCP(&TCPConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestTCPRequestReply(t *testing.T) {
	addr := startFrameServer(t, func(conn *wire.Conn, f *wire.Frame) {
		_ = conn.Write(context.Background(), &wire.Frame{
			Kind:    wire.KindRegisterAck,
			Seq:     f.Seq,
			Status:  "ACTIVE",
			Payload: f.Payload,
		})
	})

	c, err := NewTCP(&TCPConfig{Name: "test", Addr: addr})
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))
	assert.True(t, c.IsConnected())
	// Connect 幂等
	require.NoError(t, c.Connect(ctx))

	reply, err := c.Request(ctx, &wire.Frame{
		Kind:    wire.KindRegister,
		Payload: []byte("hello"),
	})
	require.NoError(t, err)
	assert.Equal(t, wire.KindRegisterAck, reply.Kind)
	assert.Equal(t, "ACTIVE", reply.Status)
	assert.Equal(t, []byte("hello"), reply.Payload)

	// Send 封装 KindData 帧
	out, err := c.Send(ctx, []byte("ping"))
	require.NoError(t, err)
	assert.Equal(t, []byte("ping"), out)
}

func TestTCPConcurrentRequests(t *testing.T) {
	addr := startFrameServer(t, func(conn *wire.Conn, f *wire.Frame) {
		_ = conn.Write(context.Background(), &wire.Frame{
			Kind:    wire.KindRegisterAck,
			Seq:     f.Seq,
			Payload: f.Payload,
		})
	})

	c, err := NewTCP(&TCPConfig{Addr: addr})
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	done := make(chan error, 10)
	for i := 0; i < 10; i++ {
		payload := []byte{byte(i)}
		go func() {
			reply, err := c.Request(ctx, &wire.Frame{
				Kind:    wire.KindRegister,
				Payload: payload,
			})
			if err == nil && reply.Payload[0] != payload[0] {
				err = assert.AnError
			}
			done <- err
		}()
	}
	for i := 0; i < 10; i++ {
		assert.NoError(t, <-done)
	}
}

func TestDialFailureTripsBreaker(t *testing.T) {
	// 占一个端口再立刻关掉，保证拨号被拒绝
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	c, err := NewTCP(&TCPConfig{
		Addr:        addr,
		DialTimeout: 200 * time.Millisecond,
		Breaker:     fastBreaker(),
	})
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	assert.ErrorIs(t, c.Connect(ctx), ErrConnection)
	assert.ErrorIs(t, c.Connect(ctx), ErrConnection)

	// 越过阈值后熔断：快速失败，不触碰网络
	assert.Equal(t, breaker.StateOpen, c.State())
	err = c.Connect(ctx)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Greater(t, c.NextDelay(), time.Duration(0))
}

func TestRecoveryAfterBackoff(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	c, err := NewTCP(&TCPConfig{
		Addr:        addr,
		DialTimeout: 200 * time.Millisecond,
		Breaker:     fastBreaker(),
	})
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	_ = c.Connect(ctx)
	_ = c.Connect(ctx)
	require.Equal(t, breaker.StateOpen, c.State())

	// 退避期内始终快速失败
	assert.ErrorIs(t, c.Connect(ctx), ErrCircuitOpen)

	// 对端恢复：同一地址重新监听
	ln2, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	defer ln2.Close()
	go func() {
		for {
			raw, err := ln2.Accept()
			if err != nil {
				return
			}
			go func() {
				conn := wire.NewConn(raw)
				defer conn.Close()
				for {
					if _, err := conn.Read(); err != nil {
						return
					}
				}
			}()
		}
	}()

	// 退避期满后半开探测成功，回到闭合
	require.Eventually(t, func() bool {
		return c.Connect(ctx) == nil
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, breaker.StateClosed, c.State())
	assert.True(t, c.IsConnected())
}

func TestProtocolErrorDoesNotTrip(t *testing.T) {
	addr := startFrameServer(t, func(conn *wire.Conn, f *wire.Frame) {
		_ = conn.Write(context.Background(), &wire.Frame{
			Kind: wire.KindError,
			Seq:  f.Seq,
			Err:  "unknown service type",
		})
	})

	c, err := NewTCP(&TCPConfig{Addr: addr, Breaker: fastBreaker()})
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	for i := 0; i < 5; i++ {
		_, err := c.Request(ctx, &wire.Frame{Kind: wire.KindLookup, ServiceType: "ghost"})
		assert.ErrorIs(t, err, ErrProtocol)
	}

	// 协议错误不计入熔断：链路没坏，会话保持
	assert.Equal(t, breaker.StateClosed, c.State())
	assert.True(t, c.IsConnected())
}

func TestRequestTimeoutIsTransportFailure(t *testing.T) {
	// 服务端收帧后不应答
	addr := startFrameServer(t, func(conn *wire.Conn, f *wire.Frame) {})

	c, err := NewTCP(&TCPConfig{
		Addr:        addr,
		SendTimeout: 100 * time.Millisecond,
		Breaker:     fastBreaker(),
	})
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	_, err = c.Request(ctx, &wire.Frame{Kind: wire.KindLookup})
	assert.ErrorIs(t, err, ErrTimeout)

	// 超时按传输失败处理：会话重建
	assert.False(t, c.IsConnected())
}

func TestUnmatchedFrameGoesToHandler(t *testing.T) {
	addr := startFrameServer(t, func(conn *wire.Conn, f *wire.Frame) {
		if f.Kind == wire.KindHeartbeat {
			_ = conn.Write(context.Background(), &wire.Frame{
				Kind:      wire.KindHeartbeatAck,
				Seq:       f.Seq,
				ServiceID: f.ServiceID,
				Status:    "ACTIVE",
			})
		}
	})

	c, err := NewTCP(&TCPConfig{Addr: addr})
	require.NoError(t, err)
	defer c.Close()

	got := make(chan *wire.Frame, 1)
	c.Handle(func(f *wire.Frame) {
		select {
		case got <- f:
		default:
		}
	})

	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	// fire-and-forget 心跳：ack 没有等待者，走通用处理函数
	require.NoError(t, c.Notify(ctx, wire.NewHeartbeat("svc-1", 7, time.Now())))

	select {
	case f := <-got:
		assert.Equal(t, wire.KindHeartbeatAck, f.Kind)
		assert.Equal(t, "svc-1", f.ServiceID)
		assert.Equal(t, "ACTIVE", f.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("heartbeat ack not delivered to handler")
	}
}

func TestPeerDisconnectFailsInflight(t *testing.T) {
	addr := startFrameServer(t, func(conn *wire.Conn, f *wire.Frame) {
		// 收到请求后直接断开
		_ = conn.Close()
	})

	c, err := NewTCP(&TCPConfig{
		Addr:        addr,
		SendTimeout: 2 * time.Second,
		Breaker:     fastBreaker(),
	})
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	_, err = c.Request(ctx, &wire.Frame{Kind: wire.KindLookup})
	assert.ErrorIs(t, err, ErrTransport)
	assert.False(t, c.IsConnected())
}

func TestCloseIdempotent(t *testing.T) {
	addr := startFrameServer(t, func(conn *wire.Conn, f *wire.Frame) {})

	c, err := NewTCP(&TCPConfig{Addr: addr})
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))

	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
	assert.ErrorIs(t, c.Connect(context.Background()), ErrClosed)
}

func TestAsyncEnsureConnectedNonBlocking(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	inner, err := NewTCP(&TCPConfig{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
		Breaker:     fastBreaker(),
	})
	require.NoError(t, err)

	c := NewAsync(inner)
	defer c.Close()

	// 调用方 goroutine 不被拨号阻塞
	start := time.Now()
	err = c.EnsureConnected(context.Background())
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)

	// 对端出现后，后台循环最终建立会话
	ln2, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	defer ln2.Close()
	go func() {
		for {
			raw, err := ln2.Accept()
			if err != nil {
				return
			}
			_ = raw
		}
	}()

	require.Eventually(t, c.IsConnected, 5*time.Second, 20*time.Millisecond)
	assert.NoError(t, c.EnsureConnected(context.Background()))
}

func TestSQLiteConnector(t *testing.T) {
	c, err := NewSQLite(&SQLiteConfig{})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Connect(context.Background()))

	type record struct {
		ID   uint `gorm:"primaryKey"`
		Name string
	}
	db := c.GetClient()
	require.NotNil(t, db)
	require.NoError(t, db.AutoMigrate(&record{}))
	require.NoError(t, db.Create(&record{Name: "tgf4000"}).Error)

	var got record
	require.NoError(t, db.First(&got, "name = ?", "tgf4000").Error)
	assert.Equal(t, "tgf4000", got.Name)
}
