package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ceyewan/nexus/clog"
	"github.com/ceyewan/nexus/wire"
)

// capturePublisher 收集服务端广播的事件
type capturePublisher struct {
	mu     sync.Mutex
	events []ExpiredEvent
}

func (p *capturePublisher) Publish(_ context.Context, topic string, payload []byte, _ map[string]string) error {
	if topic != TopicServiceExpired {
		return nil
	}
	var ev ExpiredEvent
	if err := msgpack.Unmarshal(payload, &ev); err != nil {
		return err
	}
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
	return nil
}

func (p *capturePublisher) snapshot() []ExpiredEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ExpiredEvent, len(p.events))
	copy(out, p.events)
	return out
}

func startServer(t *testing.T, pub Publisher) *Server {
	t.Helper()
	srv, err := NewServer(&ServerConfig{
		Addr:          "127.0.0.1:0",
		SweepInterval: 50 * time.Millisecond,
		Grace:         2,
	}, WithPublisher(pub))
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func newTestClient(t *testing.T, addr string) Client {
	t.Helper()
	cli, err := NewClient(&ClientConfig{
		Addr:              addr,
		HeartbeatInterval: 30 * time.Millisecond,
		RequestTimeout:    2 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cli.Close() })
	return cli
}

func TestRegisterAndLookup(t *testing.T) {
	srv := startServer(t, nil)
	cli := newTestClient(t, srv.Addr())

	ctx := context.Background()
	id, err := cli.Register(ctx, Registration{
		ServiceType: "STORAGE",
		Endpoint:    wire.Endpoint{Protocol: "tcp", Host: "10.0.0.5", Port: 6000},
		Metadata:    map[string]string{"monitoring_port": "6001"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, cli.ServiceID())

	// 另一个客户端按类型查到端点
	consumer := newTestClient(t, srv.Addr())
	ep, err := consumer.Lookup(ctx, "STORAGE")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", ep.Host)
	assert.Equal(t, 6000, ep.Port)

	// 不存在的类型是合法空结果
	_, err = consumer.Lookup(ctx, "ghost")
	assert.ErrorIs(t, err, ErrServiceNotFound)
}

func TestHeartbeatKeepsAlive(t *testing.T) {
	srv := startServer(t, nil)
	cli := newTestClient(t, srv.Addr())

	ctx := context.Background()
	_, err := cli.Register(ctx, Registration{
		ServiceType: "STORAGE",
		Endpoint:    wire.Endpoint{Protocol: "tcp", Host: "h", Port: 1},
	})
	require.NoError(t, err)

	// 心跳周期 30ms、扫描 50ms、宽限 2：没有心跳早就被清了
	time.Sleep(500 * time.Millisecond)

	ep, err := cli.Lookup(ctx, "STORAGE")
	require.NoError(t, err)
	assert.Equal(t, 1, ep.Port)

	snap := srv.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, StatusActive, snap[0].Status)
	assert.Greater(t, snap[0].LastSeq, uint64(2), "心跳序号持续推进")
}

func TestExpiryAndEvent(t *testing.T) {
	pub := &capturePublisher{}
	srv := startServer(t, pub)
	cli := newTestClient(t, srv.Addr())

	ctx := context.Background()
	id, err := cli.Register(ctx, Registration{
		ServiceType: "STORAGE",
		Endpoint:    wire.Endpoint{Protocol: "tcp", Host: "h", Port: 1},
	})
	require.NoError(t, err)

	// 杀掉客户端，心跳停止
	require.NoError(t, cli.Close())

	// 宽限期耗尽后记录被清除并广播事件
	require.Eventually(t, func() bool {
		return len(srv.Snapshot()) == 0
	}, 3*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(pub.snapshot()) == 1
	}, time.Second, 10*time.Millisecond)
	ev := pub.snapshot()[0]
	assert.Equal(t, id, ev.ServiceID)
	assert.Equal(t, "STORAGE", ev.ServiceType)
}

func TestDeregister(t *testing.T) {
	srv := startServer(t, nil)
	cli := newTestClient(t, srv.Addr())

	ctx := context.Background()
	_, err := cli.Register(ctx, Registration{
		ServiceType: "STORAGE",
		Endpoint:    wire.Endpoint{Protocol: "tcp", Host: "h", Port: 1},
	})
	require.NoError(t, err)

	require.NoError(t, cli.Deregister(ctx))
	assert.Empty(t, cli.ServiceID())
	assert.Empty(t, srv.Snapshot())

	// 幂等
	require.NoError(t, cli.Deregister(ctx))
}

func TestReRegisterAfterRegistryForgets(t *testing.T) {
	srv := startServer(t, nil)
	cli := newTestClient(t, srv.Addr())

	ctx := context.Background()
	id, err := cli.Register(ctx, Registration{
		ServiceType: "STORAGE",
		Endpoint:    wire.Endpoint{Protocol: "tcp", Host: "h", Port: 1},
	})
	require.NoError(t, err)

	// 管理操作把记录删掉：下一个心跳应答 UNKNOWN，客户端自动重注册
	srv.table.deregister(id)

	require.Eventually(t, func() bool {
		snap := srv.Snapshot()
		return len(snap) == 1 && snap[0].ServiceID != id
	}, 3*time.Second, 20*time.Millisecond, "收到 UNKNOWN 后拿到新 id")
}

func TestAdminEndpoints(t *testing.T) {
	tb := newTable(3)
	tb.register("STORAGE", wire.Endpoint{Protocol: "tcp", Host: "h", Port: 1}, nil, "")

	admin := newAdminServer("127.0.0.1:0", tb, nil, clog.Discard())
	ts := httptest.NewServer(admin.srv.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/services")
	require.NoError(t, err)
	var body struct {
		Services []ServiceRecord `json:"services"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	require.Len(t, body.Services, 1)
	assert.Equal(t, "STORAGE", body.Services[0].ServiceType)

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/services/STORAGE", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	assert.Equal(t, 0, tb.size())

	resp, err = http.Get(ts.URL + "/services/STORAGE")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}
