package testkit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ceyewan/nexus/registry"
)

// NewRegistryServer 启动一个进程内注册中心，监听随机端口
// 扫描周期缩短到 50ms，便于测试过期路径；生命周期由 t.Cleanup 管理
func NewRegistryServer(t *testing.T, opts ...registry.Option) *registry.Server {
	srv, err := registry.NewServer(&registry.ServerConfig{
		Addr:          "127.0.0.1:0",
		SweepInterval: 50 * time.Millisecond,
	}, opts...)
	require.NoError(t, err, "failed to create registry server")
	require.NoError(t, srv.Start(), "failed to start registry server")

	t.Cleanup(func() {
		_ = srv.Close()
	})
	return srv
}

// NewRegistryClient 返回连接到 addr 的注册中心客户端
// 心跳间隔缩短到 30ms；生命周期由 t.Cleanup 管理
func NewRegistryClient(t *testing.T, addr string) registry.Client {
	cli, err := registry.NewClient(&registry.ClientConfig{
		Addr:              addr,
		HeartbeatInterval: 30 * time.Millisecond,
		RequestTimeout:    2 * time.Second,
	}, registry.WithLogger(NewLogger()))
	require.NoError(t, err, "failed to create registry client")

	t.Cleanup(func() {
		_ = cli.Close()
	})
	return cli
}
