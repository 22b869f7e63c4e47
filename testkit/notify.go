package testkit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ceyewan/nexus/notify"
)

// NewEmbeddedBroker 返回一个进程内通知底座
// 生命周期由 t.Cleanup 管理
func NewEmbeddedBroker(t *testing.T) notify.Broker {
	b, err := notify.NewEmbedded(nil, notify.WithLogger(NewLogger()))
	require.NoError(t, err, "failed to create embedded broker")

	t.Cleanup(func() {
		_ = b.Close()
	})
	return b
}

// NewNotifyHub 启动一个进程内通知枢纽，监听随机端口
// 生命周期由 t.Cleanup 管理
func NewNotifyHub(t *testing.T) *notify.Hub {
	hub, err := notify.NewHub(&notify.HubConfig{
		Addr: "127.0.0.1:0",
	}, notify.WithLogger(NewLogger()))
	require.NoError(t, err, "failed to create notify hub")
	require.NoError(t, hub.Start(), "failed to start notify hub")

	t.Cleanup(func() {
		_ = hub.Close()
	})
	return hub
}

// NewHubClient 返回连接到 addr 的枢纽客户端
// 生命周期由 t.Cleanup 管理
func NewHubClient(t *testing.T, addr string) notify.Broker {
	cli, err := notify.NewClient(&notify.ClientConfig{
		Addr:           addr,
		RequestTimeout: 2 * time.Second,
	}, notify.WithLogger(NewLogger()))
	require.NoError(t, err, "failed to create hub client")

	t.Cleanup(func() {
		_ = cli.Close()
	})
	return cli
}
