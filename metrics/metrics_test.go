package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewDisabled 测试禁用时返回 noop Meter
func TestNewDisabled(t *testing.T) {
	meter, err := New(&Config{Enabled: false})
	require.NoError(t, err)

	c, err := meter.Counter("x_total", "desc")
	require.NoError(t, err)
	c.Inc(context.Background())

	require.NoError(t, meter.Shutdown(context.Background()))
}

// TestNewNilConfig 测试 nil 配置报错
func TestNewNilConfig(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

// TestCounterExport 测试计数器通过 Prometheus Handler 导出
func TestCounterExport(t *testing.T) {
	meter, err := New(&Config{Enabled: true, ServiceName: "test", Version: "v0"})
	require.NoError(t, err)
	defer meter.Shutdown(context.Background())

	ctx := context.Background()

	counter, err := meter.Counter("heartbeats_total", "收到的心跳帧总数")
	require.NoError(t, err)
	counter.Inc(ctx, L("service_type", "STORAGE"))
	counter.Add(ctx, 2, L("service_type", "STORAGE"))

	rec := httptest.NewRecorder()
	meter.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	assert.True(t, strings.Contains(string(body), "heartbeats_total"))
}

// TestGaugeAndHistogram 测试 gauge 与 histogram 创建和记录
func TestGaugeAndHistogram(t *testing.T) {
	meter, err := New(&Config{Enabled: true, ServiceName: "test"})
	require.NoError(t, err)
	defer meter.Shutdown(context.Background())

	ctx := context.Background()

	g, err := meter.Gauge("active_records", "当前注册表记录数")
	require.NoError(t, err)
	g.Inc(ctx)
	g.Inc(ctx)
	g.Dec(ctx)

	h, err := meter.Histogram("dial_seconds", "拨号耗时")
	require.NoError(t, err)
	h.Record(ctx, 0.05, L("transport", "tcp"))
}
