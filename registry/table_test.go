package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/nexus/wire"
)

var testEndpoint = wire.Endpoint{Protocol: "tcp", Host: "10.0.0.5", Port: 6000}

func TestTableRegister(t *testing.T) {
	tb := newTable(3)

	rec := tb.register("STORAGE", testEndpoint, map[string]string{"monitoring_port": "6001"}, "")
	assert.NotEmpty(t, rec.ServiceID)
	assert.Equal(t, StatusActive, rec.Status)
	assert.Equal(t, testEndpoint, rec.Endpoint)
	assert.Equal(t, 1, tb.size())

	got, ok := tb.lookup("STORAGE")
	require.True(t, ok)
	assert.Equal(t, rec.ServiceID, got.ServiceID)
	assert.Equal(t, "6001", got.Metadata["monitoring_port"])
}

func TestTableReRegisterLiveIDRefreshes(t *testing.T) {
	tb := newTable(3)

	rec := tb.register("STORAGE", testEndpoint, nil, "")
	newEP := wire.Endpoint{Protocol: "tcp", Host: "10.0.0.5", Port: 6100}
	rec2 := tb.register("STORAGE", newEP, nil, rec.ServiceID)

	assert.Equal(t, rec.ServiceID, rec2.ServiceID, "存活 id 重注册保持 serviceId")
	assert.Equal(t, newEP, rec2.Endpoint)
	assert.Equal(t, 1, tb.size())
}

func TestTableRegisterReplacesSameEndpoint(t *testing.T) {
	tb := newTable(3)

	rec := tb.register("STORAGE", testEndpoint, nil, "")
	// 同类型同端点、不带 id：重启后的同一实例，旧记录被替换
	rec2 := tb.register("STORAGE", testEndpoint, nil, "")

	assert.NotEqual(t, rec.ServiceID, rec2.ServiceID)
	assert.Equal(t, 1, tb.size())

	// 死 id 重注册拿到新 id
	rec3 := tb.register("STORAGE", testEndpoint, nil, rec.ServiceID)
	assert.NotEqual(t, rec.ServiceID, rec3.ServiceID)
}

func TestTableTouch(t *testing.T) {
	tb := newTable(3)
	rec := tb.register("STORAGE", testEndpoint, nil, "")

	status, ok := tb.Touch(rec.ServiceID, 1, time.Now())
	assert.True(t, ok)
	assert.Equal(t, wire.StatusActive, status)

	_, ok = tb.Touch("ghost", 1, time.Now())
	assert.False(t, ok, "未知 serviceId")
}

func TestTableTouchOutOfOrder(t *testing.T) {
	tb := newTable(3)
	rec := tb.register("STORAGE", testEndpoint, nil, "")

	now := time.Now()
	tb.Touch(rec.ServiceID, 5, now)

	// 迟到的旧心跳：时间戳与序号都不回拨
	tb.Touch(rec.ServiceID, 3, now.Add(-time.Minute))

	got, ok := tb.lookup("STORAGE")
	require.True(t, ok)
	assert.Equal(t, uint64(5), got.LastSeq)
	assert.False(t, got.LastSeen.Before(now))
}

func TestTableSweepLifecycle(t *testing.T) {
	tb := newTable(2)
	rec := tb.register("STORAGE", testEndpoint, nil, "")

	// 第一轮：注册后尚未扫描过，记录视为新鲜
	assert.Empty(t, tb.sweep())
	got, _ := tb.lookup("STORAGE")
	assert.Equal(t, StatusActive, got.Status)

	// 第二轮：没有心跳，降级 SUSPECT
	assert.Empty(t, tb.sweep())
	got, _ = tb.lookup("STORAGE")
	assert.Equal(t, StatusSuspect, got.Status)

	// 宽限期内一次心跳即复活
	tb.Touch(rec.ServiceID, 1, time.Now())
	got, _ = tb.lookup("STORAGE")
	assert.Equal(t, StatusActive, got.Status)

	// 心跳彻底停止：宽限期耗尽后被清除
	var expired []ServiceRecord
	for i := 0; i < 5; i++ {
		expired = append(expired, tb.sweep()...)
	}
	require.Len(t, expired, 1)
	assert.Equal(t, rec.ServiceID, expired[0].ServiceID)
	assert.Equal(t, 0, tb.size())

	_, ok := tb.lookup("STORAGE")
	assert.False(t, ok)
}

func TestTableLookupPrefersActive(t *testing.T) {
	tb := newTable(3)

	a := tb.register("STORAGE", wire.Endpoint{Protocol: "tcp", Host: "h1", Port: 1}, nil, "")
	b := tb.register("STORAGE", wire.Endpoint{Protocol: "tcp", Host: "h2", Port: 2}, nil, "")

	// 两轮扫描把两条都压成 SUSPECT，再复活 b
	tb.sweep()
	tb.sweep()
	tb.Touch(b.ServiceID, 1, time.Now())

	got, ok := tb.lookup("STORAGE")
	require.True(t, ok)
	assert.Equal(t, b.ServiceID, got.ServiceID, "ACTIVE 压过 SUSPECT")
	_ = a
}

func TestTableDeregister(t *testing.T) {
	tb := newTable(3)
	rec := tb.register("STORAGE", testEndpoint, nil, "")

	assert.True(t, tb.deregister(rec.ServiceID))
	assert.False(t, tb.deregister(rec.ServiceID), "注销幂等")
	assert.Equal(t, 0, tb.size())
}

func TestTableDeregisterAll(t *testing.T) {
	tb := newTable(3)
	tb.register("STORAGE", wire.Endpoint{Protocol: "tcp", Host: "h1", Port: 1}, nil, "")
	tb.register("STORAGE", wire.Endpoint{Protocol: "tcp", Host: "h2", Port: 2}, nil, "")
	tb.register("tgf4000_cs", wire.Endpoint{Protocol: "tcp", Host: "h3", Port: 3}, nil, "")

	assert.Equal(t, 2, tb.deregisterAll("STORAGE"))
	assert.Equal(t, 0, tb.deregisterAll("STORAGE"))
	assert.Equal(t, 1, tb.size())
}

func TestTableSnapshotSorted(t *testing.T) {
	tb := newTable(3)
	tb.register("b-type", wire.Endpoint{Protocol: "tcp", Host: "h", Port: 1}, nil, "")
	tb.register("a-type", wire.Endpoint{Protocol: "tcp", Host: "h", Port: 2}, nil, "")

	snap := tb.snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "a-type", snap[0].ServiceType)
	assert.Equal(t, "b-type", snap[1].ServiceType)
}
