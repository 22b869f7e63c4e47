package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ceyewan/nexus/wire"
)

// =============================================================================
// 内存注册表
// =============================================================================

// record 注册表内部记录，携带扫描状态
type record struct {
	ServiceRecord

	// misses 连续错过的扫描周期数
	misses int

	// sweepSeen 上一次扫描时观察到的 LastSeen，
	// 两次扫描之间没有心跳则 misses 递增
	sweepSeen time.Time
}

// table 单写者内存注册表
//
// 所有变更都在 mu 临界区内完成；读取走快照拷贝，
// 调用方拿到的 ServiceRecord 与表内状态解耦。
type table struct {
	mu      sync.Mutex
	byID    map[string]*record
	byType  map[string]map[string]struct{} // serviceType -> set of serviceID
	grace   int
	now     func() time.Time // 测试注入
}

func newTable(grace int) *table {
	return &table{
		byID:   make(map[string]*record),
		byType: make(map[string]map[string]struct{}),
		grace:  grace,
		now:    time.Now,
	}
}

// register 登记或刷新一条记录。
//
// requestedID 指向存活记录时为原地刷新（保持 serviceId）；
// 否则分配新的 uuid。同类型同端点的旧记录视为前世实例，清除。
func (t *table) register(serviceType string, ep wire.Endpoint, metadata map[string]string, requestedID string) ServiceRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()

	if requestedID != "" {
		if r, ok := t.byID[requestedID]; ok && r.ServiceType == serviceType {
			r.Endpoint = ep
			r.Metadata = metadata
			r.Status = StatusActive
			r.LastSeen = now
			r.misses = 0
			return r.ServiceRecord
		}
	}

	// 同类型同端点的旧记录是重启前的残影
	for id := range t.byType[serviceType] {
		if old := t.byID[id]; old != nil && old.Endpoint == ep {
			t.removeLocked(id)
		}
	}

	r := &record{
		ServiceRecord: ServiceRecord{
			ServiceID:    uuid.NewString(),
			ServiceType:  serviceType,
			Endpoint:     ep,
			Metadata:     metadata,
			Status:       StatusActive,
			RegisteredAt: now,
			LastSeen:     now,
		},
	}
	t.byID[r.ServiceID] = r
	if t.byType[serviceType] == nil {
		t.byType[serviceType] = make(map[string]struct{})
	}
	t.byType[serviceType][r.ServiceID] = struct{}{}
	return r.ServiceRecord
}

// Touch 实现 heartbeat.Recorder。
//
// 乱序到达的旧心跳（seq 不前进）不刷新任何状态；
// 新心跳刷新时间戳、清零 misses，SUSPECT 记录就地复活。
func (t *table) Touch(serviceID string, seq uint64, at time.Time) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.byID[serviceID]
	if !ok {
		return "", false
	}
	if seq <= r.LastSeq {
		return string(r.Status), true
	}
	r.LastSeq = seq
	if at.After(r.LastSeen) {
		r.LastSeen = at
	}
	r.Status = StatusActive
	r.misses = 0
	return string(r.Status), true
}

// lookup 返回该类型最近活跃的实例，优先 ACTIVE。
func (t *table) lookup(serviceType string) (ServiceRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var best *record
	for id := range t.byType[serviceType] {
		r := t.byID[id]
		if r == nil {
			continue
		}
		if best == nil {
			best = r
			continue
		}
		// ACTIVE 压过 SUSPECT，同状态取最近心跳
		if (r.Status == StatusActive) != (best.Status == StatusActive) {
			if r.Status == StatusActive {
				best = r
			}
			continue
		}
		if r.LastSeen.After(best.LastSeen) {
			best = r
		}
	}
	if best == nil {
		return ServiceRecord{}, false
	}
	return best.ServiceRecord, true
}

// lookupAll 返回某类型的全部记录快照，按注册时间排序。
func (t *table) lookupAll(serviceType string) []ServiceRecord {
	t.mu.Lock()
	ids := t.byType[serviceType]
	out := make([]ServiceRecord, 0, len(ids))
	for id := range ids {
		if r := t.byID[id]; r != nil {
			out = append(out, r.ServiceRecord)
		}
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].RegisteredAt.Before(out[j].RegisteredAt)
	})
	return out
}

// deregister 清除一条记录，幂等。
func (t *table) deregister(serviceID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.byID[serviceID]; !ok {
		return false
	}
	t.removeLocked(serviceID)
	return true
}

// deregisterAll 清除某类型的全部记录，返回清除数。
func (t *table) deregisterAll(serviceType string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := t.byType[serviceType]
	n := len(ids)
	for id := range ids {
		t.removeLocked(id)
	}
	return n
}

// sweep 执行一轮活性扫描，返回本轮被清除的记录。
//
// 两次扫描之间没有新心跳：misses+1，记录降级 SUSPECT；
// misses 超过宽限期：清除。时间语义只依赖扫描节拍本身，
// 不依赖挂钟与心跳时间戳的可比性。
func (t *table) sweep() []ServiceRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	var expired []ServiceRecord
	for id, r := range t.byID {
		if r.LastSeen.After(r.sweepSeen) {
			r.sweepSeen = r.LastSeen
			continue
		}
		r.misses++
		if r.misses > t.grace {
			expired = append(expired, r.ServiceRecord)
			t.removeLocked(id)
			continue
		}
		r.Status = StatusSuspect
	}
	return expired
}

// snapshot 返回全表的只读快照，按类型、注册时间排序。
func (t *table) snapshot() []ServiceRecord {
	t.mu.Lock()
	out := make([]ServiceRecord, 0, len(t.byID))
	for _, r := range t.byID {
		out = append(out, r.ServiceRecord)
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ServiceType != out[j].ServiceType {
			return out[i].ServiceType < out[j].ServiceType
		}
		return out[i].RegisteredAt.Before(out[j].RegisteredAt)
	})
	return out
}

func (t *table) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byID)
}

// removeLocked 删除记录与类型索引，调用方持锁。
func (t *table) removeLocked(serviceID string) {
	r, ok := t.byID[serviceID]
	if !ok {
		return
	}
	delete(t.byID, serviceID)
	if ids := t.byType[r.ServiceType]; ids != nil {
		delete(ids, serviceID)
		if len(ids) == 0 {
			delete(t.byType, r.ServiceType)
		}
	}
}
