package heartbeat

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ceyewan/nexus/clog"
	"github.com/ceyewan/nexus/metrics"
	"github.com/ceyewan/nexus/wire"
)

// emitter 心跳发射器实现
type emitter struct {
	cfg    *EmitterConfig
	n      Notifier
	logger clog.Logger

	onStale func(status string)
	sent    metrics.Counter

	seq atomic.Uint64

	// 上一次应答状态，只在状态变化时打日志
	lastStatus atomic.Value // string

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	wg        sync.WaitGroup
}

func newEmitter(cfg *EmitterConfig, n Notifier, opt *options) *emitter {
	e := &emitter{
		cfg:     cfg,
		n:       n,
		logger:  opt.logger.With(clog.String("service_id", cfg.ServiceID)),
		onStale: opt.onStale,
		stop:    make(chan struct{}),
	}
	if opt.meter != nil {
		e.sent, _ = opt.meter.Counter(
			"heartbeat_sent_total", "发出的心跳帧总数")
	}
	e.lastStatus.Store(wire.StatusActive)
	return e
}

func (e *emitter) Start() {
	e.startOnce.Do(func() {
		e.wg.Add(1)
		go e.loop()
		e.logger.Info("心跳已启动", clog.Duration("interval", e.cfg.Interval))
	})
}

func (e *emitter) Stop() {
	e.stopOnce.Do(func() {
		close(e.stop)
	})
	e.wg.Wait()
}

func (e *emitter) Seq() uint64 {
	return e.seq.Load()
}

// loop 按固定节拍发心跳。发送失败只记日志：重连与退避由
// 连接器治理，节拍本身不跳拍、不补发。
func (e *emitter) loop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case now := <-ticker.C:
			e.beat(now)
		}
	}
}

func (e *emitter) beat(now time.Time) {
	seq := e.seq.Add(1)
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.SendTimeout)
	err := e.n.Notify(ctx, wire.NewHeartbeat(e.cfg.ServiceID, seq, now))
	cancel()
	if err != nil {
		e.logger.Debug("心跳发送失败", clog.Uint64("seq", seq), clog.Error(err))
		return
	}
	if e.sent != nil {
		e.sent.Inc(context.Background())
	}
}

// HandleAck 消化心跳应答，由连接器的帧处理函数路由进来。
func (e *emitter) HandleAck(f *wire.Frame) {
	if f == nil || f.Kind != wire.KindHeartbeatAck {
		return
	}
	prev := e.lastStatus.Load().(string)
	if f.Status != prev {
		e.lastStatus.Store(f.Status)
		e.logger.Info("注册表侧状态变化",
			clog.String("from", prev),
			clog.String("to", f.Status))
	}
	if f.Status == wire.StatusSuspect || f.Status == wire.StatusUnknown {
		if e.onStale != nil {
			e.onStale(f.Status)
		}
	}
}
