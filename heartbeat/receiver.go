package heartbeat

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/ceyewan/nexus/clog"
	"github.com/ceyewan/nexus/metrics"
	"github.com/ceyewan/nexus/wire"
)

// Receiver 注册中心侧的心跳消化器
//
// 每个客户端连接持有一个 Receiver 实例（限速桶按连接独立），
// 由注册中心的连接处理循环把 KindHeartbeat 帧喂进来。
type Receiver struct {
	cfg     *ReceiverConfig
	rec     Recorder
	logger  clog.Logger
	limiter *rate.Limiter

	received metrics.Counter
	dropped  metrics.Counter
}

// NewReceiver 创建心跳接收器
func NewReceiver(cfg *ReceiverConfig, rec Recorder, opts ...Option) (*Receiver, error) {
	if cfg == nil {
		cfg = DefaultReceiverConfig()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrRecorderNil
	}

	opt := &options{}
	for _, o := range opts {
		o(opt)
	}
	opt.applyDefaults()

	r := &Receiver{
		cfg:     cfg,
		rec:     rec,
		logger:  opt.logger,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
	}
	if opt.meter != nil {
		r.received, _ = opt.meter.Counter(
			"heartbeat_received_total", "收到的心跳帧总数")
		r.dropped, _ = opt.meter.Counter(
			"heartbeat_dropped_total", "被限速丢弃的心跳帧总数")
	}
	return r, nil
}

// Consume 消化一帧心跳，返回应答帧（AckEnabled 关闭或被限速时为 nil）。
//
// 超速的心跳直接丢弃，不刷新注册表也不应答：失控的客户端
// 不应该靠刷帧维持活性。
func (r *Receiver) Consume(ctx context.Context, f *wire.Frame) *wire.Frame {
	if f == nil || f.Kind != wire.KindHeartbeat {
		return nil
	}
	if !r.limiter.Allow() {
		if r.dropped != nil {
			r.dropped.Inc(ctx)
		}
		r.logger.Warn("心跳超速，丢弃", clog.String("service_id", f.ServiceID))
		return nil
	}
	if r.received != nil {
		r.received.Inc(ctx)
	}

	at := time.Unix(0, f.Timestamp)
	if f.Timestamp == 0 {
		at = time.Now()
	}

	status, ok := r.rec.Touch(f.ServiceID, f.Seq, at)
	if !ok {
		status = wire.StatusUnknown
	}

	if !r.cfg.AckEnabled {
		return nil
	}
	return &wire.Frame{
		Kind:      wire.KindHeartbeatAck,
		Seq:       f.Seq,
		ServiceID: f.ServiceID,
		Status:    status,
	}
}
