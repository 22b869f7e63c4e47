package connector

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ceyewan/nexus/clog"
	"github.com/ceyewan/nexus/wire"
	"github.com/ceyewan/nexus/xerrors"
)

// =============================================================================
// 控制面 TCP 连接器
// =============================================================================

// tcpConnector 在 wire 帧协议上实现异步交换模式。
//
// 发送与接收解耦：写路径随时可用，reader goroutine 按 Seq 把
// 应答帧派发给等待者，未匹配帧交给 Handle 注册的处理函数。
// 发送方不会被未完成的应答阻塞，对端中途消失由各自的
// 超时兜底，不会卡死整条链路。
type tcpConnector struct {
	*core
	cfg *TCPConfig

	seq atomic.Uint64

	pmu     sync.Mutex
	pending map[uint64]chan *wire.Frame

	session atomic.Pointer[wire.Conn]
	handler atomic.Pointer[func(*wire.Frame)]
}

// NewTCP 创建控制面 TCP 连接器。
//
// 创建即返回，不触发拨号；首次 Connect/EnsureConnected 时建连。
func NewTCP(cfg *TCPConfig, opts ...Option) (TCPConnector, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(ErrInvalidConfig, "config is nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.setDefaults()

	opt := &options{}
	for _, o := range opts {
		o(opt)
	}
	opt.applyDefaults()

	c := &tcpConnector{
		cfg:     cfg,
		pending: make(map[uint64]chan *wire.Frame),
	}

	cr, err := newCore(cfg.Name, cfg.Breaker, cfg.DialTimeout, opt)
	if err != nil {
		return nil, err
	}
	cr.dialFn = c.dial
	cr.closeFn = c.closeSession
	c.core = cr
	return c, nil
}

func (c *tcpConnector) dial(ctx context.Context) error {
	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", c.cfg.Addr)
	if err != nil {
		return err
	}
	conn := wire.NewConn(raw)
	c.session.Store(conn)
	go c.readLoop(conn)
	return nil
}

// closeSession 关闭当前会话并让所有在途请求立即失败。
// 仅在 core.mu 持有期间调用。
func (c *tcpConnector) closeSession() error {
	var err error
	if conn := c.session.Swap(nil); conn != nil {
		err = conn.Close()
	}
	c.failPending()
	return err
}

// readLoop 是会话唯一的 reader，按 Seq 路由应答帧。
// 读失败即宣告会话失效并退出，重建由下一次使用触发。
func (c *tcpConnector) readLoop(conn *wire.Conn) {
	for {
		f, err := conn.Read()
		if err != nil {
			if c.session.Load() == conn {
				c.markFailure()
			}
			return
		}
		c.dispatch(f)
	}
}

func (c *tcpConnector) dispatch(f *wire.Frame) {
	if f.IsReply() {
		c.pmu.Lock()
		ch, ok := c.pending[f.Seq]
		if ok {
			delete(c.pending, f.Seq)
		}
		c.pmu.Unlock()
		if ok {
			ch <- f
			return
		}
		// 无等待者的应答（如 fire-and-forget 心跳的 ack）走通用处理
	}
	if h := c.handler.Load(); h != nil {
		(*h)(f)
	} else {
		c.logger.Debug("丢弃未处理帧", clog.String("kind", f.Kind.String()))
	}
}

// Request 发送一帧并等待 Seq 匹配的应答。
//
// 对端以 KindError 应答时返回 ErrProtocol 包装的错误（链路无恙，
// 不计入熔断）；超时按传输失败处理并重建会话。
func (c *tcpConnector) Request(ctx context.Context, f *wire.Frame) (*wire.Frame, error) {
	if err := c.EnsureConnected(ctx); err != nil {
		return nil, err
	}
	conn := c.session.Load()
	if conn == nil {
		return nil, ErrNotConnected
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.SendTimeout)
		defer cancel()
	}

	if f.Seq == 0 {
		f.Seq = c.seq.Add(1)
	}
	if f.Timestamp == 0 {
		f.Timestamp = time.Now().UnixNano()
	}

	ch := make(chan *wire.Frame, 1)
	c.pmu.Lock()
	c.pending[f.Seq] = ch
	c.pmu.Unlock()

	if err := conn.Write(ctx, f); err != nil {
		c.unregister(f.Seq)
		c.markFailure()
		return nil, xerrors.Wrapf(ErrTransport, "write %s: %v", f.Kind, err)
	}

	select {
	case reply := <-ch:
		if reply == nil {
			// failPending 关闭了通道：会话在等待期间失效
			return nil, xerrors.Wrapf(ErrTransport, "session lost, seq=%d", f.Seq)
		}
		if reply.Kind == wire.KindError {
			return reply, xerrors.Wrapf(ErrProtocol, "%s", reply.Err)
		}
		return reply, nil
	case <-ctx.Done():
		c.unregister(f.Seq)
		if xerrors.Is(ctx.Err(), context.DeadlineExceeded) {
			c.markFailure()
			return nil, xerrors.Wrapf(ErrTimeout, "%s seq=%d", f.Kind, f.Seq)
		}
		return nil, ctx.Err()
	}
}

// Notify 发送一帧，不登记等待者。
func (c *tcpConnector) Notify(ctx context.Context, f *wire.Frame) error {
	if err := c.EnsureConnected(ctx); err != nil {
		return err
	}
	conn := c.session.Load()
	if conn == nil {
		return ErrNotConnected
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.SendTimeout)
		defer cancel()
	}
	if f.Seq == 0 {
		f.Seq = c.seq.Add(1)
	}
	if f.Timestamp == 0 {
		f.Timestamp = time.Now().UnixNano()
	}

	if err := conn.Write(ctx, f); err != nil {
		c.markFailure()
		return xerrors.Wrapf(ErrTransport, "write %s: %v", f.Kind, err)
	}
	return nil
}

// Send 实现 Sender：载荷封入 KindData 帧做一次请求/应答。
func (c *tcpConnector) Send(ctx context.Context, payload []byte) ([]byte, error) {
	reply, err := c.Request(ctx, &wire.Frame{
		Kind:    wire.KindData,
		Payload: payload,
	})
	if err != nil {
		return nil, err
	}
	return reply.Payload, nil
}

// Handle 设置未匹配帧的处理函数，在 reader goroutine 上调用。
func (c *tcpConnector) Handle(fn func(*wire.Frame)) {
	if fn == nil {
		c.handler.Store(nil)
		return
	}
	c.handler.Store(&fn)
}

func (c *tcpConnector) unregister(seq uint64) {
	c.pmu.Lock()
	delete(c.pending, seq)
	c.pmu.Unlock()
}

// failPending 关闭所有在途请求的应答通道，等待者收到零值后
// 将其按传输失败上抛。
func (c *tcpConnector) failPending() {
	c.pmu.Lock()
	for seq, ch := range c.pending {
		delete(c.pending, seq)
		close(ch)
	}
	c.pmu.Unlock()
}
