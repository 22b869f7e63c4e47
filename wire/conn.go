package wire

import (
	"context"
	"net"
	"sync"
	"time"
)

// Conn 在 net.Conn 上提供并发安全的帧收发
//
// 写路径由内部互斥锁保护，任意 goroutine 可以随时发帧；
// 读路径约定只有一个 reader goroutine，不加锁。
type Conn struct {
	raw net.Conn
	wmu sync.Mutex
}

// NewConn 包装一个已建立的网络连接
func NewConn(raw net.Conn) *Conn {
	return &Conn{raw: raw}
}

// Write 写出一帧，写截止时间取 ctx 的截止时间
func (c *Conn) Write(ctx context.Context, f *Frame) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.raw.SetWriteDeadline(deadline)
	} else {
		_ = c.raw.SetWriteDeadline(time.Time{})
	}
	return Encode(c.raw, f)
}

// Read 读入一帧，阻塞直到有完整帧或连接出错
func (c *Conn) Read() (*Frame, error) {
	return Decode(c.raw)
}

// SetReadDeadline 设置读截止时间
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.raw.SetReadDeadline(t)
}

// RemoteAddr 返回对端地址
func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}

// Close 关闭底层连接
func (c *Conn) Close() error {
	return c.raw.Close()
}
