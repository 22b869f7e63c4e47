package wire

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEncodeDecodeRoundTrip 测试帧编解码往返
func TestEncodeDecodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	in := &Frame{
		Kind:        KindRegister,
		Seq:         7,
		ServiceType: "STORAGE",
		Endpoint:    &Endpoint{Protocol: "tcp", Host: "10.0.0.5", Port: 6590},
		Metadata:    map[string]string{"monitoring_port": "6591"},
		Timestamp:   time.Now().UnixNano(),
	}
	require.NoError(t, Encode(&buf, in))

	out, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, in.Kind, out.Kind)
	assert.Equal(t, in.Seq, out.Seq)
	assert.Equal(t, in.ServiceType, out.ServiceType)
	assert.Equal(t, in.Endpoint, out.Endpoint)
	assert.Equal(t, in.Metadata, out.Metadata)
}

// TestDecodeRejectsBadMagic 测试非协议流量被拒收
func TestDecodeRejectsBadMagic(t *testing.T) {
	// 一个错连到控制端口的 HTTP 客户端
	buf := bytes.NewBufferString("GET / HTTP/1.1\r\n\r\n")
	_, err := Decode(buf)
	assert.ErrorContains(t, err, "invalid magic")
}

// TestDecodeRejectsOversizedFrame 测试超限帧被拒收
func TestDecodeRejectsOversizedFrame(t *testing.T) {
	header := []byte{'n', 'x', 0x01, 0x00, 0xFF, 0xFF, 0xFF, 0xFF}
	_, err := Decode(bytes.NewBuffer(header))
	assert.ErrorContains(t, err, "frame too large")
}

// TestConnConcurrentWrites 测试共享连接上的并发写不交错
func TestConnConcurrentWrites(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := NewConn(client)
	s := NewConn(server)

	const n = 20
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < n; i++ {
			_, err := s.Read()
			if err != nil {
				t.Errorf("read frame %d: %v", i, err)
				return
			}
		}
	}()

	ctx := context.Background()
	for i := 0; i < n/2; i++ {
		go func(i int) {
			_ = c.Write(ctx, NewHeartbeat("S1", uint64(i), time.Now()))
		}(i)
		go func(i int) {
			_ = c.Write(ctx, &Frame{Kind: KindLookup, Seq: uint64(i), ServiceType: "NH_CS"})
		}(i)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("reader did not receive all frames")
	}
}

// TestIsReply 测试应答帧判定
func TestIsReply(t *testing.T) {
	assert.True(t, (&Frame{Kind: KindLookupAck}).IsReply())
	assert.True(t, (&Frame{Kind: KindError}).IsReply())
	assert.False(t, (&Frame{Kind: KindHeartbeat}).IsReply())
	assert.False(t, (&Frame{Kind: KindEvent}).IsReply())
}
