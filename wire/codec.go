package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	magicByte0 byte = 'n'
	magicByte1 byte = 'x'
	version    byte = 0x01

	headerSize = 8

	// MaxFrameSize 单帧帧体上限，超限的帧按协议错误拒收。
	// 控制面消息都很小，这个上限主要防御错连端口的无关流量。
	MaxFrameSize = 4 << 20
)

// Encode 将一个完整帧（帧头 + msgpack 帧体）写入 w
//
// 多个 goroutine 共享同一个 writer 时，调用方必须持有写锁，
// 否则不同帧的字节会交错损坏数据流。
func Encode(w io.Writer, f *Frame) error {
	body, err := msgpack.Marshal(f)
	if err != nil {
		return fmt.Errorf("wire: marshal frame: %w", err)
	}
	if len(body) > MaxFrameSize {
		return fmt.Errorf("wire: frame too large: %d bytes", len(body))
	}

	buf := make([]byte, headerSize, headerSize+len(body))
	buf[0] = magicByte0
	buf[1] = magicByte1
	buf[2] = version
	buf[3] = 0 // reserved
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(body)))
	buf = append(buf, body...)

	_, err = w.Write(buf)
	return err
}

// Decode 从 r 读取一个完整帧
//
// 校验魔数和版本，拒绝非协议连接；io.ReadFull 保证精确读取，
// 不会因为部分读取产生半帧。
func Decode(r io.Reader) (*Frame, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	if header[0] != magicByte0 || header[1] != magicByte1 {
		return nil, fmt.Errorf("wire: invalid magic: %x", header[0:2])
	}
	if header[2] != version {
		return nil, fmt.Errorf("wire: unsupported version: %d", header[2])
	}

	bodyLen := binary.BigEndian.Uint32(header[4:8])
	if bodyLen > MaxFrameSize {
		return nil, fmt.Errorf("wire: frame too large: %d bytes", bodyLen)
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	var f Frame
	if err := msgpack.Unmarshal(body, &f); err != nil {
		return nil, fmt.Errorf("wire: unmarshal frame: %w", err)
	}
	return &f, nil
}

// EncodeBytes 将帧编码为裸 msgpack 字节（不含帧头）
//
// 供自带分帧的传输（NATS 消息、Redis Pub/Sub）做载荷编码，
// 与 TCP 流上的帧体格式保持一致。
func EncodeBytes(f *Frame) ([]byte, error) {
	body, err := msgpack.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal frame: %w", err)
	}
	return body, nil
}

// DecodeBytes 从裸 msgpack 字节解出帧
func DecodeBytes(data []byte) (*Frame, error) {
	var f Frame
	if err := msgpack.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("wire: unmarshal frame: %w", err)
	}
	return &f, nil
}
