package packet

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	Version   uint8 = 4
	HeaderLen       = 11
)

// Limits constrains decode/encode memory use.
type Limits struct {
	MaxPayloadBytes int32
}

func DefaultLimits() Limits {
	return Limits{
		MaxPayloadBytes: 64 * 1024 * 1024,
	}
}

func (l Limits) check(payloadLen int32) error {
	if payloadLen < 0 {
		return fmt.Errorf("%w: %d", ErrNegativePayloadLen, payloadLen)
	}
	if l.MaxPayloadBytes > 0 && payloadLen > l.MaxPayloadBytes {
		return fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, payloadLen, l.MaxPayloadBytes)
	}
	return nil
}

func EncodeHeader(h Header) []byte {
	return appendHeader(make([]byte, 0, HeaderLen), h)
}

func appendHeader(dst []byte, h Header) []byte {
	dst = append(dst, h.Version)
	dst = binary.BigEndian.AppendUint16(dst, h.Flags)
	dst = binary.BigEndian.AppendUint32(dst, uint32(h.PartitionID))
	dst = binary.BigEndian.AppendUint32(dst, uint32(h.PayloadLen))
	return dst
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrShortHeader, len(b))
	}
	return Header{
		Version:     b[0],
		Flags:       binary.BigEndian.Uint16(b[1:3]),
		PartitionID: int32(binary.BigEndian.Uint32(b[3:7])),
		PayloadLen:  int32(binary.BigEndian.Uint32(b[7:11])),
	}, nil
}

// AppendPacket appends the wire form of p to dst. Version and PayloadLen are
// derived from the packet; the caller's header values for them are ignored.
func AppendPacket(dst []byte, p *Packet) []byte {
	h := p.Header
	h.Version = Version
	h.PayloadLen = int32(len(p.Payload))
	dst = appendHeader(dst, h)
	return append(dst, p.Payload...)
}

// WritePacket writes the wire form of p to w after checking limits.
func WritePacket(w io.Writer, p *Packet, limits Limits) error {
	if len(p.Payload) > int(^uint32(0)>>1) {
		return fmt.Errorf("%w: %d", ErrPayloadTooLarge, len(p.Payload))
	}
	if err := limits.check(int32(len(p.Payload))); err != nil {
		return err
	}
	_, err := w.Write(AppendPacket(make([]byte, 0, p.FrameLen()), p))
	return err
}
