package packet

import (
	"fmt"

	"github.com/danmuck/packetwire/internal/buffer"
)

type readState uint8

const (
	awaitingHeader readState = iota
	awaitingBody
)

func (s readState) String() string {
	switch s {
	case awaitingHeader:
		return "awaiting_header"
	case awaitingBody:
		return "awaiting_body"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Reader parses one packet at a time out of a region in drain mode. It keeps
// its progress between calls, so a packet may be split across any number of
// reads.
//
// A partial header is never consumed: it stays in the region and is compacted
// to the front by the caller. Once a header is complete it moves into reader
// state and payload bytes are copied out of the region as they arrive, which
// lets payloads larger than the region still be framed. Consumption is
// strictly monotonic.
type Reader struct {
	limits Limits

	state   readState
	header  Header
	payload []byte
	offset  int
}

func NewReader(limits Limits) *Reader {
	return &Reader{limits: limits}
}

// TryReadOne returns the next complete packet. ok is false when the region
// does not yet hold enough bytes. A partial header is left in place; once
// the header is complete, any body bytes that have arrived are consumed into
// the packet under construction even though ok is false, and the next call
// resumes from there. The whole payload buffer is allocated when the header
// is accepted, so Limits.MaxPayloadBytes bounds what one pending packet can
// hold. err is non-nil only for protocol violations, in which case the
// offending header stays unconsumed.
func (r *Reader) TryReadOne(src *buffer.Region) (p *Packet, ok bool, err error) {
	if r.state == awaitingHeader {
		raw := src.Peek(HeaderLen)
		if raw == nil {
			return nil, false, nil
		}
		h, err := DecodeHeader(raw)
		if err != nil {
			return nil, false, err
		}
		if h.Version != Version {
			return nil, false, fmt.Errorf("%w: got=%d want=%d", ErrUnsupportedVersion, h.Version, Version)
		}
		if err := r.limits.check(h.PayloadLen); err != nil {
			return nil, false, err
		}
		src.Next(HeaderLen)
		r.header = h
		r.payload = make([]byte, h.PayloadLen)
		r.offset = 0
		r.state = awaitingBody
	}

	if want := len(r.payload) - r.offset; want > 0 {
		n := src.Remaining()
		if n > want {
			n = want
		}
		copy(r.payload[r.offset:], src.Next(n))
		r.offset += n
		if r.offset < len(r.payload) {
			return nil, false, nil
		}
	}

	p = &Packet{Header: r.header, Payload: r.payload}
	r.reset()
	return p, true, nil
}

// Pending reports whether a header has been consumed and its payload is
// still incomplete.
func (r *Reader) Pending() bool {
	return r.state == awaitingBody
}

// PendingBytes is the number of payload bytes still missing for the packet
// under construction.
func (r *Reader) PendingBytes() int {
	if r.state != awaitingBody {
		return 0
	}
	return len(r.payload) - r.offset
}

func (r *Reader) reset() {
	r.state = awaitingHeader
	r.header = Header{}
	r.payload = nil
	r.offset = 0
}
