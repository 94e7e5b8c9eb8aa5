package packet

import (
	"fmt"
	"net"
)

// Flag bits carried in the header. Only FlagUrgent is interpreted on the
// inbound path; the rest travel opaquely.
const (
	FlagOp       uint16 = 1 << 0
	FlagResponse uint16 = 1 << 1
	FlagEvent    uint16 = 1 << 2
	FlagBind     uint16 = 1 << 3
	FlagUrgent   uint16 = 1 << 4
)

// NoPartition marks a packet that is not bound to a partition.
const NoPartition int32 = -1

// Conn is the owning connection a packet is tagged with on completion. The
// association is for routing and metrics only.
type Conn interface {
	ID() string
	RemoteAddr() net.Addr
}

// Header is the fixed wire header.
type Header struct {
	Version     uint8
	Flags       uint16
	PartitionID int32
	PayloadLen  int32
}

// Packet is one complete framed message.
type Packet struct {
	Header  Header
	Payload []byte

	conn Conn
}

func New(payload []byte, partitionID int32, flags uint16) *Packet {
	return &Packet{
		Header: Header{
			Version:     Version,
			Flags:       flags,
			PartitionID: partitionID,
			PayloadLen:  int32(len(payload)),
		},
		Payload: payload,
	}
}

func (p *Packet) IsFlagRaised(flag uint16) bool {
	return p.Header.Flags&flag != 0
}

func (p *Packet) IsUrgent() bool {
	return p.IsFlagRaised(FlagUrgent)
}

func (p *Packet) RaiseFlags(flags uint16) *Packet {
	p.Header.Flags |= flags
	return p
}

func (p *Packet) SetConn(c Conn) *Packet {
	p.conn = c
	return p
}

func (p *Packet) Conn() Conn {
	return p.conn
}

// FrameLen is the number of bytes the packet occupies on the wire.
func (p *Packet) FrameLen() int {
	return HeaderLen + len(p.Payload)
}

func (p *Packet) String() string {
	connID := "<nil>"
	if p.conn != nil {
		connID = p.conn.ID()
	}
	return fmt.Sprintf("Packet{flags=%#04x partition=%d payload=%d conn=%s}",
		p.Header.Flags, p.Header.PartitionID, len(p.Payload), connID)
}
