package decoder

import (
	"errors"
	"fmt"

	"github.com/danmuck/packetwire/internal/buffer"
	"github.com/danmuck/packetwire/internal/packet"
)

var (
	ErrNilConn     = errors.New("decoder: nil connection")
	ErrNilSink     = errors.New("decoder: nil sink")
	ErrNotAttached = errors.New("decoder: handler not attached")
)

const DefaultRegionCapacity = 64 * 1024

// Status is what a pipeline stage reports back to the I/O loop after a read.
type Status uint8

const (
	// StatusClean means the stage stays installed and expects more data.
	StatusClean Status = iota
)

func (s Status) String() string {
	switch s {
	case StatusClean:
		return "clean"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// PacketReader parses at most one packet from a region in drain mode.
type PacketReader interface {
	TryReadOne(src *buffer.Region) (*packet.Packet, bool, error)
}

// Sink receives decoded packets one at a time. It must not retain the region.
type Sink interface {
	Accept(p *packet.Packet)
}

type SinkFunc func(p *packet.Packet)

func (f SinkFunc) Accept(p *packet.Packet) { f(p) }

// Counter is a monotonic counter.
type Counter interface {
	Inc()
}

// Counters is the pair of packet counters a decoder updates.
type Counters struct {
	Priority Counter
	Normal   Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

// Decoder is the inbound packet stage for one connection. It is driven by a
// single goroutine and holds no locks.
type Decoder struct {
	conn     packet.Conn
	dst      Sink
	reader   PacketReader
	counters Counters
	capacity int

	src *buffer.Region
}

func New(conn packet.Conn, dst Sink, counters Counters, opt ...Option) (*Decoder, error) {
	if conn == nil {
		return nil, ErrNilConn
	}
	if dst == nil {
		return nil, ErrNilSink
	}
	opts := options{
		regionCapacity: DefaultRegionCapacity,
		limits:         packet.DefaultLimits(),
	}
	for _, o := range opt {
		o(&opts)
	}
	if opts.regionCapacity < packet.HeaderLen {
		return nil, fmt.Errorf("decoder: region capacity %d smaller than header (%d)", opts.regionCapacity, packet.HeaderLen)
	}
	if opts.reader == nil {
		opts.reader = packet.NewReader(opts.limits)
	}
	if counters.Priority == nil {
		counters.Priority = noopCounter{}
	}
	if counters.Normal == nil {
		counters.Normal = noopCounter{}
	}
	return &Decoder{
		conn:     conn,
		dst:      dst,
		reader:   opts.reader,
		counters: counters,
		capacity: opts.regionCapacity,
	}, nil
}

// HandlerAdded allocates the inbound region. It must run before the first
// OnRead.
func (d *Decoder) HandlerAdded() {
	if d.src != nil {
		return
	}
	d.src = buffer.New(d.capacity)
}

// HandlerRemoved releases the region once the connection is gone.
func (d *Decoder) HandlerRemoved() {
	if d.src == nil {
		return
	}
	d.src.Release()
	d.src = nil
}

// Region is where the I/O loop appends inbound bytes. It is in write mode
// whenever OnRead is not running.
func (d *Decoder) Region() *buffer.Region {
	return d.src
}

func (d *Decoder) Conn() packet.Conn {
	return d.conn
}

// OnRead drains every complete packet from the region. Bytes belonging to an
// incomplete packet are kept for the next call. The region is back in write
// mode on every return path, including reader errors, which are returned to
// the caller to decide the connection's fate.
func (d *Decoder) OnRead() (Status, error) {
	if d.src == nil {
		return StatusClean, ErrNotAttached
	}
	d.src.EnterDrainMode()
	defer d.src.RestoreWriteMode()

	for d.src.HasRemaining() {
		p, ok, err := d.reader.TryReadOne(d.src)
		if err != nil {
			return StatusClean, fmt.Errorf("decoder: conn=%s: %w", d.conn.ID(), err)
		}
		if !ok {
			break
		}
		d.onPacketComplete(p)
	}
	return StatusClean, nil
}

func (d *Decoder) onPacketComplete(p *packet.Packet) {
	if p.IsFlagRaised(packet.FlagUrgent) {
		d.counters.Priority.Inc()
	} else {
		d.counters.Normal.Inc()
	}

	p.SetConn(d.conn)

	d.dst.Accept(p)
}
