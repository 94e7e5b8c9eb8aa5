package transport

import (
	"net"
	"time"

	"github.com/danmuck/packetwire/internal/decoder"
	"github.com/danmuck/packetwire/internal/observability"
	"github.com/google/uuid"
)

// Conn is the server-side view of one inbound connection. Decoded packets are
// tagged with it.
type Conn struct {
	id       string
	remote   net.Addr
	local    net.Addr
	openedAt time.Time

	counters *observability.PacketCounters
	dec      *decoder.Decoder
}

func newConn(remote, local net.Addr) *Conn {
	return &Conn{
		id:       uuid.NewString(),
		remote:   remote,
		local:    local,
		openedAt: time.Now(),
		counters: observability.NewPacketCounters(),
	}
}

func (c *Conn) ID() string           { return c.id }
func (c *Conn) RemoteAddr() net.Addr { return c.remote }
func (c *Conn) LocalAddr() net.Addr  { return c.local }
func (c *Conn) OpenedAt() time.Time  { return c.openedAt }

func (c *Conn) Counters() *observability.PacketCounters {
	return c.counters
}

// ConnStats is a point-in-time view of a connection's counters.
type ConnStats struct {
	ID              string    `json:"id"`
	RemoteAddr      string    `json:"remote_addr"`
	OpenedAt        time.Time `json:"opened_at"`
	PriorityPackets uint64    `json:"priority_packets"`
	NormalPackets   uint64    `json:"normal_packets"`
}

func (c *Conn) Stats() ConnStats {
	remote := ""
	if c.remote != nil {
		remote = c.remote.String()
	}
	return ConnStats{
		ID:              c.id,
		RemoteAddr:      remote,
		OpenedAt:        c.openedAt,
		PriorityPackets: c.counters.Priority(),
		NormalPackets:   c.counters.Normal(),
	}
}
