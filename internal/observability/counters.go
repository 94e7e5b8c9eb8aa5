package observability

import (
	"sync/atomic"

	"github.com/danmuck/packetwire/internal/decoder"
	"github.com/prometheus/client_golang/prometheus"
)

// connCounter counts for one connection and mirrors every increment into the
// process-wide prometheus counter.
type connCounter struct {
	n      atomic.Uint64
	global prometheus.Counter
}

func (c *connCounter) Inc() {
	c.n.Add(1)
	c.global.Inc()
}

func (c *connCounter) Load() uint64 {
	return c.n.Load()
}

// PacketCounters is the priority/normal pair owned by one connection. It is
// written by the connection's event loop and may be read from anywhere.
type PacketCounters struct {
	priority connCounter
	normal   connCounter
}

func NewPacketCounters() *PacketCounters {
	RegisterMetrics()
	c := &PacketCounters{}
	c.priority.global = packetsRead.WithLabelValues(PriorityUrgent)
	c.normal.global = packetsRead.WithLabelValues(PriorityNormal)
	return c
}

// Counters adapts the pair for injection into a decoder.
func (c *PacketCounters) Counters() decoder.Counters {
	return decoder.Counters{
		Priority: &c.priority,
		Normal:   &c.normal,
	}
}

func (c *PacketCounters) Priority() uint64 { return c.priority.Load() }
func (c *PacketCounters) Normal() uint64   { return c.normal.Load() }
