package sink

import (
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/danmuck/packetwire/internal/observability"
	"github.com/danmuck/packetwire/internal/packet"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

const (
	HeaderConn      = "Packet-Conn"
	HeaderFlags     = "Packet-Flags"
	HeaderPartition = "Packet-Partition"
	HeaderUrgent    = "Packet-Urgent"

	DefaultSubjectPrefix = "packetwire.packets"
)

// Publisher is the slice of *nats.Conn the sink needs.
type Publisher interface {
	PublishMsg(m *nats.Msg) error
}

// NATS forwards each packet payload to <prefix>.<partition>, or
// <prefix>.none for unpartitioned packets. Publish failures are logged and
// counted; Accept never blocks on the broker beyond the client's own
// buffering.
type NATS struct {
	pub    Publisher
	prefix string
	logger zerolog.Logger

	published atomic.Uint64
	failed    atomic.Uint64
}

func NewNATS(pub Publisher, prefix string, logger zerolog.Logger) *NATS {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATS{pub: pub, prefix: prefix, logger: logger}
}

func (s *NATS) Subject(p *packet.Packet) string {
	if p.Header.PartitionID < 0 {
		return s.prefix + ".none"
	}
	return s.prefix + "." + strconv.FormatInt(int64(p.Header.PartitionID), 10)
}

func (s *NATS) Accept(p *packet.Packet) {
	msg := nats.NewMsg(s.Subject(p))
	msg.Data = p.Payload
	msg.Header.Set(HeaderFlags, strconv.FormatUint(uint64(p.Header.Flags), 10))
	msg.Header.Set(HeaderPartition, strconv.FormatInt(int64(p.Header.PartitionID), 10))
	if p.IsUrgent() {
		msg.Header.Set(HeaderUrgent, "true")
	}
	if c := p.Conn(); c != nil {
		msg.Header.Set(HeaderConn, c.ID())
	}

	if err := s.pub.PublishMsg(msg); err != nil {
		s.failed.Add(1)
		observability.RecordSinkFailure("nats")
		s.logger.Warn().Err(err).Str("subject", msg.Subject).Msg("nats publish failed")
		return
	}
	s.published.Add(1)
}

func (s *NATS) Published() uint64 { return s.published.Load() }
func (s *NATS) Failed() uint64    { return s.failed.Load() }
