package sink

import (
	"github.com/danmuck/packetwire/internal/packet"
	"github.com/rs/zerolog"
)

// Log writes one debug line per packet.
type Log struct {
	logger zerolog.Logger
}

func NewLog(logger zerolog.Logger) *Log {
	return &Log{logger: logger}
}

func (s *Log) Accept(p *packet.Packet) {
	event := s.logger.Debug()
	if !event.Enabled() {
		return
	}
	if c := p.Conn(); c != nil {
		event = event.Str("conn", c.ID())
	}
	event.
		Uint16("flags", p.Header.Flags).
		Bool("urgent", p.IsUrgent()).
		Int32("partition", p.Header.PartitionID).
		Int("payload_bytes", len(p.Payload)).
		Msg("packet")
}
