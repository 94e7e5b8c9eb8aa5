package sink

import (
	"github.com/danmuck/packetwire/internal/decoder"
	"github.com/danmuck/packetwire/internal/packet"
)

// Tee hands each packet to every sink in order on the calling goroutine.
type Tee []decoder.Sink

func (t Tee) Accept(p *packet.Packet) {
	for _, s := range t {
		s.Accept(p)
	}
}
