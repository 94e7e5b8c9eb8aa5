package decoder

import "github.com/danmuck/packetwire/internal/packet"

type options struct {
	reader         PacketReader
	regionCapacity int
	limits         packet.Limits
}

// Option configures a Decoder.
type Option func(*options)

// WithReader replaces the default packet.Reader.
func WithReader(r PacketReader) Option {
	return func(o *options) {
		o.reader = r
	}
}

// WithRegionCapacity sets the size of the inbound region. It must be at least
// packet.HeaderLen.
func WithRegionCapacity(n int) Option {
	return func(o *options) {
		o.regionCapacity = n
	}
}

// WithLimits sets the limits of the default packet.Reader. It has no effect
// when WithReader is used.
func WithLimits(l packet.Limits) Option {
	return func(o *options) {
		o.limits = l
	}
}
