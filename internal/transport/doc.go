// Package transport runs the inbound decoders on gnet event loops.
//
// Each accepted connection gets one decoder.Decoder. gnet guarantees that a
// connection's callbacks run on a single event loop goroutine, which is the
// only goroutine that ever touches that decoder or its region.
package transport
