// Package decoder turns a connection's inbound byte region into packets.
//
// The Decoder is one stage of a connection's inbound pipeline. The owning I/O
// loop appends socket bytes to Region() and calls OnRead; the decoder extracts
// every complete packet, counts it, tags it with the connection and hands it
// to the Sink on the calling goroutine.
//
// Sink.Accept runs synchronously on the I/O loop. A slow sink stalls every
// connection multiplexed on that loop; that stall is the backpressure, and no
// queue is placed in between.
package decoder
