// Package sink holds the packet consumers a decoder can dispatch to.
//
// Every sink runs on the event loop that decoded the packet, so Accept must
// return promptly. With a multicore transport one sink value is shared by
// several loops and must be safe for concurrent use.
package sink
