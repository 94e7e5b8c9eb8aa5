// Package buffer owns the per-connection inbound byte region.
//
// A Region alternates between two modes:
// - write mode: bytes are appended at Position() up to Cap()
// - drain mode: bytes in [Position(), Limit()) are consumed front to back
//
// Only the decoder switches a region into drain mode, and it always restores
// write mode before returning, so every other caller sees a writable region.
package buffer

import (
	"errors"
	"fmt"

	pool "github.com/libp2p/go-buffer-pool"
)

var (
	ErrRegionFull = errors.New("buffer: region full")
	ErrWrongMode  = errors.New("buffer: operation not allowed in current mode")
	ErrReleased   = errors.New("buffer: region released")
)

// Mode is the cursor discipline a Region is currently in.
type Mode uint8

const (
	WriteMode Mode = iota
	DrainMode
)

func (m Mode) String() string {
	switch m {
	case WriteMode:
		return "write"
	case DrainMode:
		return "drain"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// Region is a fixed-capacity byte range with explicit position and limit
// cursors. It is owned by exactly one decoder and is not safe for concurrent
// use.
type Region struct {
	buf   []byte
	pos   int
	limit int
	mode  Mode
}

// New returns an empty region in write mode. The backing array is taken from
// the shared byte pool and must be handed back with Release.
func New(capacity int) *Region {
	if capacity <= 0 {
		panic(fmt.Sprintf("buffer: invalid region capacity %d", capacity))
	}
	buf := pool.Get(capacity)
	return &Region{
		buf:   buf[:capacity],
		limit: capacity,
		mode:  WriteMode,
	}
}

// Release returns the backing array to the pool. The region is unusable
// afterwards; calling Release twice is a no-op.
func (r *Region) Release() {
	if r.buf == nil {
		return
	}
	pool.Put(r.buf)
	r.buf = nil
	r.pos = 0
	r.limit = 0
}

func (r *Region) Released() bool { return r.buf == nil }

func (r *Region) Cap() int      { return len(r.buf) }
func (r *Region) Position() int { return r.pos }
func (r *Region) Limit() int    { return r.limit }
func (r *Region) Mode() Mode    { return r.mode }

// Remaining is limit-position: free space in write mode, unread bytes in
// drain mode.
func (r *Region) Remaining() int    { return r.limit - r.pos }
func (r *Region) HasRemaining() bool { return r.pos < r.limit }

// Buffered reports how many bytes are held by the region regardless of mode.
func (r *Region) Buffered() int {
	if r.mode == WriteMode {
		return r.pos
	}
	return r.limit - r.pos
}

// Write appends p at the write position. It copies as much as fits and
// returns ErrRegionFull when p was only partially written.
func (r *Region) Write(p []byte) (int, error) {
	if r.buf == nil {
		return 0, ErrReleased
	}
	if r.mode != WriteMode {
		return 0, fmt.Errorf("%w: write in %s mode", ErrWrongMode, r.mode)
	}
	n := copy(r.buf[r.pos:r.limit], p)
	r.pos += n
	if n < len(p) {
		return n, ErrRegionFull
	}
	return n, nil
}

// Writable exposes the free tail of the region for direct fills (for example
// a socket read). Callers must follow up with Commit for the bytes they wrote.
func (r *Region) Writable() []byte {
	if r.buf == nil || r.mode != WriteMode {
		return nil
	}
	return r.buf[r.pos:r.limit]
}

// Commit advances the write position after a direct fill through Writable.
func (r *Region) Commit(n int) {
	if r.mode != WriteMode {
		panic(fmt.Sprintf("buffer: commit in %s mode", r.mode))
	}
	if n < 0 || n > r.limit-r.pos {
		panic(fmt.Sprintf("buffer: commit %d out of range (free=%d)", n, r.limit-r.pos))
	}
	r.pos += n
}

// Peek returns the next n unread bytes without consuming them, or nil when
// fewer than n are available. The slice aliases the region.
func (r *Region) Peek(n int) []byte {
	if r.mode != DrainMode || n < 0 || n > r.limit-r.pos {
		return nil
	}
	return r.buf[r.pos : r.pos+n]
}

// Next consumes and returns the next n unread bytes, or nil when fewer than n
// are available. The slice aliases the region and is only valid until the
// region returns to write mode.
func (r *Region) Next(n int) []byte {
	b := r.Peek(n)
	if b != nil {
		r.pos += n
	}
	return b
}

// Unread returns every unconsumed byte without consuming it.
func (r *Region) Unread() []byte {
	if r.mode != DrainMode {
		return nil
	}
	return r.buf[r.pos:r.limit]
}

// EnterDrainMode freezes the limit at the current write position and rewinds
// the read cursor to the start of the region.
func (r *Region) EnterDrainMode() {
	if r.mode != WriteMode {
		panic("buffer: EnterDrainMode called in drain mode")
	}
	r.limit = r.pos
	r.pos = 0
	r.mode = DrainMode
}

// RestoreWriteMode compacts unread bytes to the front of the region, or
// clears it when everything was consumed. Either way the region is writable
// afterwards with its limit reopened to capacity.
func (r *Region) RestoreWriteMode() {
	if r.mode != DrainMode {
		panic("buffer: RestoreWriteMode called in write mode")
	}
	if r.pos < r.limit {
		n := copy(r.buf, r.buf[r.pos:r.limit])
		r.pos = n
	} else {
		r.pos = 0
	}
	r.limit = len(r.buf)
	r.mode = WriteMode
}

func (r *Region) String() string {
	return fmt.Sprintf("Region{mode=%s pos=%d limit=%d cap=%d}", r.mode, r.pos, r.limit, len(r.buf))
}
