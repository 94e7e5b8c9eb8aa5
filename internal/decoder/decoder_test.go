package decoder

import (
	"bytes"
	"errors"
	"math/rand"
	"net"
	"testing"

	"github.com/danmuck/packetwire/internal/buffer"
	"github.com/danmuck/packetwire/internal/packet"
	"github.com/danmuck/packetwire/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConn string

func (c testConn) ID() string { return string(c) }

func (c testConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 5701}
}

type countingCounter struct{ n int }

func (c *countingCounter) Inc() { c.n++ }

type recordingSink struct{ got []*packet.Packet }

func (s *recordingSink) Accept(p *packet.Packet) { s.got = append(s.got, p) }

type harness struct {
	dec      *Decoder
	sink     *recordingSink
	priority *countingCounter
	normal   *countingCounter
}

func newHarness(t *testing.T, opt ...Option) *harness {
	t.Helper()
	h := &harness{
		sink:     &recordingSink{},
		priority: &countingCounter{},
		normal:   &countingCounter{},
	}
	dec, err := New(testConn("conn-a"), h.sink, Counters{Priority: h.priority, Normal: h.normal}, opt...)
	require.NoError(t, err)
	dec.HandlerAdded()
	t.Cleanup(dec.HandlerRemoved)
	h.dec = dec
	return h
}

// feed appends b to the region, decoding whenever the region fills up, and
// finishes with one more decode.
func (h *harness) feed(t *testing.T, b []byte) {
	t.Helper()
	for {
		n, err := h.dec.Region().Write(b)
		b = b[n:]
		_, readErr := h.dec.OnRead()
		require.NoError(t, readErr)
		if err == nil {
			return
		}
		require.ErrorIs(t, err, buffer.ErrRegionFull)
	}
}

func wire(ps ...*packet.Packet) []byte {
	var out []byte
	for _, p := range ps {
		out = packet.AppendPacket(out, p)
	}
	return out
}

// unread snapshots the region's pending bytes without disturbing it.
func unread(r *buffer.Region) []byte {
	r.EnterDrainMode()
	defer r.RestoreWriteMode()
	return append([]byte(nil), r.Unread()...)
}

func TestScenarioUrgentNormalAndTrailingPartial(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)

	a := packet.New(bytes.Repeat([]byte{'a'}, 10), 1, packet.FlagUrgent)
	b := packet.New(bytes.Repeat([]byte{'b'}, 8), 2, 0)
	c := wire(packet.New([]byte("ccccccccc"), 3, 0))
	trailing := c[:5]

	h.feed(t, append(wire(a, b), trailing...))

	require.Len(t, h.sink.got, 2)
	assert.Equal(t, a.Payload, h.sink.got[0].Payload)
	assert.True(t, h.sink.got[0].IsUrgent())
	assert.Equal(t, b.Payload, h.sink.got[1].Payload)
	assert.False(t, h.sink.got[1].IsUrgent())
	assert.Equal(t, 1, h.priority.n)
	assert.Equal(t, 1, h.normal.n)

	region := h.dec.Region()
	assert.Equal(t, buffer.WriteMode, region.Mode())
	assert.Equal(t, 5, region.Position())
	assert.Equal(t, trailing, unread(region))
}

func TestSingleReadDispatchesEveryCompletePacket(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)

	first := packet.New([]byte("first"), 1, 0)
	second := packet.New([]byte("second"), 2, 0)
	_, err := h.dec.Region().Write(wire(first, second))
	require.NoError(t, err)

	status, err := h.dec.OnRead()
	require.NoError(t, err)
	assert.Equal(t, StatusClean, status)
	require.Len(t, h.sink.got, 2)
	assert.Equal(t, "first", string(h.sink.got[0].Payload))
	assert.Equal(t, "second", string(h.sink.got[1].Payload))
	assert.Equal(t, 0, h.dec.Region().Position(), "fully consumed region should be cleared")
}

func TestFragmentationInvariance(t *testing.T) {
	testlog.Start(t)
	rng := rand.New(rand.NewSource(7))

	var packets []*packet.Packet
	for i := 0; i < 200; i++ {
		payload := make([]byte, rng.Intn(90))
		rng.Read(payload)
		var flags uint16
		if rng.Intn(3) == 0 {
			flags |= packet.FlagUrgent
		}
		if rng.Intn(2) == 0 {
			flags |= packet.FlagOp
		}
		packets = append(packets, packet.New(payload, int32(rng.Intn(271))-1, flags))
	}
	stream := wire(packets...)

	whole := newHarness(t, WithRegionCapacity(len(stream)))
	whole.feed(t, stream)

	for _, capacity := range []int{packet.HeaderLen, 32, 97, 4096} {
		chunked := newHarness(t, WithRegionCapacity(capacity))
		for rest := stream; len(rest) > 0; {
			n := 1 + rng.Intn(41)
			if n > len(rest) {
				n = len(rest)
			}
			chunked.feed(t, rest[:n])
			rest = rest[n:]
		}

		require.Len(t, chunked.sink.got, len(packets), "capacity=%d", capacity)
		require.Len(t, whole.sink.got, len(packets))
		for i := range packets {
			want, got := whole.sink.got[i], chunked.sink.got[i]
			assert.Equal(t, want.Header, got.Header, "capacity=%d packet=%d", capacity, i)
			assert.True(t, bytes.Equal(want.Payload, got.Payload), "capacity=%d packet=%d", capacity, i)
		}
		assert.Equal(t, whole.priority.n, chunked.priority.n)
		assert.Equal(t, whole.normal.n, chunked.normal.n)
		assert.Equal(t, 0, chunked.dec.Region().Position())
	}
}

func TestCountersSplitByUrgentFlag(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)

	const n, k = 25, 9
	var ps []*packet.Packet
	for i := 0; i < n; i++ {
		var flags uint16
		if i < k {
			flags = packet.FlagUrgent | packet.FlagResponse
		} else {
			flags = packet.FlagResponse
		}
		ps = append(ps, packet.New([]byte{byte(i)}, int32(i), flags))
	}
	rand.New(rand.NewSource(1)).Shuffle(len(ps), func(i, j int) { ps[i], ps[j] = ps[j], ps[i] })

	h.feed(t, wire(ps...))

	assert.Equal(t, k, h.priority.n)
	assert.Equal(t, n-k, h.normal.n)
	require.Len(t, h.sink.got, n)
	for i, p := range h.sink.got {
		assert.Equal(t, ps[i].Payload, p.Payload, "dispatch order must follow wire order")
	}
}

func TestCompactionPreservesTrailingBytesBeforeNewData(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, WithRegionCapacity(64))

	next := wire(packet.New([]byte("tail-packet"), 5, 0))
	h.feed(t, append(wire(packet.New([]byte("head"), 4, 0)), next[:7]...))
	require.Len(t, h.sink.got, 1)
	assert.Equal(t, next[:7], unread(h.dec.Region()))

	_, err := h.dec.Region().Write(next[7:9])
	require.NoError(t, err)
	assert.Equal(t, next[:9], unread(h.dec.Region()))

	h.feed(t, next[9:])
	require.Len(t, h.sink.got, 2)
	assert.Equal(t, "tail-packet", string(h.sink.got[1].Payload))
}

func TestEveryPacketIsTaggedWithOwningConnection(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)

	h.feed(t, wire(
		packet.New([]byte("x"), 1, 0),
		packet.New([]byte("y"), 2, packet.FlagUrgent),
		packet.New(nil, packet.NoPartition, 0),
	))

	require.Len(t, h.sink.got, 3)
	for _, p := range h.sink.got {
		require.NotNil(t, p.Conn())
		assert.Equal(t, "conn-a", p.Conn().ID())
		assert.Equal(t, h.dec.Conn(), p.Conn())
	}
}

func TestReaderFailureAfterFirstPacket(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)

	first := wire(packet.New([]byte("ok"), 1, packet.FlagUrgent))
	bad := packet.EncodeHeader(packet.Header{Version: 1, PayloadLen: 2})
	bad = append(bad, 'z', 'z')
	third := wire(packet.New([]byte("never"), 3, 0))

	_, err := h.dec.Region().Write(append(append(first, bad...), third...))
	require.NoError(t, err)

	status, err := h.dec.OnRead()
	require.Error(t, err)
	assert.ErrorIs(t, err, packet.ErrUnsupportedVersion)
	assert.True(t, packet.IsProtocolViolation(err))
	assert.Equal(t, StatusClean, status)

	require.Len(t, h.sink.got, 1)
	assert.Equal(t, "ok", string(h.sink.got[0].Payload))
	assert.Equal(t, 1, h.priority.n)
	assert.Equal(t, 0, h.normal.n)

	region := h.dec.Region()
	assert.Equal(t, buffer.WriteMode, region.Mode())
	assert.Equal(t, append(bad, third...), unread(region))
}

func TestSinkPanicStillRestoresRegion(t *testing.T) {
	testlog.Start(t)
	dec, err := New(testConn("conn-p"), SinkFunc(func(*packet.Packet) { panic("sink down") }), Counters{})
	require.NoError(t, err)
	dec.HandlerAdded()
	defer dec.HandlerRemoved()

	_, err = dec.Region().Write(wire(packet.New([]byte("boom"), 0, 0), packet.New([]byte("after"), 0, 0)))
	require.NoError(t, err)

	require.Panics(t, func() { _, _ = dec.OnRead() })
	assert.Equal(t, buffer.WriteMode, dec.Region().Mode())
	assert.Equal(t, wire(packet.New([]byte("after"), 0, 0)), unread(dec.Region()))
}

func TestOnReadBeforeAttach(t *testing.T) {
	testlog.Start(t)
	dec, err := New(testConn("conn-b"), SinkFunc(func(*packet.Packet) {}), Counters{})
	require.NoError(t, err)

	_, err = dec.OnRead()
	assert.True(t, errors.Is(err, ErrNotAttached))
}

func TestOnReadWithEmptyRegion(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)

	status, err := h.dec.OnRead()
	require.NoError(t, err)
	assert.Equal(t, StatusClean, status)
	assert.Empty(t, h.sink.got)
	assert.Equal(t, buffer.WriteMode, h.dec.Region().Mode())
}

func TestNewValidatesArguments(t *testing.T) {
	testlog.Start(t)
	sink := SinkFunc(func(*packet.Packet) {})

	_, err := New(nil, sink, Counters{})
	assert.ErrorIs(t, err, ErrNilConn)

	_, err = New(testConn("c"), nil, Counters{})
	assert.ErrorIs(t, err, ErrNilSink)

	_, err = New(testConn("c"), sink, Counters{}, WithRegionCapacity(packet.HeaderLen-1))
	assert.Error(t, err)
}

func TestHandlerLifecycle(t *testing.T) {
	testlog.Start(t)
	dec, err := New(testConn("c"), SinkFunc(func(*packet.Packet) {}), Counters{}, WithRegionCapacity(128))
	require.NoError(t, err)
	assert.Nil(t, dec.Region())

	dec.HandlerAdded()
	region := dec.Region()
	require.NotNil(t, region)
	assert.Equal(t, 128, region.Cap())

	dec.HandlerAdded()
	assert.Same(t, region, dec.Region(), "second attach must keep the region")

	dec.HandlerRemoved()
	assert.Nil(t, dec.Region())
	assert.True(t, region.Released())
	dec.HandlerRemoved()
}

type scriptedReader struct {
	calls int
}

func (r *scriptedReader) TryReadOne(src *buffer.Region) (*packet.Packet, bool, error) {
	r.calls++
	if src.Remaining() < 2 {
		return nil, false, nil
	}
	b := src.Next(2)
	return packet.New(append([]byte(nil), b...), 0, uint16(b[0])), true, nil
}

func TestWithReaderReplacesDefaultParser(t *testing.T) {
	testlog.Start(t)
	reader := &scriptedReader{}
	h := newHarness(t, WithReader(reader))

	h.feed(t, []byte{byte(packet.FlagUrgent), 1, 0, 2, 0})

	require.Len(t, h.sink.got, 2)
	assert.Equal(t, 1, h.priority.n)
	assert.Equal(t, 1, h.normal.n)
	assert.Equal(t, 3, reader.calls, "loop should stop on the first empty result")
	assert.Equal(t, []byte{0}, unread(h.dec.Region()))
}

func TestStatusString(t *testing.T) {
	testlog.Start(t)
	assert.Equal(t, "clean", StatusClean.String())
	assert.Equal(t, "status(9)", Status(9).String())
}
