package transport

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/packetwire/internal/decoder"
	"github.com/danmuck/packetwire/internal/observability"
	"github.com/danmuck/packetwire/internal/packet"
	"github.com/panjf2000/gnet/v2"
	"github.com/rs/zerolog"
)

var (
	ErrInvalidAddr = errors.New("transport: invalid listen address")
	ErrNilSink     = errors.New("transport: nil sink")
	ErrRegionFull  = errors.New("transport: decoder region full after read")
)

const stopTimeout = 5 * time.Second

// Config holds server configuration.
type Config struct {
	Addr           string
	Multicore      bool
	NumEventLoop   int
	ReusePort      bool
	RegionCapacity int
	Limits         packet.Limits
	Logger         zerolog.Logger
}

// Server implements gnet.EventHandler. Every connection is decoded on the
// event loop that owns it and packets go to one shared sink.
type Server struct {
	gnet.BuiltinEventEngine

	cfg    Config
	sink   decoder.Sink
	logger zerolog.Logger

	engine   gnet.Engine
	booted   chan struct{}
	bootOnce sync.Once

	conns  sync.Map // id -> *Conn
	active atomic.Int64
}

func NewServer(cfg Config, sink decoder.Sink) (*Server, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, ErrInvalidAddr
	}
	if sink == nil {
		return nil, ErrNilSink
	}
	if cfg.RegionCapacity <= 0 {
		cfg.RegionCapacity = decoder.DefaultRegionCapacity
	}
	if cfg.RegionCapacity < packet.HeaderLen {
		return nil, fmt.Errorf("transport: region capacity %d smaller than header (%d)", cfg.RegionCapacity, packet.HeaderLen)
	}
	if cfg.Limits == (packet.Limits{}) {
		cfg.Limits = packet.DefaultLimits()
	}
	return &Server{
		cfg:    cfg,
		sink:   sink,
		logger: cfg.Logger.With().Str("component", "transport").Logger(),
		booted: make(chan struct{}),
	}, nil
}

func (s *Server) options() []gnet.Option {
	opts := []gnet.Option{
		gnet.WithMulticore(s.cfg.Multicore),
		gnet.WithReusePort(s.cfg.ReusePort),
		gnet.WithTCPNoDelay(gnet.TCPNoDelay),
		gnet.WithLogger(gnetLogger{logger: s.logger}),
	}
	if s.cfg.NumEventLoop > 0 {
		opts = append(opts, gnet.WithNumEventLoop(s.cfg.NumEventLoop))
	}
	return opts
}

// Run serves until ctx is canceled or the engine fails.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- gnet.Run(s, "tcp://"+s.cfg.Addr, s.options()...)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	select {
	case <-s.booted:
	case err := <-errCh:
		return err
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := s.engine.Stop(stopCtx); err != nil {
		s.logger.Warn().Err(err).Msg("engine stop failed")
	}
	return <-errCh
}

// Ready is closed once the engine accepts connections.
func (s *Server) Ready() <-chan struct{} {
	return s.booted
}

func (s *Server) Addr() string {
	return s.cfg.Addr
}

func (s *Server) Connections() int {
	return int(s.active.Load())
}

// Snapshot lists per-connection counters ordered by open time.
func (s *Server) Snapshot() []ConnStats {
	out := make([]ConnStats, 0, s.Connections())
	s.conns.Range(func(_, v any) bool {
		out = append(out, v.(*Conn).Stats())
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].OpenedAt.Before(out[j].OpenedAt)
	})
	return out
}

func (s *Server) OnBoot(eng gnet.Engine) gnet.Action {
	s.engine = eng
	s.bootOnce.Do(func() { close(s.booted) })
	s.logger.Info().
		Str("addr", s.cfg.Addr).
		Bool("multicore", s.cfg.Multicore).
		Int("region_capacity", s.cfg.RegionCapacity).
		Msg("listening")
	return gnet.None
}

func (s *Server) OnShutdown(_ gnet.Engine) {
	s.logger.Info().Str("addr", s.cfg.Addr).Msg("engine stopped")
}

// OnOpen attaches a decoder to the new connection.
func (s *Server) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	conn := newConn(c.RemoteAddr(), c.LocalAddr())
	dec, err := decoder.New(conn, s.sink, conn.counters.Counters(),
		decoder.WithRegionCapacity(s.cfg.RegionCapacity),
		decoder.WithLimits(s.cfg.Limits),
	)
	if err != nil {
		s.logger.Error().Err(err).Msg("decoder setup failed")
		return nil, gnet.Close
	}
	dec.HandlerAdded()
	conn.dec = dec

	c.SetContext(conn)
	s.conns.Store(conn.id, conn)
	s.active.Add(1)
	observability.RecordConnectionOpened()

	s.logger.Debug().Str("conn", conn.id).Str("remote", addrString(conn.remote)).Msg("connection opened")
	return nil, gnet.None
}

func (s *Server) OnClose(c gnet.Conn, err error) gnet.Action {
	conn, ok := c.Context().(*Conn)
	if !ok {
		return gnet.None
	}
	c.SetContext(nil)
	if conn.dec != nil {
		conn.dec.HandlerRemoved()
	}
	s.conns.Delete(conn.id)
	s.active.Add(-1)
	observability.RecordConnectionClosed()

	event := s.logger.Debug()
	if err != nil {
		event = s.logger.Info().Err(err)
	}
	event.
		Str("conn", conn.id).
		Uint64("priority_packets", conn.counters.Priority()).
		Uint64("normal_packets", conn.counters.Normal()).
		Msg("connection closed")
	return gnet.None
}

// OnTraffic moves inbound bytes into the decoder's region and decodes until
// gnet has nothing buffered for this connection.
func (s *Server) OnTraffic(c gnet.Conn) gnet.Action {
	conn, ok := c.Context().(*Conn)
	if !ok || conn.dec == nil {
		s.logger.Error().Str("remote", addrString(c.RemoteAddr())).Msg("traffic on unknown connection")
		return gnet.Close
	}

	for c.InboundBuffered() > 0 {
		if err := s.readOnce(c, conn); err != nil {
			kind := "io"
			if packet.IsProtocolViolation(err) {
				kind = "protocol"
			}
			observability.RecordDecodeError(kind)
			s.logger.Warn().Err(err).Str("conn", conn.id).Str("kind", kind).Msg("closing connection")
			return gnet.Close
		}
	}
	return gnet.None
}

func (s *Server) readOnce(c gnet.Conn, conn *Conn) error {
	region := conn.dec.Region()
	free := region.Writable()
	if len(free) == 0 {
		return ErrRegionFull
	}
	n, err := c.Read(free)
	if err != nil {
		return err
	}
	region.Commit(n)
	observability.RecordBytesRead(n)

	_, err = conn.dec.OnRead()
	return err
}

func addrString(a interface{ String() string }) string {
	if a == nil {
		return ""
	}
	return a.String()
}
