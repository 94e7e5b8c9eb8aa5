package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/packetwire/internal/config"
	"github.com/danmuck/packetwire/internal/decoder"
	"github.com/danmuck/packetwire/internal/logging"
	"github.com/danmuck/packetwire/internal/observability"
	"github.com/danmuck/packetwire/internal/sink"
	"github.com/danmuck/packetwire/internal/transport"
	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const defaultShutdownTimeout = 5 * time.Second

type service struct {
	cfg    config.Config
	logger zerolog.Logger

	// dialNATS is replaced in tests.
	dialNATS func(url string, opts ...nats.Option) (*nats.Conn, error)
}

func newService(cfg config.Config) *service {
	return &service{
		cfg:      cfg,
		logger:   logging.Component("packetd").With().Str("node", cfg.Name).Logger(),
		dialNATS: nats.Connect,
	}
}

// Run serves the decoder listener and the ops endpoint until ctx ends or
// either of them fails.
func (s *service) Run(ctx context.Context) error {
	observability.RegisterMetrics()

	dst, closeSinks, err := s.buildSink()
	if err != nil {
		return err
	}
	defer closeSinks()

	srv, err := transport.NewServer(transport.Config{
		Addr:           s.cfg.Listen.Addr,
		Multicore:      s.cfg.Listen.Multicore,
		NumEventLoop:   s.cfg.Listen.NumEventLoop,
		ReusePort:      s.cfg.Listen.ReusePort,
		RegionCapacity: s.cfg.Decoder.RegionCapacity,
		Limits:         s.cfg.Decoder.Limits(),
		Logger:         logging.Component("transport"),
	}, dst)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if addr := strings.TrimSpace(s.cfg.Ops.Addr); addr != "" {
		g.Go(func() error {
			return s.serveOps(gctx, addr, srv)
		})
	}

	s.logger.Info().Str("listen", s.cfg.Listen.Addr).Str("ops", s.cfg.Ops.Addr).Bool("nats", s.cfg.NATS.Enabled()).Msg("packetd starting")
	err = g.Wait()
	s.logger.Info().Err(err).Msg("packetd stopped")
	return err
}

// buildSink always logs packets and also publishes to NATS when configured.
func (s *service) buildSink() (decoder.Sink, func(), error) {
	sinks := sink.Tee{sink.NewLog(logging.Component("sink"))}
	closeFn := func() {}

	if s.cfg.NATS.Enabled() {
		nc, err := s.dialNATS(s.cfg.NATS.URL,
			nats.Name(s.cfg.Name),
			nats.MaxReconnects(-1),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				s.logger.Warn().Err(err).Msg("nats disconnected")
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				s.logger.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
			}),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("connect nats %s: %w", s.cfg.NATS.URL, err)
		}
		sinks = append(sinks, sink.NewNATS(nc, s.cfg.NATS.SubjectPrefix, logging.Component("sink.nats")))
		closeFn = func() {
			if err := nc.Drain(); err != nil {
				s.logger.Warn().Err(err).Msg("nats drain failed")
			}
		}
	}
	return sinks, closeFn, nil
}

func (s *service) serveOps(ctx context.Context, addr string, srv *transport.Server) error {
	if zerolog.GlobalLevel() > zerolog.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	router := observability.NewRouter(observability.RouterConfig{
		Node:        s.cfg.Name,
		CorsOrigins: s.cfg.Ops.CorsOrigins,
		Logger:      logging.Component("ops"),
		Status: func() gin.H {
			return gin.H{
				"listen":      srv.Addr(),
				"connections": srv.Connections(),
				"conns":       srv.Snapshot(),
			}
		},
	})
	httpSrv := &http.Server{Addr: addr, Handler: router}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("ops listening")
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.Ops.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ops shutdown: %w", err)
	}
	return nil
}
