package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"

	"devserver/internal/api"
	"devserver/internal/config"
	"devserver/internal/eventbus"
	"devserver/internal/monitor"
	"devserver/internal/service"
	"devserver/internal/session"

	"golang.org/x/sync/errgroup"
)

// ErrBind is returned by Listen when the listener cannot be opened.
var ErrBind = errors.New("bind listener")

// Server is a running HTTP server with its session service. It is started by
// Listen and stopped exactly once, by Stop or by Run returning.
type Server struct {
	cfg        *config.Config
	deps       *Dependency
	listener   net.Listener
	httpServer *http.Server
	router     *api.Router
	svc        *service.Service
	bus        *eventbus.Broadcaster
	mirror     eventbus.Mirror
	cleaner    *session.Cleaner
	logger     *slog.Logger

	cancel  context.CancelFunc
	done    chan struct{}
	waitErr error

	stopOnce sync.Once
	stopErr  error
}

// Listen binds the configured address and starts serving. Port 0 asks the OS
// for a free port; Hostname and Port report what was actually bound.
func Listen(ctx context.Context, cfg *config.Config, deps *Dependency) (*Server, error) {
	logger := deps.Logger

	addr := net.JoinHostPort(cfg.Server.Hostname, strconv.Itoa(cfg.Server.Port))
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrBind, addr, err)
	}

	// Resolved copy; the caller's config is left untouched.
	resolved := *cfg
	resolved.Server.Port = ln.Addr().(*net.TCPAddr).Port
	if resolved.Server.Hostname == "" {
		resolved.Server.Hostname = ln.Addr().(*net.TCPAddr).IP.String()
	}

	bus := eventbus.NewBroadcaster(cfg.Stream.QueueSize, logger)

	var mirror eventbus.Mirror
	if deps.Redis != nil {
		mirror = eventbus.NewRedisMirror(deps.Redis, cfg.Stream.QueueSize, logger)
	}

	svc := service.NewService(bus, mirror, logger)
	cleaner := session.NewCleaner(svc.Sessions, session.CleanupConfig{
		Interval:  cfg.Session.CleanupInterval,
		Retention: cfg.Session.Retention,
	}, logger)

	router := api.NewRouter(svc, &resolved)
	httpServer := &http.Server{
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}
	// Open streams end before Shutdown starts waiting on their connections.
	httpServer.RegisterOnShutdown(bus.Shutdown)

	runCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:        &resolved,
		deps:       deps,
		listener:   ln,
		httpServer: httpServer,
		router:     router,
		svc:        svc,
		bus:        bus,
		mirror:     mirror,
		cleaner:    cleaner,
		logger:     logger,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		s.logger.Info("Starting API server", "addr", ln.Addr().String())
		if err := httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		cleaner.Start()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		cleaner.Stop()
		return nil
	})
	if cfg.Metrics.Addr != "" {
		g.Go(func() error {
			if err := monitor.StartMetricsServer(gctx, cfg.Metrics.Addr, logger); err != nil {
				logger.Error("Metrics server failed", "error", err)
			}
			return nil
		})
	}

	go func() {
		s.waitErr = g.Wait()
		close(s.done)
	}()

	return s, nil
}

func (s *Server) Hostname() string { return s.cfg.Server.Hostname }

func (s *Server) Port() int { return s.cfg.Server.Port }

// URL is the base URL clients should use, e.g. http://127.0.0.1:4096.
func (s *Server) URL() string {
	return "http://" + net.JoinHostPort(s.Hostname(), strconv.Itoa(s.Port()))
}

// Config returns the resolved configuration.
func (s *Server) Config() *config.Config { return s.cfg }

// Service exposes the session service, mostly for embedding and tests.
func (s *Server) Service() *service.Service { return s.svc }

// Stop ends every open stream, stops accepting connections and waits for
// in-flight requests up to the shutdown timeout. Later calls return the
// first call's result.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		s.stopErr = s.shutdown()
	})
	return s.stopErr
}

func (s *Server) shutdown() error {
	s.logger.Info("Shutdown signal received, draining...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("HTTP server shutdown timed out, closing connections", "error", err)
		if err := s.httpServer.Close(); err != nil {
			s.logger.Error("HTTP server close error", "error", err)
		}
	}
	s.bus.Shutdown()

	if err := s.router.WaitStreams(shutdownCtx); err != nil {
		s.logger.Warn("WebSocket streams still open after shutdown timeout", "error", err)
	}

	s.cancel()
	<-s.done

	if s.mirror != nil {
		if err := s.mirror.Close(); err != nil {
			s.logger.Error("Event mirror close error", "error", err)
		}
	}

	if s.waitErr != nil {
		return s.waitErr
	}
	s.logger.Info("Server stopped gracefully")
	return nil
}

// Wait blocks until the server stops serving, either through Stop or because
// serving failed.
func (s *Server) Wait() error {
	<-s.done
	return s.waitErr
}

// Run serves until ctx is cancelled or serving fails, then stops the server.
func (s *Server) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
	case <-s.done:
	}
	return s.Stop()
}
