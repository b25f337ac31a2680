package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/hasirciogluhq/quido-node/cmd/node/internal/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// HealthServer answers HTTP/1.1 requests arriving on dispatched TLS streams
// and, optionally, on a plaintext port.
type HealthServer struct {
	tlsServer   *http.Server
	plainServer *http.Server
	conns       *connListener
	ready       atomic.Bool
	logger      *slog.Logger
}

// NewHealthServer builds the server. An empty plainAddr disables the
// plaintext listener. A nil log falls back to the process logger.
func NewHealthServer(plainAddr string, log *slog.Logger) *HealthServer {
	if log == nil {
		log = logger.Default()
	}
	hs := &HealthServer{
		conns:  newConnListener(&net.TCPAddr{}),
		logger: log,
	}

	// Default to not ready until explicitly set
	hs.ready.Store(false)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", hs.handleHealth)
	r.Get("/ready", hs.handleReady)

	errorLog := slog.NewLogLogger(log.Handler(), slog.LevelWarn)
	hs.tlsServer = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          errorLog,
	}
	if plainAddr != "" {
		hs.plainServer = &http.Server{
			Addr:              plainAddr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ErrorLog:          errorLog,
		}
	}
	return hs
}

// Run serves until ctx is cancelled, then shuts both servers down.
func (s *HealthServer) Run(ctx context.Context) error {
	errs := make(chan error, 2)
	go func() {
		errs <- s.tlsServer.Serve(s.conns)
	}()
	if s.plainServer != nil {
		go func() {
			s.logger.Info("Health server listening", "addr", s.plainServer.Addr)
			errs <- s.plainServer.ListenAndServe()
		}()
	}

	select {
	case err := <-errs:
		if !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return s.Stop(shutdownCtx)
}

// Stop gracefully shuts down both servers.
func (s *HealthServer) Stop(ctx context.Context) error {
	s.conns.Close()
	err := s.tlsServer.Shutdown(ctx)
	if s.plainServer != nil {
		err = errors.Join(err, s.plainServer.Shutdown(ctx))
	}
	return err
}

func (s *HealthServer) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Handle serves one dispatched stream and returns once the HTTP server has
// closed it.
func (s *HealthServer) Handle(ctx context.Context, conn net.Conn, peer net.Addr) error {
	tc := &trackedConn{Conn: conn, done: make(chan struct{})}
	select {
	case s.conns.conns <- tc:
	case <-s.conns.closed:
		conn.Close()
		return http.ErrServerClosed
	case <-ctx.Done():
		conn.Close()
		return ctx.Err()
	}
	<-tc.done
	return nil
}

func (s *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *HealthServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready.Load() {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("not ready"))
	}
}
