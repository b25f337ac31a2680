package core

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"runtime/debug"
	"strconv"
	"syscall"
	"time"

	"github.com/hasirciogluhq/quido-node/cmd/node/internal/logger"
)

// Options configures a Server.
type Options struct {
	Address  string
	Port     uint16
	Identity *tls.Certificate

	HTTP   Handler
	Tunnel Handler

	// SniffTimeout defaults to DefaultSniffTimeout.
	SniffTimeout time.Duration
	// HandshakeTimeout bounds each TLS handshake. Zero means unbounded.
	HandshakeTimeout time.Duration
	// RetryAcceptErrors keeps the loop running across temporary accept
	// errors instead of returning them from Serve.
	RetryAcceptErrors bool

	Logger *slog.Logger
}

// Server is the TLS edge accept loop.
// Every accepted connection runs on its own goroutine: handshake, then
// dispatch, then the selected handler.
type Server struct {
	listener          net.Listener
	acceptor          *Acceptor
	dispatcher        *Dispatcher
	logger            *slog.Logger
	handshakeTimeout  time.Duration
	retryAcceptErrors bool
}

var errMissingIdentity = errors.New("missing TLS identity")

// New binds the listening endpoint. Binding failure is returned as is.
func New(ctx context.Context, opts Options) (*Server, error) {
	if opts.Identity == nil {
		return nil, errMissingIdentity
	}
	addr := net.JoinHostPort(opts.Address, strconv.Itoa(int(opts.Port)))
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	server, err := NewWithListener(listener, opts)
	if err != nil {
		listener.Close()
		return nil, err
	}
	return server, nil
}

// NewWithListener builds a Server around an already bound listener.
func NewWithListener(listener net.Listener, opts Options) (*Server, error) {
	if opts.Identity == nil {
		return nil, errMissingIdentity
	}
	log := opts.Logger
	if log == nil {
		log = logger.Default()
	}
	return &Server{
		listener: listener,
		acceptor: NewAcceptor(opts.Identity),
		dispatcher: &Dispatcher{
			HTTP:         opts.HTTP,
			Tunnel:       opts.Tunnel,
			SniffTimeout: opts.SniffTimeout,
			Logger:       log,
		},
		logger:            log,
		handshakeTimeout:  opts.HandshakeTimeout,
		retryAcceptErrors: opts.RetryAcceptErrors,
	}, nil
}

// Addr returns the bound listening address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Acceptor returns the shared TLS identity handle.
func (s *Server) Acceptor() *Acceptor {
	return s.acceptor
}

// Close closes the listener. Serve then returns.
func (s *Server) Close() error {
	return s.listener.Close()
}

// Serve accepts connections until ctx is cancelled or accepting fails.
// Cancellation closes the listener and returns nil; connections already in
// flight run to completion.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("Quido node listening", "address", s.listener.Addr().String())

	stop := context.AfterFunc(ctx, func() {
		s.listener.Close()
	})
	defer stop()

	var tempDelay time.Duration
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if s.retryAcceptErrors && isTemporary(err) {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if tempDelay > time.Second {
					tempDelay = time.Second
				}
				s.logger.Warn("Accept failed, retrying", "error", err, "delay", tempDelay)
				select {
				case <-time.After(tempDelay):
				case <-ctx.Done():
					return nil
				}
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		tempDelay = 0

		acceptor := s.acceptor.Clone()
		go s.handleConnection(context.WithoutCancel(ctx), acceptor, conn)
	}
}

func (s *Server) handleConnection(ctx context.Context, acceptor *Acceptor, conn net.Conn) {
	peer := conn.RemoteAddr()
	log := s.logger.With("id", logger.NewConnectionID())
	ctx = logger.NewContext(ctx, log)

	defer conn.Close()
	defer func() {
		if r := recover(); r != nil {
			log.Error("Connection task panicked", "peer", peer.String(), "panic", r, "stack", string(debug.Stack()))
		}
	}()

	tlsConn, err := acceptor.Accept(ctx, conn, s.handshakeTimeout)
	if err != nil {
		log.Warn("TLS handshake failed", "peer", peer.String(), "error", err)
		return
	}
	defer tlsConn.Close()

	state := tlsConn.ConnectionState()
	log.Info("Accepted TLS connection",
		"peer", peer.String(),
		"protocol", tlsVersionName(state.Version),
		"cipher_suite", tls.CipherSuiteName(state.CipherSuite),
		"server_name", state.ServerName)

	// Failures are logged by the dispatcher.
	_ = s.dispatcher.Dispatch(ctx, tlsConn, peer)
}

// isTemporary reports whether an accept error is worth retrying.
func isTemporary(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		return false
	}
	if errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE) ||
		errors.Is(err, syscall.ECONNABORTED) || errors.Is(err, syscall.ENOBUFS) {
		return true
	}
	var netErr net.Error
	//nolint:staticcheck
	return errors.As(err, &netErr) && (netErr.Timeout() || netErr.Temporary())
}
