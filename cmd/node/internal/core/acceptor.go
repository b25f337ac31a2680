package core

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync/atomic"
	"time"
)

// NewServerConfig builds the TLS server configuration for one identity.
// Client certificates are not requested.
func NewServerConfig(cert *tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{*cert},
		ClientAuth:   tls.NoClientCert,
		MinVersion:   tls.VersionTLS12,
	}
}

// Acceptor performs server-side TLS handshakes with a shared identity.
//
// Clones share the same identity handle; Swap on any of them is seen by all.
// The configuration behind the handle is never mutated, only replaced.
type Acceptor struct {
	config *atomic.Pointer[tls.Config]
}

func NewAcceptor(cert *tls.Certificate) *Acceptor {
	a := &Acceptor{config: new(atomic.Pointer[tls.Config])}
	a.config.Store(NewServerConfig(cert))
	return a
}

// Clone returns a handle sharing a's identity.
func (a *Acceptor) Clone() *Acceptor {
	return &Acceptor{config: a.config}
}

// Swap installs a new identity for subsequent handshakes. Sessions already
// established keep the identity they negotiated with.
func (a *Acceptor) Swap(cert *tls.Certificate) {
	a.config.Store(NewServerConfig(cert))
}

// Config returns the current configuration. Callers must not modify it.
func (a *Acceptor) Config() *tls.Config {
	return a.config.Load()
}

// Accept wraps conn in a TLS server session and completes the handshake.
// A zero timeout leaves the handshake unbounded except by ctx.
func (a *Acceptor) Accept(ctx context.Context, conn net.Conn, timeout time.Duration) (*tls.Conn, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	tlsConn := tls.Server(conn, a.config.Load())
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, fmt.Errorf("tls handshake: %w", err)
	}
	return tlsConn, nil
}

func tlsVersionName(version uint16) string {
	switch version {
	case tls.VersionTLS10:
		return "TLSv1.0"
	case tls.VersionTLS11:
		return "TLSv1.1"
	case tls.VersionTLS12:
		return "TLSv1.2"
	case tls.VersionTLS13:
		return "TLSv1.3"
	default:
		return fmt.Sprintf("Unknown (%x)", version)
	}
}
