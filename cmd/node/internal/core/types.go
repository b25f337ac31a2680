package core

import (
	"context"
	"crypto/tls"
	"net"
)

// TLSProvider defines how to retrieve the server identity.
// It abstracts away the storage mechanism (file, Kubernetes Secret, memory).
type TLSProvider interface {
	GetCertificate(ctx context.Context) (*tls.Certificate, error)
}

// Handler consumes a decrypted stream after dispatch.
//
// The handler owns conn: it is responsible for any further protocol parsing
// and for closing it. Handle should return once the stream is finished.
type Handler interface {
	Handle(ctx context.Context, conn net.Conn, peer net.Addr) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, conn net.Conn, peer net.Addr) error

func (f HandlerFunc) Handle(ctx context.Context, conn net.Conn, peer net.Addr) error {
	return f(ctx, conn, peer)
}

// Protocol is the handler strategy selected by the leading byte.
type Protocol uint8

const (
	ProtocolHTTP Protocol = iota
	ProtocolTunnel
)

func (p Protocol) String() string {
	switch p {
	case ProtocolHTTP:
		return "http/1.1"
	case ProtocolTunnel:
		return "tunnel"
	default:
		return "unknown"
	}
}

// TunnelMarker is the leading byte that selects the raw tunnel.
const TunnelMarker byte = 0x01

// Classify maps a leading byte to its protocol.
func Classify(first byte) Protocol {
	if first == TunnelMarker {
		return ProtocolTunnel
	}
	return ProtocolHTTP
}
