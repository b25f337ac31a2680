package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/hasirciogluhq/quido-node/cmd/node/internal/logger"

	"github.com/sagernet/sing/common/buf"
	"github.com/sagernet/sing/common/bufio"
)

// DefaultSniffTimeout bounds the wait for the leading byte.
const DefaultSniffTimeout = 5 * time.Second

var (
	ErrSniffTimeout = errors.New("timed out waiting for leading byte")
	ErrSniffRead    = errors.New("failed to read leading byte")
)

// Sniff reads exactly one byte from conn, waiting at most timeout. The read
// deadline is cleared again on success.
func Sniff(conn net.Conn, timeout time.Duration) (byte, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, fmt.Errorf("%w: set read deadline: %w", ErrSniffRead, err)
	}
	var first [1]byte
	if _, err := io.ReadFull(conn, first[:]); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return 0, ErrSniffTimeout
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return 0, ErrSniffTimeout
		}
		return 0, fmt.Errorf("%w: %w", ErrSniffRead, err)
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return 0, fmt.Errorf("%w: clear read deadline: %w", ErrSniffRead, err)
	}
	return first[0], nil
}

// Dispatcher routes a freshly established stream to a handler by its
// leading byte.
//
// The tunnel handler receives the stream with the marker consumed. The HTTP
// handler receives a stream that yields the sniffed byte first, followed by
// the rest of the original stream.
type Dispatcher struct {
	HTTP         Handler
	Tunnel       Handler
	SniffTimeout time.Duration
	Logger       *slog.Logger
}

// Dispatch sniffs conn and runs the selected handler to completion. On a
// sniff failure conn is closed and no handler runs.
func (d *Dispatcher) Dispatch(ctx context.Context, conn net.Conn, peer net.Addr) error {
	log := d.logger(ctx)

	first, err := Sniff(conn, d.sniffTimeout())
	if err != nil {
		log.Warn("Failed to read from stream", "peer", peer.String(), "error", err)
		conn.Close()
		return err
	}

	protocol := Classify(first)
	log.Debug("Dispatching connection", "peer", peer.String(), "protocol", protocol)

	var handler Handler
	stream := conn
	switch protocol {
	case ProtocolTunnel:
		handler = d.Tunnel
	default:
		handler = d.HTTP
		stream = bufio.NewCachedConn(conn, buf.As([]byte{first}))
	}
	if handler == nil {
		err := fmt.Errorf("no %s handler configured", protocol)
		log.Warn("Dropping connection", "peer", peer.String(), "protocol", protocol, "error", err)
		conn.Close()
		return err
	}

	if err := handler.Handle(ctx, stream, peer); err != nil {
		log.Error("Connection handler failed", "peer", peer.String(), "protocol", protocol, "error", err)
		return fmt.Errorf("%s handler: %w", protocol, err)
	}
	return nil
}

func (d *Dispatcher) sniffTimeout() time.Duration {
	if d.SniffTimeout <= 0 {
		return DefaultSniffTimeout
	}
	return d.SniffTimeout
}

func (d *Dispatcher) logger(ctx context.Context) *slog.Logger {
	if l, ok := logger.Lookup(ctx); ok {
		return l
	}
	if d.Logger != nil {
		return d.Logger
	}
	return logger.Default()
}
