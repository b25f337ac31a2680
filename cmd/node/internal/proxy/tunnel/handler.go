// Package tunnel is the raw-tunnel side of the dispatcher. The stream it
// receives has already had the tunnel marker consumed.
package tunnel

import (
	"context"
	"net"

	"github.com/hasirciogluhq/quido-node/cmd/node/internal/logger"
)

// Handler terminates tunnel streams. Relaying lives outside this node; until
// it is plugged in here the stream is closed once routing is decided.
type Handler struct{}

func (Handler) Handle(ctx context.Context, conn net.Conn, peer net.Addr) error {
	logger.FromContext(ctx).Debug("No tunnel relay configured, closing stream", "peer", peer.String())
	conn.Close()
	return nil
}
