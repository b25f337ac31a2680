package tunnel

import (
	"context"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandlerClosesStream(t *testing.T) {
	t.Parallel()
	client, server := net.Pipe()
	defer client.Close()

	require.NoError(t, Handler{}.Handle(context.Background(), server, client.LocalAddr()))

	_, err := client.Read(make([]byte, 1))
	require.ErrorIs(t, err, io.EOF)
}
