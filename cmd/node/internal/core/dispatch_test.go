package core_test

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hasirciogluhq/quido-node/cmd/node/internal/core"
	"github.com/hasirciogluhq/quido-node/cmd/node/internal/logger"
	"github.com/hasirciogluhq/quido-node/cmd/node/internal/proxy/tunnel"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Parallel()
	for b := 0; b <= 0xff; b++ {
		expected := core.ProtocolHTTP
		if b == 0x01 {
			expected = core.ProtocolTunnel
		}
		require.Equal(t, expected, core.Classify(byte(b)), "byte %#02x", b)
	}
}

func TestDefaultSniffTimeout(t *testing.T) {
	t.Parallel()
	require.Equal(t, 5*time.Second, core.DefaultSniffTimeout)
}

// recordingDispatcher reads the remaining payload in each handler so the
// test can see exactly what the handler observed.
func recordingDispatcher(payloadLen int, seen chan<- []byte, protocols chan<- core.Protocol) *core.Dispatcher {
	record := func(protocol core.Protocol, n int) core.Handler {
		return core.HandlerFunc(func(ctx context.Context, conn net.Conn, peer net.Addr) error {
			defer conn.Close()
			data := make([]byte, n)
			if _, err := io.ReadFull(conn, data); err != nil {
				return err
			}
			protocols <- protocol
			seen <- data
			return nil
		})
	}
	return &core.Dispatcher{
		HTTP:         record(core.ProtocolHTTP, payloadLen+1),
		Tunnel:       record(core.ProtocolTunnel, payloadLen),
		SniffTimeout: time.Second,
		Logger:       logger.Discard(),
	}
}

func TestDispatchEveryLeadingByte(t *testing.T) {
	t.Parallel()
	payload := []byte("rest")
	for b := 0; b <= 0xff; b++ {
		seen := make(chan []byte, 1)
		protocols := make(chan core.Protocol, 1)
		d := recordingDispatcher(len(payload), seen, protocols)

		client, server := net.Pipe()
		go func() {
			client.Write(append([]byte{byte(b)}, payload...))
		}()
		require.NoError(t, d.Dispatch(context.Background(), server, client.LocalAddr()))
		client.Close()

		if b == 0x01 {
			require.Equal(t, core.ProtocolTunnel, <-protocols)
			require.Equal(t, payload, <-seen, "tunnel stream starts after the marker")
		} else {
			require.Equal(t, core.ProtocolHTTP, <-protocols, "byte %#02x", b)
			require.Equal(t, append([]byte{byte(b)}, payload...), <-seen, "http stream replays the sniffed byte")
		}
	}
}

func TestDispatchHTTPRequestLineIntact(t *testing.T) {
	t.Parallel()
	paths := make(chan string, 1)
	d := &core.Dispatcher{
		HTTP: core.HandlerFunc(func(ctx context.Context, conn net.Conn, peer net.Addr) error {
			defer conn.Close()
			req, err := http.ReadRequest(bufio.NewReader(conn))
			if err != nil {
				return err
			}
			paths <- req.Method + " " + req.URL.Path
			return nil
		}),
		Tunnel: core.HandlerFunc(func(context.Context, net.Conn, net.Addr) error {
			return errors.New("unexpected tunnel")
		}),
		Logger: logger.Discard(),
	}

	client, server := net.Pipe()
	defer client.Close()
	go client.Write([]byte("GET /health HTTP/1.1\r\nHost: node\r\n\r\n"))

	require.NoError(t, d.Dispatch(context.Background(), server, client.LocalAddr()))
	require.Equal(t, "GET /health", <-paths)
}

func TestDispatchTimeout(t *testing.T) {
	t.Parallel()
	var invoked atomic.Bool
	never := core.HandlerFunc(func(context.Context, net.Conn, net.Addr) error {
		invoked.Store(true)
		return nil
	})
	d := &core.Dispatcher{HTTP: never, Tunnel: never, SniffTimeout: 50 * time.Millisecond, Logger: logger.Discard()}

	client, server := net.Pipe()
	defer client.Close()

	start := time.Now()
	err := d.Dispatch(context.Background(), server, client.LocalAddr())
	require.ErrorIs(t, err, core.ErrSniffTimeout)
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	require.False(t, invoked.Load())

	_, err = client.Read(make([]byte, 1))
	require.ErrorIs(t, err, io.EOF, "connection is closed after a sniff timeout")
}

func TestDispatchReadFailure(t *testing.T) {
	t.Parallel()
	var invoked atomic.Bool
	never := core.HandlerFunc(func(context.Context, net.Conn, net.Addr) error {
		invoked.Store(true)
		return nil
	})
	d := &core.Dispatcher{HTTP: never, Tunnel: never, Logger: logger.Discard()}

	client, server := net.Pipe()
	client.Close()

	err := d.Dispatch(context.Background(), server, client.LocalAddr())
	require.ErrorIs(t, err, core.ErrSniffRead)
	require.NotErrorIs(t, err, core.ErrSniffTimeout)
	require.False(t, invoked.Load())
}

func TestDispatchSlowPeerDoesNotBlockFastPeer(t *testing.T) {
	t.Parallel()
	fastDone := make(chan time.Time, 1)
	d := &core.Dispatcher{
		HTTP: core.HandlerFunc(func(ctx context.Context, conn net.Conn, peer net.Addr) error {
			fastDone <- time.Now()
			return conn.Close()
		}),
		SniffTimeout: 2 * time.Second,
		Logger:       logger.Discard(),
	}

	slowClient, slowServer := net.Pipe()
	defer slowClient.Close()
	slowResult := make(chan error, 1)
	go func() {
		slowResult <- d.Dispatch(context.Background(), slowServer, slowClient.LocalAddr())
	}()

	fastClient, fastServer := net.Pipe()
	defer fastClient.Close()
	go fastClient.Write([]byte("G"))

	start := time.Now()
	go d.Dispatch(context.Background(), fastServer, fastClient.LocalAddr())

	select {
	case done := <-fastDone:
		require.Less(t, done.Sub(start), time.Second)
	case <-time.After(time.Second):
		t.Fatal("fast connection was blocked by the slow one")
	}

	select {
	case <-slowResult:
		t.Fatal("slow connection finished before its timeout")
	default:
	}
	require.ErrorIs(t, <-slowResult, core.ErrSniffTimeout)
}

func TestDispatchHandlerError(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	d := &core.Dispatcher{
		Tunnel: core.HandlerFunc(func(ctx context.Context, conn net.Conn, peer net.Addr) error {
			conn.Close()
			return boom
		}),
		Logger: logger.Discard(),
	}

	client, server := net.Pipe()
	defer client.Close()
	go client.Write([]byte{core.TunnelMarker})

	err := d.Dispatch(context.Background(), server, client.LocalAddr())
	require.ErrorIs(t, err, boom)
}

func TestDispatchMissingHandler(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	d := &core.Dispatcher{Logger: logger.New(logger.Options{Output: &out})}

	client, server := net.Pipe()
	defer client.Close()
	go client.Write([]byte{core.TunnelMarker})

	require.Error(t, d.Dispatch(context.Background(), server, client.LocalAddr()))
	require.Contains(t, out.String(), "level=WARN")
	require.Contains(t, out.String(), "no tunnel handler configured")
	require.Contains(t, out.String(), "peer=")
}

func TestDispatchTunnelLogsNoError(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	d := &core.Dispatcher{
		HTTP:   tunnel.Handler{},
		Tunnel: tunnel.Handler{},
		Logger: logger.New(logger.Options{Output: &out}),
	}

	client, server := net.Pipe()
	defer client.Close()
	go client.Write([]byte{core.TunnelMarker, 'x'})

	require.NoError(t, d.Dispatch(context.Background(), server, client.LocalAddr()))
	require.Empty(t, out.String())
}
