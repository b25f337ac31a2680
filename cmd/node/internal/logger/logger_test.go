package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevels(t *testing.T) {
	tests := []struct {
		opts     Options
		expected slog.Level
	}{
		{Options{}, slog.LevelWarn},
		{Options{Verbose: true}, slog.LevelInfo},
		{Options{Debug: true}, slog.LevelDebug},
		{Options{Verbose: true, Debug: true}, slog.LevelDebug},
	}
	for _, tc := range tests {
		require.Equal(t, tc.expected, tc.opts.Level())
	}
}

func TestQuietByDefault(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Output: &buf})

	l.Info("accepted")
	require.Zero(t, buf.Len(), "info should be filtered without verbose")

	l.Warn("handshake failed", "peer", "10.0.0.1:5000")
	require.Contains(t, buf.String(), "level=WARN")
	require.Contains(t, buf.String(), "peer=10.0.0.1:5000")
}

func TestVerbose(t *testing.T) {
	var buf bytes.Buffer
	New(Options{Verbose: true, Output: &buf}).Info("accepted")
	require.Contains(t, buf.String(), "msg=accepted")
}

func TestColor(t *testing.T) {
	var plain, colored bytes.Buffer
	New(Options{Output: &plain}).Warn("x")
	New(Options{Color: true, Output: &colored}).Warn("x")

	require.NotContains(t, plain.String(), "\x1b[")
	require.Contains(t, colored.String(), "\x1b[")
	require.Contains(t, colored.String(), "WARN")
}

func TestContext(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Output: &buf}).With("peer", "192.0.2.1:443")
	ctx := NewContext(context.Background(), l)

	FromContext(ctx).Warn("dispatch failed")
	require.Contains(t, buf.String(), "peer=192.0.2.1:443")
	require.NotNil(t, FromContext(context.Background()))
}

func TestDiscard(t *testing.T) {
	l := Discard()
	require.False(t, l.Enabled(context.Background(), slog.LevelError))
}

func TestConsoleAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Color: true, Verbose: true, Output: &buf}).With("peer", "198.51.100.7:4431")

	l.WithGroup("tls").Info("accepted", "version", "TLSv1.3", "error", "bad record mac")
	line := buf.String()
	require.Contains(t, line, "accepted")
	require.Contains(t, line, " peer=198.51.100.7:4431")
	require.Contains(t, line, " tls.version=TLSv1.3")
	require.Contains(t, line, ` tls.error="bad record mac"`)

	buf.Reset()
	l.Debug("hidden")
	require.Zero(t, buf.Len())
}
