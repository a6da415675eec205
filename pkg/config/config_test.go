package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdict-app/livechannels/pkg/connection"
	"github.com/verdict-app/livechannels/pkg/transport"
	"github.com/verdict-app/livechannels/pkg/wire"
)

func TestDefaultIsValid(t *testing.T) {
	f := Default()
	require.NoError(t, f.Validate())

	cfg, err := f.ClientConfig()
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/live", cfg.URL)
	assert.Equal(t, transport.DefaultPingInterval, cfg.PingInterval)
	assert.Equal(t, connection.DefaultBackoffConfig(), cfg.Backoff)
	assert.Nil(t, cfg.Header)
}

func TestParseOverlaysDefaults(t *testing.T) {
	f, err := Parse([]byte(`
server:
  url: wss://live.example.com/socket
  header:
    authorization: Bearer abc
codec: cbor
log_level: debug
transport:
  ping_interval: 5s
  send_queue_size: 8
backoff:
  initial: 250ms
  jitter: 0
`))
	require.NoError(t, err)

	cfg, err := f.ClientConfig()
	require.NoError(t, err)
	assert.Equal(t, "wss://live.example.com/socket", cfg.URL)
	assert.Equal(t, "Bearer abc", cfg.Header.Get("Authorization"))
	assert.Equal(t, 5*time.Second, cfg.PingInterval)
	assert.Equal(t, transport.DefaultPongTimeout, cfg.PongTimeout)
	assert.Equal(t, 8, cfg.SendQueueSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Backoff.Initial)
	assert.Equal(t, connection.MaxBackoff, cfg.Backoff.Max)
	assert.Zero(t, cfg.Backoff.Jitter)

	codec, err := f.ChannelCodec()
	require.NoError(t, err)
	assert.Equal(t, wire.CBORCodecName, codec.Name())

	level, err := f.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"not yaml", "server: [unterminated"},
		{"http scheme", "server: {url: http://example.com}"},
		{"missing host", "server: {url: 'ws:///live'}"},
		{"unknown codec", "codec: json"},
		{"bad level", "log_level: loud"},
		{"bad duration", "transport: {write_timeout: soon}"},
		{"negative duration", "backoff: {max: -1s}"},
		{"negative queue", "transport: {send_queue_size: -1}"},
		{"jitter too large", "backoff: {jitter: 2}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)

			var le *LoadError
			assert.True(t, errors.As(err, &le))
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  url: ws://127.0.0.1:9000/live\n"), 0o644))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:9000/live", f.Server.URL)
	assert.Equal(t, wire.ProtoCodecName, f.Codec)
}

func TestLoadErrorsNameTheFile(t *testing.T) {
	dir := t.TempDir()

	missing := filepath.Join(dir, "missing.yaml")
	_, err := Load(missing)
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Contains(t, err.Error(), missing)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("codec: json\n"), 0o644))
	_, err = Load(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), bad)
	assert.Contains(t, err.Error(), "codec")
}
