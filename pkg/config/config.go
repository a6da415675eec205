// Package config loads the live channel client configuration from YAML.
package config

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/verdict-app/livechannels/pkg/connection"
	"github.com/verdict-app/livechannels/pkg/transport"
	"github.com/verdict-app/livechannels/pkg/wire"
)

// File is the on-disk configuration.
//
// Example:
//
//	server:
//	  url: wss://live.example.com/socket
//	  header:
//	    Authorization: Bearer abc
//	codec: proto
//	log_level: info
//	protocol_log: /tmp/client.clog
//	transport:
//	  handshake_timeout: 10s
//	  ping_interval: 30s
//	backoff:
//	  initial: 1s
//	  max: 30s
type File struct {
	Server      Server    `yaml:"server"`
	Codec       string    `yaml:"codec"`
	LogLevel    string    `yaml:"log_level"`
	ProtocolLog string    `yaml:"protocol_log,omitempty"`
	Transport   Transport `yaml:"transport"`
	Backoff     Backoff   `yaml:"backoff"`
}

// Server locates the live update endpoint.
type Server struct {
	URL    string            `yaml:"url"`
	Header map[string]string `yaml:"header,omitempty"`
}

// Transport tunes the websocket link. Durations use time.ParseDuration
// syntax.
type Transport struct {
	HandshakeTimeout string `yaml:"handshake_timeout"`
	WriteTimeout     string `yaml:"write_timeout"`
	PingInterval     string `yaml:"ping_interval"`
	PongTimeout      string `yaml:"pong_timeout"`
	SendQueueSize    int    `yaml:"send_queue_size"`
}

// Backoff tunes reconnection delays.
type Backoff struct {
	Initial    string  `yaml:"initial"`
	Max        string  `yaml:"max"`
	Multiplier float64 `yaml:"multiplier"`
	Jitter     float64 `yaml:"jitter"`
}

// LoadError describes a configuration that could not be loaded.
type LoadError struct {
	File    string
	Message string
	Cause   error
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.File != "" {
		msg = e.File + ": " + msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Default returns the configuration used when no file is given.
func Default() *File {
	return &File{
		Server:   Server{URL: "ws://localhost:8080/live"},
		Codec:    wire.ProtoCodecName,
		LogLevel: "info",
		Transport: Transport{
			HandshakeTimeout: transport.DefaultHandshakeTimeout.String(),
			WriteTimeout:     transport.DefaultWriteTimeout.String(),
			PingInterval:     transport.DefaultPingInterval.String(),
			PongTimeout:      transport.DefaultPongTimeout.String(),
			SendQueueSize:    transport.DefaultSendQueueSize,
		},
		Backoff: Backoff{
			Initial:    connection.InitialBackoff.String(),
			Max:        connection.MaxBackoff.String(),
			Multiplier: connection.BackoffMultiplier,
			Jitter:     connection.JitterFactor,
		},
	}
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(data []byte) (*File, error) {
	f := Default()
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, &LoadError{Message: "failed to parse YAML", Cause: err}
	}
	if err := f.Validate(); err != nil {
		return nil, &LoadError{Message: "invalid configuration", Cause: err}
	}
	return f, nil
}

// Load reads and parses the file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}

	f, err := Parse(data)
	if err != nil {
		if le, ok := err.(*LoadError); ok {
			le.File = path
			return nil, le
		}
		return nil, err
	}
	return f, nil
}

// Validate checks every field.
func (f *File) Validate() error {
	u, err := url.Parse(f.Server.URL)
	if err != nil {
		return fmt.Errorf("server.url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("server.url: scheme must be ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("server.url: missing host")
	}

	if _, err := wire.CodecByName(f.Codec); err != nil {
		return fmt.Errorf("codec: %w", err)
	}
	if _, err := f.Level(); err != nil {
		return err
	}

	durations := []struct {
		name  string
		value string
	}{
		{"transport.handshake_timeout", f.Transport.HandshakeTimeout},
		{"transport.write_timeout", f.Transport.WriteTimeout},
		{"transport.ping_interval", f.Transport.PingInterval},
		{"transport.pong_timeout", f.Transport.PongTimeout},
		{"backoff.initial", f.Backoff.Initial},
		{"backoff.max", f.Backoff.Max},
	}
	for _, d := range durations {
		if _, err := parseDuration(d.value); err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
	}

	if f.Transport.SendQueueSize < 0 {
		return fmt.Errorf("transport.send_queue_size: must not be negative")
	}
	if f.Backoff.Multiplier < 0 {
		return fmt.Errorf("backoff.multiplier: must not be negative")
	}
	if f.Backoff.Jitter < 0 || f.Backoff.Jitter > 1 {
		return fmt.Errorf("backoff.jitter: must be between 0 and 1")
	}
	return nil
}

// Level returns the parsed log level.
func (f *File) Level() (slog.Level, error) {
	var level slog.Level
	if f.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(f.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// ChannelCodec returns the configured request codec.
func (f *File) ChannelCodec() (wire.ChannelCodec, error) {
	return wire.CodecByName(f.Codec)
}

// ClientConfig converts the file into a transport client configuration.
// Loggers are left for the caller to set.
func (f *File) ClientConfig() (transport.ClientConfig, error) {
	if err := f.Validate(); err != nil {
		return transport.ClientConfig{}, err
	}

	cfg := transport.DefaultClientConfig(f.Server.URL)
	if len(f.Server.Header) > 0 {
		cfg.Header = make(http.Header, len(f.Server.Header))
		for k, v := range f.Server.Header {
			cfg.Header.Set(k, v)
		}
	}

	// Validate has already parsed every duration.
	cfg.HandshakeTimeout, _ = parseDuration(f.Transport.HandshakeTimeout)
	cfg.WriteTimeout, _ = parseDuration(f.Transport.WriteTimeout)
	cfg.PingInterval, _ = parseDuration(f.Transport.PingInterval)
	cfg.PongTimeout, _ = parseDuration(f.Transport.PongTimeout)
	cfg.SendQueueSize = f.Transport.SendQueueSize

	initial, _ := parseDuration(f.Backoff.Initial)
	maxDelay, _ := parseDuration(f.Backoff.Max)
	cfg.Backoff = connection.BackoffConfig{
		Initial:    initial,
		Max:        maxDelay,
		Multiplier: f.Backoff.Multiplier,
		Jitter:     f.Backoff.Jitter,
	}
	return cfg, nil
}

// parseDuration accepts an empty string as "use the default".
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("must not be negative")
	}
	return d, nil
}
