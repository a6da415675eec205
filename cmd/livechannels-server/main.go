// Command livechannels-server is a development hub for live channels.
//
// It accepts websocket clients, tracks the channels they subscribe to and
// can publish test events to them.
//
// Usage:
//
//	livechannels-server [flags]
//
// Flags:
//
//	-listen string      Listen address (default ":8080")
//	-path string        Websocket path (default "/live")
//	-codec string       Request codec: proto, cbor (default "proto")
//	-log-level string   Log level: debug, info, warn, error (default "info")
//	-log-file string    Write a protocol capture file
//	-tick duration      Publish a "tick" event to every channel at this interval
//
// A POST to /publish?key=<key>&event=<name> pushes the request body to every
// subscriber of key.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/verdict-app/livechannels/pkg/channel"
	"github.com/verdict-app/livechannels/pkg/log"
	"github.com/verdict-app/livechannels/pkg/transport"
	"github.com/verdict-app/livechannels/pkg/wire"
)

// Config holds the server configuration.
type Config struct {
	Listen   string
	Path     string
	Codec    string
	LogLevel string
	LogFile  string
	Tick     time.Duration
}

var config Config

func init() {
	flag.StringVar(&config.Listen, "listen", ":8080", "Listen address")
	flag.StringVar(&config.Path, "path", "/live", "Websocket path")
	flag.StringVar(&config.Codec, "codec", wire.ProtoCodecName, "Request codec: proto, cbor")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&config.LogFile, "log-file", "", "Write a protocol capture file")
	flag.DurationVar(&config.Tick, "tick", 0, "Publish a tick event to every channel at this interval")
}

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(config.LogLevel)); err != nil {
		return fmt.Errorf("log-level: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	codec, err := wire.CodecByName(config.Codec)
	if err != nil {
		return err
	}

	var capture log.Logger
	if config.LogFile != "" {
		fileLogger, err := log.NewFileLogger(config.LogFile)
		if err != nil {
			return fmt.Errorf("open capture file: %w", err)
		}
		defer fileLogger.Close()
		capture = fileLogger
	}

	tracker := newChannelTracker()
	hub := transport.NewServer(transport.ServerConfig{
		Codec:          codec,
		Logger:         logger,
		ProtocolLogger: capture,
		OnRequest: func(connID, event string, channels []channel.Descriptor) {
			logger.Info("request", "conn_id", connID, "event", event, "channels", describe(channels))
			tracker.apply(event, channels)
		},
	})

	mux := http.NewServeMux()
	mux.Handle(config.Path, hub)
	mux.HandleFunc("/publish", publishHandler(hub))

	srv := &http.Server{
		Addr:              config.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if config.Tick > 0 {
		go tickLoop(ctx, hub, tracker, config.Tick)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", config.Listen, "path", config.Path, "codec", codec.Name())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	hub.Close()
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	return srv.Shutdown(shutdownCtx)
}

// publishHandler pushes the request body to the subscribers of a key.
func publishHandler(hub transport.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		key, err := channel.ParseKey(r.URL.Query().Get("key"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		event := r.URL.Query().Get("event")
		if event == "" {
			http.Error(w, "event is required", http.StatusBadRequest)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, transport.DefaultMaxMessageSize))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		n := hub.Publish(key, event, body)
		fmt.Fprintf(w, "delivered to %d connection(s)\n", n)
	}
}

func tickLoop(ctx context.Context, hub transport.Hub, tracker *channelTracker, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			payload := []byte(now.UTC().Format(time.RFC3339))
			for _, key := range tracker.keys() {
				hub.Publish(key, "tick", payload)
			}
		}
	}
}

func describe(channels []channel.Descriptor) []string {
	out := make([]string, len(channels))
	for i, d := range channels {
		out[i] = d.Key().String()
	}
	return out
}
