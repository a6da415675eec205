// Command livechannels is a live channel client.
//
// It connects to a live update server over a websocket, shares channel
// subscriptions between the commands you type and prints inbound events.
//
// Usage:
//
//	livechannels [flags] [key...]
//
// Flags:
//
//	-config string      Configuration file path (YAML)
//	-url string         Websocket endpoint (overrides the file)
//	-codec string       Request codec: proto, cbor (overrides the file)
//	-log-level string   Log level: debug, info, warn, error
//	-log-file string    Write a protocol capture file
//	-header value       Extra handshake header "Name: value" (repeatable)
//	-interactive        Enable interactive command mode (default true)
//	-events string      Comma-separated inbound events to print
//
// Keys given as arguments are followed for the whole session: a post UUID,
// chat_<id> or a curated list name (POPULAR, VOTED).
//
// Examples:
//
//	# Interactive session against a local hub
//	livechannels -url ws://localhost:8080/live
//
//	# Follow a chat room and print its messages
//	livechannels -interactive=false -events chat:message chat_42
//
//	# Capture protocol traffic for later analysis
//	livechannels -log-file /tmp/client.clog -log-level debug
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/verdict-app/livechannels/cmd/livechannels/interactive"
	"github.com/verdict-app/livechannels/pkg/channel"
	"github.com/verdict-app/livechannels/pkg/config"
	"github.com/verdict-app/livechannels/pkg/log"
	"github.com/verdict-app/livechannels/pkg/subscription"
	"github.com/verdict-app/livechannels/pkg/transport"
)

// Config holds the command line configuration.
type Config struct {
	ConfigFile  string
	URL         string
	Codec       string
	LogLevel    string
	LogFile     string
	Headers     []string
	Interactive bool
	Events      string
}

var cliConfig Config

func init() {
	flag.StringVar(&cliConfig.ConfigFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&cliConfig.URL, "url", "", "Websocket endpoint (overrides the file)")
	flag.StringVar(&cliConfig.Codec, "codec", "", "Request codec: proto, cbor (overrides the file)")
	flag.StringVar(&cliConfig.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.StringVar(&cliConfig.LogFile, "log-file", "", "Write a protocol capture file")
	flag.Func("header", `Extra handshake header "Name: value" (repeatable)`, func(s string) error {
		if !strings.Contains(s, ":") {
			return fmt.Errorf("header must look like \"Name: value\"")
		}
		cliConfig.Headers = append(cliConfig.Headers, s)
		return nil
	})
	flag.BoolVar(&cliConfig.Interactive, "interactive", true, "Enable interactive command mode")
	flag.StringVar(&cliConfig.Events, "events", "", "Comma-separated inbound events to print")
}

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run() error {
	file, err := loadConfig(cliConfig)
	if err != nil {
		return err
	}
	level, err := file.Level()
	if err != nil {
		return err
	}
	codec, err := file.ChannelCodec()
	if err != nil {
		return err
	}
	clientCfg, err := file.ClientConfig()
	if err != nil {
		return err
	}

	keys, err := parseKeys(flag.Args())
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// In interactive mode log output is moved onto readline's writer once
	// the console exists, so it does not clobber the prompt.
	logOut := &switchWriter{w: os.Stderr}
	var stdout io.Writer = os.Stdout
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))

	var protocolLoggers []log.Logger
	if file.ProtocolLog != "" {
		fileLogger, err := log.NewFileLogger(file.ProtocolLog)
		if err != nil {
			return fmt.Errorf("open capture file: %w", err)
		}
		defer fileLogger.Close()
		protocolLoggers = append(protocolLoggers, fileLogger)
	}
	if level <= slog.LevelDebug {
		protocolLoggers = append(protocolLoggers, log.NewSlogAdapter(logger))
	}
	var capture log.Logger
	if len(protocolLoggers) > 0 {
		capture = log.NewMultiLogger(protocolLoggers...)
	}

	clientCfg.Logger = logger
	clientCfg.ProtocolLogger = capture
	link, err := transport.NewClient(clientCfg)
	if err != nil {
		return err
	}
	defer link.Close()

	coord := subscription.NewCoordinator(link, subscription.Config{
		Codec:          codec,
		Logger:         logger,
		ProtocolLogger: capture,
	})

	var console *interactive.Console
	if cliConfig.Interactive {
		if console, err = interactive.New(coord, link); err != nil {
			return err
		}
		logOut.set(console.Stderr())
		stdout = console.Stdout()
	}

	for _, event := range splitList(cliConfig.Events) {
		link.On(event, func(payload []byte) {
			fmt.Fprintf(stdout, "[EVENT] %s (%d bytes)\n", event, len(payload))
		})
	}
	for _, k := range keys {
		coord.AddInterest(k.key, k.descriptor)
	}

	logger.Info("connecting", "url", clientCfg.URL, "codec", codec.Name())
	if err := link.Start(ctx); err != nil {
		logger.Warn("initial connect failed, retrying in background", "error", err)
	}

	if console != nil {
		go console.Run(ctx, cancel)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	// Release every channel before the deferred link.Close flushes it.
	coord.Close()
	return nil
}

// loadConfig reads the configuration file and applies flag overrides.
func loadConfig(cli Config) (*config.File, error) {
	file := config.Default()
	if cli.ConfigFile != "" {
		var err error
		if file, err = config.Load(cli.ConfigFile); err != nil {
			return nil, err
		}
	}

	if cli.URL != "" {
		file.Server.URL = cli.URL
	}
	if cli.Codec != "" {
		file.Codec = cli.Codec
	}
	if cli.LogLevel != "" {
		file.LogLevel = cli.LogLevel
	}
	if cli.LogFile != "" {
		file.ProtocolLog = cli.LogFile
	}
	for _, h := range cli.Headers {
		name, value, _ := strings.Cut(h, ":")
		if file.Server.Header == nil {
			file.Server.Header = make(map[string]string)
		}
		file.Server.Header[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}

	if err := file.Validate(); err != nil {
		return nil, err
	}
	return file, nil
}

type keyArg struct {
	key        channel.Key
	descriptor channel.Descriptor
}

func parseKeys(args []string) ([]keyArg, error) {
	out := make([]keyArg, 0, len(args))
	for _, arg := range args {
		key, err := channel.ParseKey(arg)
		if err != nil {
			return nil, err
		}
		d, err := key.Descriptor()
		if err != nil {
			return nil, err
		}
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", arg, err)
		}
		out = append(out, keyArg{key: key, descriptor: d})
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
