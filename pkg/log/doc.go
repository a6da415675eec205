// Package log provides protocol capture for the live channel client.
//
// This package defines the Logger interface and Event types for recording
// what the transport and the subscription coordinator did: frames on the
// link, subscribe and unsubscribe decisions, deferred interests, replays
// and link state changes. It is separate from operational logging (slog);
// capture produces a machine-readable trace for debugging.
//
// # Basic Usage
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For later analysis: write to a capture file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/tmp/client.clog")
//
//	// Both
//	cfg.ProtocolLogger = log.NewMultiLogger(slogAdapter, fileLogger)
//
// # File Format
//
// Capture files are a stream of CBOR-encoded events. Reader streams them
// back; the livechannels-log command views and summarizes them.
package log
