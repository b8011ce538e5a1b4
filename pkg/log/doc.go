// Package log provides structured protocol logging for weft.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events at multiple layers (transport, mux, pool).
// It is separate from operational logging (slog) - protocol capture provides
// a complete machine-readable event trace for debugging and analysis.
//
// # Basic Usage
//
// Applications configure logging by providing a Logger implementation:
//
//	// For development: log to console via slog
//	cfg.Logger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.Logger, _ = log.NewFileLogger("/var/log/weft/node.wlog")
//
//	// Both: use MultiLogger
//	cfg.Logger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # Event Types
//
// Events are captured at multiple layers:
//   - Transport: raw frame bytes (FrameEvent)
//   - Mux: decoded frames and request outcomes (MessageEvent)
//   - Connection and listener lifecycle (StateChangeEvent)
//   - Pool: cache hits, dials, evictions (CacheEvent)
//
// Errors at any layer use ErrorEventData.
//
// # File Format
//
// Log files use CBOR encoding with .wlog extension and can be read back
// with Reader, optionally filtered.
package log
