// Package logging provides structured logging for the Tuya relay.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - A debug toggle that turns on per-message tracing
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//	  debug: false       # true forces debug level
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("starting relay", "address", cfg.Address())
//	logger.Error("dispatch failed", "error", err)
//
// # Security
//
// Never log the Tuya API secret or access tokens.
package logging
