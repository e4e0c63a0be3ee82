// Package logging provides structured logging for academia-core.
//
// This package wraps Go's standard log/slog package so every component logs
// with the same fields and format.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("starting service", "port", 3000)
//	logger.Error("failed to open database", "error", err)
//
// # Security
//
// Never log bearer tokens, passwords or password hashes. When a token has to
// be correlated across log lines, log its fingerprint instead:
//
//	logger.Debug("token rejected", "token", logging.Fingerprint(raw))
package logging
