// Package logging provides structured logging for Gatehouse.
//
// It wraps log/slog so every log entry carries the same default fields
// and the same level filtering across the whole service.
//
// # Configuration
//
// Logging is configured via the LoggingConfig in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("listening", "port", 8080)
//	logger.Error("directory bind failed", "error", err)
//
// # Security
//
// Never log passwords, tokens, or bind credentials. Log usernames and
// identifiers only.
package logging
