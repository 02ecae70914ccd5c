// Package logging provides structured logging for PBSG Core.
//
// It wraps Go's standard log/slog with the conventions the rest of the
// service relies on: handlers are chosen once at startup from
// configuration, and every entry carries the service name and build
// version.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Safe for concurrent use
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
//	logger.Info("starting service", "port", 8080)
//	logger.Error("failed to connect", "error", err)
//
// Group diagnostics lean on two fields by convention: "instance" names
// the switch group a message concerns, and "trace" carries whatever
// origin the caller attached to its command, so a single grep follows
// a button press from intake to journal.
//
// # Security
//
// Never log secrets, tokens, passwords, or API keys. When an
// identifier is genuinely needed, log a redacted prefix:
//
//	logger.Info("API key used", "key_prefix", key[:8]+"...")
package logging
