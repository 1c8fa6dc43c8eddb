// Package logging provides structured logging for the AC bridge.
//
// It wraps log/slog so every component logs the same way: JSON in
// production, text while developing, with service and version attached to
// every entry.
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
//	logger := logging.New(cfg.Logging, version)
//	bridgeLog := logger.Component("bridge")
//	bridgeLog.Info("command applied", "device_id", id, "command_id", cmdID)
//
// IR codes and API keys must never be logged in full.
package logging
