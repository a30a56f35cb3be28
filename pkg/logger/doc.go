// Package logger provides a structured logging interface for casesync.
//
// It wraps the zerolog library behind a small Logger interface with support
// for log levels, structured fields, pretty console output and optional file
// output, plus a global instance for easy access.
//
// Basic usage:
//
//	cfg := &config.LoggingConfig{Level: "info"}
//	err := logger.Initialize(cfg)
//
//	logger.GetLogger().InfoWithFields("stage completed", map[string]interface{}{
//	    "stage":   2,
//	    "entries": 412,
//	})
package logger
