// Package logger provides structured logging capabilities.
//
// The logger package builds the application's zap logger from the logging
// section of the configuration. Production mode emits JSON to stderr;
// development mode emits colored console output. Stdout is left untouched so
// the MCP stdio transport can own it.
//
// Usage:
//
//	log, err := logger.New("production", "info")
//	if err != nil {
//	    panic(err)
//	}
//	log.Info("Application started")
package logger
