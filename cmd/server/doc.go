// Package main is the entry point for the runbox execution service.
//
// The runbox server accepts short Node.js and Python programs, runs them with
// a wall-clock timeout and capped output, and reports a success, error or
// timeout outcome. It serves an HTTP gateway with an MCP endpoint, or MCP
// over stdio, depending on server.transport.
//
// The application uses Uber's fx framework for dependency injection and lifecycle
// management, with zap for structured logging, viper for configuration and
// cobra for the command line.
package main
