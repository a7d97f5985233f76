// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The mcpserver package exposes the execution engine to MCP clients as a
// single execute_code tool, built on the mark3labs/mcp-go library. The tool
// returns the same JSON payload as POST /execute: stdout, stderr, time in
// milliseconds and a success, error or timeout status.
//
// The server runs over stdio when server.transport is "stdio"; otherwise its
// streamable HTTP handler is mounted at /mcp on the HTTP gateway.
//
// Usage:
//
//	server, err := mcpserver.New(cfg, logger, executor)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = server.ServeStdio(ctx, os.Stdin, os.Stdout)
package mcpserver
