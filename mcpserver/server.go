package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/runbox/config"
	"github.com/isdmx/runbox/sandbox"
)

const (
	serverName    = "runbox"
	serverVersion = "1.0.0"

	// ExecuteCodeTool is the name of the single tool this server exposes.
	ExecuteCodeTool = "execute_code"
)

// MCPServer represents the MCP server
type MCPServer struct {
	config      *config.Config
	logger      *zap.Logger
	sandboxExec sandbox.SandboxExecutor
	languages   []string
	mcpServer   *server.MCPServer
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, sandboxExec sandbox.SandboxExecutor) (*MCPServer, error) {
	s := &MCPServer{
		config:      cfg,
		logger:      logger.Named("mcp"),
		sandboxExec: sandboxExec,
		languages:   sandbox.NewLanguagesFromConfig(cfg).Tags(),
	}

	// Log configuration parameters on startup
	logger.Info("configuration loaded",
		zap.String("server.transport", cfg.Server.Transport),
		zap.Int("server.http_port", cfg.Server.HTTPPort),
		zap.Bool("server.mcp_enabled", cfg.Server.MCPEnabled),
		zap.String("sandbox.backend", cfg.Sandbox.Backend),
		zap.Bool("sandbox.fallback_to_host", cfg.Sandbox.FallbackToHost),
		zap.String("sandbox.scratch_dir", cfg.Sandbox.ScratchDir),
		zap.Int("sandbox.timeout_ms", cfg.Sandbox.TimeoutMs),
		zap.Int("sandbox.output_limit_bytes", cfg.Sandbox.OutputLimitBytes),
		zap.Int("sandbox.memory_mb", cfg.Sandbox.MemoryMB),
		zap.Bool("sandbox.network_enabled", cfg.Sandbox.NetworkEnabled),
		zap.Strings("languages", s.languages),
	)

	s.mcpServer = server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(false))

	s.registerExecuteCodeTool()

	return s, nil
}

// registerExecuteCodeTool registers the execute_code tool
func (s *MCPServer) registerExecuteCodeTool() {
	tool := mcp.Tool{
		Name: ExecuteCodeTool,
		Description: fmt.Sprintf(
			"Run a short program and return its stdout, stderr, elapsed time in milliseconds and status "+
				"(success, error or timeout). Programs are limited to %s of wall-clock time and %d bytes of output per stream.",
			s.config.Timeout(), s.config.Sandbox.OutputLimitBytes),
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "Complete program source",
				},
				"language": map[string]any{
					"type":        "string",
					"description": "Runtime language",
					"enum":        s.languages,
				},
				"input": map[string]any{
					"type":        "string",
					"description": "Text written to the program's standard input, followed by EOF (optional)",
				},
			},
			Required: []string{"code", "language"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleExecuteCode)
}

// handleExecuteCode handles the execute_code tool. Program failures and
// timeouts are normal results; only invalid input and platform failures are
// reported as tool errors.
func (s *MCPServer) handleExecuteCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code := request.GetString("code", "")
	if code == "" {
		return toolError("No code provided"), nil
	}

	language, err := request.RequireString("language")
	if err != nil || language == "" {
		return toolError("No language provided"), nil
	}

	outcome, err := s.sandboxExec.Execute(ctx, sandbox.ExecutionRequest{
		Language: language,
		Code:     code,
		Stdin:    request.GetString("input", ""),
	})
	if err != nil {
		var unsupported *sandbox.UnsupportedLanguageError
		if errors.As(err, &unsupported) {
			return toolError(unsupported.Error()), nil
		}
		if errors.Is(err, sandbox.ErrTooManyExecutions) {
			s.logger.Warn("execution rejected", zap.String("language", language), zap.Error(err))
			return toolError("Too many executions in flight, try again later"), nil
		}
		s.logger.Error("sandbox execution failed",
			zap.Error(err),
			zap.String("language", language))
		return toolError(fmt.Sprintf("Execution failed: %v", err)), nil
	}

	resultJSON, err := json.Marshal(sandbox.Classify(outcome))
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: string(resultJSON),
			},
		},
	}, nil
}

func toolError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: msg,
			},
		},
		IsError: true,
	}
}

// ServeStdio serves MCP on stdin/stdout until ctx is cancelled or stdin closes.
func (s *MCPServer) ServeStdio(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	s.logger.Info("starting MCP server on stdio")
	err := server.NewStdioServer(s.mcpServer).Listen(ctx, stdin, stdout)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Handler returns the streamable HTTP transport, for mounting on the gateway.
func (s *MCPServer) Handler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcpServer, server.WithEndpointPath("/mcp"))
}

// GetMCPServer returns the underlying MCP server
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
