package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// Server wraps the mcp-go MCPServer that exposes the query tools.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// Option configures a Server.
type Option func(*options)

type options struct {
	audit        *AuditLogger
	instructions string
}

// WithAuditLogger records every tool call through a.
func WithAuditLogger(a *AuditLogger) Option {
	return func(o *options) { o.audit = a }
}

// WithInstructions sets the instructions sent to clients on initialize.
func WithInstructions(instructions string) Option {
	return func(o *options) { o.instructions = instructions }
}

// NewServer creates a new MCP server instance.
func NewServer(name, version string, logger *zap.Logger, opts ...Option) *Server {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	serverOpts := []server.ServerOption{
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	}
	if o.audit != nil {
		serverOpts = append(serverOpts, server.WithHooks(o.audit.Hooks()))
	}
	if o.instructions != "" {
		serverOpts = append(serverOpts, server.WithInstructions(o.instructions))
	}

	return &Server{
		mcp:    server.NewMCPServer(name, version, serverOpts...),
		logger: logger.Named("mcp"),
	}
}

// MCP returns the underlying MCPServer for tool registration.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// NewStreamableHTTPServer creates an HTTP transport server wrapping this MCP server.
// The HTTP mux handles routing to /mcp, so no endpoint path is configured here.
func (s *Server) NewStreamableHTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(
		s.mcp,
		server.WithStateLess(true),
	)
}

// RegisterTool is a convenience wrapper for registering a tool.
func (s *Server) RegisterTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.logger.Debug("Registering MCP tool", zap.String("tool", tool.Name))
	s.mcp.AddTool(tool, handler)
}
