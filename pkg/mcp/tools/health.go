package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// HealthInfo is the static part of the health tool's answer.
type HealthInfo struct {
	Version    string `json:"version"`
	GraphStore string `json:"graph_store"`
	LLMEnabled bool   `json:"llm_enabled"`
}

type healthResult struct {
	Status string `json:"status"`
	HealthInfo
}

// RegisterHealthTool adds a health check tool to the MCP server.
func RegisterHealthTool(s *server.MCPServer, info HealthInfo) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health status, version and whether LLM assistance is available"),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := json.Marshal(healthResult{Status: "ok", HealthInfo: info})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal health result: %w", err)
		}
		return mcp.NewToolResultText(string(result)), nil
	})
}
