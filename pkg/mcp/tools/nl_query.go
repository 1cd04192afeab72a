package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/recon-engine/pkg/models"
	"github.com/ekaya-inc/recon-engine/pkg/repositories"
	"github.com/ekaya-inc/recon-engine/pkg/services"
)

// NLQueryToolDeps contains dependencies for the natural-language query tools.
type NLQueryToolDeps struct {
	NLQueryService services.NLQueryService
	Graphs         repositories.KnowledgeGraphRepository
	// DefaultGraphID is used when a call omits graph_id.
	DefaultGraphID string
	Logger         *zap.Logger
}

// RegisterNLQueryTools adds nl_query and list_graphs to the MCP server.
func RegisterNLQueryTools(s *server.MCPServer, deps *NLQueryToolDeps) {
	registerNLQueryTool(s, deps)
	registerListGraphsTool(s, deps)
}

func registerNLQueryTool(s *server.MCPServer, deps *NLQueryToolDeps) {
	tool := mcp.NewTool(
		"nl_query",
		mcp.WithDescription(
			"Translate a natural-language question about tables in a knowledge graph into SQL. "+
				"Handles comparisons such as \"products in RBP GPU not in OPS Excel\", "+
				"extra columns (\"include planner from HANA Master\"), filters and counts. "+
				"Joins follow the knowledge graph's relationships. "+
				"Set execute with a datasource to run the SQL and return rows.",
		),
		mcp.WithString(
			"question",
			mcp.Required(),
			mcp.Description("The question in plain language"),
		),
		mcp.WithString(
			"graph_id",
			mcp.Description("Knowledge graph to resolve table names and joins against (see list_graphs)"),
		),
		mcp.WithString(
			"dialect",
			mcp.Description("SQL dialect to generate. Ignored when executing; the datasource decides."),
			mcp.Enum(string(models.DialectPostgres), string(models.DialectSQLServer), string(models.DialectMySQL), string(models.DialectOracle)),
		),
		mcp.WithString(
			"datasource",
			mcp.Description("Configured datasource to execute against"),
		),
		mcp.WithBoolean(
			"use_llm",
			mcp.Description("Allow a language model to help parse the question and write the SQL"),
		),
		mcp.WithNumber(
			"limit",
			mcp.Description("Maximum rows to return when executing (default 1000, max 1000)"),
			mcp.Min(1),
		),
		mcp.WithBoolean(
			"execute",
			mcp.Description("Run the generated SQL against the datasource. Requires datasource."),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return NewErrorResult("invalid_request", "question is required"), nil
		}

		graphID := trimString(req.GetString("graph_id", deps.DefaultGraphID))
		if graphID == "" {
			return NewErrorResult("invalid_request", "graph_id is required; call list_graphs to see the available graphs"), nil
		}

		execute := req.GetBool("execute", false)
		datasourceName := trimString(req.GetString("datasource", ""))
		if execute && datasourceName == "" {
			return NewErrorResult("invalid_request", "execute requires a datasource"), nil
		}

		nlReq := &models.NLQueryRequest{
			Text:     question,
			GraphID:  graphID,
			UseLLM:   req.GetBool("use_llm", false),
			Dialect:  trimString(req.GetString("dialect", "")),
			RowLimit: req.GetInt("limit", 0),
		}

		var resp *models.NLQueryResponse
		if execute {
			nlReq.Datasource = datasourceName
			resp, err = deps.NLQueryService.Query(ctx, nlReq)
		} else {
			resp, err = deps.NLQueryService.Compile(ctx, nlReq)
		}
		if err != nil {
			if code, ok := ActionableErrorCode(err); ok {
				deps.Logger.Debug("nl_query rejected",
					zap.String("graph_id", graphID),
					zap.String("code", code),
					zap.Error(err))
				return NewErrorResultWithDetails(code, ExtractSQLErrorMessage(err), resp), nil
			}
			return nil, fmt.Errorf("nl_query failed: %w", err)
		}

		jsonResult, err := json.Marshal(resp)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal nl_query result: %w", err)
		}
		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}

type listGraphsResult struct {
	Graphs []string `json:"graphs"`
}

func registerListGraphsTool(s *server.MCPServer, deps *NLQueryToolDeps) {
	tool := mcp.NewTool(
		"list_graphs",
		mcp.WithDescription("List the knowledge graphs nl_query can resolve questions against"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ids, err := deps.Graphs.ListGraphs(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list knowledge graphs: %w", err)
		}
		if ids == nil {
			ids = []string{}
		}
		jsonResult, err := json.Marshal(listGraphsResult{Graphs: ids})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal graphs: %w", err)
		}
		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}

func trimString(s string) string {
	return strings.TrimSpace(s)
}
