package mcp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ekaya-inc/recon-engine/pkg/middleware"
)

// Audit event types.
const (
	EventToolCall            = "tool_call"
	EventToolError           = "tool_error"
	EventSQLInjectionAttempt = "sql_injection_attempt"
)

// Security levels attached to audit events.
const (
	SecurityNormal   = "normal"
	SecurityWarning  = "warning"
	SecurityCritical = "critical"
)

// AuditEvent is one audited MCP tool call.
type AuditEvent struct {
	RequestID     string
	EventType     string
	ToolName      string
	RequestParams map[string]any
	WasSuccessful bool
	ErrorMessage  string
	ResultSummary map[string]any
	Duration      time.Duration
	SecurityLevel string
	SecurityFlags []string
}

// AuditLogger records MCP tool calls as structured log entries.
type AuditLogger struct {
	logger *zap.Logger

	// startTimes tracks when tool calls begin, keyed by JSON-RPC request ID.
	startTimes sync.Map
}

// NewAuditLogger creates an AuditLogger writing to logger.
func NewAuditLogger(logger *zap.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger.Named("mcp-audit"),
	}
}

// Hooks returns mcp-go Hooks configured to capture tool call events.
func (a *AuditLogger) Hooks() *server.Hooks {
	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(a.beforeCallTool)
	hooks.AddAfterCallTool(a.afterCallTool)
	hooks.AddOnError(a.onError)
	return hooks
}

func (a *AuditLogger) beforeCallTool(_ context.Context, id any, _ *mcplib.CallToolRequest) {
	a.startTimes.Store(id, time.Now())
}

func (a *AuditLogger) afterCallTool(ctx context.Context, id any, req *mcplib.CallToolRequest, result *mcplib.CallToolResult) {
	startTime, _ := a.loadAndDeleteStart(id)

	event := buildEvent(ctx, req)
	event.EventType = EventToolCall
	event.WasSuccessful = result == nil || !result.IsError
	event.Duration = time.Since(startTime)
	event.ResultSummary = summarizeResult(result)

	classifyToolCallSecurity(event, result)

	a.record(event)
}

func (a *AuditLogger) onError(ctx context.Context, id any, method mcplib.MCPMethod, message any, err error) {
	if method != mcplib.MethodToolsCall {
		return
	}

	req, ok := message.(*mcplib.CallToolRequest)
	if !ok {
		return
	}

	startTime, _ := a.loadAndDeleteStart(id)

	event := buildEvent(ctx, req)
	event.EventType = EventToolError
	event.WasSuccessful = false
	event.Duration = time.Since(startTime)
	event.ErrorMessage = err.Error()

	classifyErrorSecurity(event, event.ErrorMessage)

	a.record(event)
}

func (a *AuditLogger) loadAndDeleteStart(id any) (time.Time, bool) {
	if v, ok := a.startTimes.LoadAndDelete(id); ok {
		return v.(time.Time), true
	}
	return time.Now(), false
}

func buildEvent(ctx context.Context, req *mcplib.CallToolRequest) *AuditEvent {
	return &AuditEvent{
		RequestID:     middleware.RequestIDFromContext(ctx),
		ToolName:      req.Params.Name,
		RequestParams: sanitizeParams(req.Params.Arguments),
		SecurityLevel: SecurityNormal,
	}
}

func (a *AuditLogger) record(event *AuditEvent) {
	fields := []zap.Field{
		zap.String("event_type", event.EventType),
		zap.String("tool", event.ToolName),
		zap.Bool("success", event.WasSuccessful),
		zap.Duration("duration", event.Duration),
		zap.String("security_level", event.SecurityLevel),
	}
	if event.RequestID != "" {
		fields = append(fields, zap.String("request_id", event.RequestID))
	}
	if len(event.RequestParams) > 0 {
		fields = append(fields, zap.Any("params", event.RequestParams))
	}
	if len(event.ResultSummary) > 0 {
		fields = append(fields, zap.Any("result", event.ResultSummary))
	}
	if event.ErrorMessage != "" {
		fields = append(fields, zap.String("error", event.ErrorMessage))
	}
	if len(event.SecurityFlags) > 0 {
		fields = append(fields, zap.Strings("security_flags", event.SecurityFlags))
	}

	level := zapcore.InfoLevel
	switch {
	case event.SecurityLevel == SecurityCritical:
		level = zapcore.ErrorLevel
	case event.SecurityLevel == SecurityWarning || !event.WasSuccessful:
		level = zapcore.WarnLevel
	}
	a.logger.Log(level, "MCP tool call", fields...)
}

// maxParamSize is the maximum size of string parameters kept in audit entries.
const maxParamSize = 10240

// sqlStringLiteralPattern matches SQL string literals, including '' escapes.
var sqlStringLiteralPattern = regexp.MustCompile(`'(?:[^']*(?:'')?)*[^']*'`)

var sensitiveKeyFragments = []string{"password", "passwd", "secret", "token", "api_key", "apikey", "credential"}

// sanitizeParams sanitizes request arguments before they are logged:
// long strings are truncated, literals in SQL are redacted and values of
// secret-looking keys are hashed.
func sanitizeParams(args any) map[string]any {
	params, ok := args.(map[string]any)
	if !ok || len(params) == 0 {
		return nil
	}

	sanitized := make(map[string]any, len(params))
	for k, v := range params {
		sanitized[k] = sanitizeValue(k, v)
	}
	return sanitized
}

func sanitizeValue(key string, value any) any {
	if isSensitiveKey(key) {
		return hashSensitiveValue(value)
	}

	switch val := value.(type) {
	case string:
		return sanitizeStringParam(key, val)
	case map[string]any:
		return sanitizeParams(val)
	default:
		return value
	}
}

func sanitizeStringParam(key string, val string) string {
	if len(val) > maxParamSize {
		val = val[:maxParamSize] + "...[truncated]"
	}
	if isSQLParam(key) {
		val = redactSQLStringLiterals(val)
	}
	return val
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, fragment := range sensitiveKeyFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

func isSQLParam(key string) bool {
	lower := strings.ToLower(key)
	return lower == "sql" || lower == "query" || strings.HasSuffix(lower, "_sql") || strings.HasSuffix(lower, "_query")
}

// redactSQLStringLiterals replaces string literals in SQL with '***' and
// keeps the query structure.
func redactSQLStringLiterals(sql string) string {
	return sqlStringLiteralPattern.ReplaceAllString(sql, "'***'")
}

// hashSensitiveValue returns a SHA-256 prefix so entries can be correlated
// without storing the value.
func hashSensitiveValue(value any) string {
	var str string
	switch v := value.(type) {
	case string:
		str = v
	default:
		str = fmt.Sprintf("%v", v)
	}
	hash := sha256.Sum256([]byte(str))
	return "sha256:" + hex.EncodeToString(hash[:8])
}

// summarizeResult creates a compact summary of the tool result.
func summarizeResult(result *mcplib.CallToolResult) map[string]any {
	if result == nil {
		return nil
	}

	summary := map[string]any{
		"is_error": result.IsError,
	}

	if len(result.Content) > 0 {
		summary["content_count"] = len(result.Content)
		for _, c := range result.Content {
			if tc, ok := c.(mcplib.TextContent); ok {
				text := tc.Text
				extractResultFields(text, summary)
				if len(text) > 200 {
					text = text[:200] + "...[truncated]"
				}
				summary["preview"] = text
				break
			}
		}
	}

	return summary
}

// extractResultFields copies row_count, warning count and the cache flag out
// of an nl_query JSON response.
func extractResultFields(text string, summary map[string]any) {
	var partial struct {
		RowCount *int     `json:"row_count"`
		Warnings []string `json:"warnings"`
		Cached   *bool    `json:"cached"`
	}
	if err := json.Unmarshal([]byte(text), &partial); err != nil {
		return
	}
	if partial.RowCount != nil {
		summary["row_count"] = *partial.RowCount
	}
	if len(partial.Warnings) > 0 {
		summary["warning_count"] = len(partial.Warnings)
	}
	if partial.Cached != nil {
		summary["cached"] = *partial.Cached
	}
}

// classifyToolCallSecurity flags results that report a rejected injection
// attempt. nl_query reports those as warnings on an otherwise normal result.
func classifyToolCallSecurity(event *AuditEvent, result *mcplib.CallToolResult) {
	if result == nil {
		return
	}

	for _, c := range result.Content {
		tc, ok := c.(mcplib.TextContent)
		if !ok {
			continue
		}
		text := strings.ToLower(tc.Text)

		if strings.Contains(text, "security_violation") || strings.Contains(text, "sql injection") {
			event.EventType = EventSQLInjectionAttempt
			event.SecurityLevel = SecurityCritical
			event.SecurityFlags = append(event.SecurityFlags, "sql_injection_attempt")
			return
		}
		if result.IsError && strings.Contains(text, "insufficient_privilege") {
			event.SecurityLevel = SecurityWarning
			event.SecurityFlags = append(event.SecurityFlags, "insufficient_privilege")
			return
		}
	}
}

// classifyErrorSecurity upgrades the event's classification based on the
// error message.
func classifyErrorSecurity(event *AuditEvent, errMsg string) {
	lower := strings.ToLower(errMsg)

	if strings.Contains(lower, "injection") {
		event.EventType = EventSQLInjectionAttempt
		event.SecurityLevel = SecurityCritical
		event.SecurityFlags = append(event.SecurityFlags, "sql_injection_attempt")
	} else if strings.Contains(lower, "permission denied") || strings.Contains(lower, "unauthorized") {
		event.SecurityLevel = SecurityWarning
		event.SecurityFlags = append(event.SecurityFlags, "unauthorized_access")
	}
}
