package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const nlQueryCall = `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"nl_query","arguments":{"question":"Show products in RBP GPU not in OPS Excel","graph_id":"recon"}}}`

func serveMCP(t *testing.T, contentType, response string) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(response))
	})

	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(nlQueryCall))
	rec := httptest.NewRecorder()
	MCPRequestLogger(zap.New(core))(handler).ServeHTTP(rec, req)

	assert.Equal(t, response, rec.Body.String(), "response must pass through unchanged")
	return logs
}

func TestMCPRequestLogger(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		response    string
		message     string
	}{
		{
			name:        "successful tool call",
			contentType: "application/json",
			response:    `{"jsonrpc":"2.0","id":1,"result":{"content":[{"type":"text","text":"{}"}]}}`,
			message:     "MCP response success",
		},
		{
			name:        "protocol error",
			contentType: "application/json",
			response:    `{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"invalid params"}}`,
			message:     "MCP response error",
		},
		{
			name:        "tool result flagged as error",
			contentType: "application/json",
			response:    `{"jsonrpc":"2.0","id":1,"result":{"isError":true,"content":[{"type":"text","text":"no join path"}]}}`,
			message:     "MCP tool error",
		},
		{
			name:        "event stream response",
			contentType: "text/event-stream",
			response:    "event: message\ndata: {\"jsonrpc\":\"2.0\",\"id\":1,\"result\":{\"content\":[]}}\n\n",
			message:     "MCP response success",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs := serveMCP(t, tt.contentType, tt.response)

			require.Equal(t, 2, logs.Len(), "should log request and response")

			requestLog := logs.All()[0]
			assert.Equal(t, "MCP request", requestLog.Message)
			assert.Equal(t, "tools/call", requestLog.ContextMap()["method"])
			assert.Equal(t, "nl_query", requestLog.ContextMap()["tool"])

			responseLog := logs.All()[1]
			assert.Equal(t, tt.message, responseLog.Message)
			assert.Equal(t, "nl_query", responseLog.ContextMap()["tool"])
		})
	}
}

func TestMCPRequestLogger_ErrorFields(t *testing.T) {
	logs := serveMCP(t, "application/json", `{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"invalid params"}}`)

	fields := logs.All()[1].ContextMap()
	assert.Equal(t, int64(-32602), fields["error_code"])
	assert.Equal(t, "invalid params", fields["error_message"])
}

func TestMCPRequestLogger_NilLogger(t *testing.T) {
	called := false
	handler := MCPRequestLogger(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/mcp", nil))
	assert.True(t, called)
}

func TestMCPRequestLogger_UnparseableResponse(t *testing.T) {
	logs := serveMCP(t, "text/plain", "not json")

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "Failed to parse MCP response JSON", logs.All()[1].Message)
}

func TestSanitizeArguments(t *testing.T) {
	long := strings.Repeat("x", 300)
	got := sanitizeArguments(map[string]any{
		"question":     long,
		"api_key":      "sk-ant-secret",
		"access_token": "abc",
		"limit":        float64(10),
		"use_llm":      true,
	})

	assert.Equal(t, long[:maxLoggedArgumentLength]+"...", got["question"])
	assert.Equal(t, "[REDACTED]", got["api_key"])
	assert.Equal(t, "[REDACTED]", got["access_token"])
	assert.Equal(t, float64(10), got["limit"])
	assert.Equal(t, true, got["use_llm"])

	assert.Nil(t, sanitizeArguments(nil))
}
