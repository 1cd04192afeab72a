package tools

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/recon-engine/pkg/apperrors"
)

// ErrorResponse represents a structured error in tool results. Actionable
// errors are returned as tool results so the calling agent sees them and can
// rephrase its question instead of losing the detail in a protocol error.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
// Do NOT use this for system failures; those are returned as Go errors.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result with additional context,
// such as the partially populated query response.
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// ActionableErrorCode returns the tool error code for errors the caller can
// act on: questions that do not resolve against the knowledge graph, bad
// arguments, and SQL the target database rejected. ok is false for system
// failures.
func ActionableErrorCode(err error) (code string, ok bool) {
	var (
		ambiguous *apperrors.AmbiguousReferenceError
		noPath    *apperrors.JoinPathNotFoundError
		noColumn  *apperrors.ColumnNotFoundError
		execErr   *apperrors.ExecutionError
	)

	switch {
	case errors.As(err, &ambiguous):
		return "ambiguous_reference", true
	case errors.As(err, &noPath):
		return "join_path_not_found", true
	case errors.As(err, &noColumn):
		return "column_not_found", true
	case errors.Is(err, apperrors.ErrNoTableReference):
		return "no_table_reference", true
	case errors.Is(err, apperrors.ErrSameTable):
		return "same_table", true
	case errors.Is(err, apperrors.ErrMissingJoinColumns):
		return "missing_join_columns", true
	case errors.Is(err, apperrors.ErrUnknownDialect):
		return "unknown_dialect", true
	case errors.Is(err, apperrors.ErrUnknownDatasource):
		return "unknown_datasource", true
	case errors.Is(err, apperrors.ErrInvalidRequest):
		return "invalid_request", true
	case errors.Is(err, apperrors.ErrNotFound):
		return "graph_not_found", true
	case errors.As(err, &execErr):
		if IsSQLUserError(err) {
			return SQLUserErrorCode(err), true
		}
	}
	return "", false
}

// sqlStateRegex matches PostgreSQL SQLSTATE codes in error messages like "(SQLSTATE 42601)"
var sqlStateRegex = regexp.MustCompile(`\(SQLSTATE ([0-9A-Z]{5})\)`)

// IsSQLUserError reports whether err is PostgreSQL rejecting the statement
// (syntax, missing relation or column, bad data) rather than a server or
// connection failure.
//
// PostgreSQL SQLSTATE class codes that indicate user errors:
//   - 22xxx: Data Exception (invalid input, division by zero)
//   - 42xxx: Syntax Error or Access Rule Violation
func IsSQLUserError(err error) bool {
	if err == nil {
		return false
	}
	return isSQLStateUserError(sqlState(err))
}

// SQLUserErrorCode returns an error code for a SQL user error, or "".
func SQLUserErrorCode(err error) string {
	if err == nil {
		return ""
	}
	state := sqlState(err)
	if state == "" {
		return ""
	}
	return mapSQLStateToCode(state)
}

func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	if matches := sqlStateRegex.FindStringSubmatch(err.Error()); len(matches) >= 2 {
		return matches[1]
	}
	return ""
}

func isSQLStateUserError(code string) bool {
	if len(code) < 2 {
		return false
	}
	switch code[:2] {
	case "22", "42":
		return true
	}
	return false
}

// mapSQLStateToCode maps a SQLSTATE code to a human-readable error code.
func mapSQLStateToCode(sqlState string) string {
	switch sqlState {
	case "42601":
		return "syntax_error"
	case "42703":
		return "undefined_column"
	case "42P01":
		return "undefined_table"
	case "42501":
		return "insufficient_privilege"
	case "22P02":
		return "invalid_input"
	case "22012":
		return "division_by_zero"
	}

	if len(sqlState) >= 2 && sqlState[:2] == "22" {
		return "data_exception"
	}
	return "sql_error"
}

// ExtractSQLErrorMessage returns a clean message for a SQL error, without
// the SQLSTATE suffix and wrapping prefixes.
func ExtractSQLErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Message
	}

	msg := err.Error()
	if idx := strings.Index(msg, " (SQLSTATE"); idx != -1 {
		msg = msg[:idx]
	}
	for _, prefix := range []string{"query execution failed: ", "failed to execute query: ", "ERROR: "} {
		msg = strings.TrimPrefix(msg, prefix)
	}
	return msg
}
