package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ekaya-inc/recon-engine/pkg/apperrors"
	"github.com/ekaya-inc/recon-engine/pkg/llm"
)

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		errorCode  string
		message    string
	}{
		{"bad request", http.StatusBadRequest, "invalid_request", "invalid input"},
		{"not found", http.StatusNotFound, "not_found", "graph not found"},
		{"internal error", http.StatusInternalServerError, "internal_error", "something went wrong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			err := ErrorResponse(w, tt.statusCode, tt.errorCode, tt.message)
			if err != nil {
				t.Fatalf("ErrorResponse returned error: %v", err)
			}

			resp := w.Result()
			defer resp.Body.Close()

			if resp.StatusCode != tt.statusCode {
				t.Errorf("status code = %d, want %d", resp.StatusCode, tt.statusCode)
			}

			ct := resp.Header.Get("Content-Type")
			if ct != "application/json" {
				t.Errorf("Content-Type = %q, want %q", ct, "application/json")
			}

			var body map[string]string
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode response body: %v", err)
			}

			if body["error"] != tt.errorCode {
				t.Errorf("body[error] = %q, want %q", body["error"], tt.errorCode)
			}
			if body["message"] != tt.message {
				t.Errorf("body[message] = %q, want %q", body["message"], tt.message)
			}
		})
	}
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	if err := WriteJSON(w, http.StatusOK, map[string]string{"key": "value"}); err != nil {
		t.Fatalf("WriteJSON returned error: %v", err)
	}
	if w.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusOK)
	}

	w = httptest.NewRecorder()
	if err := WriteJSON(w, http.StatusUnprocessableEntity, map[string]bool{"success": false}); err != nil {
		t.Fatalf("WriteJSON returned error: %v", err)
	}
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusUnprocessableEntity)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"ambiguous", &apperrors.AmbiguousReferenceError{Phrase: "GPU", Candidates: []string{"a", "b"}}, http.StatusUnprocessableEntity, "ambiguous_reference"},
		{"no join path", fmt.Errorf("parse: %w", &apperrors.JoinPathNotFoundError{SourceTable: "a", TargetTable: "b"}), http.StatusUnprocessableEntity, "join_path_not_found"},
		{"column not found", &apperrors.ColumnNotFoundError{Table: "a", Column: "x"}, http.StatusUnprocessableEntity, "column_not_found"},
		{"no table", apperrors.ErrNoTableReference, http.StatusUnprocessableEntity, "no_table_reference"},
		{"same table", apperrors.ErrSameTable, http.StatusUnprocessableEntity, "same_table"},
		{"execution", &apperrors.ExecutionError{SQL: "SELECT 1", Err: errors.New("boom")}, http.StatusBadGateway, "execution_error"},
		{"invalid request", fmt.Errorf("%w: nl_text is required", apperrors.ErrInvalidRequest), http.StatusBadRequest, "invalid_request"},
		{"unknown dialect", fmt.Errorf("%w: db2", apperrors.ErrUnknownDialect), http.StatusBadRequest, "unknown_dialect"},
		{"unknown datasource", fmt.Errorf("open: %w", apperrors.ErrUnknownDatasource), http.StatusBadRequest, "unknown_datasource"},
		{"graph not found", fmt.Errorf("load: %w", apperrors.ErrNotFound), http.StatusNotFound, "not_found"},
		{"llm unavailable", llm.NewError(llm.ErrorTypeUnavailable, "circuit open", false, nil), http.StatusServiceUnavailable, "llm_unavailable"},
		{"llm auth", llm.NewError(llm.ErrorTypeAuth, "bad key", false, nil), http.StatusInternalServerError, "internal_error"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := ClassifyError(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}
