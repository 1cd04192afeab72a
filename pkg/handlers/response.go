package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ekaya-inc/recon-engine/pkg/apperrors"
	"github.com/ekaya-inc/recon-engine/pkg/llm"
)

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// ClassifyError maps a pipeline error to an HTTP status and a stable error code.
func ClassifyError(err error) (int, string) {
	var (
		ambiguous *apperrors.AmbiguousReferenceError
		noPath    *apperrors.JoinPathNotFoundError
		noColumn  *apperrors.ColumnNotFoundError
		execErr   *apperrors.ExecutionError
		llmErr    *llm.Error
	)

	switch {
	case errors.As(err, &ambiguous):
		return http.StatusUnprocessableEntity, "ambiguous_reference"
	case errors.As(err, &noPath):
		return http.StatusUnprocessableEntity, "join_path_not_found"
	case errors.As(err, &noColumn):
		return http.StatusUnprocessableEntity, "column_not_found"
	case errors.Is(err, apperrors.ErrNoTableReference):
		return http.StatusUnprocessableEntity, "no_table_reference"
	case errors.Is(err, apperrors.ErrSameTable):
		return http.StatusUnprocessableEntity, "same_table"
	case errors.Is(err, apperrors.ErrMissingJoinColumns):
		return http.StatusUnprocessableEntity, "missing_join_columns"
	case errors.As(err, &execErr):
		return http.StatusBadGateway, "execution_error"
	case errors.Is(err, apperrors.ErrUnknownDialect):
		return http.StatusBadRequest, "unknown_dialect"
	case errors.Is(err, apperrors.ErrUnknownDatasource):
		return http.StatusBadRequest, "unknown_datasource"
	case errors.Is(err, apperrors.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.As(err, &llmErr) && (llmErr.Type == llm.ErrorTypeUnavailable || llmErr.Type == llm.ErrorTypeTimeout):
		return http.StatusServiceUnavailable, "llm_unavailable"
	}
	return http.StatusInternalServerError, "internal_error"
}
