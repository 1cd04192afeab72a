package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAmbiguousReferenceError_Message(t *testing.T) {
	none := &AmbiguousReferenceError{Phrase: "GPU"}
	assert.Equal(t, `no table matches "GPU"`, none.Error())

	many := &AmbiguousReferenceError{Phrase: "GPU", Candidates: []string{"a_GPU", "b_GPU"}}
	assert.Equal(t, `table reference "GPU" is ambiguous: candidates a_GPU, b_GPU`, many.Error())
}

func TestExecutionError_Unwrap(t *testing.T) {
	cause := errors.New("permission denied")
	err := fmt.Errorf("run: %w", &ExecutionError{SQL: "SELECT 1", Err: cause})

	var execErr *ExecutionError
	assert.True(t, errors.As(err, &execErr))
	assert.Equal(t, "SELECT 1", execErr.SQL)
	assert.ErrorIs(t, err, cause)
}

func TestIsParseError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"ambiguous", &AmbiguousReferenceError{Phrase: "x"}, true},
		{"no path", fmt.Errorf("wrap: %w", &JoinPathNotFoundError{SourceTable: "a", TargetTable: "b"}), true},
		{"column", &ColumnNotFoundError{Table: "a", Column: "c"}, true},
		{"no table", ErrNoTableReference, true},
		{"same table", ErrSameTable, true},
		{"execution", &ExecutionError{SQL: "x", Err: errors.New("boom")}, false},
		{"other", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsParseError(tt.err))
		})
	}
}
