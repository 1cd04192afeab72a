package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrUnknownDialect     = errors.New("unknown dialect")
	ErrUnknownDatasource  = errors.New("unknown datasource")
	ErrNoTableReference   = errors.New("no table reference found in query")
	ErrSameTable          = errors.New("source and target resolve to the same table")
	ErrMissingJoinColumns = errors.New("comparison query has no join columns")
)

// AmbiguousReferenceError is returned when a table phrase resolves to zero or
// to more than one schema table.
type AmbiguousReferenceError struct {
	Phrase     string
	Candidates []string
}

func (e *AmbiguousReferenceError) Error() string {
	if len(e.Candidates) == 0 {
		return fmt.Sprintf("no table matches %q", e.Phrase)
	}
	return fmt.Sprintf("table reference %q is ambiguous: candidates %s",
		e.Phrase, strings.Join(e.Candidates, ", "))
}

// JoinPathNotFoundError is returned when no relationship path connects two tables.
type JoinPathNotFoundError struct {
	SourceTable string
	TargetTable string
}

func (e *JoinPathNotFoundError) Error() string {
	return fmt.Sprintf("no relationship path between %s and %s", e.SourceTable, e.TargetTable)
}

// ColumnNotFoundError is returned when a column is absent from a resolved table.
type ColumnNotFoundError struct {
	Table  string
	Column string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("column %q not found in table %s", e.Column, e.Table)
}

// InvalidGeneratedSQLError is returned when LLM-produced SQL fails validation.
type InvalidGeneratedSQLError struct {
	Reason string
	SQL    string
}

func (e *InvalidGeneratedSQLError) Error() string {
	return "generated SQL rejected: " + e.Reason
}

// ExecutionError wraps a database driver failure together with the SQL that
// was attempted.
type ExecutionError struct {
	SQL string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("query execution failed: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsParseError reports whether err aborts parsing of a natural-language query
// because of something the user wrote, as opposed to an infrastructure failure.
func IsParseError(err error) bool {
	var ambiguous *AmbiguousReferenceError
	var noPath *JoinPathNotFoundError
	var noColumn *ColumnNotFoundError
	return errors.As(err, &ambiguous) ||
		errors.As(err, &noPath) ||
		errors.As(err, &noColumn) ||
		errors.Is(err, ErrNoTableReference) ||
		errors.Is(err, ErrSameTable) ||
		errors.Is(err, ErrMissingJoinColumns)
}
