package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/recon-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/recon-engine/pkg/apperrors"
	"github.com/ekaya-inc/recon-engine/pkg/logging"
	sqlutil "github.com/ekaya-inc/recon-engine/pkg/sql"
)

// ExecutionResult is the outcome of running compiled SQL against a datasource.
type ExecutionResult struct {
	// ExecutedSQL is the statement actually sent, including the row cap.
	ExecutedSQL string
	Result      *datasource.QueryExecutionResult
	Duration    time.Duration
}

// NLQueryExecutor runs generated SQL with a dialect-specific row cap.
type NLQueryExecutor struct {
	logger *zap.Logger
}

// NewNLQueryExecutor creates an executor.
func NewNLQueryExecutor(logger *zap.Logger) *NLQueryExecutor {
	return &NLQueryExecutor{logger: logger.Named("nl-query-executor")}
}

// Execute wraps sql in the executor dialect's row cap and runs it once.
// Driver failures come back as *apperrors.ExecutionError carrying the capped
// SQL; they are never retried.
func (e *NLQueryExecutor) Execute(ctx context.Context, exec datasource.QueryExecutor, sql string, limit int) (*ExecutionResult, error) {
	capped := sqlutil.ApplyRowLimit(exec.Dialect(), sql, sqlutil.NormalizeRowLimit(limit))

	start := time.Now()
	result, err := exec.Query(ctx, capped)
	elapsed := time.Since(start)
	if err != nil {
		e.logger.Error("Query execution failed",
			zap.String("dialect", string(exec.Dialect())),
			zap.String("sql", logging.SanitizeQuery(capped)),
			zap.Duration("elapsed", elapsed),
			zap.String("error", logging.SanitizeError(err)),
		)
		return nil, &apperrors.ExecutionError{SQL: capped, Err: logging.SanitizedError(err)}
	}

	e.logger.Debug("Query executed",
		zap.String("dialect", string(exec.Dialect())),
		zap.Int("rows", result.RowCount),
		zap.Duration("elapsed", elapsed),
	)
	return &ExecutionResult{ExecutedSQL: capped, Result: result, Duration: elapsed}, nil
}
