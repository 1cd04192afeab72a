package datasource

import (
	"context"

	"github.com/ekaya-inc/recon-engine/pkg/models"
)

// ColumnInfo describes one column of a query result.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// QueryExecutionResult holds the rows returned by a query.
type QueryExecutionResult struct {
	Columns  []ColumnInfo     `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
}

// ColumnNames returns the result's column names in select-list order.
func (r *QueryExecutionResult) ColumnNames() []string {
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	return names
}

// ConnectionTester verifies a datasource is reachable.
type ConnectionTester interface {
	// TestConnection verifies the database is reachable with valid credentials.
	TestConnection(ctx context.Context) error

	// Close releases adapter resources. Pooled connections stay with the
	// ConnectionManager.
	Close() error
}

// QueryExecutor runs read-only SQL against a datasource.
type QueryExecutor interface {
	ConnectionTester

	// Query runs sqlQuery exactly as given and returns its rows. Row caps
	// are the caller's concern and must already be part of sqlQuery.
	Query(ctx context.Context, sqlQuery string) (*QueryExecutionResult, error)

	// Dialect reports the SQL dialect this executor expects.
	Dialect() models.Dialect
}
