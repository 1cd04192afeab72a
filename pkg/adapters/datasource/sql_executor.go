package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ekaya-inc/recon-engine/pkg/models"
)

// TypeMapper normalizes a driver's DatabaseTypeName to the name reported in
// ColumnInfo.
type TypeMapper func(databaseType string) string

// SQLExecutor runs queries over a database/sql pool. The SQL Server, MySQL
// and Oracle adapters are built on it.
type SQLExecutor struct {
	db        *sql.DB
	dialect   models.Dialect
	mapType   TypeMapper
	pingQuery string
	ownedDB   bool // true when the executor opened db itself
}

// NewSQLExecutor wraps db. pingQuery is the trivial statement TestConnection
// runs after a ping. When ownedDB is set, Close closes db.
func NewSQLExecutor(db *sql.DB, dialect models.Dialect, mapType TypeMapper, pingQuery string, ownedDB bool) *SQLExecutor {
	if mapType == nil {
		mapType = strings.ToUpper
	}
	return &SQLExecutor{
		db:        db,
		dialect:   dialect,
		mapType:   mapType,
		pingQuery: pingQuery,
		ownedDB:   ownedDB,
	}
}

// Query runs sqlQuery and collects every row.
func (e *SQLExecutor) Query(ctx context.Context, sqlQuery string) (*QueryExecutionResult, error) {
	rows, err := e.db.QueryContext(ctx, sqlQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()
	return ScanRows(rows, e.mapType)
}

// ScanRows reads all of rows into a QueryExecutionResult. Byte slices are
// converted to strings unless the column holds binary data.
func ScanRows(rows *sql.Rows, mapType TypeMapper) (*QueryExecutionResult, error) {
	columnNames, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get column types: %w", err)
	}

	columns := make([]ColumnInfo, len(columnNames))
	binary := make([]bool, len(columnNames))
	for i, name := range columnNames {
		dbType := columnTypes[i].DatabaseTypeName()
		columns[i] = ColumnInfo{Name: name, Type: mapType(dbType)}
		binary[i] = IsBinaryType(dbType)
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columnNames))
		valuePtrs := make([]any, len(columnNames))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		rowMap := make(map[string]any, len(columnNames))
		for i, col := range columnNames {
			val := values[i]
			if b, ok := val.([]byte); ok && !binary[i] {
				val = string(b)
			}
			rowMap[col] = val
		}
		resultRows = append(resultRows, rowMap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return &QueryExecutionResult{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

// IsBinaryType reports whether a driver type name denotes raw bytes.
func IsBinaryType(databaseType string) bool {
	t := strings.ToUpper(databaseType)
	switch t {
	case "BINARY", "VARBINARY", "IMAGE", "BLOB", "TINYBLOB", "MEDIUMBLOB", "LONGBLOB", "RAW", "LONG RAW", "BYTEA":
		return true
	}
	return false
}

// TestConnection pings the pool and runs the adapter's trivial query.
func (e *SQLExecutor) TestConnection(ctx context.Context) error {
	if err := e.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	if e.pingQuery == "" {
		return nil
	}
	var result int
	if err := e.db.QueryRowContext(ctx, e.pingQuery).Scan(&result); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}
	return nil
}

func (e *SQLExecutor) Dialect() models.Dialect {
	return e.dialect
}

// Close releases the executor. A pool owned by the ConnectionManager stays open.
func (e *SQLExecutor) Close() error {
	if e.ownedDB && e.db != nil {
		return e.db.Close()
	}
	return nil
}

// DB returns the underlying pool.
func (e *SQLExecutor) DB() *sql.DB {
	return e.db
}

// OpenSQLExecutor opens (or reuses through connMgr) a database/sql pool for
// the datasource name and wraps it in an SQLExecutor.
func OpenSQLExecutor(ctx context.Context, name string, connMgr *ConnectionManager, open PoolOpener, dialect models.Dialect, mapType TypeMapper, pingQuery string) (*SQLExecutor, error) {
	if connMgr == nil {
		connector, err := open(ctx, ConnectionManagerConfig{
			TTLMinutes:   DefaultConnectionTTLMinutes,
			PoolMaxConns: DefaultPoolMaxConns,
			PoolMinConns: DefaultPoolMinConns,
		})
		if err != nil {
			return nil, err
		}
		db, err := GetSQLDB(connector)
		if err != nil {
			connector.Close()
			return nil, err
		}
		return NewSQLExecutor(db, dialect, mapType, pingQuery, true), nil
	}

	connector, err := connMgr.GetOrCreateConnection(ctx, name, open)
	if err != nil {
		return nil, fmt.Errorf("failed to get pooled connection: %w", err)
	}
	db, err := GetSQLDB(connector)
	if err != nil {
		return nil, err
	}
	return NewSQLExecutor(db, dialect, mapType, pingQuery, false), nil
}

// Ensure SQLExecutor implements QueryExecutor at compile time.
var _ QueryExecutor = (*SQLExecutor)(nil)
