package models

import (
	"fmt"
	"strings"
)

// Dialect identifies the SQL flavor of a target database. It selects identifier
// quoting and row-limit syntax; the relational logic of generated SQL is the same
// for every dialect.
type Dialect string

const (
	DialectMySQL     Dialect = "mysql"
	DialectPostgres  Dialect = "postgres"
	DialectSQLServer Dialect = "sqlserver"
	DialectOracle    Dialect = "oracle"
)

// ValidDialects contains all supported dialects.
var ValidDialects = []Dialect{
	DialectMySQL,
	DialectPostgres,
	DialectSQLServer,
	DialectOracle,
}

// ParseDialect normalizes a user supplied dialect or datasource type name.
// Common aliases ("postgresql", "mssql", "mariadb") are accepted.
func ParseDialect(value string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "mysql", "mariadb":
		return DialectMySQL, nil
	case "postgres", "postgresql", "pg":
		return DialectPostgres, nil
	case "sqlserver", "mssql", "sql_server":
		return DialectSQLServer, nil
	case "oracle", "ora":
		return DialectOracle, nil
	}
	return "", fmt.Errorf("unsupported dialect %q", value)
}

// IsValid reports whether d is one of the supported dialects.
func (d Dialect) IsValid() bool {
	for _, v := range ValidDialects {
		if v == d {
			return true
		}
	}
	return false
}
