// Package sql builds and validates the SQL emitted for natural-language queries.
package sql

import (
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/recon-engine/pkg/models"
)

// QuoteIdentifier quotes a table, column, or alias name for the dialect.
// Identifiers are always quoted, and an embedded quote character is escaped by
// doubling it, so the dialect's parser reads back exactly name.
//
//	mysql      `name`
//	sqlserver  [name]
//	postgres   "name"
//	oracle     "name"
func QuoteIdentifier(dialect models.Dialect, name string) string {
	switch dialect {
	case models.DialectMySQL:
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	case models.DialectSQLServer:
		return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
	case models.DialectPostgres:
		return pgx.Identifier{name}.Sanitize()
	default:
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	}
}

// QuoteQualified quotes "qualifier.name" with each part quoted separately.
// An empty qualifier yields just the quoted name.
func QuoteQualified(dialect models.Dialect, qualifier, name string) string {
	if qualifier == "" {
		return QuoteIdentifier(dialect, name)
	}
	return QuoteIdentifier(dialect, qualifier) + "." + QuoteIdentifier(dialect, name)
}
