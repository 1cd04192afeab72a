package sql

import (
	"fmt"

	"github.com/ekaya-inc/recon-engine/pkg/models"
)

// MaxRowLimit caps how many rows a single query may return.
const MaxRowLimit = 1000

// NormalizeRowLimit maps non-positive limits to MaxRowLimit and clamps larger
// ones to it.
func NormalizeRowLimit(limit int) int {
	if limit <= 0 || limit > MaxRowLimit {
		return MaxRowLimit
	}
	return limit
}

// ApplyRowLimit wraps query in an outer SELECT that caps its row count using
// the dialect's syntax. The wrapper is always outermost so it applies the same
// way to every query shape.
func ApplyRowLimit(dialect models.Dialect, query string, limit int) string {
	switch dialect {
	case models.DialectSQLServer:
		return fmt.Sprintf("SELECT TOP (%d) * FROM (%s) AS row_cap", limit, query)
	case models.DialectOracle:
		return fmt.Sprintf("SELECT * FROM (%s) row_cap FETCH FIRST %d ROWS ONLY", query, limit)
	default:
		return fmt.Sprintf("SELECT * FROM (%s) AS row_cap LIMIT %d", query, limit)
	}
}
