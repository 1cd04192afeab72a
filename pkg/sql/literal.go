package sql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ekaya-inc/recon-engine/pkg/models"
)

// QuoteLiteral renders a value as a SQL literal for the dialect.
// Strings are single-quoted with embedded quotes doubled; MySQL also escapes
// backslashes since it treats them as escape characters by default.
func QuoteLiteral(dialect models.Dialect, value any) string {
	switch v := value.(type) {
	case nil:
		return "NULL"
	case bool:
		if dialect == models.DialectPostgres || dialect == models.DialectMySQL {
			if v {
				return "TRUE"
			}
			return "FALSE"
		}
		if v {
			return "1"
		}
		return "0"
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		return quoteString(dialect, v)
	default:
		return quoteString(dialect, fmt.Sprint(v))
	}
}

func quoteString(dialect models.Dialect, s string) string {
	if dialect == models.DialectMySQL {
		s = strings.ReplaceAll(s, `\`, `\\`)
	}
	if dialect == models.DialectSQLServer && !isASCII(s) {
		return "N'" + strings.ReplaceAll(s, "'", "''") + "'"
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// EscapeLike escapes LIKE wildcards in s so it matches literally.
// The returned pattern must be paired with ESCAPE '\'.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			return false
		}
	}
	return true
}
