package sql

import (
	"errors"
	"strings"
	"unicode"

	"github.com/ekaya-inc/recon-engine/pkg/models"
)

var (
	// ErrMultipleStatements indicates the query contains multiple SQL statements.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")
	// ErrUnbalanced indicates an unterminated quote or mismatched parentheses.
	ErrUnbalanced = errors.New("unbalanced quotes or parentheses")
	// ErrComment indicates the query contains a SQL comment.
	ErrComment = errors.New("comments are not allowed")
)

// ValidationResult contains the normalized SQL and any validation errors.
type ValidationResult struct {
	NormalizedSQL string
	Error         error
}

// ValidateAndNormalize trims the query, strips one trailing semicolon, and
// rejects anything that still contains a statement separator, a comment, an
// unterminated quote, or mismatched parentheses. String literals are read the
// way dialect reads them.
func ValidateAndNormalize(dialect models.Dialect, sqlQuery string) ValidationResult {
	sqlQuery = strings.TrimSpace(sqlQuery)
	if sqlQuery == "" {
		return ValidationResult{NormalizedSQL: sqlQuery}
	}

	normalized := stripTrailingSemicolon(sqlQuery)

	s := scan(dialect, normalized)
	switch {
	case s.semicolon:
		return ValidationResult{Error: ErrMultipleStatements}
	case s.comment:
		return ValidationResult{Error: ErrComment}
	case !s.balanced():
		return ValidationResult{Error: ErrUnbalanced}
	}

	return ValidationResult{NormalizedSQL: normalized}
}

// scanResult summarizes the lexical structure of a query.
type scanResult struct {
	semicolon bool // statement separator outside quotes
	comment   bool // -- or /* outside quotes
	openQuote bool // input ended inside a quoted section
	parens    int  // net open parentheses; negative when a ) came first
	underflow bool
	// stripped is the query with quoted sections blanked, for keyword checks
	// that must not match inside literals or identifiers.
	stripped string
}

func (s scanResult) balanced() bool {
	return !s.openQuote && s.parens == 0 && !s.underflow
}

// scan walks the query once with a small state machine covering '...',
// "...", `...` and [...] sections. Doubled quote characters inside a section
// are treated as escapes. A backslash escapes inside '...' only where the
// dialect says so.
func scan(dialect models.Dialect, sqlQuery string) scanResult {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
		stateBacktick
		stateBracket
	)

	var res scanResult
	var out strings.Builder
	out.Grow(len(sqlQuery))

	runes := []rune(sqlQuery)
	state := stateNormal
	escapes := false
	closer := map[int]rune{
		stateSingleQuote: '\'',
		stateDoubleQuote: '"',
		stateBacktick:    '`',
		stateBracket:     ']',
	}

	for i := 0; i < len(runes); i++ {
		char := runes[i]
		if state != stateNormal {
			out.WriteRune(' ')
			if char == '\\' && state == stateSingleQuote && escapes && i+1 < len(runes) {
				i++
				out.WriteRune(' ')
				continue
			}
			if char == closer[state] {
				if i+1 < len(runes) && runes[i+1] == char {
					i++
					out.WriteRune(' ')
					continue
				}
				state = stateNormal
			}
			continue
		}

		switch char {
		case ';':
			res.semicolon = true
		case '\'':
			state = stateSingleQuote
			escapes = backslashEscapes(dialect, runes, i)
		case '"':
			state = stateDoubleQuote
		case '`':
			state = stateBacktick
		case '[':
			state = stateBracket
		case '(':
			res.parens++
		case ')':
			res.parens--
			if res.parens < 0 {
				res.underflow = true
			}
		case '-':
			if i+1 < len(runes) && runes[i+1] == '-' {
				res.comment = true
			}
		case '/':
			if i+1 < len(runes) && runes[i+1] == '*' {
				res.comment = true
			}
		}
		if state != stateNormal {
			out.WriteRune(' ')
			continue
		}
		out.WriteRune(char)
	}

	res.openQuote = state != stateNormal
	res.stripped = out.String()
	return res
}

// backslashEscapes reports whether a backslash is an escape inside the '...'
// literal opening at runes[i]: always for MySQL, and for PostgreSQL E'...'
// strings. Elsewhere it is an ordinary character.
func backslashEscapes(dialect models.Dialect, runes []rune, i int) bool {
	switch dialect {
	case models.DialectMySQL:
		return true
	case models.DialectPostgres:
		if i == 0 || (runes[i-1] != 'E' && runes[i-1] != 'e') {
			return false
		}
		return i == 1 || !isIdentRune(runes[i-2])
	}
	return false
}

func isIdentRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// stripTrailingSemicolon removes a trailing semicolon and any whitespace after it.
func stripTrailingSemicolon(sqlQuery string) string {
	sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	if strings.HasSuffix(sqlQuery, ";") {
		sqlQuery = strings.TrimSuffix(sqlQuery, ";")
		sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	}
	return sqlQuery
}
