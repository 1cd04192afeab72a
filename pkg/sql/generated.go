package sql

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ekaya-inc/recon-engine/pkg/apperrors"
	"github.com/ekaya-inc/recon-engine/pkg/models"
)

var (
	forbiddenKeywordPattern = regexp.MustCompile(
		`(?i)\b(DROP|DELETE|TRUNCATE|ALTER|CREATE|GRANT|REVOKE|EXEC|EXECUTE|UNION|INSERT|UPDATE|MERGE|CALL|INTO|SHUTDOWN)\b`)
	systemSchemaPattern = regexp.MustCompile(
		`(?i)\b(information_schema|pg_catalog|pg_shadow|pg_authid|performance_schema|sysobjects|syscolumns|sys\.|mysql\.|dba_[a-z_]+|all_users|all_tables|v\$[a-z_]+)`)
	codeFencePattern = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)```")
	identQuoteStrip  = strings.NewReplacer(`"`, "", "`", "", "[", "", "]", "")
)

// StripCodeFences returns the body of the first markdown code block in text,
// or text itself when there is none.
func StripCodeFences(text string) string {
	if m := codeFencePattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}

// ValidateGeneratedSQL checks SQL produced by a language model before it may
// be used. The query must be a single SELECT statement, must not touch
// system catalogs or contain data-modifying keywords, must reference every
// table in requiredTables, and must have balanced quotes and parentheses
// under the quoting rules of dialect. It returns the normalized query or an *apperrors.InvalidGeneratedSQLError.
func ValidateGeneratedSQL(dialect models.Dialect, generated string, requiredTables []string) (string, error) {
	candidate := StripCodeFences(generated)
	reject := func(reason string) (string, error) {
		return "", &apperrors.InvalidGeneratedSQLError{Reason: reason, SQL: generated}
	}

	if candidate == "" {
		return reject("empty response")
	}

	result := ValidateAndNormalize(dialect, candidate)
	if result.Error != nil {
		return reject(result.Error.Error())
	}
	normalized := result.NormalizedSQL

	s := scan(dialect, normalized)
	fields := strings.Fields(s.stripped)
	if len(fields) == 0 || !strings.EqualFold(fields[0], "SELECT") {
		return reject("statement does not start with SELECT")
	}

	if m := forbiddenKeywordPattern.FindString(s.stripped); m != "" {
		return reject(fmt.Sprintf("forbidden keyword %s", strings.ToUpper(m)))
	}

	unquoted := identQuoteStrip.Replace(normalized)
	if m := systemSchemaPattern.FindString(unquoted); m != "" {
		return reject(fmt.Sprintf("system schema reference %s", m))
	}

	lower := strings.ToLower(unquoted)
	for _, table := range requiredTables {
		if table == "" {
			continue
		}
		if !strings.Contains(lower, strings.ToLower(table)) {
			return reject(fmt.Sprintf("missing required table %s", table))
		}
	}

	return normalized, nil
}
