package sql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ekaya-inc/recon-engine/pkg/models"
)

// unquote reverses QuoteIdentifier the way each dialect's parser does.
func unquote(t *testing.T, d models.Dialect, quoted string) string {
	t.Helper()
	open, closeCh := `"`, `"`
	switch d {
	case models.DialectMySQL:
		open, closeCh = "`", "`"
	case models.DialectSQLServer:
		open, closeCh = "[", "]"
	}
	if !strings.HasPrefix(quoted, open) || !strings.HasSuffix(quoted, closeCh) {
		t.Fatalf("%s identifier %q not wrapped in %s%s", d, quoted, open, closeCh)
	}
	body := quoted[len(open) : len(quoted)-len(closeCh)]
	return strings.ReplaceAll(body, closeCh+closeCh, closeCh)
}

func TestQuoteIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		dialect models.Dialect
		input   string
		want    string
	}{
		{"mysql plain", models.DialectMySQL, "Material", "`Material`"},
		{"mysql embedded backtick", models.DialectMySQL, "we`ird", "`we``ird`"},
		{"sqlserver plain", models.DialectSQLServer, "Business Unit", "[Business Unit]"},
		{"sqlserver embedded bracket", models.DialectSQLServer, "a]b", "[a]]b]"},
		{"postgres plain", models.DialectPostgres, "Order", `"Order"`},
		{"postgres embedded quote", models.DialectPostgres, `say "hi"`, `"say ""hi"""`},
		{"postgres apostrophe", models.DialectPostgres, "O'Brien", `"O'Brien"`},
		{"oracle plain", models.DialectOracle, "PLANNING_SKU", `"PLANNING_SKU"`},
		{"oracle embedded quote", models.DialectOracle, `a"b`, `"a""b"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, QuoteIdentifier(tt.dialect, tt.input))
		})
	}
}

func TestQuoteIdentifier_RoundTrip(t *testing.T) {
	names := []string{"O'Brien", "Business Unit", `x"y`, "a`b", "c]d", "[e]", "Order", "日本"}
	for _, d := range models.ValidDialects {
		for _, name := range names {
			t.Run(string(d)+"/"+name, func(t *testing.T) {
				assert.Equal(t, name, unquote(t, d, QuoteIdentifier(d, name)))
			})
		}
	}
}

func TestQuoteQualified(t *testing.T) {
	assert.Equal(t, `"s"."Material"`, QuoteQualified(models.DialectPostgres, "s", "Material"))
	assert.Equal(t, "[Material]", QuoteQualified(models.DialectSQLServer, "", "Material"))
}

func TestQuoteLiteral(t *testing.T) {
	tests := []struct {
		name    string
		dialect models.Dialect
		value   any
		want    string
	}{
		{"string", models.DialectPostgres, "Active", "'Active'"},
		{"apostrophe", models.DialectPostgres, "O'Brien", "'O''Brien'"},
		{"mysql backslash", models.DialectMySQL, `a\b`, `'a\\b'`},
		{"sqlserver unicode", models.DialectSQLServer, "café", "N'café'"},
		{"int", models.DialectOracle, 42, "42"},
		{"float", models.DialectPostgres, 2.5, "2.5"},
		{"bool postgres", models.DialectPostgres, true, "TRUE"},
		{"bool sqlserver", models.DialectSQLServer, true, "1"},
		{"nil", models.DialectMySQL, nil, "NULL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, QuoteLiteral(tt.dialect, tt.value))
		})
	}
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `50\%\_off`, EscapeLike("50%_off"))
}
