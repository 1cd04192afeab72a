package sql

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/recon-engine/pkg/apperrors"
	"github.com/ekaya-inc/recon-engine/pkg/models"
)

func TestValidateGeneratedSQL_Accepts(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		required []string
		want     string
	}{
		{
			name:     "plain select",
			input:    `SELECT DISTINCT s.* FROM "brz_lnd_RBP_GPU" s LEFT JOIN "brz_lnd_OPS_EXCEL_GPU" t ON s."Material" = t."PLANNING_SKU" WHERE t."PLANNING_SKU" IS NULL`,
			required: []string{"brz_lnd_RBP_GPU", "brz_lnd_OPS_EXCEL_GPU"},
			want:     `SELECT DISTINCT s.* FROM "brz_lnd_RBP_GPU" s LEFT JOIN "brz_lnd_OPS_EXCEL_GPU" t ON s."Material" = t."PLANNING_SKU" WHERE t."PLANNING_SKU" IS NULL`,
		},
		{
			name:     "code fenced with trailing semicolon",
			input:    "```sql\nSELECT * FROM products;\n```",
			required: []string{"products"},
			want:     "SELECT * FROM products",
		},
		{
			name:     "keyword inside literal is fine",
			input:    "SELECT * FROM orders WHERE note = 'please drop off'",
			required: []string{"orders"},
			want:     "SELECT * FROM orders WHERE note = 'please drop off'",
		},
		{
			name:     "column named like a keyword prefix",
			input:    "SELECT created_at, updated_by FROM orders",
			required: []string{"ORDERS"},
			want:     "SELECT created_at, updated_by FROM orders",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateGeneratedSQL(models.DialectPostgres, tt.input, tt.required)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateGeneratedSQL_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		required []string
	}{
		{name: "drop with comment", input: "DROP TABLE x; --"},
		{name: "empty", input: "   "},
		{name: "not a select", input: "WITH x AS (SELECT 1) SELECT * FROM x", required: []string{"x"}},
		{name: "delete", input: "DELETE FROM products", required: []string{"products"}},
		{name: "union", input: "SELECT a FROM products UNION SELECT b FROM secrets", required: []string{"products"}},
		{name: "select into", input: "SELECT * INTO backup FROM products", required: []string{"products"}},
		{name: "exec", input: "SELECT * FROM products WHERE 1 = EXEC(x)", required: []string{"products"}},
		{name: "information schema", input: "SELECT * FROM information_schema.tables", required: []string{"tables"}},
		{name: "quoted pg_catalog", input: `SELECT * FROM "pg_catalog"."pg_class"`},
		{name: "sql server sys", input: "SELECT * FROM [sys].[objects]"},
		{name: "missing required table", input: "SELECT * FROM products", required: []string{"products", "ops_excel"}},
		{name: "unbalanced paren", input: "SELECT * FROM (SELECT * FROM products", required: []string{"products"}},
		{name: "unbalanced quote", input: "SELECT * FROM products WHERE a = 'x", required: []string{"products"}},
		{name: "stacked statement", input: "SELECT * FROM products; SELECT 1", required: []string{"products"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateGeneratedSQL(models.DialectPostgres, tt.input, tt.required)
			require.Error(t, err)
			assert.Empty(t, got)

			var invalid *apperrors.InvalidGeneratedSQLError
			require.True(t, errors.As(err, &invalid))
			assert.Equal(t, tt.input, invalid.SQL)
			assert.NotEmpty(t, invalid.Reason)
		})
	}
}

func TestValidateGeneratedSQL_BackslashFollowsDialect(t *testing.T) {
	input := `SELECT * FROM products WHERE note = 'a\'; DELETE FROM products; SELECT ''`

	_, err := ValidateGeneratedSQL(models.DialectPostgres, input, []string{"products"})
	require.Error(t, err)

	_, err = ValidateGeneratedSQL(models.DialectSQLServer, input, []string{"products"})
	require.Error(t, err)

	got, err := ValidateGeneratedSQL(models.DialectSQLServer, `SELECT * FROM products WHERE path = 'C:\'`, []string{"products"})
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM products WHERE path = 'C:\'`, got)
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, "SELECT 1", StripCodeFences("Here you go:\n```sql\nSELECT 1\n```\nthanks"))
	assert.Equal(t, "SELECT 1", StripCodeFences("  SELECT 1  "))
}
