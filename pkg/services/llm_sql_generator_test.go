package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/recon-engine/pkg/llm"
	"github.com/ekaya-inc/recon-engine/pkg/models"
)

const templateNotInSQL = `SELECT DISTINCT "s".* FROM "brz_lnd_RBP_GPU" "s" LEFT JOIN "brz_lnd_OPS_EXCEL_GPU" "t" ON "s"."Material" = "t"."PLANNING_SKU" WHERE "t"."PLANNING_SKU" IS NULL`

func newLLMGenerator(completer llm.Completer) *LLMSQLGenerator {
	return NewLLMSQLGenerator(completer, NewSQLGenerator(zap.NewNop()), zap.NewNop())
}

func TestLLMSQLGenerator_FallsBackOnInvalidSQL(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"drop table", "DROP TABLE x; --"},
		{"union", `SELECT * FROM brz_lnd_RBP_GPU UNION SELECT * FROM brz_lnd_OPS_EXCEL_GPU`},
		{"missing target table", `SELECT * FROM brz_lnd_RBP_GPU`},
		{"system schema", `SELECT * FROM brz_lnd_RBP_GPU, brz_lnd_OPS_EXCEL_GPU, information_schema.tables`},
		{"unbalanced", `SELECT * FROM brz_lnd_RBP_GPU s JOIN brz_lnd_OPS_EXCEL_GPU t ON (s.a = t.b`},
		{"empty", "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completer := &llm.StaticCompleter{Text: tt.response}
			got, err := newLLMGenerator(completer).Generate(context.Background(), notInIntent(), models.DialectPostgres, nil)
			require.NoError(t, err)
			assert.False(t, got.FromLLM)
			assert.NotEmpty(t, got.Fallback)
			assert.Equal(t, templateNotInSQL, got.SQL)
			assert.NotContains(t, got.SQL, "DROP")
			assert.Len(t, completer.Prompts(), 1)
		})
	}
}

func TestLLMSQLGenerator_UsesValidLLMSQL(t *testing.T) {
	response := "```sql\nSELECT DISTINCT s.* FROM brz_lnd_RBP_GPU s LEFT JOIN brz_lnd_OPS_EXCEL_GPU t ON s.Material = t.PLANNING_SKU WHERE t.PLANNING_SKU IS NULL;\n```"
	completer := &llm.StaticCompleter{Text: response}
	idx := NewRelationshipIndex(reconGraph(), models.DefaultEdgeConfidence)

	got, err := newLLMGenerator(completer).Generate(context.Background(), notInIntent(), models.DialectPostgres, idx)
	require.NoError(t, err)
	assert.True(t, got.FromLLM)
	assert.Equal(t, "SELECT DISTINCT s.* FROM brz_lnd_RBP_GPU s LEFT JOIN brz_lnd_OPS_EXCEL_GPU t ON s.Material = t.PLANNING_SKU WHERE t.PLANNING_SKU IS NULL", got.SQL)

	prompts := completer.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "brz_lnd_RBP_GPU.Material = brz_lnd_OPS_EXCEL_GPU.PLANNING_SKU")
	assert.Contains(t, prompts[0], "PLANNING_SKU, Product_Status, Region")
}

func TestLLMSQLGenerator_FallsBackOnLLMError(t *testing.T) {
	completer := &llm.StaticCompleter{Err: llm.NewError(llm.ErrorTypeUnavailable, "circuit open", false, nil)}

	got, err := newLLMGenerator(completer).Generate(context.Background(), notInIntent(), models.DialectPostgres, nil)
	require.NoError(t, err)
	assert.False(t, got.FromLLM)
	assert.Equal(t, templateNotInSQL, got.SQL)
	assert.Contains(t, got.Fallback, "circuit open")
}

func TestLLMSQLGenerator_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	completer := &llm.StaticCompleter{Err: context.Canceled}
	_, err := newLLMGenerator(completer).Generate(ctx, notInIntent(), models.DialectPostgres, nil)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestLLMSQLGenerator_NoCompleter(t *testing.T) {
	got, err := newLLMGenerator(nil).Generate(context.Background(), notInIntent(), models.DialectPostgres, nil)
	require.NoError(t, err)
	assert.Equal(t, templateNotInSQL, got.SQL)
	assert.Empty(t, got.Fallback)
}

func TestLLMSQLGenerator_InvalidIntentNotSentToLLM(t *testing.T) {
	completer := &llm.StaticCompleter{Text: "SELECT 1"}
	_, err := newLLMGenerator(completer).Generate(context.Background(), &models.QueryIntent{QueryType: models.QueryTypeData}, models.DialectPostgres, nil)
	require.Error(t, err)
	assert.Empty(t, completer.Prompts())
}

func TestRequiredTables(t *testing.T) {
	intent := notInIntent()
	intent.AdditionalColumns = []models.AdditionalColumn{hanaInclude()}
	assert.Equal(t, []string{"brz_lnd_RBP_GPU", "brz_lnd_OPS_EXCEL_GPU", "hana_material_master"}, requiredTables(intent))

	intent.QueryType = models.QueryTypeAggregation
	assert.Equal(t, []string{"brz_lnd_RBP_GPU", "brz_lnd_OPS_EXCEL_GPU"}, requiredTables(intent))
}
