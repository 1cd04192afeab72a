package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/recon-engine/pkg/models"
)

func TestSelectStmt_Render_AntiJoin(t *testing.T) {
	stmt := &SelectStmt{
		Distinct: true,
		Items:    []SelectItem{Star("s")},
		From:     TableRef{Name: "brz_lnd_RBP_GPU", Alias: "s"},
		Joins: []Join{{
			Kind:  LeftJoin,
			Table: TableRef{Name: "brz_lnd_OPS_EXCEL_GPU", Alias: "t"},
			On:    []Predicate{EqualColumns(Col("s", "Material"), Col("t", "PLANNING_SKU"))},
		}},
		Where: []Predicate{IsNull(Col("t", "PLANNING_SKU"))},
	}

	tests := []struct {
		dialect models.Dialect
		want    string
	}{
		{
			models.DialectPostgres,
			`SELECT DISTINCT "s".* FROM "brz_lnd_RBP_GPU" "s" LEFT JOIN "brz_lnd_OPS_EXCEL_GPU" "t" ON "s"."Material" = "t"."PLANNING_SKU" WHERE "t"."PLANNING_SKU" IS NULL`,
		},
		{
			models.DialectMySQL,
			"SELECT DISTINCT `s`.* FROM `brz_lnd_RBP_GPU` `s` LEFT JOIN `brz_lnd_OPS_EXCEL_GPU` `t` ON `s`.`Material` = `t`.`PLANNING_SKU` WHERE `t`.`PLANNING_SKU` IS NULL",
		},
		{
			models.DialectSQLServer,
			"SELECT DISTINCT [s].* FROM [brz_lnd_RBP_GPU] [s] LEFT JOIN [brz_lnd_OPS_EXCEL_GPU] [t] ON [s].[Material] = [t].[PLANNING_SKU] WHERE [t].[PLANNING_SKU] IS NULL",
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.dialect), func(t *testing.T) {
			got, err := stmt.Render(tt.dialect)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelectStmt_Render_Aggregation(t *testing.T) {
	stmt := &SelectStmt{
		Items: []SelectItem{Column(Col("s", "Category"), ""), CountAll("record_count")},
		From:  TableRef{Name: "products", Alias: "s"},
		Where: []Predicate{
			Compare(Col("s", "Business Unit"), OpEq, "GPU"),
			Compare(Col("s", "qty"), OpGt, 10),
		},
		GroupBy: []ColumnRef{Col("s", "Category")},
	}

	got, err := stmt.Render(models.DialectPostgres)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "s"."Category", COUNT(*) AS "record_count" FROM "products" "s" WHERE "s"."Business Unit" = 'GPU' AND "s"."qty" > 10 GROUP BY "s"."Category"`,
		got)
}

func TestSelectStmt_Render_ContainsEscapes(t *testing.T) {
	stmt := &SelectStmt{
		Items: []SelectItem{Star("")},
		From:  TableRef{Name: "products"},
		Where: []Predicate{Contains(ColumnRef{Name: "name"}, "50%")},
	}

	got, err := stmt.Render(models.DialectMySQL)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM `products` WHERE `name` LIKE '%50\\\\%%' ESCAPE '\\\\'", got)

	got, err = stmt.Render(models.DialectPostgres)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "products" WHERE "name" LIKE '%50\%%' ESCAPE '\'`, got)
}

func TestSelectStmt_Render_Empty(t *testing.T) {
	_, err := (&SelectStmt{From: TableRef{Name: "x"}}).Render(models.DialectPostgres)
	assert.ErrorIs(t, err, ErrEmptySelect)

	_, err = (&SelectStmt{Items: []SelectItem{Star("")}}).Render(models.DialectPostgres)
	assert.ErrorIs(t, err, ErrEmptySelect)
}

func TestSelectStmt_Render_IdentifierInjection(t *testing.T) {
	stmt := &SelectStmt{
		Items: []SelectItem{Column(Col("s", `x"; DROP TABLE users; --`), "")},
		From:  TableRef{Name: "products", Alias: "s"},
	}

	got, err := stmt.Render(models.DialectPostgres)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "s"."x""; DROP TABLE users; --" FROM "products" "s"`, got)
}
