package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ekaya-inc/recon-engine/pkg/models"
)

func TestApplyRowLimit(t *testing.T) {
	const q = `SELECT "s".* FROM "a" "s"`
	tests := []struct {
		dialect models.Dialect
		want    string
	}{
		{models.DialectPostgres, `SELECT * FROM (SELECT "s".* FROM "a" "s") AS row_cap LIMIT 50`},
		{models.DialectMySQL, `SELECT * FROM (SELECT "s".* FROM "a" "s") AS row_cap LIMIT 50`},
		{models.DialectSQLServer, `SELECT TOP (50) * FROM (SELECT "s".* FROM "a" "s") AS row_cap`},
		{models.DialectOracle, `SELECT * FROM (SELECT "s".* FROM "a" "s") row_cap FETCH FIRST 50 ROWS ONLY`},
	}

	for _, tt := range tests {
		t.Run(string(tt.dialect), func(t *testing.T) {
			assert.Equal(t, tt.want, ApplyRowLimit(tt.dialect, q, 50))
		})
	}
}

func TestNormalizeRowLimit(t *testing.T) {
	assert.Equal(t, MaxRowLimit, NormalizeRowLimit(0))
	assert.Equal(t, MaxRowLimit, NormalizeRowLimit(-3))
	assert.Equal(t, MaxRowLimit, NormalizeRowLimit(MaxRowLimit+1))
	assert.Equal(t, 25, NormalizeRowLimit(25))
}
