package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/recon-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/recon-engine/pkg/models"
	sqlutil "github.com/ekaya-inc/recon-engine/pkg/sql"
	"github.com/ekaya-inc/recon-engine/pkg/testhelpers"
)

func testConfig(db *testhelpers.TestDB) *Config {
	return &Config{
		Host:     db.Host,
		Port:     db.Port,
		User:     db.User,
		Password: db.Password,
		Database: db.Database,
		SSLMode:  "disable",
	}
}

func TestQueryExecutor_Query(t *testing.T) {
	db := testhelpers.GetTestDB(t)
	ctx := context.Background()

	exec, err := NewQueryExecutor(ctx, testConfig(db), "test", nil)
	require.NoError(t, err)
	defer exec.Close()

	require.NoError(t, exec.TestConnection(ctx))
	assert.Equal(t, models.DialectPostgres, exec.Dialect())

	query := sqlutil.ApplyRowLimit(models.DialectPostgres,
		`SELECT g AS n, 'row ' || g AS label FROM generate_series(1, 10) AS g`, 3)
	result, err := exec.Query(ctx, query)
	require.NoError(t, err)

	assert.Equal(t, 3, result.RowCount)
	assert.Equal(t, []string{"n", "label"}, result.ColumnNames())
	assert.Equal(t, "INT4", result.Columns[0].Type)
	assert.Equal(t, "TEXT", result.Columns[1].Type)
	assert.Equal(t, "row 1", result.Rows[0]["label"])
}

func TestQueryExecutor_QueryError(t *testing.T) {
	db := testhelpers.GetTestDB(t)
	ctx := context.Background()

	exec, err := NewQueryExecutor(ctx, testConfig(db), "test", nil)
	require.NoError(t, err)
	defer exec.Close()

	_, err = exec.Query(ctx, `SELECT * FROM table_that_does_not_exist`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table_that_does_not_exist")
}

func TestQueryExecutor_SharesManagedPool(t *testing.T) {
	db := testhelpers.GetTestDB(t)
	ctx := context.Background()

	cm := datasource.NewConnectionManager(datasource.ConnectionManagerConfig{}, zaptest.NewLogger(t))
	defer cm.Close()

	first, err := NewQueryExecutor(ctx, testConfig(db), "planning", cm)
	require.NoError(t, err)
	second, err := NewQueryExecutor(ctx, testConfig(db), "planning", cm)
	require.NoError(t, err)

	assert.Same(t, first.pool, second.pool)
	require.NoError(t, first.Close())

	// Closing an executor leaves the managed pool usable.
	_, err = second.Query(ctx, "SELECT 1")
	require.NoError(t, err)
	assert.Equal(t, 1, cm.GetStats().ConnectionsByType["postgres"])
}
