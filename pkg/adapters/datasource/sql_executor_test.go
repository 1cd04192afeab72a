package datasource

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/recon-engine/pkg/models"
)

// stubResult is what the stub driver returns for every query except the
// ping query.
type stubResult struct {
	columns []string
	types   []string
	rows    [][]driver.Value
	err     error
	queries []string
}

type stubConnector struct{ r *stubResult }

func (c stubConnector) Connect(context.Context) (driver.Conn, error) { return stubConn{c.r}, nil }
func (c stubConnector) Driver() driver.Driver                        { return stubDriver{c.r} }

type stubDriver struct{ r *stubResult }

func (d stubDriver) Open(string) (driver.Conn, error) { return stubConn{d.r}, nil }

type stubConn struct{ r *stubResult }

func (c stubConn) Prepare(query string) (driver.Stmt, error) { return stubStmt{c.r, query}, nil }
func (c stubConn) Close() error                              { return nil }
func (c stubConn) Begin() (driver.Tx, error)                 { return nil, errors.New("transactions not supported") }

type stubStmt struct {
	r     *stubResult
	query string
}

func (s stubStmt) Close() error  { return nil }
func (s stubStmt) NumInput() int { return -1 }
func (s stubStmt) Exec([]driver.Value) (driver.Result, error) {
	return nil, errors.New("exec not supported")
}

func (s stubStmt) Query([]driver.Value) (driver.Rows, error) {
	if s.query == "SELECT 1" {
		return &stubRows{columns: []string{"1"}, types: []string{"INT"}, rows: [][]driver.Value{{int64(1)}}}, nil
	}
	s.r.queries = append(s.r.queries, s.query)
	if s.r.err != nil {
		return nil, s.r.err
	}
	return &stubRows{columns: s.r.columns, types: s.r.types, rows: s.r.rows}, nil
}

type stubRows struct {
	columns []string
	types   []string
	rows    [][]driver.Value
	next    int
}

func (r *stubRows) Columns() []string { return r.columns }
func (r *stubRows) Close() error      { return nil }
func (r *stubRows) Next(dest []driver.Value) error {
	if r.next >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.next])
	r.next++
	return nil
}
func (r *stubRows) ColumnTypeDatabaseTypeName(i int) string { return r.types[i] }

func newStubExecutor(r *stubResult) *SQLExecutor {
	db := sql.OpenDB(stubConnector{r})
	return NewSQLExecutor(db, models.DialectMySQL, nil, "SELECT 1", true)
}

func TestSQLExecutor_Query(t *testing.T) {
	shipped := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	r := &stubResult{
		columns: []string{"Material", "qty", "photo", "shipped"},
		types:   []string{"varchar", "DECIMAL", "BLOB", "DATETIME"},
		rows: [][]driver.Value{
			{[]byte("GPU-100"), []byte("12.50"), []byte{0x1, 0x2}, shipped},
			{[]byte("GPU-200"), nil, nil, nil},
		},
	}
	exec := newStubExecutor(r)
	defer exec.Close()

	result, err := exec.Query(context.Background(), "SELECT * FROM brz_lnd_RBP_GPU")
	require.NoError(t, err)

	assert.Equal(t, 2, result.RowCount)
	assert.Equal(t, []string{"Material", "qty", "photo", "shipped"}, result.ColumnNames())
	assert.Equal(t, "VARCHAR", result.Columns[0].Type)
	assert.Equal(t, "GPU-100", result.Rows[0]["Material"])
	assert.Equal(t, "12.50", result.Rows[0]["qty"])
	assert.Equal(t, []byte{0x1, 0x2}, result.Rows[0]["photo"])
	assert.Equal(t, shipped, result.Rows[0]["shipped"])
	assert.Nil(t, result.Rows[1]["qty"])
	assert.Equal(t, []string{"SELECT * FROM brz_lnd_RBP_GPU"}, r.queries)
}

func TestSQLExecutor_EmptyResult(t *testing.T) {
	exec := newStubExecutor(&stubResult{columns: []string{"a"}, types: []string{"INT"}})
	defer exec.Close()

	result, err := exec.Query(context.Background(), "SELECT a FROM t")
	require.NoError(t, err)
	assert.Equal(t, 0, result.RowCount)
	assert.NotNil(t, result.Rows)
}

func TestSQLExecutor_QueryError(t *testing.T) {
	exec := newStubExecutor(&stubResult{err: errors.New("Table 'hana.missing' doesn't exist")})
	defer exec.Close()

	_, err := exec.Query(context.Background(), "SELECT * FROM missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "doesn't exist")
}

func TestSQLExecutor_TestConnection(t *testing.T) {
	exec := newStubExecutor(&stubResult{})
	defer exec.Close()

	require.NoError(t, exec.TestConnection(context.Background()))
	assert.Equal(t, models.DialectMySQL, exec.Dialect())
}

func TestIsBinaryType(t *testing.T) {
	for _, typ := range []string{"BLOB", "varbinary", "RAW", "bytea"} {
		assert.True(t, IsBinaryType(typ), typ)
	}
	for _, typ := range []string{"VARCHAR", "DECIMAL", "NVARCHAR", "JSON"} {
		assert.False(t, IsBinaryType(typ), typ)
	}
}
