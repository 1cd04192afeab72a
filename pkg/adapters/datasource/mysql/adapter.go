package mysql

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/ekaya-inc/recon-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/recon-engine/pkg/config"
	"github.com/ekaya-inc/recon-engine/pkg/models"
)

// NewQueryExecutor creates a MySQL query executor. The pool is shared
// through connMgr under name when connMgr is non-nil.
func NewQueryExecutor(ctx context.Context, cfg *Config, name string, connMgr *datasource.ConnectionManager) (*datasource.SQLExecutor, error) {
	return datasource.OpenSQLExecutor(ctx, name, connMgr,
		datasource.SQLOpener("mysql", buildDSN(cfg), "mysql"),
		models.DialectMySQL, mapMySQLType, "SELECT 1")
}

// buildDSN renders cfg through the driver's own formatter so credentials are
// escaped the way the driver parses them. ANSI_QUOTES is not set: generated
// SQL quotes identifiers with backticks.
func buildDSN(cfg *Config) string {
	dsn := mysql.NewConfig()
	dsn.User = cfg.User
	dsn.Passwd = cfg.Password
	dsn.Net = "tcp"
	dsn.Addr = net.JoinHostPort(config.ResolveHostForDocker(cfg.Host), strconv.Itoa(cfg.Port))
	dsn.DBName = cfg.Database
	dsn.ParseTime = true
	dsn.Timeout = 30 * time.Second
	if cfg.TLS != "" {
		dsn.TLSConfig = cfg.TLS
	}
	return dsn.FormatDSN()
}

// mapMySQLType maps MySQL type names to the names reported for result columns.
func mapMySQLType(mysqlType string) string {
	t := strings.ToUpper(mysqlType)
	t = strings.TrimPrefix(t, "UNSIGNED ")
	switch t {
	case "INT", "MEDIUMINT":
		return "INTEGER"
	case "DECIMAL":
		return "NUMERIC"
	case "DOUBLE":
		return "DOUBLE PRECISION"
	case "DATETIME":
		return "TIMESTAMP"
	case "TINYTEXT", "MEDIUMTEXT", "LONGTEXT":
		return "TEXT"
	case "":
		return "UNKNOWN"
	}
	return t
}

