package oracle

import (
	"context"
	"strings"

	go_ora "github.com/sijms/go-ora/v2"

	"github.com/ekaya-inc/recon-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/recon-engine/pkg/config"
	"github.com/ekaya-inc/recon-engine/pkg/models"
)

// NewQueryExecutor creates an Oracle query executor. The pool is shared
// through connMgr under name when connMgr is non-nil.
func NewQueryExecutor(ctx context.Context, cfg *Config, name string, connMgr *datasource.ConnectionManager) (*datasource.SQLExecutor, error) {
	return datasource.OpenSQLExecutor(ctx, name, connMgr,
		datasource.SQLOpener("oracle", buildURL(cfg), "oracle"),
		models.DialectOracle, mapOracleType, "SELECT 1 FROM DUAL")
}

func buildURL(cfg *Config) string {
	var urlOptions map[string]string
	if cfg.SSL {
		urlOptions = map[string]string{"SSL": "true"}
	}
	return go_ora.BuildUrl(config.ResolveHostForDocker(cfg.Host), cfg.Port, cfg.Service, cfg.User, cfg.Password, urlOptions)
}

// mapOracleType maps Oracle type names to the names reported for result columns.
func mapOracleType(oracleType string) string {
	switch t := strings.ToUpper(oracleType); t {
	case "NUMBER":
		return "NUMERIC"
	case "VARCHAR2", "NVARCHAR2":
		return "VARCHAR"
	case "NCHAR":
		return "CHAR"
	case "CLOB", "NCLOB", "LONG":
		return "TEXT"
	case "BINARY_FLOAT":
		return "REAL"
	case "BINARY_DOUBLE":
		return "DOUBLE PRECISION"
	case "TIMESTAMP WITH TIME ZONE", "TIMESTAMP WITH LOCAL TIME ZONE":
		return "TIMESTAMPTZ"
	case "":
		return "UNKNOWN"
	default:
		return t
	}
}
