package mssql

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	_ "github.com/microsoft/go-mssqldb"         // SQL Server driver
	_ "github.com/microsoft/go-mssqldb/azuread" // Azure AD support

	"github.com/ekaya-inc/recon-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/recon-engine/pkg/config"
	"github.com/ekaya-inc/recon-engine/pkg/models"
)

// NewQueryExecutor creates a SQL Server query executor. The pool is shared
// through connMgr under name when connMgr is non-nil.
func NewQueryExecutor(ctx context.Context, cfg *Config, name string, connMgr *datasource.ConnectionManager) (*datasource.SQLExecutor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	driverName, dsn := connectionString(cfg)
	return datasource.OpenSQLExecutor(ctx, name, connMgr,
		datasource.SQLOpener(driverName, dsn, "sqlserver"),
		models.DialectSQLServer, mapSQLServerType, "SELECT 1")
}

// connectionString returns the driver name and DSN for cfg. Service principal
// auth goes through the azuresql driver with a fedauth parameter.
func connectionString(cfg *Config) (string, string) {
	query := url.Values{}
	query.Add("database", cfg.Database)
	query.Add("encrypt", strconv.FormatBool(cfg.Encrypt))
	if cfg.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}
	if cfg.ConnectionTimeout > 0 {
		query.Add("connection timeout", strconv.Itoa(cfg.ConnectionTimeout))
	}

	host := config.ResolveHostForDocker(cfg.Host)

	if cfg.AuthMethod == AuthServicePrincipal {
		query.Add("fedauth", "ActiveDirectoryServicePrincipal")
		query.Add("user id", cfg.ClientID+"@"+cfg.TenantID)
		query.Add("password", cfg.ClientSecret)
		return "azuresql", fmt.Sprintf("sqlserver://%s:%d?%s", host, cfg.Port, query.Encode())
	}

	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.Username, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", host, cfg.Port),
		RawQuery: query.Encode(),
	}
	return "sqlserver", u.String()
}
