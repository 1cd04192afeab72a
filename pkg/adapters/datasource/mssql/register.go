//go:build mssql || all_adapters

package mssql

import (
	"context"

	"github.com/ekaya-inc/recon-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/recon-engine/pkg/models"
)

func init() {
	datasource.Register(datasource.DatasourceAdapterRegistration{
		Info: datasource.DatasourceAdapterInfo{
			Type:        "sqlserver",
			DisplayName: "Microsoft SQL Server",
			Description: "Connect to SQL Server 2019+, Azure SQL Database",
			Dialect:     models.DialectSQLServer,
		},
		QueryExecutorFactory: func(ctx context.Context, name string, options map[string]any, connMgr *datasource.ConnectionManager) (datasource.QueryExecutor, error) {
			cfg, err := FromMap(options)
			if err != nil {
				return nil, err
			}
			return NewQueryExecutor(ctx, cfg, name, connMgr)
		},
	})
}
