//go:build mysql || all_adapters

package mysql

import (
	"context"

	"github.com/ekaya-inc/recon-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/recon-engine/pkg/models"
)

func init() {
	datasource.Register(datasource.DatasourceAdapterRegistration{
		Info: datasource.DatasourceAdapterInfo{
			Type:        "mysql",
			DisplayName: "MySQL",
			Description: "Connect to MySQL 8+, MariaDB 10.5+, Aurora MySQL",
			Dialect:     models.DialectMySQL,
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
