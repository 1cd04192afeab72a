//go:build postgres || all_adapters

package postgres

import (
	"context"

	"github.com/ekaya-inc/recon-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/recon-engine/pkg/models"
)

func init() {
	datasource.Register(datasource.DatasourceAdapterRegistration{
		Info: datasource.DatasourceAdapterInfo{
			Type:        "postgres",
			DisplayName: "PostgreSQL",
			Description: "Connect to PostgreSQL 12+, Aurora PostgreSQL, Supabase",
			Dialect:     models.DialectPostgres,
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
