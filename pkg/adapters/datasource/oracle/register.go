//go:build oracle || all_adapters

package oracle

import (
	"context"

	"github.com/ekaya-inc/recon-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/recon-engine/pkg/models"
)

func init() {
	datasource.Register(datasource.DatasourceAdapterRegistration{
		Info: datasource.DatasourceAdapterInfo{
			Type:        "oracle",
			DisplayName: "Oracle Database",
			Description: "Connect to Oracle 12c+ by service name",
			Dialect:     models.DialectOracle,
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
