package datasource

import (
	"context"
	"fmt"
	"sort"

	"github.com/ekaya-inc/recon-engine/pkg/apperrors"
)

// DatasourceConfig names an adapter type and its connection options.
type DatasourceConfig struct {
	Type    string         `yaml:"type" json:"type"`
	Options map[string]any `yaml:"options" json:"options"`
}

// DatasourceAdapterFactory creates executors for configured datasources.
type DatasourceAdapterFactory interface {
	// NewQueryExecutor creates a query executor for the named datasource.
	NewQueryExecutor(ctx context.Context, name string) (QueryExecutor, error)

	// Datasources returns the configured datasource names.
	Datasources() []string

	// ListTypes returns info for all registered adapter types.
	ListTypes() []DatasourceAdapterInfo
}

type registryFactory struct {
	datasources map[string]DatasourceConfig
	connMgr     *ConnectionManager
}

// NewDatasourceAdapterFactory returns a factory that resolves datasource
// names through datasources and adapters through the global registry.
func NewDatasourceAdapterFactory(datasources map[string]DatasourceConfig, connMgr *ConnectionManager) DatasourceAdapterFactory {
	return &registryFactory{
		datasources: datasources,
		connMgr:     connMgr,
	}
}

func (f *registryFactory) NewQueryExecutor(ctx context.Context, name string) (QueryExecutor, error) {
	ds, ok := f.datasources[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownDatasource, name)
	}
	factory := GetQueryExecutorFactory(ds.Type)
	if factory == nil {
		return nil, fmt.Errorf("unsupported datasource type: %s (not compiled in)", ds.Type)
	}
	return factory(ctx, name, ds.Options, f.connMgr)
}

func (f *registryFactory) Datasources() []string {
	names := make([]string, 0, len(f.datasources))
	for name := range f.datasources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (f *registryFactory) ListTypes() []DatasourceAdapterInfo {
	return RegisteredAdapters()
}

// Ensure registryFactory implements DatasourceAdapterFactory at compile time.
var _ DatasourceAdapterFactory = (*registryFactory)(nil)
