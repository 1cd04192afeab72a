package datasource

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolConnector is a driver-neutral handle on one datasource's connection
// pool. The ConnectionManager health-checks, expires and reports on pools
// through it.
type PoolConnector interface {
	Ping(ctx context.Context) error
	Close() error

	// GetType returns the datasource type for logging and stats.
	GetType() string

	// InUse returns how many connections are currently checked out.
	InUse() int
}

// PoolOpener creates a new pool. The ConnectionManager calls it on a cache
// miss and again after a failed health check.
type PoolOpener func(ctx context.Context, cfg ConnectionManagerConfig) (PoolConnector, error)

// pgxPoolConnector serves postgres datasources through pgx's own pool.
type pgxPoolConnector struct {
	pool *pgxpool.Pool
}

func (c *pgxPoolConnector) Ping(ctx context.Context) error { return c.pool.Ping(ctx) }

func (c *pgxPoolConnector) Close() error {
	c.pool.Close()
	return nil
}

func (c *pgxPoolConnector) GetType() string { return "postgres" }

func (c *pgxPoolConnector) InUse() int { return int(c.pool.Stat().AcquiredConns()) }

// sqlPoolConnector serves the database/sql drivers (SQL Server, MySQL, Oracle).
type sqlPoolConnector struct {
	db     *sql.DB
	dsType string
}

func (c *sqlPoolConnector) Ping(ctx context.Context) error { return c.db.PingContext(ctx) }

func (c *sqlPoolConnector) Close() error { return c.db.Close() }

func (c *sqlPoolConnector) GetType() string { return c.dsType }

func (c *sqlPoolConnector) InUse() int { return c.db.Stats().InUse }

var (
	_ PoolConnector = (*pgxPoolConnector)(nil)
	_ PoolConnector = (*sqlPoolConnector)(nil)
)
