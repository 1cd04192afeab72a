package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresOpener returns a PoolOpener that creates a pgx pool for connString.
func PostgresOpener(connString string) PoolOpener {
	return func(ctx context.Context, cfg ConnectionManagerConfig) (PoolConnector, error) {
		poolConfig, err := pgxpool.ParseConfig(connString)
		if err != nil {
			return nil, fmt.Errorf("failed to parse connection string: %w", err)
		}
		poolConfig.MaxConns = cfg.PoolMaxConns
		poolConfig.MinConns = cfg.PoolMinConns
		poolConfig.MaxConnIdleTime = time.Duration(cfg.TTLMinutes) * time.Minute

		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, err
		}
		return &pgxPoolConnector{pool: pool}, nil
	}
}

// SQLOpener returns a PoolOpener that opens a database/sql pool with the
// given driver and verifies it with a ping.
func SQLOpener(driverName, dsn, dsType string) PoolOpener {
	return func(ctx context.Context, cfg ConnectionManagerConfig) (PoolConnector, error) {
		db, err := sql.Open(driverName, dsn)
		if err != nil {
			return nil, fmt.Errorf("open %s connection: %w", dsType, err)
		}
		db.SetMaxOpenConns(int(cfg.PoolMaxConns))
		db.SetMaxIdleConns(int(cfg.PoolMinConns))
		db.SetConnMaxIdleTime(time.Duration(cfg.TTLMinutes) * time.Minute)

		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("connection test failed: %w", err)
		}
		return &sqlPoolConnector{db: db, dsType: dsType}, nil
	}
}

// GetPostgresPool returns the pgx pool behind a connector opened by
// PostgresOpener.
func GetPostgresPool(connector PoolConnector) (*pgxpool.Pool, error) {
	c, ok := connector.(*pgxPoolConnector)
	if !ok {
		return nil, fmt.Errorf("%s connector is not a PostgreSQL pool", connector.GetType())
	}
	return c.pool, nil
}

// GetSQLDB returns the *sql.DB behind a connector opened by SQLOpener.
func GetSQLDB(connector PoolConnector) (*sql.DB, error) {
	c, ok := connector.(*sqlPoolConnector)
	if !ok {
		return nil, fmt.Errorf("%s connector is not a database/sql pool", connector.GetType())
	}
	return c.db, nil
}
