package datasource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/recon-engine/pkg/logging"
	"github.com/ekaya-inc/recon-engine/pkg/retry"
)

const (
	DefaultConnectionTTLMinutes = 5
	DefaultCleanupInterval      = 1 * time.Minute
	DefaultMaxConnections       = 20
	DefaultPoolMaxConns         = 10
	DefaultPoolMinConns         = 1
	DefaultHealthCheckTimeout   = 5 * time.Second
)

// ConnectionManagerConfig holds configuration for the connection manager.
// Zero values take the package defaults.
type ConnectionManagerConfig struct {
	TTLMinutes     int
	MaxConnections int
	PoolMaxConns   int32
	PoolMinConns   int32
}

// ConnectionManager caches one pool per datasource name with TTL-based
// expiry and a health check on every reuse.
type ConnectionManager struct {
	mu          sync.RWMutex
	connections map[string]*ManagedConnection // key: datasource name
	cfg         ConnectionManagerConfig
	ttl         time.Duration
	retryCfg    *retry.Config
	stopped     bool
	stopChan    chan struct{}
	logger      *zap.Logger
}

// ManagedConnection is a pooled connection and the time it was last handed out.
type ManagedConnection struct {
	connector PoolConnector
	lastUsed  time.Time
	mu        sync.Mutex
}

// NewConnectionManager creates a connection manager with the given configuration.
// Starts a background cleanup goroutine that runs until Close() is called.
func NewConnectionManager(cfg ConnectionManagerConfig, logger *zap.Logger) *ConnectionManager {
	if cfg.TTLMinutes <= 0 {
		cfg.TTLMinutes = DefaultConnectionTTLMinutes
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = DefaultMaxConnections
	}
	if cfg.PoolMaxConns <= 0 {
		cfg.PoolMaxConns = DefaultPoolMaxConns
	}
	if cfg.PoolMinConns <= 0 {
		cfg.PoolMinConns = DefaultPoolMinConns
	}

	manager := &ConnectionManager{
		connections: make(map[string]*ManagedConnection),
		cfg:         cfg,
		ttl:         time.Duration(cfg.TTLMinutes) * time.Minute,
		retryCfg:    retry.DefaultConfig(),
		stopChan:    make(chan struct{}),
		logger:      logger.Named("connection-manager"),
	}

	go manager.cleanupExpiredConnections()
	return manager
}

// GetOrCreateConnection returns the pool cached under key, creating it with
// open on a miss. A cached pool that fails its health check is closed and
// replaced.
func (m *ConnectionManager) GetOrCreateConnection(ctx context.Context, key string, open PoolOpener) (PoolConnector, error) {
	m.mu.RLock()
	managed, exists := m.connections[key]
	stopped := m.stopped
	m.mu.RUnlock()

	if stopped {
		return nil, fmt.Errorf("connection manager is closed")
	}

	if exists {
		managed.mu.Lock()

		healthCtx, cancel := context.WithTimeout(ctx, DefaultHealthCheckTimeout)
		defer cancel()

		err := retry.Do(healthCtx, m.retryCfg, func() error {
			return managed.connector.Ping(healthCtx)
		})

		if err != nil {
			m.logger.Warn("connection unhealthy, recreating",
				zap.String("datasource", key),
				zap.String("error", logging.SanitizeError(err)),
			)
			managed.mu.Unlock()
			m.removeConnection(key)
			return m.createConnection(ctx, key, open)
		}

		managed.lastUsed = time.Now()
		managed.mu.Unlock()
		return managed.connector, nil
	}

	return m.createConnection(ctx, key, open)
}

// createConnection opens a new pool with retry logic.
// Caller must NOT hold any locks (this method acquires write lock).
func (m *ConnectionManager) createConnection(ctx context.Context, key string, open PoolOpener) (PoolConnector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Another goroutine may have created it while we waited for the lock.
	if managed, exists := m.connections[key]; exists && managed != nil {
		managed.mu.Lock()
		defer managed.mu.Unlock()
		managed.lastUsed = time.Now()
		return managed.connector, nil
	}

	if len(m.connections) >= m.cfg.MaxConnections {
		m.logger.Warn("max connections reached",
			zap.Int("current", len(m.connections)),
			zap.Int("max", m.cfg.MaxConnections),
		)
		return nil, fmt.Errorf("maximum datasource connections reached (%d)", m.cfg.MaxConnections)
	}

	connector, err := retry.DoWithResult(ctx, m.retryCfg, func() (PoolConnector, error) {
		return open(ctx, m.cfg)
	})
	if err != nil {
		m.logger.Error("failed to create pool after retries",
			zap.String("datasource", key),
			zap.String("error", logging.SanitizeError(err)),
		)
		return nil, fmt.Errorf("failed to create pool for %s after retries: %w", key, err)
	}

	m.connections[key] = &ManagedConnection{
		connector: connector,
		lastUsed:  time.Now(),
	}

	m.logger.Info("created new connection pool",
		zap.String("datasource", key),
		zap.String("type", connector.GetType()),
		zap.Int("totalConnections", len(m.connections)),
	)

	return connector, nil
}

// removeConnection removes a connection from the pool and closes it.
// Caller must NOT hold m.mu lock (this method acquires write lock).
func (m *ConnectionManager) removeConnection(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if managed, exists := m.connections[key]; exists && managed != nil {
		if managed.connector != nil {
			if err := managed.connector.Close(); err != nil {
				m.logger.Debug("error closing connection",
					zap.String("datasource", key),
					zap.String("error", logging.SanitizeError(err)),
				)
			}
		}
		delete(m.connections, key)
		m.logger.Debug("removed connection", zap.String("datasource", key))
	}
}

func (m *ConnectionManager) cleanupExpiredConnections() {
	ticker := time.NewTicker(DefaultCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.performCleanup(time.Now())
		case <-m.stopChan:
			return
		}
	}
}

// performCleanup removes connections that haven't been used within TTL of now.
// Lock order is manager then connection.
func (m *ConnectionManager) performCleanup(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}

	var expiredKeys []string
	for key, managed := range m.connections {
		if managed == nil {
			continue
		}
		managed.mu.Lock()
		idleTime := now.Sub(managed.lastUsed)
		managed.mu.Unlock()

		if idleTime > m.ttl {
			expiredKeys = append(expiredKeys, key)
			m.logger.Debug("marking connection for cleanup",
				zap.String("datasource", key),
				zap.Duration("idleTime", idleTime),
				zap.Duration("ttl", m.ttl),
			)
		}
	}

	for _, key := range expiredKeys {
		if managed := m.connections[key]; managed != nil && managed.connector != nil {
			_ = managed.connector.Close()
		}
		delete(m.connections, key)
	}

	if len(expiredKeys) > 0 {
		m.logger.Info("cleaned up expired connections",
			zap.Int("count", len(expiredKeys)),
			zap.Int("remaining", len(m.connections)),
		)
	}
}

// Close closes all connections in the manager and stops the cleanup goroutine.
// This method is idempotent and safe to call multiple times.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil
	}

	m.stopped = true
	close(m.stopChan)

	for _, managed := range m.connections {
		if managed != nil && managed.connector != nil {
			_ = managed.connector.Close()
		}
	}

	m.connections = make(map[string]*ManagedConnection)
	m.logger.Info("connection manager closed")
	return nil
}

// GetStats returns statistics about the connection manager.
// Safe to call concurrently.
func (m *ConnectionManager) GetStats() ConnectionStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	stats := ConnectionStats{
		TotalConnections:  len(m.connections),
		MaxConnections:    m.cfg.MaxConnections,
		TTLMinutes:        int(m.ttl.Minutes()),
		ConnectionsByType: make(map[string]int),
	}

	for _, managed := range m.connections {
		if managed == nil {
			continue
		}
		stats.ConnectionsByType[managed.connector.GetType()]++
		stats.InUseConnections += managed.connector.InUse()

		managed.mu.Lock()
		idleSeconds := int(now.Sub(managed.lastUsed).Seconds())
		managed.mu.Unlock()
		if idleSeconds > stats.OldestIdleSeconds {
			stats.OldestIdleSeconds = idleSeconds
		}
	}

	return stats
}

// ConnectionStats contains statistics about the connection manager state.
type ConnectionStats struct {
	TotalConnections  int            `json:"total_connections"`
	InUseConnections  int            `json:"in_use_connections"`
	MaxConnections    int            `json:"max_connections"`
	TTLMinutes        int            `json:"ttl_minutes"`
	ConnectionsByType map[string]int `json:"connections_by_type"`
	OldestIdleSeconds int            `json:"oldest_idle_seconds"`
}
