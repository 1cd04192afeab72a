package postgres

import (
	"github.com/ekaya-inc/recon-engine/pkg/adapters/datasource"
)

// Config contains PostgreSQL-specific connection options.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // "disable", "require", "verify-ca", "verify-full"
}

// DefaultPort returns the default PostgreSQL port.
func DefaultPort() int {
	return 5432
}

// DefaultSSLMode returns the default SSL mode.
func DefaultSSLMode() string {
	return "require"
}

// FromMap creates a Config from a datasource options map.
func FromMap(options map[string]any) (*Config, error) {
	opts := datasource.Options(options)
	cfg := &Config{
		Port:    DefaultPort(),
		SSLMode: DefaultSSLMode(),
	}

	var err error
	if cfg.Host, err = opts.RequiredString("host"); err != nil {
		return nil, err
	}
	if port, ok, err := opts.Int("port"); err != nil {
		return nil, err
	} else if ok {
		cfg.Port = port
	}
	if err := datasource.ValidatePort(cfg.Port); err != nil {
		return nil, err
	}
	if cfg.User, err = opts.RequiredString("user", "username"); err != nil {
		return nil, err
	}
	cfg.Password, _ = opts.String("password")
	if cfg.Database, err = opts.RequiredString("database", "name"); err != nil {
		return nil, err
	}
	if sslMode, ok := opts.String("ssl_mode", "sslmode"); ok {
		cfg.SSLMode = sslMode
	}

	return cfg, nil
}
