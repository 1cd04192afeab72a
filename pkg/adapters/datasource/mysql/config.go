package mysql

import (
	"github.com/ekaya-inc/recon-engine/pkg/adapters/datasource"
)

// Config contains MySQL-specific connection options.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	TLS      string // "", "true", "skip-verify", "preferred" or a registered config name
}

// DefaultPort returns the default MySQL port.
func DefaultPort() int {
	return 3306
}

// FromMap creates a Config from a datasource options map.
func FromMap(options map[string]any) (*Config, error) {
	opts := datasource.Options(options)
	cfg := &Config{Port: DefaultPort()}

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
	cfg.TLS, _ = opts.String("tls")

	return cfg, nil
}
