package oracle

import (
	"github.com/ekaya-inc/recon-engine/pkg/adapters/datasource"
)

// Config contains Oracle-specific connection options.
type Config struct {
	Host     string
	Port     int
	Service  string // service name, e.g. ORCLPDB1
	User     string
	Password string
	SSL      bool
}

// DefaultPort returns the default Oracle listener port.
func DefaultPort() int {
	return 1521
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
	if cfg.Service, err = opts.RequiredString("service", "service_name", "database"); err != nil {
		return nil, err
	}
	if cfg.User, err = opts.RequiredString("user", "username"); err != nil {
		return nil, err
	}
	cfg.Password, _ = opts.String("password")
	if ssl, ok, err := opts.Bool("ssl"); err != nil {
		return nil, err
	} else if ok {
		cfg.SSL = ssl
	}

	return cfg, nil
}
