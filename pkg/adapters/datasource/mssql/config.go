package mssql

import (
	"fmt"

	"github.com/ekaya-inc/recon-engine/pkg/adapters/datasource"
)

// Authentication methods.
const (
	AuthSQL              = "sql"
	AuthServicePrincipal = "service_principal"
)

// Config contains SQL Server-specific connection options.
type Config struct {
	Host     string
	Port     int
	Database string

	// AuthMethod is AuthSQL or AuthServicePrincipal.
	AuthMethod string

	// SQL Authentication fields
	Username string
	Password string

	// Service Principal (Azure AD) fields
	TenantID     string
	ClientID     string
	ClientSecret string

	Encrypt                bool
	TrustServerCertificate bool
	ConnectionTimeout      int // seconds
}

// DefaultPort returns the default SQL Server port.
func DefaultPort() int {
	return 1433
}

// DefaultConnectionTimeout returns the default connection timeout in seconds.
func DefaultConnectionTimeout() int {
	return 30
}

// FromMap creates a Config from a datasource options map. Without an explicit
// auth_method, a client_id selects service principal auth and a username
// selects SQL auth.
func FromMap(options map[string]any) (*Config, error) {
	opts := datasource.Options(options)
	cfg := &Config{
		Port:              DefaultPort(),
		Encrypt:           true,
		ConnectionTimeout: DefaultConnectionTimeout(),
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
	if cfg.Database, err = opts.RequiredString("database", "name"); err != nil {
		return nil, err
	}

	if encryptStr, ok := opts.String("encrypt"); ok && encryptStr == "strict" {
		cfg.Encrypt = true
	} else if encrypt, ok, err := opts.Bool("encrypt"); err != nil {
		return nil, err
	} else if ok {
		cfg.Encrypt = encrypt
	}
	if trust, ok, err := opts.Bool("trust_server_certificate"); err != nil {
		return nil, err
	} else if ok {
		cfg.TrustServerCertificate = trust
	}
	if timeout, ok, err := opts.Int("connection_timeout"); err != nil {
		return nil, err
	} else if ok {
		cfg.ConnectionTimeout = timeout
	}

	if method, ok := opts.String("auth_method"); ok {
		cfg.AuthMethod = method
	} else if _, ok := opts.String("client_id"); ok {
		cfg.AuthMethod = AuthServicePrincipal
	} else if _, ok := opts.String("username", "user"); ok {
		cfg.AuthMethod = AuthSQL
	} else {
		return nil, fmt.Errorf("could not auto-detect auth method; no credentials provided")
	}

	switch cfg.AuthMethod {
	case AuthSQL:
		if cfg.Username, err = opts.RequiredString("username", "user"); err != nil {
			return nil, fmt.Errorf("%w for SQL authentication", err)
		}
		cfg.Password, _ = opts.String("password")
	case AuthServicePrincipal:
		cfg.TenantID, _ = opts.String("tenant_id")
		cfg.ClientID, _ = opts.String("client_id")
		cfg.ClientSecret, _ = opts.String("client_secret")
	default:
		return nil, fmt.Errorf("invalid auth method: %s (must be sql or service_principal)", cfg.AuthMethod)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if the config has all required fields for the selected auth method.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if err := datasource.ValidatePort(c.Port); err != nil {
		return err
	}

	switch c.AuthMethod {
	case AuthSQL:
		if c.Username == "" {
			return fmt.Errorf("username is required for SQL authentication")
		}
	case AuthServicePrincipal:
		if c.TenantID == "" {
			return fmt.Errorf("tenant_id is required for service principal")
		}
		if c.ClientID == "" {
			return fmt.Errorf("client_id is required for service principal")
		}
		if c.ClientSecret == "" {
			return fmt.Errorf("client_secret is required for service principal")
		}
	default:
		return fmt.Errorf("invalid auth method: %s", c.AuthMethod)
	}
	return nil
}
