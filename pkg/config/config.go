package config

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/ekaya-inc/recon-engine/pkg/crypto"
)

// Config holds all configuration for recon-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database is the optional PostgreSQL store for knowledge graphs.
	Database DatabaseConfig `yaml:"database"`

	// Redis backs the compiled query cache when Host is set.
	Redis RedisConfig `yaml:"redis"`

	KnowledgeGraph KnowledgeGraphConfig `yaml:"knowledge_graph"`
	LLM            LLMConfig            `yaml:"llm"`
	Pathfinding    PathfindingConfig    `yaml:"pathfinding"`
	Query          QueryConfig          `yaml:"query"`

	// Datasource connection management configuration
	Datasource DatasourceConfig `yaml:"datasource"`

	// Datasources are the named databases a request may execute against.
	Datasources map[string]DatasourceEntry `yaml:"datasources"`

	// CredentialsKey decrypts "enc:" datasource option values.
	CredentialsKey string `yaml:"-" env:"CREDENTIALS_KEY"` // Secret - not in YAML
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:""`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"recon"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"recon_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// IsConfigured reports whether a PostgreSQL host was given.
func (c *DatabaseConfig) IsConfigured() bool {
	return c.Host != ""
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		ResolveHostForDocker(c.Host), c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	// Timeout bounds every cache round trip. Cache errors are ignored, so
	// a slow Redis must not stall queries.
	Timeout time.Duration `yaml:"timeout" env:"REDIS_TIMEOUT" env-default:"500ms"`
}

// Knowledge graph stores.
const (
	KGStoreFile     = "file"
	KGStorePostgres = "postgres"
)

// KnowledgeGraphConfig selects where knowledge graphs are loaded from.
type KnowledgeGraphConfig struct {
	Store     string `yaml:"store" env:"KG_STORE" env-default:"file"`
	Directory string `yaml:"directory" env:"KG_DIRECTORY" env-default:"./graphs"`
	// DefaultGraph is used by MCP calls that omit graph_id.
	DefaultGraph string `yaml:"default_graph" env:"KG_DEFAULT_GRAPH" env-default:""`
	// CacheTTL bounds how long a compiled query stays cached.
	CacheTTL time.Duration `yaml:"cache_ttl" env:"KG_CACHE_TTL" env-default:"15m"`
}

// LLMConfig configures the optional LLM used for extraction and SQL generation.
// An empty provider, base URL and model disables LLM assistance.
type LLMConfig struct {
	Provider    string        `yaml:"provider" env:"LLM_PROVIDER" env-default:""`
	BaseURL     string        `yaml:"base_url" env:"LLM_BASE_URL" env-default:""`
	Model       string        `yaml:"model" env:"LLM_MODEL" env-default:""`
	APIKey      string        `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	Timeout     time.Duration `yaml:"timeout" env:"LLM_TIMEOUT" env-default:"20s"`
	MaxRetries  int           `yaml:"max_retries" env:"LLM_MAX_RETRIES" env-default:"1"`
	Temperature float64       `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0"`
	MaxTokens   int           `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"2048"`

	// Circuit breaker: consecutive failures before tripping, and how long
	// to wait before probing again.
	BreakerThreshold  int           `yaml:"breaker_threshold" env:"LLM_BREAKER_THRESHOLD" env-default:"5"`
	BreakerResetAfter time.Duration `yaml:"breaker_reset_after" env:"LLM_BREAKER_RESET_AFTER" env-default:"30s"`
}

// IsEnabled reports whether any LLM endpoint is configured.
func (c *LLMConfig) IsEnabled() bool {
	return c.Provider != "" || c.BaseURL != "" || c.Model != ""
}

// PathfindingConfig tunes join path search.
type PathfindingConfig struct {
	MaxHops               int     `yaml:"max_hops" env:"PATHFINDING_MAX_HOPS" env-default:"5"`
	ConfidenceWeight      float64 `yaml:"confidence_weight" env:"PATHFINDING_CONFIDENCE_WEIGHT" env-default:"0.7"`
	LengthWeight          float64 `yaml:"length_weight" env:"PATHFINDING_LENGTH_WEIGHT" env-default:"0.3"`
	DefaultEdgeConfidence float64 `yaml:"default_edge_confidence" env:"PATHFINDING_DEFAULT_EDGE_CONFIDENCE" env-default:"0.75"`
}

// QueryConfig holds request defaults.
type QueryConfig struct {
	DefaultRowLimit int    `yaml:"default_row_limit" env:"QUERY_DEFAULT_ROW_LIMIT" env-default:"1000"`
	MaxRowLimit     int    `yaml:"max_row_limit" env:"QUERY_MAX_ROW_LIMIT" env-default:"1000"`
	DefaultDialect  string `yaml:"default_dialect" env:"QUERY_DEFAULT_DIALECT" env-default:"postgres"`
}

// DatasourceConfig holds datasource connection management settings.
type DatasourceConfig struct {
	// ConnectionTTLMinutes is how long idle datasource connections are kept alive.
	ConnectionTTLMinutes int `yaml:"connection_ttl_minutes" env:"DATASOURCE_CONNECTION_TTL_MINUTES" env-default:"5"`
	// MaxConnections limits how many datasource pools may be open at once.
	MaxConnections int `yaml:"max_connections" env:"DATASOURCE_MAX_CONNECTIONS" env-default:"20"`
	// PoolMaxConns is the maximum number of connections per datasource pool.
	PoolMaxConns int32 `yaml:"pool_max_conns" env:"DATASOURCE_POOL_MAX_CONNS" env-default:"10"`
	// PoolMinConns is the minimum number of connections per datasource pool.
	PoolMinConns int32 `yaml:"pool_min_conns" env:"DATASOURCE_POOL_MIN_CONNS" env-default:"1"`
}

// DatasourceEntry names an adapter type and its connection options.
// Options are adapter specific; passwords may be given as "${ENV_VAR}" or
// as an "enc:" value sealed with the credentials key.
type DatasourceEntry struct {
	Type    string         `yaml:"type"`
	Options map[string]any `yaml:"options"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	return LoadFile("config.yaml", version)
}

// LoadFile reads configuration from path with environment variable overrides.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cfg.expandDatasourceSecrets(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	p := c.Pathfinding
	if p.MaxHops < 1 {
		return fmt.Errorf("pathfinding.max_hops must be at least 1, got %d", p.MaxHops)
	}
	if p.ConfidenceWeight < 0 || p.LengthWeight < 0 {
		return fmt.Errorf("pathfinding weights must not be negative")
	}
	if math.Abs(p.ConfidenceWeight+p.LengthWeight-1) > 1e-6 {
		return fmt.Errorf("pathfinding weights must sum to 1, got %.3f", p.ConfidenceWeight+p.LengthWeight)
	}
	if p.DefaultEdgeConfidence < 0 || p.DefaultEdgeConfidence > 1 {
		return fmt.Errorf("pathfinding.default_edge_confidence must be within [0,1]")
	}

	switch c.KnowledgeGraph.Store {
	case KGStoreFile:
		if c.KnowledgeGraph.Directory == "" {
			return fmt.Errorf("knowledge_graph.directory is required for the file store")
		}
	case KGStorePostgres:
		if !c.Database.IsConfigured() {
			return fmt.Errorf("database.host is required for the postgres knowledge graph store")
		}
	default:
		return fmt.Errorf("unknown knowledge_graph.store %q", c.KnowledgeGraph.Store)
	}

	if c.Query.MaxRowLimit < 1 {
		return fmt.Errorf("query.max_row_limit must be at least 1")
	}
	if c.Query.DefaultRowLimit < 1 || c.Query.DefaultRowLimit > c.Query.MaxRowLimit {
		return fmt.Errorf("query.default_row_limit must be within [1,%d]", c.Query.MaxRowLimit)
	}

	if c.LLM.MaxRetries != 1 {
		return fmt.Errorf("llm.max_retries must be 1, got %d", c.LLM.MaxRetries)
	}

	for name, ds := range c.Datasources {
		if ds.Type == "" {
			return fmt.Errorf("datasources.%s.type is required", name)
		}
	}
	return nil
}

// expandDatasourceSecrets replaces "${VAR}" option values with the
// environment variable they name and decrypts sealed values.
func (c *Config) expandDatasourceSecrets() error {
	var encryptor *crypto.CredentialEncryptor
	for name, ds := range c.Datasources {
		for key, value := range ds.Options {
			s, ok := value.(string)
			if !ok {
				continue
			}
			if env, ok := envReference(s); ok {
				s = os.Getenv(env)
				ds.Options[key] = s
			}
			if !crypto.IsSealed(s) {
				continue
			}
			if encryptor == nil {
				var err error
				encryptor, err = crypto.NewCredentialEncryptor(c.CredentialsKey)
				if err != nil {
					return fmt.Errorf("datasources.%s.options.%s is encrypted but CREDENTIALS_KEY is unusable: %w", name, key, err)
				}
			}
			plain, err := encryptor.Open(s, crypto.OptionLabel(name, key))
			if err != nil {
				return fmt.Errorf("datasources.%s.options.%s: %w", name, key, err)
			}
			ds.Options[key] = plain
		}
	}
	return nil
}

func envReference(s string) (string, bool) {
	if !strings.HasPrefix(s, "${") || !strings.HasSuffix(s, "}") {
		return "", false
	}
	name := strings.TrimSpace(s[2 : len(s)-1])
	return name, name != ""
}
