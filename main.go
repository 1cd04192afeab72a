package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/ekaya-inc/recon-engine/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/recon-engine/pkg/adapters/datasource/mssql"    // Register mssql adapter
	_ "github.com/ekaya-inc/recon-engine/pkg/adapters/datasource/mysql"    // Register mysql adapter
	_ "github.com/ekaya-inc/recon-engine/pkg/adapters/datasource/oracle"   // Register oracle adapter
	_ "github.com/ekaya-inc/recon-engine/pkg/adapters/datasource/postgres" // Register postgres adapter
	"github.com/ekaya-inc/recon-engine/pkg/cache"
	"github.com/ekaya-inc/recon-engine/pkg/config"
	"github.com/ekaya-inc/recon-engine/pkg/crypto"
	"github.com/ekaya-inc/recon-engine/pkg/database"
	"github.com/ekaya-inc/recon-engine/pkg/handlers"
	"github.com/ekaya-inc/recon-engine/pkg/llm"
	"github.com/ekaya-inc/recon-engine/pkg/logging"
	"github.com/ekaya-inc/recon-engine/pkg/mcp"
	"github.com/ekaya-inc/recon-engine/pkg/mcp/tools"
	"github.com/ekaya-inc/recon-engine/pkg/middleware"
	"github.com/ekaya-inc/recon-engine/pkg/models"
	"github.com/ekaya-inc/recon-engine/pkg/repositories"
	"github.com/ekaya-inc/recon-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

const mcpInstructions = "Use nl_query to turn questions about the tables of a knowledge graph into SQL. " +
	"Call list_graphs first when you do not know the graph_id."

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file")
	importKG := flag.String("import-kg", "", "Import a knowledge graph JSON file into the postgres store and exit")
	sealSecret := flag.String("seal", "", "Encrypt a datasource option value with CREDENTIALS_KEY, print it and exit")
	sealFor := flag.String("seal-for", "", "Option the -seal value is for, as <datasource>.<option>")
	flag.Parse()

	if *sealSecret != "" {
		if err := seal(*sealSecret, *sealFor); err != nil {
			log.Fatalf("Failed to seal secret: %v", err)
		}
		return
	}

	cfg, err := config.LoadFile(*configPath, Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *importKG, logger); err != nil {
		logger.Fatal("recon-engine stopped", zap.Error(logging.SanitizedError(err)))
	}
}

func seal(secret, option string) error {
	datasourceName, optionName, ok := strings.Cut(option, ".")
	if !ok || datasourceName == "" || optionName == "" {
		return fmt.Errorf("-seal-for must be <datasource>.<option>, got %q", option)
	}
	encryptor, err := crypto.NewCredentialEncryptor(os.Getenv("CREDENTIALS_KEY"))
	if err != nil {
		return err
	}
	sealed, err := encryptor.Seal(secret, crypto.OptionLabel(datasourceName, optionName))
	if err != nil {
		return err
	}
	fmt.Println(sealed)
	return nil
}

func run(ctx context.Context, cfg *config.Config, importKG string, logger *zap.Logger) error {
	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("kg_store", cfg.KnowledgeGraph.Store),
		zap.Bool("llm_enabled", cfg.LLM.IsEnabled()),
		zap.Bool("redis_cache", cfg.Redis.Host != ""),
		zap.Int("datasources", len(cfg.Datasources)))

	graphs, closeGraphs, err := openKnowledgeGraphStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeGraphs()

	if importKG != "" {
		return importKnowledgeGraph(ctx, graphs, importKG, logger)
	}

	compiled, closeCache, err := openCompiledQueryCache(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	completer, err := newCompleter(cfg, logger)
	if err != nil {
		return err
	}

	connManager := datasource.NewConnectionManager(datasource.ConnectionManagerConfig{
		TTLMinutes:     cfg.Datasource.ConnectionTTLMinutes,
		MaxConnections: cfg.Datasource.MaxConnections,
		PoolMaxConns:   cfg.Datasource.PoolMaxConns,
		PoolMinConns:   cfg.Datasource.PoolMinConns,
	}, logger)
	defer func() {
		if err := connManager.Close(); err != nil {
			logger.Warn("Failed to close datasource connections", zap.Error(err))
		}
	}()
	datasources := datasource.NewDatasourceAdapterFactory(datasourceConfigs(cfg, logger), connManager)

	defaultDialect, err := models.ParseDialect(cfg.Query.DefaultDialect)
	if err != nil {
		return fmt.Errorf("query.default_dialect: %w", err)
	}

	nlQueryService := services.NewNLQueryService(services.NLQueryServiceConfig{
		Pathfinding: services.PathfindingConfig{
			MaxHops:          cfg.Pathfinding.MaxHops,
			ConfidenceWeight: cfg.Pathfinding.ConfidenceWeight,
			LengthWeight:     cfg.Pathfinding.LengthWeight,
		},
		DefaultEdgeConfidence: cfg.Pathfinding.DefaultEdgeConfidence,
		DefaultDialect:        defaultDialect,
		DefaultRowLimit:       cfg.Query.DefaultRowLimit,
		CacheTTL:              cfg.KnowledgeGraph.CacheTTL,
	}, graphs, datasources, compiled, completer, logger)

	mux := http.NewServeMux()

	handlers.NewHealthHandler(cfg, connManager, logger).RegisterRoutes(mux)
	handlers.NewNLQueryHandler(nlQueryService, graphs, datasources, logger).RegisterRoutes(mux)

	mcpServer := mcp.NewServer("recon-engine", cfg.Version, logger,
		mcp.WithAuditLogger(mcp.NewAuditLogger(logger)),
		mcp.WithInstructions(mcpInstructions),
	)
	tools.RegisterHealthTool(mcpServer.MCP(), tools.HealthInfo{
		Version:    cfg.Version,
		GraphStore: cfg.KnowledgeGraph.Store,
		LLMEnabled: completer != nil,
	})
	tools.RegisterNLQueryTools(mcpServer.MCP(), &tools.NLQueryToolDeps{
		NLQueryService: nlQueryService,
		Graphs:         graphs,
		DefaultGraphID: cfg.KnowledgeGraph.DefaultGraph,
		Logger:         logger,
	})
	mux.Handle("/mcp", middleware.MCPRequestLogger(logger)(mcpServer.NewStreamableHTTPServer()))

	srv := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting recon-engine",
			zap.String("addr", srv.Addr),
			zap.String("version", cfg.Version))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// openKnowledgeGraphStore returns the configured graph repository and a
// function releasing its resources.
func openKnowledgeGraphStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.KnowledgeGraphRepository, func(), error) {
	if cfg.KnowledgeGraph.Store == config.KGStoreFile {
		return repositories.NewFileKnowledgeGraphRepository(cfg.KnowledgeGraph.Directory, logger), func() {}, nil
	}

	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		return nil, nil, err
	}

	sqlDB := stdlib.OpenDBFromPool(db.Pool)
	err = database.RunMigrations(sqlDB, logger)
	_ = sqlDB.Close()
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	return repositories.NewPostgresKnowledgeGraphRepository(db.Pool), db.Close, nil
}

func importKnowledgeGraph(ctx context.Context, graphs repositories.KnowledgeGraphRepository, path string, logger *zap.Logger) error {
	writer, ok := graphs.(repositories.KnowledgeGraphWriter)
	if !ok {
		return fmt.Errorf("-import-kg requires knowledge_graph.store %q", config.KGStorePostgres)
	}

	kg, err := repositories.LoadKnowledgeGraphFile(path)
	if err != nil {
		return err
	}

	version, err := writer.SaveSnapshot(ctx, kg)
	if err != nil {
		return fmt.Errorf("failed to import %s: %w", path, err)
	}

	logger.Info("Imported knowledge graph",
		zap.String("graph_id", kg.ID),
		zap.String("version", version),
		zap.Int("tables", len(kg.Tables)),
		zap.Int("relationships", len(kg.Relationships)))
	return nil
}

// openCompiledQueryCache uses Redis when configured and an in-process cache
// otherwise.
func openCompiledQueryCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (cache.CompiledQueryCache, func(), error) {
	client, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		return cache.NewMemoryCache(cache.DefaultMemoryCacheEntries), func() {}, nil
	}

	logger.Info("Using Redis for compiled queries", zap.String("host", cfg.Redis.Host))
	closeFn := func() {
		if err := client.Close(); err != nil {
			logger.Warn("Failed to close Redis client", zap.Error(err))
		}
	}
	return cache.NewRedisCache(client, "recon:compiled:"), closeFn, nil
}

// newCompleter returns nil when no LLM is configured.
func newCompleter(cfg *config.Config, logger *zap.Logger) (llm.Completer, error) {
	client, err := llm.NewClientForProvider(&llm.Config{
		Provider:  cfg.LLM.Provider,
		Endpoint:  cfg.LLM.BaseURL,
		Model:     cfg.LLM.Model,
		APIKey:    cfg.LLM.APIKey,
		MaxTokens: cfg.LLM.MaxTokens,
	}, logger)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, nil
	}

	return llm.NewCompleter(client, llm.CompleterConfig{
		Timeout:     cfg.LLM.Timeout,
		Temperature: cfg.LLM.Temperature,
		Breaker: llm.CircuitBreakerConfig{
			Threshold:  cfg.LLM.BreakerThreshold,
			ResetAfter: cfg.LLM.BreakerResetAfter,
		},
	}, logger), nil
}

func datasourceConfigs(cfg *config.Config, logger *zap.Logger) map[string]datasource.DatasourceConfig {
	out := make(map[string]datasource.DatasourceConfig, len(cfg.Datasources))
	for name, ds := range cfg.Datasources {
		if !datasource.IsRegistered(ds.Type) {
			logger.Warn("Datasource type not compiled into this binary; build with -tags all_adapters",
				zap.String("datasource", name),
				zap.String("type", ds.Type))
		}
		out[name] = datasource.DatasourceConfig{Type: ds.Type, Options: ds.Options}
	}
	return out
}
