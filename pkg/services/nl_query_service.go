package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/recon-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/recon-engine/pkg/apperrors"
	"github.com/ekaya-inc/recon-engine/pkg/cache"
	"github.com/ekaya-inc/recon-engine/pkg/llm"
	"github.com/ekaya-inc/recon-engine/pkg/models"
	"github.com/ekaya-inc/recon-engine/pkg/repositories"
)

// NLQueryService answers natural-language questions against a knowledge graph.
type NLQueryService interface {
	// Query compiles the question and, when the request names a datasource,
	// runs the SQL against it.
	Query(ctx context.Context, req *models.NLQueryRequest) (*models.NLQueryResponse, error)

	// Compile parses the question and generates SQL without executing it.
	Compile(ctx context.Context, req *models.NLQueryRequest) (*models.NLQueryResponse, error)
}

// NLQueryServiceConfig holds the pipeline defaults.
type NLQueryServiceConfig struct {
	Pathfinding           PathfindingConfig
	DefaultEdgeConfidence float64
	DefaultDialect        models.Dialect
	DefaultRowLimit       int
	// CacheTTL bounds compiled query cache entries; zero disables caching.
	CacheTTL time.Duration
}

type nlQueryService struct {
	cfg         NLQueryServiceConfig
	graphs      repositories.KnowledgeGraphRepository
	datasources datasource.DatasourceAdapterFactory
	compiled    cache.CompiledQueryCache
	parser      *NLQueryParser
	template    *SQLGenerator
	generator   *LLMSQLGenerator
	executor    *NLQueryExecutor
	logger      *zap.Logger

	indexMu sync.RWMutex
	indexes map[string]*RelationshipIndex // graph ID -> index of its latest version
}

var _ NLQueryService = (*nlQueryService)(nil)

// NewNLQueryService wires the query pipeline. completer, datasources and
// compiled may be nil: without a completer only the deterministic paths run,
// without datasources requests can only compile, and without a cache every
// request is compiled from scratch.
func NewNLQueryService(
	cfg NLQueryServiceConfig,
	graphs repositories.KnowledgeGraphRepository,
	datasources datasource.DatasourceAdapterFactory,
	compiled cache.CompiledQueryCache,
	completer llm.Completer,
	logger *zap.Logger,
) NLQueryService {
	if cfg.DefaultDialect == "" {
		cfg.DefaultDialect = models.DialectPostgres
	}
	if cfg.DefaultEdgeConfidence <= 0 {
		cfg.DefaultEdgeConfidence = models.DefaultEdgeConfidence
	}
	template := NewSQLGenerator(logger)
	return &nlQueryService{
		cfg:         cfg,
		graphs:      graphs,
		datasources: datasources,
		compiled:    compiled,
		parser:      NewNLQueryParser(completer, cfg.Pathfinding, logger),
		template:    template,
		generator:   NewLLMSQLGenerator(completer, template, logger),
		executor:    NewNLQueryExecutor(logger),
		logger:      logger.Named("nl-query-service"),
		indexes:     make(map[string]*RelationshipIndex),
	}
}

func (s *nlQueryService) Query(ctx context.Context, req *models.NLQueryRequest) (*models.NLQueryResponse, error) {
	return s.run(ctx, req, req.Datasource != "")
}

func (s *nlQueryService) Compile(ctx context.Context, req *models.NLQueryRequest) (*models.NLQueryResponse, error) {
	return s.run(ctx, req, false)
}

// run executes one request. On failure the returned response is still
// populated (success false, the error message in Errors) so callers can
// report it as is.
func (s *nlQueryService) run(ctx context.Context, req *models.NLQueryRequest, execute bool) (*models.NLQueryResponse, error) {
	start := time.Now()
	resp := &models.NLQueryResponse{
		RequestID: uuid.New().String(),
		Errors:    []string{},
		Warnings:  []string{},
	}

	err := s.runPipeline(ctx, req, execute, resp)
	if err != nil {
		resp.Success = false
		resp.Errors = append(resp.Errors, err.Error())
	} else {
		resp.Success = true
		// Recoverable problems are reported in both lists.
		resp.Errors = append(resp.Errors, resp.Warnings...)
	}

	fields := []zap.Field{
		zap.String("request_id", resp.RequestID),
		zap.String("graph_id", req.GraphID),
		zap.String("dialect", string(resp.Dialect)),
		zap.Bool("success", resp.Success),
		zap.Bool("cached", resp.Cached),
		zap.Bool("used_llm", resp.UsedLLM),
		zap.Int("warnings", len(resp.Warnings)),
		zap.Int("rows", resp.RowCount),
		zap.Duration("elapsed", time.Since(start)),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	s.logger.Info("NL query completed", fields...)

	return resp, err
}

func (s *nlQueryService) runPipeline(ctx context.Context, req *models.NLQueryRequest, execute bool, resp *models.NLQueryResponse) error {
	if err := validateRequest(req); err != nil {
		return err
	}

	dialect, err := s.requestDialect(req)
	if err != nil {
		return err
	}

	var exec datasource.QueryExecutor
	if execute {
		exec, err = s.openDatasource(ctx, req.Datasource)
		if err != nil {
			return err
		}
		defer exec.Close()

		if exec.Dialect() != dialect && req.Dialect != "" {
			resp.Warnings = append(resp.Warnings, fmt.Sprintf(
				"dialect %q ignored: datasource %q uses %s", req.Dialect, req.Datasource, exec.Dialect()))
		}
		dialect = exec.Dialect()
	}
	resp.Dialect = dialect

	compiled, err := s.compile(ctx, req, dialect, resp)
	if err != nil {
		return err
	}
	resp.SQL = compiled.SQL
	resp.QueryIntent = compiled.Intent
	resp.UsedLLM = compiled.UsedLLM
	resp.Warnings = append(resp.Warnings, compiled.Warnings...)
	resp.ColumnMetadata = columnMetadata(compiled.Intent)

	if exec == nil {
		return nil
	}

	limit := req.RowLimit
	if limit <= 0 {
		limit = s.cfg.DefaultRowLimit
	}
	result, err := s.executor.Execute(ctx, exec, compiled.SQL, limit)
	if err != nil {
		var execErr *apperrors.ExecutionError
		if errors.As(err, &execErr) {
			resp.ExecutedSQL = execErr.SQL
		}
		return err
	}
	resp.ExecutedSQL = result.ExecutedSQL
	resp.Columns = result.Result.ColumnNames()
	resp.Rows = result.Result.Rows
	resp.RowCount = result.Result.RowCount
	return nil
}

// compile returns the parsed intent and SQL for req, from cache when possible.
func (s *nlQueryService) compile(ctx context.Context, req *models.NLQueryRequest, dialect models.Dialect, resp *models.NLQueryResponse) (*models.CompiledQuery, error) {
	index, err := s.relationshipIndex(ctx, req)
	if err != nil {
		return nil, err
	}

	key := s.cacheKey(req, index, dialect)
	if key != "" {
		cached, ok, err := s.compiled.Get(ctx, key)
		if err != nil {
			s.logger.Warn("Compiled query cache read failed", zap.Error(err))
		} else if ok {
			resp.Cached = true
			return cached, nil
		}
	}

	parsed, err := s.parser.Parse(ctx, req.Text, index, req.UseLLM)
	if err != nil {
		return nil, err
	}

	out := &models.CompiledQuery{
		Intent:   parsed.Intent,
		Dialect:  dialect,
		Warnings: parsed.Warnings,
		UsedLLM:  parsed.UsedLLM,
	}

	if req.UseLLM {
		generated, err := s.generator.Generate(ctx, parsed.Intent, dialect, index)
		if err != nil {
			return nil, err
		}
		out.SQL = generated.SQL
		out.UsedLLM = out.UsedLLM || generated.FromLLM
	} else {
		out.SQL, err = s.template.Generate(parsed.Intent, dialect)
		if err != nil {
			return nil, err
		}
	}

	if key != "" {
		if err := s.compiled.Set(ctx, key, out, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("Compiled query cache write failed", zap.Error(err))
		}
	}
	return out, nil
}

// relationshipIndex returns the index for the request's graph. Indexes of
// unmodified graphs are shared across requests; request-scoped schema
// additions always get a private index.
func (s *nlQueryService) relationshipIndex(ctx context.Context, req *models.NLQueryRequest) (*RelationshipIndex, error) {
	if req.GraphID == "" {
		return NewRelationshipIndex(ExtendGraph(&models.KnowledgeGraph{}, req.SchemasInfo), s.cfg.DefaultEdgeConfidence), nil
	}

	kg, err := s.graphs.GetSnapshot(ctx, req.GraphID)
	if err != nil {
		return nil, fmt.Errorf("failed to load knowledge graph: %w", err)
	}

	if hasSchemaAdditions(req.SchemasInfo) {
		return NewRelationshipIndex(ExtendGraph(kg, req.SchemasInfo), s.cfg.DefaultEdgeConfidence), nil
	}

	s.indexMu.RLock()
	idx, ok := s.indexes[kg.ID]
	s.indexMu.RUnlock()
	if ok && idx.Version() == kg.Version {
		return idx, nil
	}

	idx = NewRelationshipIndex(kg, s.cfg.DefaultEdgeConfidence)
	s.indexMu.Lock()
	s.indexes[kg.ID] = idx
	s.indexMu.Unlock()

	s.logger.Debug("Built relationship index",
		zap.String("graph_id", kg.ID),
		zap.String("version", kg.Version),
		zap.Int("tables", len(idx.TableNames())),
		zap.Int("edges", idx.EdgeCount()),
	)
	return idx, nil
}

// cacheKey returns "" when compiled results must not be cached.
func (s *nlQueryService) cacheKey(req *models.NLQueryRequest, index *RelationshipIndex, dialect models.Dialect) string {
	if s.compiled == nil || s.cfg.CacheTTL <= 0 {
		return ""
	}
	schema := ""
	if hasSchemaAdditions(req.SchemasInfo) {
		data, err := json.Marshal(req.SchemasInfo)
		if err != nil {
			return ""
		}
		schema = string(data)
	}
	return cache.Key(
		index.GraphID(),
		index.Version(),
		string(dialect),
		strconv.FormatBool(req.UseLLM),
		strings.TrimSpace(req.Text),
		schema,
	)
}

func (s *nlQueryService) requestDialect(req *models.NLQueryRequest) (models.Dialect, error) {
	if req.Dialect == "" {
		return s.cfg.DefaultDialect, nil
	}
	d, err := models.ParseDialect(req.Dialect)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrUnknownDialect, err)
	}
	return d, nil
}

func (s *nlQueryService) openDatasource(ctx context.Context, name string) (datasource.QueryExecutor, error) {
	if s.datasources == nil {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownDatasource, name)
	}
	exec, err := s.datasources.NewQueryExecutor(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to open datasource %s: %w", name, err)
	}
	return exec, nil
}

func validateRequest(req *models.NLQueryRequest) error {
	if req == nil || strings.TrimSpace(req.Text) == "" {
		return fmt.Errorf("%w: nl_text is required", apperrors.ErrInvalidRequest)
	}
	if req.GraphID == "" && (req.SchemasInfo == nil || len(req.SchemasInfo.Tables) == 0) {
		return fmt.Errorf("%w: kg_handle or schemas_info.tables is required", apperrors.ErrInvalidRequest)
	}
	if req.RowLimit < 0 {
		return fmt.Errorf("%w: row_limit must not be negative", apperrors.ErrInvalidRequest)
	}
	return nil
}

func hasSchemaAdditions(info *models.SchemasInfo) bool {
	return info != nil && (len(info.Tables) > 0 || len(info.Aliases) > 0)
}

// columnMetadata maps each included column's result alias back to where it
// came from. Aggregations select no included columns.
func columnMetadata(intent *models.QueryIntent) map[string]models.ResultColumnMetadata {
	if intent == nil || intent.QueryType == models.QueryTypeAggregation || len(intent.AdditionalColumns) == 0 {
		return nil
	}
	out := make(map[string]models.ResultColumnMetadata, len(intent.AdditionalColumns))
	for _, ac := range intent.AdditionalColumns {
		path := ac.JoinPath
		if len(path) == 0 {
			path = []string{ac.SourceTable}
		}
		out[ac.Alias] = models.ResultColumnMetadata{
			OriginalColumn: ac.ColumnName,
			SourceTable:    ac.SourceTable,
			JoinPath:       append([]string(nil), path...),
		}
	}
	return out
}
