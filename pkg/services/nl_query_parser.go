package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/recon-engine/pkg/apperrors"
	"github.com/ekaya-inc/recon-engine/pkg/llm"
	"github.com/ekaya-inc/recon-engine/pkg/models"
	"github.com/ekaya-inc/recon-engine/pkg/prompts"
	sqlutil "github.com/ekaya-inc/recon-engine/pkg/sql"
)

// ParseResult is a parsed question plus the non-fatal problems found on the way.
type ParseResult struct {
	Intent   *models.QueryIntent
	Warnings []string
	UsedLLM  bool
}

// NLQueryParser turns a natural-language question into a QueryIntent.
type NLQueryParser struct {
	classifier *QueryClassifier
	completer  llm.Completer
	pathCfg    PathfindingConfig
	logger     *zap.Logger
}

// NewNLQueryParser creates a parser. completer may be nil, in which case the
// pattern-based path is the only one.
func NewNLQueryParser(completer llm.Completer, pathCfg PathfindingConfig, logger *zap.Logger) *NLQueryParser {
	return &NLQueryParser{
		classifier: NewQueryClassifier(),
		completer:  completer,
		pathCfg:    pathCfg,
		logger:     logger.Named("nl-query-parser"),
	}
}

// parseRun carries the per-call collaborators and accumulated state.
type parseRun struct {
	ctx      context.Context
	index    *RelationshipIndex
	resolver *TableNameResolver
	finder   *JoinPathFinder
	useLLM   bool
	result   *ParseResult
}

func (r *parseRun) warn(format string, args ...any) {
	r.result.Warnings = append(r.result.Warnings, fmt.Sprintf(format, args...))
}

// Parse classifies text, resolves its tables against index, finds the primary
// join path and extracts filters, grouping and included columns.
//
// Unresolvable tables and a missing primary join path are fatal. Filters and
// included columns that cannot be resolved are dropped with a warning.
func (p *NLQueryParser) Parse(ctx context.Context, text string, index *RelationshipIndex, useLLM bool) (*ParseResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty question", apperrors.ErrInvalidRequest)
	}

	run := &parseRun{
		ctx:      ctx,
		index:    index,
		resolver: NewTableNameResolver(index.TableNames(), index.Aliases()),
		finder:   NewJoinPathFinder(index, p.pathCfg, p.logger),
		useLLM:   useLLM && p.completer != nil,
		result:   &ParseResult{},
	}

	main, includeClause := splitIncludeClause(text)
	qt, op := p.classifier.Classify(main)

	p.logger.Debug("Classified question",
		zap.String("query_type", string(qt)),
		zap.String("operation", string(op)),
		zap.Bool("has_include", includeClause != ""))

	intent := &models.QueryIntent{
		Definition:        text,
		QueryType:         qt,
		Operation:         op,
		JoinColumns:       []models.ColumnPair{},
		Filters:           []models.Filter{},
		AdditionalColumns: []models.AdditionalColumn{},
		Confidence:        1.0,
	}

	phrases, err := p.resolveTables(run, main, intent)
	if err != nil {
		return nil, err
	}

	if intent.HasTarget() {
		if strings.EqualFold(intent.SourceTable, intent.TargetTable) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrSameTable, intent.SourceTable)
		}
		path, ok := run.finder.FindPath(intent.SourceTable, intent.TargetTable)
		if !ok {
			return nil, &apperrors.JoinPathNotFoundError{SourceTable: intent.SourceTable, TargetTable: intent.TargetTable}
		}
		intent.JoinPath = path
		intent.JoinColumns = []models.ColumnPair{path.HopColumns[len(path.HopColumns)-1]}
		intent.Confidence = path.Confidence
	}

	p.extractFilters(run, main, phrases, intent)

	if qt == models.QueryTypeAggregation {
		if phrase := extractGroupByPhrase(main); phrase != "" {
			if col, ok := matchColumn(index, intent.SourceTable, phrase); ok {
				intent.GroupBy = col
			} else {
				run.warn("group by ignored: %v", &apperrors.ColumnNotFoundError{Table: intent.SourceTable, Column: phrase})
			}
		}
	}

	if err := p.extractAdditionalColumns(run, includeClause, intent); err != nil {
		return nil, err
	}

	for _, ac := range intent.AdditionalColumns {
		if ac.Confidence < intent.Confidence {
			intent.Confidence = ac.Confidence
		}
	}

	if intent.QueryType == models.QueryTypeComparison && len(intent.JoinColumns) == 0 {
		return nil, apperrors.ErrMissingJoinColumns
	}

	run.result.Intent = intent
	p.logger.Debug("Parsed question",
		zap.String("source_table", intent.SourceTable),
		zap.String("target_table", intent.TargetTable),
		zap.Int("filters", len(intent.Filters)),
		zap.Int("additional_columns", len(intent.AdditionalColumns)),
		zap.Float64("confidence", intent.Confidence),
		zap.Int("warnings", len(run.result.Warnings)))

	return run.result, nil
}

// resolveTables fills SourceTable and TargetTable. Pattern extraction comes
// first; the LLM is consulted only when that fails and is allowed.
func (p *NLQueryParser) resolveTables(run *parseRun, text string, intent *models.QueryIntent) (tablePhrases, error) {
	phrases := extractTablePhrases(text, intent.QueryType, intent.Operation)
	needsTarget := intent.QueryType == models.QueryTypeComparison

	source, target, patternErr := p.resolvePatternTables(run, phrases, needsTarget)
	if patternErr == nil {
		intent.SourceTable, intent.TargetTable = source, target
		return phrases, nil
	}

	if !run.useLLM {
		return phrases, patternErr
	}

	p.logger.Debug("Pattern table extraction failed, asking LLM", zap.Error(patternErr))
	source, target, err := p.extractTablesWithLLM(run, text, needsTarget)
	if err != nil {
		if ctxErr := run.ctx.Err(); ctxErr != nil {
			return phrases, ctxErr
		}
		p.logger.Warn("LLM table extraction failed, keeping pattern result", zap.Error(err))
		run.warn("LLM table extraction failed: %v", err)
		return phrases, patternErr
	}

	run.result.UsedLLM = true
	intent.SourceTable, intent.TargetTable = source, target
	if !(intent.QueryType == models.QueryTypeComparison || intent.QueryType == models.QueryTypeFilter) {
		intent.TargetTable = ""
	}
	return tablePhrases{source: source, target: intent.TargetTable}, nil
}

func (p *NLQueryParser) resolvePatternTables(run *parseRun, phrases tablePhrases, needsTarget bool) (source, target string, err error) {
	if phrases.target != "" {
		if target, err = p.resolvePhrase(run, phrases.target); err != nil {
			return "", "", err
		}
	} else if needsTarget {
		return "", "", fmt.Errorf("%w: comparison needs a second table", apperrors.ErrNoTableReference)
	}

	if phrases.source != "" {
		source, err = p.resolvePhrase(run, phrases.source)
		return source, target, err
	}

	var firstErr error
	for _, candidate := range phrases.candidates {
		resolved, err := p.resolvePhrase(run, candidate)
		if err == nil && !strings.EqualFold(resolved, target) {
			return resolved, target, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return "", "", firstErr
	}
	return "", "", apperrors.ErrNoTableReference
}

// resolvePhrase resolves a table phrase, retrying without generic nouns such
// as "products" or "records" when nothing matches.
func (p *NLQueryParser) resolvePhrase(run *parseRun, phrase string) (string, error) {
	table, err := run.resolver.Resolve(phrase)
	if err == nil {
		return table, nil
	}
	var ambiguous *apperrors.AmbiguousReferenceError
	if errors.As(err, &ambiguous) && len(ambiguous.Candidates) == 0 {
		if stripped := stripGenericNouns(phrase); stripped != "" && stripped != phrase {
			if table, retryErr := run.resolver.Resolve(stripped); retryErr == nil {
				return table, nil
			}
		}
	}
	return "", err
}

func (p *NLQueryParser) extractTablesWithLLM(run *parseRun, text string, needsTarget bool) (source, target string, err error) {
	prompt := prompts.BuildTableExtractionPrompt(text, tableContexts(run.index))
	response, err := p.completer.Complete(run.ctx, prompt, prompts.TableExtractionSystemMessage())
	if err != nil {
		return "", "", err
	}

	parsed, err := llm.ParseJSONResponse[llmTableResponse](response)
	if err != nil {
		return "", "", fmt.Errorf("parse table extraction: %w", err)
	}
	rawSource, rawTarget := parsed.tables()
	if rawSource == "" {
		return "", "", fmt.Errorf("%w: LLM named no source table", apperrors.ErrNoTableReference)
	}

	// Model output is untrusted: every name must resolve against the schema.
	if source, err = run.resolver.Resolve(rawSource); err != nil {
		return "", "", err
	}
	if rawTarget != "" {
		if target, err = run.resolver.Resolve(rawTarget); err != nil {
			return "", "", err
		}
	} else if needsTarget {
		return "", "", fmt.Errorf("%w: LLM named no target table", apperrors.ErrNoTableReference)
	}

	p.logger.Debug("LLM resolved tables",
		zap.String("source_table", source),
		zap.String("target_table", target),
		zap.Float64("llm_confidence", parsed.confidence()))
	return source, target, nil
}

// extractFilters appends WHERE predicates. For queries with a target table,
// a column is looked up on the target first and then on the source.
func (p *NLQueryParser) extractFilters(run *parseRun, text string, phrases tablePhrases, intent *models.QueryIntent) {
	tables := []string{intent.SourceTable}
	if intent.HasTarget() {
		tables = []string{intent.TargetTable, intent.SourceTable}
	}

	clause := extractFilterClause(text)
	for _, cond := range parseConditions(clause) {
		if cond.bare {
			filter, ok := bareFilter(run.index, tables, cond.value)
			if !ok {
				p.logger.Debug("Unrecognized filter condition", zap.String("condition", cond.value))
				continue
			}
			p.addFilter(run, intent, filter)
			continue
		}

		table, column, ok := findColumn(run.index, tables, cond.column)
		if !ok {
			table, column, ok = qualifiedColumn(run, tables, cond.column)
		}
		if !ok {
			run.warn("filter on %q ignored: %v", cond.column,
				&apperrors.ColumnNotFoundError{Table: tables[0], Column: cond.column})
			continue
		}
		filter := models.Filter{Table: table, Column: column, Operator: cond.op}
		if cond.op.TakesValue() {
			filter.Value = parseLiteral(cond.value)
		}
		p.addFilter(run, intent, filter)
	}

	// Status adjectives filter the table they qualify. Words inside the table
	// phrases and the explicit clause are not adjectives.
	masked := maskFirst(text, clause)
	masked = maskFirst(masked, phrases.source)
	masked = maskFirst(masked, phrases.target)
	sourceAt := -1
	if phrases.source != "" {
		sourceAt = strings.Index(text, phrases.source)
	}
	for _, mention := range statusMentions(text, masked) {
		statusTables := p.statusTables(run, intent, mention, sourceAt)
		added := false
		for _, table := range statusTables {
			if col, ok := statusColumn(run.index, table); ok {
				p.addFilter(run, intent, models.Filter{Table: table, Column: col, Operator: models.FilterOpEq, Value: mention.word})
				added = true
				break
			}
		}
		if !added {
			run.warn("%q ignored: no status column on %s", mention.word, strings.Join(statusTables, " or "))
		}
	}
}

// statusTables orders the tables a status adjective may filter. An explicit
// "inactive in OPS" names its table. Otherwise a comparison's adjective
// after the source phrase qualifies the target, and a leading one ("active
// products in RBP ...") qualifies the source.
func (p *NLQueryParser) statusTables(run *parseRun, intent *models.QueryIntent, mention statusMention, sourceAt int) []string {
	if !intent.HasTarget() {
		return []string{intent.SourceTable}
	}
	sourceFirst := []string{intent.SourceTable, intent.TargetTable}
	targetFirst := []string{intent.TargetTable, intent.SourceTable}
	if mention.scope != "" {
		if table, err := p.resolvePhrase(run, mention.scope); err == nil {
			switch {
			case strings.EqualFold(table, intent.TargetTable):
				return targetFirst
			case strings.EqualFold(table, intent.SourceTable):
				return sourceFirst
			}
		}
	}
	if intent.QueryType == models.QueryTypeComparison && mention.offset > sourceAt {
		return targetFirst
	}
	return sourceFirst
}

func (p *NLQueryParser) addFilter(run *parseRun, intent *models.QueryIntent, filter models.Filter) {
	if check := sqlutil.CheckValueForInjection(filter.Column, filter.Value); check != nil {
		p.logger.Warn("Rejected filter value",
			zap.String("column", filter.Column),
			zap.String("fingerprint", check.Fingerprint))
		run.warn("filter on %s rejected: value looks like SQL injection", filter.Column)
		return
	}
	for _, f := range intent.Filters {
		if strings.EqualFold(f.Table, filter.Table) && strings.EqualFold(f.Column, filter.Column) &&
			f.Operator == filter.Operator && f.Value == filter.Value {
			return
		}
	}
	intent.Filters = append(intent.Filters, filter)
}

// findColumn returns the first table, in order, that has the column.
func findColumn(index *RelationshipIndex, tables []string, phrase string) (table, column string, ok bool) {
	for _, t := range tables {
		if col, found := matchColumn(index, t, phrase); found {
			return t, col, true
		}
	}
	return "", "", false
}

// qualifiedColumn reads "<table phrase> <column>", as in "OPS Excel status".
// The table phrase must resolve to one of tables.
func qualifiedColumn(run *parseRun, tables []string, phrase string) (table, column string, ok bool) {
	words := strings.Fields(phrase)
	for n := len(words) - 1; n >= 1; n-- {
		resolved, err := run.resolver.Resolve(strings.Join(words[:n], " "))
		if err != nil {
			continue
		}
		for _, t := range tables {
			if !strings.EqualFold(t, resolved) {
				continue
			}
			if col, found := matchColumn(run.index, t, strings.Join(words[n:], " ")); found {
				return t, col, true
			}
		}
	}
	return "", "", false
}

// bareFilter reads "<column> <value>" by trying the longest leading word run
// that names a column.
func bareFilter(index *RelationshipIndex, tables []string, condition string) (models.Filter, bool) {
	words := strings.Fields(condition)
	for n := len(words) - 1; n >= 1; n-- {
		table, col, ok := findColumn(index, tables, strings.Join(words[:n], " "))
		if !ok {
			continue
		}
		return models.Filter{
			Table:    table,
			Column:   col,
			Operator: models.FilterOpEq,
			Value:    parseLiteral(strings.Join(words[n:], " ")),
		}, true
	}
	return models.Filter{}, false
}

// extractAdditionalColumns resolves "include <column> from <table>" requests.
// Pattern extraction runs first. When some of its requests do not resolve
// and the LLM is enabled, the LLM reads the clause and its resolvable
// requests are added. Whatever still fails is dropped with a warning.
func (p *NLQueryParser) extractAdditionalColumns(run *parseRun, clause string, intent *models.QueryIntent) error {
	if clause == "" {
		return nil
	}

	resolved, failed := p.resolveRequests(run, parseIncludeItems(clause), intent.SourceTable)
	if (len(failed) > 0 || len(resolved) == 0) && run.useLLM {
		llmRequests, err := p.extractIncludesWithLLM(run, clause)
		switch {
		case err == nil:
			run.result.UsedLLM = true
			more, stillFailed := p.resolveRequests(run, llmRequests, intent.SourceTable)
			if len(more) > 0 {
				resolved = mergeAdditionalColumns(resolved, more)
				failed = stillFailed
			}
		case run.ctx.Err() != nil:
			return run.ctx.Err()
		default:
			run.warn("LLM include extraction failed: %v", err)
		}
	}

	if len(resolved) == 0 && len(failed) == 0 {
		run.warn("include clause %q ignored: no column recognized", clause)
	}

	for _, f := range failed {
		p.logger.Warn("Dropped additional column",
			zap.String("column", f.req.column),
			zap.String("table", f.req.tablePhrase),
			zap.Error(f.err))
		run.warn("include %s from %s dropped: %v", f.req.column, displayPhrase(f.req.tablePhrase, intent.SourceTable), f.err)
	}

	used := make(map[string]int)
	for _, ac := range resolved {
		used[ac.Alias]++
		if n := used[ac.Alias]; n > 1 {
			ac.Alias = fmt.Sprintf("%s_%d", ac.Alias, n)
		}
		intent.AdditionalColumns = append(intent.AdditionalColumns, ac)
	}
	return nil
}

type failedInclude struct {
	req includeRequest
	err error
}

func (p *NLQueryParser) resolveRequests(run *parseRun, requests []includeRequest, source string) ([]models.AdditionalColumn, []failedInclude) {
	var resolved []models.AdditionalColumn
	var failed []failedInclude
	for _, req := range requests {
		ac, err := p.resolveAdditionalColumn(run, req, source)
		if err != nil {
			failed = append(failed, failedInclude{req: req, err: err})
			continue
		}
		resolved = mergeAdditionalColumns(resolved, []models.AdditionalColumn{ac})
	}
	return resolved, failed
}

// mergeAdditionalColumns appends the columns of more not already in list.
func mergeAdditionalColumns(list, more []models.AdditionalColumn) []models.AdditionalColumn {
	for _, ac := range more {
		dup := false
		for _, existing := range list {
			if strings.EqualFold(existing.SourceTable, ac.SourceTable) && strings.EqualFold(existing.ColumnName, ac.ColumnName) {
				dup = true
				break
			}
		}
		if !dup {
			list = append(list, ac)
		}
	}
	return list
}

func (p *NLQueryParser) resolveAdditionalColumn(run *parseRun, req includeRequest, source string) (models.AdditionalColumn, error) {
	table := source
	if req.tablePhrase != "" {
		resolved, err := p.resolvePhrase(run, req.tablePhrase)
		if err != nil {
			return models.AdditionalColumn{}, err
		}
		table = resolved
	}

	column, ok := matchColumn(run.index, table, req.column)
	if !ok {
		return models.AdditionalColumn{}, &apperrors.ColumnNotFoundError{Table: table, Column: req.column}
	}

	ac := models.AdditionalColumn{
		ColumnName:  column,
		SourceTable: table,
		Alias:       additionalColumnAlias(displayPhrase(req.tablePhrase, table), column),
		Confidence:  1.0,
	}
	if strings.EqualFold(table, source) {
		return ac, nil
	}

	path, ok := run.finder.FindPath(source, table)
	if !ok {
		return models.AdditionalColumn{}, &apperrors.JoinPathNotFoundError{SourceTable: source, TargetTable: table}
	}
	ac.Confidence = path.Confidence
	ac.JoinPath = path.Path
	ac.Path = path
	return ac, nil
}

func (p *NLQueryParser) extractIncludesWithLLM(run *parseRun, clause string) ([]includeRequest, error) {
	prompt := prompts.BuildIncludeExtractionPrompt(clause, tableContexts(run.index))
	response, err := p.completer.Complete(run.ctx, prompt, prompts.IncludeExtractionSystemMessage())
	if err != nil {
		return nil, err
	}
	parsed, err := llm.ParseJSONResponse[llmIncludeResponse](response)
	if err != nil {
		return nil, fmt.Errorf("parse include extraction: %w", err)
	}
	return parsed.requests(), nil
}

func displayPhrase(phrase, fallback string) string {
	if phrase == "" {
		return fallback
	}
	return phrase
}

// tableContexts describes every known table for a prompt.
func tableContexts(index *RelationshipIndex) []prompts.TableContext {
	aliasesByTable := make(map[string][]string)
	for alias, table := range index.Aliases() {
		aliasesByTable[strings.ToLower(table)] = append(aliasesByTable[strings.ToLower(table)], alias)
	}

	names := index.TableNames()
	out := make([]prompts.TableContext, 0, len(names))
	for _, name := range names {
		aliases := aliasesByTable[strings.ToLower(name)]
		sort.Strings(aliases)
		out = append(out, prompts.TableContext{
			Name:    name,
			Aliases: aliases,
			Columns: index.Columns(name),
		})
	}
	return out
}
