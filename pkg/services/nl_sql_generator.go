package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/recon-engine/pkg/apperrors"
	"github.com/ekaya-inc/recon-engine/pkg/models"
	sqlutil "github.com/ekaya-inc/recon-engine/pkg/sql"
)

// Fixed aliases of the primary tables.
const (
	sourceAlias = "s"
	targetAlias = "t"

	// RecordCountAlias names the COUNT(*) column of aggregation queries.
	RecordCountAlias = "record_count"
)

var aliasSegment = regexp.MustCompile(`[^A-Za-z0-9]+`)

// SQLGenerator compiles a QueryIntent into SQL through the statement builder.
// Output depends only on the intent and the dialect.
type SQLGenerator struct {
	logger *zap.Logger
}

// NewSQLGenerator creates a template SQL generator.
func NewSQLGenerator(logger *zap.Logger) *SQLGenerator {
	return &SQLGenerator{logger: logger.Named("sql-generator")}
}

// Generate renders the SQL for intent in the given dialect.
func (g *SQLGenerator) Generate(intent *models.QueryIntent, dialect models.Dialect) (string, error) {
	if !dialect.IsValid() {
		return "", fmt.Errorf("%w: %q", apperrors.ErrUnknownDialect, dialect)
	}
	stmt, err := g.Build(intent)
	if err != nil {
		return "", err
	}
	return stmt.Render(dialect)
}

// Build assembles the statement for intent without rendering it.
func (g *SQLGenerator) Build(intent *models.QueryIntent) (*sqlutil.SelectStmt, error) {
	if err := validateIntent(intent); err != nil {
		return nil, err
	}

	b := &stmtBuilder{
		intent:  intent,
		stmt:    &sqlutil.SelectStmt{From: sqlutil.TableRef{Name: intent.SourceTable, Alias: sourceAlias}},
		aliases: map[string]bool{sourceAlias: true, targetAlias: true},
		chains:  make(map[string]string),
	}

	if err := b.primaryJoin(); err != nil {
		return nil, err
	}
	if err := b.filters(); err != nil {
		return nil, err
	}

	if intent.QueryType == models.QueryTypeAggregation {
		b.aggregation()
		if len(intent.AdditionalColumns) > 0 {
			g.logger.Debug("Additional columns ignored for aggregation",
				zap.Int("count", len(intent.AdditionalColumns)))
		}
		return b.stmt, nil
	}

	b.stmt.Items = []sqlutil.SelectItem{sqlutil.Star(sourceAlias)}
	b.stmt.Distinct = intent.HasTarget()
	if err := b.additionalColumns(); err != nil {
		return nil, err
	}
	return b.stmt, nil
}

func validateIntent(intent *models.QueryIntent) error {
	if intent == nil || intent.SourceTable == "" {
		return apperrors.ErrNoTableReference
	}
	if !intent.QueryType.IsValid() {
		return fmt.Errorf("%w: unknown query type %q", apperrors.ErrInvalidRequest, intent.QueryType)
	}
	if intent.QueryType == models.QueryTypeComparison {
		if !intent.HasTarget() {
			return fmt.Errorf("%w: comparison query has no target table", apperrors.ErrInvalidRequest)
		}
		if intent.Operation != models.OperationIn && intent.Operation != models.OperationNotIn {
			return fmt.Errorf("%w: comparison query has operation %q", apperrors.ErrInvalidRequest, intent.Operation)
		}
	}
	if intent.HasTarget() && len(intent.JoinColumns) == 0 {
		return apperrors.ErrMissingJoinColumns
	}
	return nil
}

type stmtBuilder struct {
	intent  *models.QueryIntent
	stmt    *sqlutil.SelectStmt
	aliases map[string]bool
	// chains maps a lower-cased include path prefix to the alias of its last table.
	chains map[string]string
	// targetJoin is the index of the join that brings in the target table.
	targetJoin int
}

func (b *stmtBuilder) antiJoin() bool {
	return b.intent.QueryType == models.QueryTypeComparison && b.intent.Operation == models.OperationNotIn
}

// primaryJoin joins the target table, through any intermediate tables of a
// multi-hop primary path. The final hop uses every pair of JoinColumns.
func (b *stmtBuilder) primaryJoin() error {
	intent := b.intent
	if !intent.HasTarget() {
		return nil
	}

	kind := sqlutil.InnerJoin
	if b.antiJoin() {
		kind = sqlutil.LeftJoin
	}

	prev := sourceAlias
	if p := intent.JoinPath; p != nil && p.HopCount() > 1 {
		if len(p.HopColumns) != p.HopCount() {
			return fmt.Errorf("%w: join path has %d hops but %d column pairs", apperrors.ErrInvalidRequest, p.HopCount(), len(p.HopColumns))
		}
		for i := 1; i < len(p.Path)-1; i++ {
			alias := b.allocAlias(tableInitials(p.Path[i]))
			pair := p.HopColumns[i-1]
			b.stmt.Joins = append(b.stmt.Joins, sqlutil.Join{
				Kind:  kind,
				Table: sqlutil.TableRef{Name: p.Path[i], Alias: alias},
				On:    []sqlutil.Predicate{sqlutil.EqualColumns(sqlutil.Col(prev, pair.Left), sqlutil.Col(alias, pair.Right))},
			})
			prev = alias
		}
	}

	on := make([]sqlutil.Predicate, 0, len(intent.JoinColumns))
	for _, pair := range intent.JoinColumns {
		on = append(on, sqlutil.EqualColumns(sqlutil.Col(prev, pair.Left), sqlutil.Col(targetAlias, pair.Right)))
	}
	b.stmt.Joins = append(b.stmt.Joins, sqlutil.Join{
		Kind:  kind,
		Table: sqlutil.TableRef{Name: intent.TargetTable, Alias: targetAlias},
		On:    on,
	})
	b.targetJoin = len(b.stmt.Joins) - 1

	if b.antiJoin() {
		b.stmt.Where = append(b.stmt.Where, sqlutil.IsNull(sqlutil.Col(targetAlias, intent.JoinColumns[0].Right)))
	}
	return nil
}

// filters places each predicate on its table's alias. For an anti-join the
// target's predicates go into the ON clause so they restrict which target
// rows count as a match.
func (b *stmtBuilder) filters() error {
	for _, f := range b.intent.Filters {
		alias, err := b.filterAlias(f)
		if err != nil {
			return err
		}
		pred, err := filterPredicate(sqlutil.Col(alias, f.Column), f)
		if err != nil {
			return err
		}
		if alias == targetAlias && b.antiJoin() {
			join := &b.stmt.Joins[b.targetJoin]
			join.On = append(join.On, pred)
			continue
		}
		b.stmt.Where = append(b.stmt.Where, pred)
	}
	return nil
}

func (b *stmtBuilder) filterAlias(f models.Filter) (string, error) {
	switch {
	case f.Table == "" || strings.EqualFold(f.Table, b.intent.SourceTable):
		return sourceAlias, nil
	case b.intent.HasTarget() && strings.EqualFold(f.Table, b.intent.TargetTable):
		return targetAlias, nil
	}
	return "", fmt.Errorf("%w: filter on %s.%s names a table outside the query", apperrors.ErrInvalidRequest, f.Table, f.Column)
}

func filterPredicate(col sqlutil.ColumnRef, f models.Filter) (sqlutil.Predicate, error) {
	switch f.Operator {
	case models.FilterOpEq:
		if f.Value == nil {
			return sqlutil.IsNull(col), nil
		}
		return sqlutil.Compare(col, sqlutil.OpEq, f.Value), nil
	case models.FilterOpNe:
		if f.Value == nil {
			return sqlutil.IsNotNull(col), nil
		}
		return sqlutil.Compare(col, sqlutil.OpNe, f.Value), nil
	case models.FilterOpGt:
		return sqlutil.Compare(col, sqlutil.OpGt, f.Value), nil
	case models.FilterOpGte:
		return sqlutil.Compare(col, sqlutil.OpGte, f.Value), nil
	case models.FilterOpLt:
		return sqlutil.Compare(col, sqlutil.OpLt, f.Value), nil
	case models.FilterOpLte:
		return sqlutil.Compare(col, sqlutil.OpLte, f.Value), nil
	case models.FilterOpContains:
		return sqlutil.Contains(col, fmt.Sprint(f.Value)), nil
	case models.FilterOpIsNull:
		return sqlutil.IsNull(col), nil
	case models.FilterOpIsNotNull:
		return sqlutil.IsNotNull(col), nil
	}
	return nil, fmt.Errorf("%w: unsupported filter operator %q", apperrors.ErrInvalidRequest, f.Operator)
}

func (b *stmtBuilder) aggregation() {
	if b.intent.GroupBy == "" {
		b.stmt.Items = []sqlutil.SelectItem{sqlutil.CountAll(RecordCountAlias)}
		return
	}
	group := sqlutil.Col(sourceAlias, b.intent.GroupBy)
	b.stmt.Items = []sqlutil.SelectItem{sqlutil.Column(group, ""), sqlutil.CountAll(RecordCountAlias)}
	b.stmt.GroupBy = []sqlutil.ColumnRef{group}
}

// additionalColumns appends each included column and the LEFT JOIN chain
// that reaches it. Chains start at the source alias and share joins only
// with other include chains over the same path prefix.
func (b *stmtBuilder) additionalColumns() error {
	for _, ac := range b.intent.AdditionalColumns {
		if ac.Path == nil || ac.Path.HopCount() < 1 {
			if !strings.EqualFold(ac.SourceTable, b.intent.SourceTable) {
				return fmt.Errorf("%w: additional column %s.%s has no join path", apperrors.ErrInvalidRequest, ac.SourceTable, ac.ColumnName)
			}
			b.stmt.Items = append(b.stmt.Items, sqlutil.Column(sqlutil.Col(sourceAlias, ac.ColumnName), ac.Alias))
			continue
		}

		p := ac.Path
		if len(p.HopColumns) != p.HopCount() {
			return fmt.Errorf("%w: join path for %s has %d hops but %d column pairs", apperrors.ErrInvalidRequest, ac.Alias, p.HopCount(), len(p.HopColumns))
		}

		prev := sourceAlias
		key := strings.ToLower(p.Path[0])
		for i := 1; i < len(p.Path); i++ {
			key += "\x00" + strings.ToLower(p.Path[i])
			if alias, ok := b.chains[key]; ok {
				prev = alias
				continue
			}

			base := tableInitials(p.Path[i])
			if i == len(p.Path)-1 {
				base = includeAliasBase(ac, p.Path[i])
			}
			alias := b.allocAlias(base)
			pair := p.HopColumns[i-1]
			b.stmt.Joins = append(b.stmt.Joins, sqlutil.Join{
				Kind:  sqlutil.LeftJoin,
				Table: sqlutil.TableRef{Name: p.Path[i], Alias: alias},
				On:    []sqlutil.Predicate{sqlutil.EqualColumns(sqlutil.Col(prev, pair.Left), sqlutil.Col(alias, pair.Right))},
			})
			b.chains[key] = alias
			prev = alias
		}
		b.stmt.Items = append(b.stmt.Items, sqlutil.Column(sqlutil.Col(prev, ac.ColumnName), ac.Alias))
	}
	return nil
}

// allocAlias reserves base, or base followed by the smallest free number.
func (b *stmtBuilder) allocAlias(base string) string {
	if base == "" {
		base = "j"
	}
	alias := base
	for n := 2; b.aliases[alias]; n++ {
		alias = base + strconv.Itoa(n)
	}
	b.aliases[alias] = true
	return alias
}

// includeAliasBase derives a table alias from the words the user named the
// table with, so "hana_master_planner" gives "hm".
func includeAliasBase(ac models.AdditionalColumn, table string) string {
	prefix, ok := strings.CutSuffix(ac.Alias, "_"+normalizeIdentifier(ac.ColumnName))
	if !ok || prefix == "" {
		return tableInitials(table)
	}
	return tableInitials(prefix)
}

// tableInitials returns the lower-cased first character of each word of name.
func tableInitials(name string) string {
	var b strings.Builder
	for _, part := range aliasSegment.Split(name, -1) {
		if part != "" {
			b.WriteString(strings.ToLower(part[:1]))
		}
	}
	return b.String()
}
