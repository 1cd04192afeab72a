package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/recon-engine/pkg/llm"
	"github.com/ekaya-inc/recon-engine/pkg/models"
	"github.com/ekaya-inc/recon-engine/pkg/prompts"
	sqlutil "github.com/ekaya-inc/recon-engine/pkg/sql"
)

// GeneratedSQL is the SQL chosen for an intent and where it came from.
type GeneratedSQL struct {
	SQL      string
	FromLLM  bool
	Fallback string // why LLM output was discarded, if it was
}

// LLMSQLGenerator asks the LLM for SQL and falls back to the template
// generator whenever the LLM fails or its SQL does not validate.
type LLMSQLGenerator struct {
	completer llm.Completer
	template  *SQLGenerator
	logger    *zap.Logger
}

// NewLLMSQLGenerator creates a generator. A nil completer always yields
// template SQL.
func NewLLMSQLGenerator(completer llm.Completer, template *SQLGenerator, logger *zap.Logger) *LLMSQLGenerator {
	return &LLMSQLGenerator{
		completer: completer,
		template:  template,
		logger:    logger.Named("llm-sql-generator"),
	}
}

// Generate returns SQL for intent. The template SQL is always built first,
// so an intent the template path rejects is an error regardless of the LLM.
// index supplies column lists for the prompt and may be nil.
func (g *LLMSQLGenerator) Generate(ctx context.Context, intent *models.QueryIntent, dialect models.Dialect, index *RelationshipIndex) (*GeneratedSQL, error) {
	templateSQL, err := g.template.Generate(intent, dialect)
	if err != nil {
		return nil, err
	}
	if g.completer == nil {
		return &GeneratedSQL{SQL: templateSQL}, nil
	}

	prompt := prompts.BuildSQLGenerationPrompt(sqlContext(intent, dialect, index))
	response, err := g.completer.Complete(ctx, prompt, prompts.SQLGenerationSystemMessage())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		g.logger.Warn("LLM SQL generation failed, using template SQL", zap.Error(err))
		return &GeneratedSQL{SQL: templateSQL, Fallback: err.Error()}, nil
	}

	validated, err := sqlutil.ValidateGeneratedSQL(dialect, response, requiredTables(intent))
	if err != nil {
		g.logger.Warn("LLM SQL rejected, using template SQL",
			zap.Error(err),
			zap.String("dialect", string(dialect)))
		return &GeneratedSQL{SQL: templateSQL, Fallback: err.Error()}, nil
	}

	g.logger.Debug("Using LLM generated SQL", zap.String("sql", validated))
	return &GeneratedSQL{SQL: validated, FromLLM: true}, nil
}

// requiredTables lists every table the SQL for intent must mention.
func requiredTables(intent *models.QueryIntent) []string {
	var tables []string
	add := func(name string) {
		if name != "" {
			tables = appendUnique(tables, name)
		}
	}
	add(intent.SourceTable)
	add(intent.TargetTable)
	if intent.JoinPath != nil {
		for _, t := range intent.JoinPath.Path {
			add(t)
		}
	}
	if intent.QueryType != models.QueryTypeAggregation {
		for _, ac := range intent.AdditionalColumns {
			add(ac.SourceTable)
			for _, t := range ac.JoinPath {
				add(t)
			}
		}
	}
	return tables
}

func sqlContext(intent *models.QueryIntent, dialect models.Dialect, index *RelationshipIndex) prompts.SQLContext {
	c := prompts.SQLContext{
		Question:    intent.Definition,
		Dialect:     string(dialect),
		QueryType:   string(intent.QueryType),
		Operation:   string(intent.Operation),
		SourceTable: intent.SourceTable,
		TargetTable: intent.TargetTable,
		GroupBy:     intent.GroupBy,
	}

	if intent.HasTarget() {
		if p := intent.JoinPath; p != nil && p.HopCount() > 1 {
			c.Joins = append(c.Joins, pathJoins(p, p.HopCount()-1)...)
		}
		left := intent.SourceTable
		if p := intent.JoinPath; p != nil && p.HopCount() > 1 {
			left = p.Path[len(p.Path)-2]
		}
		for _, pair := range intent.JoinColumns {
			c.Joins = append(c.Joins, prompts.JoinContext{
				LeftTable:   left,
				LeftColumn:  pair.Left,
				RightTable:  intent.TargetTable,
				RightColumn: pair.Right,
				Confidence:  intent.Confidence,
			})
		}
	}

	for _, f := range intent.Filters {
		fc := prompts.FilterContext{Table: f.Table, Column: f.Column, Operator: string(f.Operator)}
		if f.Table == "" {
			fc.Table = intent.SourceTable
		}
		if f.Operator.TakesValue() && f.Value != nil {
			fc.Value = fmt.Sprint(f.Value)
		}
		c.Filters = append(c.Filters, fc)
	}

	if intent.QueryType != models.QueryTypeAggregation {
		for _, ac := range intent.AdditionalColumns {
			c.Additional = append(c.Additional, fmt.Sprintf("%s.%s AS %s", ac.SourceTable, ac.ColumnName, ac.Alias))
			if ac.Path != nil {
				c.Joins = appendJoins(c.Joins, pathJoins(ac.Path, ac.Path.HopCount()))
			}
		}
	}

	for _, name := range requiredTables(intent) {
		tc := prompts.TableContext{Name: name}
		if index != nil {
			tc.Columns = index.Columns(name)
		}
		c.Tables = append(c.Tables, tc)
	}
	return c
}

// pathJoins describes the first n hops of p.
func pathJoins(p *models.JoinPath, n int) []prompts.JoinContext {
	out := make([]prompts.JoinContext, 0, n)
	for i := 0; i < n && i < len(p.HopColumns) && i+1 < len(p.Path); i++ {
		confidence := p.Confidence
		if i < len(p.Edges) {
			confidence = p.Edges[i].Confidence
		}
		out = append(out, prompts.JoinContext{
			LeftTable:   p.Path[i],
			LeftColumn:  p.HopColumns[i].Left,
			RightTable:  p.Path[i+1],
			RightColumn: p.HopColumns[i].Right,
			Confidence:  confidence,
		})
	}
	return out
}

func appendJoins(list, more []prompts.JoinContext) []prompts.JoinContext {
	for _, j := range more {
		dup := false
		for _, existing := range list {
			if strings.EqualFold(existing.LeftTable, j.LeftTable) && strings.EqualFold(existing.RightTable, j.RightTable) &&
				existing.LeftColumn == j.LeftColumn && existing.RightColumn == j.RightColumn {
				dup = true
				break
			}
		}
		if !dup {
			list = append(list, j)
		}
	}
	return list
}
