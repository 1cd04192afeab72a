// Package prompts builds the LLM prompts used by the natural-language query
// pipeline. Every prompt asks for a strict response shape that the caller
// validates before use.
package prompts

import (
	"fmt"
	"strings"
)

// TableContext describes one schema table for a prompt.
type TableContext struct {
	Name    string
	Aliases []string
	Columns []string
}

// JoinContext is one join the LLM must use verbatim.
type JoinContext struct {
	LeftTable   string
	LeftColumn  string
	RightTable  string
	RightColumn string
	Confidence  float64
}

// FilterContext is one predicate the generated SQL must apply.
type FilterContext struct {
	Table    string
	Column   string
	Operator string
	Value    string
}

// SQLContext is the resolved intent handed to the SQL generation prompt.
type SQLContext struct {
	Question    string
	Dialect     string
	QueryType   string
	Operation   string
	SourceTable string
	TargetTable string
	Joins       []JoinContext
	Filters     []FilterContext
	GroupBy     string
	Additional  []string // "table.column AS alias"
	Tables      []TableContext
}

func writeTables(b *strings.Builder, tables []TableContext) {
	for _, t := range tables {
		b.WriteString(fmt.Sprintf("- %s", t.Name))
		if len(t.Aliases) > 0 {
			b.WriteString(fmt.Sprintf(" (also called: %s)", strings.Join(t.Aliases, ", ")))
		}
		if len(t.Columns) > 0 {
			b.WriteString(fmt.Sprintf(": %s", strings.Join(t.Columns, ", ")))
		}
		b.WriteString("\n")
	}
}

// BuildTableExtractionPrompt asks which known tables a question compares.
func BuildTableExtractionPrompt(question string, tables []TableContext) string {
	var b strings.Builder

	b.WriteString("# Table Identification\n\n")
	b.WriteString("Identify the tables referenced by the question below.\n\n")
	b.WriteString("## Question\n\n")
	b.WriteString(question)
	b.WriteString("\n\n## Known Tables\n\n")
	writeTables(&b, tables)

	b.WriteString("\n## Rules\n\n")
	b.WriteString("- `source_table` is the table whose rows the user wants returned.\n")
	b.WriteString("- `target_table` is the table the source is compared against, or empty if there is none.\n")
	b.WriteString("- Use table names exactly as listed under Known Tables. Never invent a table.\n")
	b.WriteString("- `confidence` is 0.0-1.0.\n\n")

	b.WriteString("## Output Format\n\n")
	b.WriteString("```json\n")
	b.WriteString(`{"source_table": "orders", "target_table": "invoices", "confidence": 0.9}`)
	b.WriteString("\n```\n\n")
	b.WriteString("Return ONLY the JSON, no additional text.\n")

	return b.String()
}

// BuildIncludeExtractionPrompt asks which extra columns a question wants
// pulled into the result, and from which tables.
func BuildIncludeExtractionPrompt(question string, tables []TableContext) string {
	var b strings.Builder

	b.WriteString("# Additional Column Extraction\n\n")
	b.WriteString("The question asks for extra columns from related tables. List each one.\n\n")
	b.WriteString("## Question\n\n")
	b.WriteString(question)
	b.WriteString("\n\n## Known Tables\n\n")
	writeTables(&b, tables)

	b.WriteString("\n## Output Format\n\n")
	b.WriteString("```json\n")
	b.WriteString(`{"includes": [{"column": "planner", "table": "HANA Master"}]}`)
	b.WriteString("\n```\n\n")
	b.WriteString("Use an empty list when nothing extra is requested. Return ONLY the JSON, no additional text.\n")

	return b.String()
}

// BuildSQLGenerationPrompt asks for one SELECT statement implementing a
// resolved query intent.
func BuildSQLGenerationPrompt(ctx SQLContext) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("# %s SQL Generation\n\n", ctx.Dialect))
	b.WriteString("Write one read-only SELECT statement for the resolved query below.\n\n")

	b.WriteString("## Question\n\n")
	b.WriteString(ctx.Question)
	b.WriteString("\n\n## Resolved Intent\n\n")
	b.WriteString(fmt.Sprintf("- Query type: %s\n", ctx.QueryType))
	if ctx.Operation != "" {
		b.WriteString(fmt.Sprintf("- Operation: %s\n", ctx.Operation))
	}
	b.WriteString(fmt.Sprintf("- Source table: %s\n", ctx.SourceTable))
	if ctx.TargetTable != "" {
		b.WriteString(fmt.Sprintf("- Target table: %s\n", ctx.TargetTable))
	}
	if ctx.GroupBy != "" {
		b.WriteString(fmt.Sprintf("- Group by: %s\n", ctx.GroupBy))
	}

	if len(ctx.Joins) > 0 {
		b.WriteString("\n## Joins (use exactly these columns)\n\n")
		for _, j := range ctx.Joins {
			b.WriteString(fmt.Sprintf("- %s.%s = %s.%s (confidence %.2f)\n",
				j.LeftTable, j.LeftColumn, j.RightTable, j.RightColumn, j.Confidence))
		}
	}

	if len(ctx.Filters) > 0 {
		b.WriteString("\n## Filters\n\n")
		for _, f := range ctx.Filters {
			if f.Value == "" {
				b.WriteString(fmt.Sprintf("- %s.%s %s\n", f.Table, f.Column, f.Operator))
				continue
			}
			b.WriteString(fmt.Sprintf("- %s.%s %s %s\n", f.Table, f.Column, f.Operator, f.Value))
		}
	}

	if len(ctx.Additional) > 0 {
		b.WriteString("\n## Additional Output Columns\n\n")
		for _, a := range ctx.Additional {
			b.WriteString(fmt.Sprintf("- %s\n", a))
		}
	}

	b.WriteString("\n## Tables\n\n")
	writeTables(&b, ctx.Tables)

	b.WriteString("\n## Rules\n\n")
	b.WriteString(fmt.Sprintf("- Quote every identifier the way %s requires.\n", ctx.Dialect))
	b.WriteString("- For NOT_IN use LEFT JOIN and test the target join column IS NULL; for IN use INNER JOIN.\n")
	b.WriteString("- Do not add joins, tables or columns that are not listed above.\n")
	b.WriteString("- Do not add LIMIT, TOP or FETCH; the caller applies the row limit.\n")
	b.WriteString("- No comments and no trailing semicolon.\n\n")
	b.WriteString("Return ONLY the SQL, no additional text.\n")

	return b.String()
}

// TableExtractionSystemMessage is the system message for table identification.
func TableExtractionSystemMessage() string {
	return `You map business questions onto database tables. You answer with JSON only and only use table names you are given.`
}

// IncludeExtractionSystemMessage is the system message for column extraction.
func IncludeExtractionSystemMessage() string {
	return `You extract requested output columns from business questions. You answer with JSON only.`
}

// SQLGenerationSystemMessage is the system message for SQL generation.
func SQLGenerationSystemMessage() string {
	return `You are a careful SQL engineer. You write a single read-only SELECT statement and nothing else.`
}
