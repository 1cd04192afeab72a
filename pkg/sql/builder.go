package sql

import (
	"errors"
	"strings"

	"github.com/ekaya-inc/recon-engine/pkg/models"
)

// ErrEmptySelect is returned when a statement has no select list or no FROM table.
var ErrEmptySelect = errors.New("select statement needs a select list and a FROM table")

// ColumnRef names a column through a table alias. An empty Table leaves the
// column unqualified.
type ColumnRef struct {
	Table string
	Name  string
}

// Col is shorthand for a qualified ColumnRef.
func Col(alias, name string) ColumnRef {
	return ColumnRef{Table: alias, Name: name}
}

func (c ColumnRef) render(d models.Dialect) string {
	return QuoteQualified(d, c.Table, c.Name)
}

// SelectItem is one entry of a select list.
type SelectItem struct {
	star     bool
	countAll bool
	column   ColumnRef
	as       string
}

// Star selects every column, of one alias when alias is non-empty.
func Star(alias string) SelectItem {
	return SelectItem{star: true, column: ColumnRef{Table: alias}}
}

// Column selects c, renamed to as when as is non-empty.
func Column(c ColumnRef, as string) SelectItem {
	return SelectItem{column: c, as: as}
}

// CountAll selects COUNT(*), renamed to as when as is non-empty.
func CountAll(as string) SelectItem {
	return SelectItem{countAll: true, as: as}
}

func (i SelectItem) render(d models.Dialect) string {
	var expr string
	switch {
	case i.star && i.column.Table == "":
		expr = "*"
	case i.star:
		expr = QuoteIdentifier(d, i.column.Table) + ".*"
	case i.countAll:
		expr = "COUNT(*)"
	default:
		expr = i.column.render(d)
	}
	if i.as != "" {
		expr += " AS " + QuoteIdentifier(d, i.as)
	}
	return expr
}

// TableRef is a table with an optional alias.
type TableRef struct {
	Name  string
	Alias string
}

func (t TableRef) render(d models.Dialect) string {
	// Oracle rejects AS before a table alias, so it is never emitted.
	if t.Alias == "" {
		return QuoteIdentifier(d, t.Name)
	}
	return QuoteIdentifier(d, t.Name) + " " + QuoteIdentifier(d, t.Alias)
}

// JoinKind is the join keyword.
type JoinKind string

const (
	InnerJoin JoinKind = "INNER JOIN"
	LeftJoin  JoinKind = "LEFT JOIN"
)

// Join is one JOIN clause. On predicates are AND-ed.
type Join struct {
	Kind  JoinKind
	Table TableRef
	On    []Predicate
}

// Predicate is a boolean SQL expression.
type Predicate interface {
	render(d models.Dialect) string
}

type equalColumns struct{ left, right ColumnRef }

func (p equalColumns) render(d models.Dialect) string {
	return p.left.render(d) + " = " + p.right.render(d)
}

// EqualColumns compares two columns for equality.
func EqualColumns(left, right ColumnRef) Predicate {
	return equalColumns{left: left, right: right}
}

type nullCheck struct {
	column ColumnRef
	not    bool
}

func (p nullCheck) render(d models.Dialect) string {
	if p.not {
		return p.column.render(d) + " IS NOT NULL"
	}
	return p.column.render(d) + " IS NULL"
}

// IsNull tests a column for NULL.
func IsNull(c ColumnRef) Predicate { return nullCheck{column: c} }

// IsNotNull tests a column for a non-NULL value.
func IsNotNull(c ColumnRef) Predicate { return nullCheck{column: c, not: true} }

// CompareOp is a binary comparison operator.
type CompareOp string

const (
	OpEq  CompareOp = "="
	OpNe  CompareOp = "<>"
	OpGt  CompareOp = ">"
	OpGte CompareOp = ">="
	OpLt  CompareOp = "<"
	OpLte CompareOp = "<="
)

type compare struct {
	column ColumnRef
	op     CompareOp
	value  any
}

func (p compare) render(d models.Dialect) string {
	return p.column.render(d) + " " + string(p.op) + " " + QuoteLiteral(d, p.value)
}

// Compare compares a column with a literal value.
func Compare(c ColumnRef, op CompareOp, value any) Predicate {
	return compare{column: c, op: op, value: value}
}

type contains struct {
	column ColumnRef
	value  string
}

func (p contains) render(d models.Dialect) string {
	pattern := "%" + EscapeLike(p.value) + "%"
	return p.column.render(d) + " LIKE " + QuoteLiteral(d, pattern) + " ESCAPE " + QuoteLiteral(d, `\`)
}

// Contains matches rows whose column contains value as a substring.
func Contains(c ColumnRef, value string) Predicate {
	return contains{column: c, value: value}
}

// SelectStmt is a single SELECT statement assembled from structured clauses
// and rendered once.
type SelectStmt struct {
	Distinct bool
	Items    []SelectItem
	From     TableRef
	Joins    []Join
	Where    []Predicate
	GroupBy  []ColumnRef
}

// Render emits the statement for the dialect. Output depends only on the
// statement's contents and the dialect.
func (s *SelectStmt) Render(d models.Dialect) (string, error) {
	if len(s.Items) == 0 || s.From.Name == "" {
		return "", ErrEmptySelect
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	if s.Distinct {
		b.WriteString("DISTINCT ")
	}
	for i, item := range s.Items {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(item.render(d))
	}

	b.WriteString(" FROM ")
	b.WriteString(s.From.render(d))

	for _, j := range s.Joins {
		b.WriteString(" ")
		b.WriteString(string(j.Kind))
		b.WriteString(" ")
		b.WriteString(j.Table.render(d))
		if len(j.On) > 0 {
			b.WriteString(" ON ")
			b.WriteString(joinPredicates(d, j.On))
		}
	}

	if len(s.Where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(joinPredicates(d, s.Where))
	}

	if len(s.GroupBy) > 0 {
		b.WriteString(" GROUP BY ")
		for i, c := range s.GroupBy {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(c.render(d))
		}
	}

	return b.String(), nil
}

func joinPredicates(d models.Dialect, preds []Predicate) string {
	parts := make([]string, len(preds))
	for i, p := range preds {
		parts[i] = p.render(d)
	}
	return strings.Join(parts, " AND ")
}
