package models

import "strings"

// DefaultEdgeConfidence is applied to relationship edges stored without a score.
const DefaultEdgeConfidence = 0.75

// Relationship types recorded on knowledge graph edges.
const (
	RelationshipTypeForeignKey = "foreign_key"
	RelationshipTypePattern    = "pattern"
	RelationshipTypeLLM        = "llm_inferred"
	RelationshipTypeManual     = "manual"
)

// RelationshipEdge is an inferred join between two columns, read from the
// knowledge graph. Edges are stored directed but are traversed both ways.
type RelationshipEdge struct {
	SourceTable      string  `json:"source_table" yaml:"source_table"`
	SourceColumn     string  `json:"source_column" yaml:"source_column"`
	TargetTable      string  `json:"target_table" yaml:"target_table"`
	TargetColumn     string  `json:"target_column" yaml:"target_column"`
	Confidence       float64 `json:"confidence" yaml:"confidence"`
	RelationshipType string  `json:"relationship_type" yaml:"relationship_type"`
}

// OtherEnd returns the endpoint of the edge opposite to table, along with the
// join columns oriented from table's side to the other side. ok is false when
// table is not an endpoint of the edge.
func (e RelationshipEdge) OtherEnd(table string) (next string, cols ColumnPair, ok bool) {
	switch {
	case strings.EqualFold(e.SourceTable, table):
		return e.TargetTable, ColumnPair{Left: e.SourceColumn, Right: e.TargetColumn}, true
	case strings.EqualFold(e.TargetTable, table):
		return e.SourceTable, ColumnPair{Left: e.TargetColumn, Right: e.SourceColumn}, true
	}
	return "", ColumnPair{}, false
}

// JoinPath is a chain of tables connected by relationship edges.
type JoinPath struct {
	SourceTable string       `json:"source_table"`
	TargetTable string       `json:"target_table"`
	Path        []string     `json:"path"`
	HopColumns  []ColumnPair `json:"per_hop_join_columns"`
	Confidence  float64      `json:"confidence"`
	Score       float64      `json:"-"`

	// Edges are the knowledge graph edges traversed, one per hop.
	Edges []RelationshipEdge `json:"-"`
}

// HopCount returns the number of joins in the path.
func (p *JoinPath) HopCount() int {
	return len(p.Path) - 1
}
