package services

import (
	"sort"
	"strings"

	"github.com/ekaya-inc/recon-engine/pkg/models"
)

// RelationshipIndex is a read-only view over one knowledge graph snapshot.
// Lookups by table are O(1); the index is never mutated after construction,
// so a single value may be shared by any number of concurrent requests.
type RelationshipIndex struct {
	graphID   string
	version   string
	tables    map[string]*indexedTable // lower(name) -> table
	names     []string
	adjacency map[string][]models.RelationshipEdge // lower(name) -> incident edges
	aliases   map[string]string
}

type indexedTable struct {
	name    string
	columns map[string]string // lower(column) -> column
	order   []string
}

func (t *indexedTable) addColumn(name string) {
	key := strings.ToLower(name)
	if name == "" {
		return
	}
	if _, ok := t.columns[key]; ok {
		return
	}
	t.columns[key] = name
	t.order = append(t.order, name)
}

// NewRelationshipIndex builds the adjacency map for kg. Edges with no
// confidence score get defaultConfidence; scores are clamped to [0,1].
// Tables that appear only as relationship endpoints are indexed too, with
// the edge columns as their known columns.
func NewRelationshipIndex(kg *models.KnowledgeGraph, defaultConfidence float64) *RelationshipIndex {
	if defaultConfidence <= 0 || defaultConfidence > 1 {
		defaultConfidence = models.DefaultEdgeConfidence
	}

	idx := &RelationshipIndex{
		graphID:   kg.ID,
		version:   kg.Version,
		tables:    make(map[string]*indexedTable, len(kg.Tables)),
		adjacency: make(map[string][]models.RelationshipEdge),
		aliases:   kg.AliasMap(),
	}

	for _, t := range kg.Tables {
		table := idx.ensureTable(t.Name)
		for _, c := range t.Columns {
			table.addColumn(c.Name)
		}
	}

	for _, e := range kg.Relationships {
		if e.SourceTable == "" || e.TargetTable == "" || e.SourceColumn == "" || e.TargetColumn == "" {
			continue
		}
		src := idx.ensureTable(e.SourceTable)
		dst := idx.ensureTable(e.TargetTable)
		src.addColumn(e.SourceColumn)
		dst.addColumn(e.TargetColumn)

		edge := e
		edge.SourceTable = src.name
		edge.TargetTable = dst.name
		switch {
		case edge.Confidence <= 0:
			edge.Confidence = defaultConfidence
		case edge.Confidence > 1:
			edge.Confidence = 1
		}
		if edge.RelationshipType == "" {
			edge.RelationshipType = models.RelationshipTypePattern
		}

		srcKey := strings.ToLower(src.name)
		dstKey := strings.ToLower(dst.name)
		idx.adjacency[srcKey] = append(idx.adjacency[srcKey], edge)
		if dstKey != srcKey {
			idx.adjacency[dstKey] = append(idx.adjacency[dstKey], edge)
		}
	}

	for _, t := range idx.tables {
		idx.names = append(idx.names, t.name)
	}
	sort.Strings(idx.names)

	return idx
}

func (idx *RelationshipIndex) ensureTable(name string) *indexedTable {
	key := strings.ToLower(name)
	if t, ok := idx.tables[key]; ok {
		return t
	}
	t := &indexedTable{name: name, columns: make(map[string]string)}
	idx.tables[key] = t
	return t
}

// GraphID returns the id of the graph the index was built from.
func (idx *RelationshipIndex) GraphID() string { return idx.graphID }

// Version returns the graph version the index was built from.
func (idx *RelationshipIndex) Version() string { return idx.version }

// EdgesIncidentOn returns every edge with table at either end. The returned
// slice must not be modified.
func (idx *RelationshipIndex) EdgesIncidentOn(table string) []models.RelationshipEdge {
	return idx.adjacency[strings.ToLower(table)]
}

// TableExists reports whether table is known, ignoring case.
func (idx *RelationshipIndex) TableExists(table string) bool {
	_, ok := idx.tables[strings.ToLower(table)]
	return ok
}

// CanonicalTable returns the table's name as stored in the graph.
func (idx *RelationshipIndex) CanonicalTable(table string) (string, bool) {
	t, ok := idx.tables[strings.ToLower(table)]
	if !ok {
		return "", false
	}
	return t.name, true
}

// ColumnExists reports whether column exists on table, ignoring case.
func (idx *RelationshipIndex) ColumnExists(table, column string) bool {
	_, ok := idx.ResolveColumn(table, column)
	return ok
}

// ResolveColumn returns the column's name as stored in the graph.
func (idx *RelationshipIndex) ResolveColumn(table, column string) (string, bool) {
	t, ok := idx.tables[strings.ToLower(table)]
	if !ok {
		return "", false
	}
	name, ok := t.columns[strings.ToLower(strings.TrimSpace(column))]
	return name, ok
}

// Columns returns table's columns in graph order.
func (idx *RelationshipIndex) Columns(table string) []string {
	t, ok := idx.tables[strings.ToLower(table)]
	if !ok {
		return nil
	}
	return append([]string(nil), t.order...)
}

// TableNames returns every known table name, sorted.
func (idx *RelationshipIndex) TableNames() []string {
	return append([]string(nil), idx.names...)
}

// Aliases returns a copy of the business alias -> table map.
func (idx *RelationshipIndex) Aliases() map[string]string {
	out := make(map[string]string, len(idx.aliases))
	for k, v := range idx.aliases {
		out[k] = v
	}
	return out
}

// EdgeCount returns the number of distinct relationship edges indexed.
func (idx *RelationshipIndex) EdgeCount() int {
	n := 0
	for key, edges := range idx.adjacency {
		for _, e := range edges {
			if strings.ToLower(e.SourceTable) == key {
				n++
			}
		}
	}
	return n
}

// ExtendGraph returns a copy of kg with the request-scoped schema additions
// applied: new tables, new columns on known tables and extra aliases. kg is
// not modified.
func ExtendGraph(kg *models.KnowledgeGraph, info *models.SchemasInfo) *models.KnowledgeGraph {
	if info == nil || (len(info.Tables) == 0 && len(info.Aliases) == 0) {
		return kg
	}

	out := &models.KnowledgeGraph{
		ID:            kg.ID,
		Version:       kg.Version,
		Relationships: kg.Relationships,
		Tables:        make([]models.KGTable, 0, len(kg.Tables)+len(info.Tables)),
	}

	positions := make(map[string]int, len(kg.Tables))
	for _, t := range kg.Tables {
		positions[strings.ToLower(t.Name)] = len(out.Tables)
		out.Tables = append(out.Tables, models.KGTable{
			Name:    t.Name,
			Aliases: append([]string(nil), t.Aliases...),
			Columns: append([]models.KGColumn(nil), t.Columns...),
		})
	}

	for _, t := range info.Tables {
		if i, ok := positions[strings.ToLower(t.Name)]; ok {
			out.Tables[i].Columns = append(out.Tables[i].Columns, t.Columns...)
			out.Tables[i].Aliases = append(out.Tables[i].Aliases, t.Aliases...)
			continue
		}
		positions[strings.ToLower(t.Name)] = len(out.Tables)
		out.Tables = append(out.Tables, models.KGTable{
			Name:    t.Name,
			Aliases: append([]string(nil), t.Aliases...),
			Columns: append([]models.KGColumn(nil), t.Columns...),
		})
	}

	aliases := make([]string, 0, len(info.Aliases))
	for alias := range info.Aliases {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	for _, alias := range aliases {
		table := info.Aliases[alias]
		i, ok := positions[strings.ToLower(table)]
		if !ok {
			positions[strings.ToLower(table)] = len(out.Tables)
			out.Tables = append(out.Tables, models.KGTable{Name: table})
			i = len(out.Tables) - 1
		}
		out.Tables[i].Aliases = append(out.Tables[i].Aliases, alias)
	}

	return out
}
