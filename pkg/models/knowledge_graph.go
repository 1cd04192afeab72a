package models

// KnowledgeGraph is an immutable snapshot of the tables and inferred
// relationships for one graph. Version changes whenever the graph changes.
type KnowledgeGraph struct {
	ID            string             `json:"id" yaml:"id"`
	Version       string             `json:"version" yaml:"version"`
	Tables        []KGTable          `json:"tables" yaml:"tables"`
	Relationships []RelationshipEdge `json:"relationships" yaml:"relationships"`
}

// KGTable is a schema table known to the graph.
type KGTable struct {
	Name    string     `json:"name" yaml:"name"`
	Aliases []string   `json:"aliases,omitempty" yaml:"aliases"`
	Columns []KGColumn `json:"columns" yaml:"columns"`
}

// KGColumn is a column of a KGTable.
type KGColumn struct {
	Name     string `json:"name" yaml:"name"`
	DataType string `json:"data_type,omitempty" yaml:"data_type"`
}

// Table returns the table with the exact given name.
func (g *KnowledgeGraph) Table(name string) (*KGTable, bool) {
	for i := range g.Tables {
		if g.Tables[i].Name == name {
			return &g.Tables[i], true
		}
	}
	return nil, false
}

// AliasMap returns alias phrase -> table name for every table alias.
func (g *KnowledgeGraph) AliasMap() map[string]string {
	aliases := make(map[string]string)
	for _, t := range g.Tables {
		for _, a := range t.Aliases {
			aliases[a] = t.Name
		}
	}
	return aliases
}
