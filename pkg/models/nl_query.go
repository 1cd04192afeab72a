package models

// SchemasInfo lets a caller extend the knowledge graph's schema for a single
// request: extra tables, extra columns on known tables, and business aliases.
type SchemasInfo struct {
	Tables  []KGTable         `json:"tables,omitempty"`
	Aliases map[string]string `json:"aliases,omitempty"`
}

// NLQueryRequest is the input of one natural-language query.
type NLQueryRequest struct {
	Text        string       `json:"nl_text"`
	GraphID     string       `json:"kg_handle"`
	SchemasInfo *SchemasInfo `json:"schemas_info,omitempty"`
	UseLLM      bool         `json:"use_llm"`
	Dialect     string       `json:"dialect,omitempty"`
	Datasource  string       `json:"datasource,omitempty"`
	RowLimit    int          `json:"row_limit,omitempty"`
}

// ResultColumnMetadata maps a result alias back to the column it came from.
type ResultColumnMetadata struct {
	OriginalColumn string   `json:"original_column"`
	SourceTable    string   `json:"source_table"`
	JoinPath       []string `json:"join_path"`
}

// NLQueryResponse is the outcome of one natural-language query.
type NLQueryResponse struct {
	RequestID      string                          `json:"request_id"`
	Success        bool                            `json:"success"`
	SQL            string                          `json:"sql,omitempty"`
	ExecutedSQL    string                          `json:"executed_sql,omitempty"`
	Dialect        Dialect                         `json:"dialect,omitempty"`
	QueryIntent    *QueryIntent                    `json:"query_intent,omitempty"`
	Columns        []string                        `json:"columns,omitempty"`
	Rows           []map[string]any                `json:"rows,omitempty"`
	RowCount       int                             `json:"row_count"`
	ColumnMetadata map[string]ResultColumnMetadata `json:"column_metadata,omitempty"`
	Errors         []string                        `json:"errors"`
	Warnings       []string                        `json:"warnings"`
	UsedLLM        bool                            `json:"used_llm"`
	Cached         bool                            `json:"cached"`
}

// CompiledQuery is the cacheable result of parsing and generating SQL for a
// request. Rows are never part of it.
type CompiledQuery struct {
	Intent   *QueryIntent `json:"intent"`
	SQL      string       `json:"sql"`
	Dialect  Dialect      `json:"dialect"`
	Warnings []string     `json:"warnings"`
	UsedLLM  bool         `json:"used_llm"`
}
