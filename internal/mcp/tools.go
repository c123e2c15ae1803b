package mcp

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query  string `json:"query" jsonschema:"boolean full-text query, e.g. alice AND smith"`
	Type   string `json:"type,omitempty" jsonschema:"restrict results to one record type, e.g. contactcontacts"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	Offset int    `json:"offset,omitempty" jsonschema:"number of results to skip"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results" jsonschema:"matching documents, best first"`
}

// SearchResultOutput is a single matching document.
type SearchResultOutput struct {
	ID    string  `json:"id" jsonschema:"document id, e.g. contact://contacts/42"`
	Type  string  `json:"type" jsonschema:"record type the document was indexed as"`
	Score float64 `json:"score" jsonschema:"engine relevance score"`
}

// GetRecordInput defines the input schema for the get_record tool.
type GetRecordInput struct {
	ID string `json:"id" jsonschema:"document id returned by search"`
}

// GetRecordOutput holds the latest journaled copy of a record.
type GetRecordOutput struct {
	ID         string         `json:"id"`
	Collection string         `json:"collection"`
	Record     map[string]any `json:"record"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Engine     string `json:"engine"`
	Variant    string `json:"variant"`
	IndexPath  string `json:"index_path"`
	QueueDepth int    `json:"queue_depth"`
	Journal    bool   `json:"journal"`
}
