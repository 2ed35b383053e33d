package entities

// CanonicalTable is one logical table and every name it is known by.
type CanonicalTable struct {
	ID         string
	Aliases    map[string]struct{}
	DataFile   string // preferred spreadsheet path, may be empty
	SchemaFile string // preferred schema description path, may be empty
}

// SelectionCandidate carries the scores used to rank one table for a query.
type SelectionCandidate struct {
	ID      string  `json:"id"`
	Content float64 `json:"content_score"`
	Name    float64 `json:"name_score"`
	Final   float64 `json:"final_score"`
	Strong  bool    `json:"strong"`
	Order   int     `json:"-"` // first appearance in retrieval output
}

// Selection is the ranked outcome of table selection.
type Selection struct {
	Primary    string
	Ranked     []string
	Candidates []SelectionCandidate
}

// TableInfo is the listing view of a canonical table.
type TableInfo struct {
	ID               string   `json:"id"`
	Aliases          []string `json:"aliases"`
	DataFile         string   `json:"data_file,omitempty"`
	SchemaFile       string   `json:"schema_file,omitempty"`
	TableName        string   `json:"table_name,omitempty"`
	OriginalFilename string   `json:"original_filename,omitempty"`
	SourceFileHash   string   `json:"source_file_hash,omitempty"`
}
