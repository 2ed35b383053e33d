// Package entities contains core business entities.
// These are the enterprise business rules - pure domain objects with no external dependencies.
package entities

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Document represents a retrievable source file: a schema description,
// a spreadsheet rendered as text, or a free-text note.
type Document struct {
	ID        string
	Name      string // base filename, used for table resolution
	Path      string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DocumentID derives the stable id of the document loaded from path.
// Indexing and removal both key on it.
func DocumentID(path string) string {
	hash := sha256.Sum256([]byte(path))
	return hex.EncodeToString(hash[:8])
}

// Chunk represents a piece of a document for embedding.
type Chunk struct {
	ID         string
	DocumentID string
	SourceDoc  string // filename of the owning document
	Content    string
	Index      int       // Position in document
	Embedding  []float32 // Vector representation (populated by adapter)
}

// QueryResult represents a retrieval hit with relevance.
type QueryResult struct {
	Chunk     Chunk
	Score     float64 // Similarity score
	SourceDoc string  // Filename of the document the chunk came from
}

// SQLResult is what the NL2SQL collaborator returns for one sub-query.
type SQLResult struct {
	SQL             string
	ExecutionResult string
	SchemaPrompt    string
}

// AnswerResult is the outcome of one question.
// Answered is false when the iteration budget ran out.
type AnswerResult struct {
	Answer        string    `json:"answer"`
	Answered      bool      `json:"answered"`
	PrimaryTable  string    `json:"primary_table,omitempty"`
	RelatedTables []string  `json:"related_tables,omitempty"`
	Iterations    int       `json:"iterations"`
	Transcript    []Message `json:"transcript,omitempty"`
}
