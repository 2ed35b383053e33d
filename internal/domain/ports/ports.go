// Package ports defines interfaces for external dependencies.
// Usecases depend on these abstractions; adapters implement them.
package ports

import (
	"context"
	"errors"

	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/entities"
)

var (
	// ErrNoResult is returned when an external call exhausted its retries.
	ErrNoResult = errors.New("no result after retries")

	// ErrIncompleteSQLResult is returned when the NL2SQL collaborator's
	// response lacks one of its expected fields.
	ErrIncompleteSQLResult = errors.New("incomplete NL2SQL response")
)

// EmbeddingService generates vector embeddings for text.
type EmbeddingService interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ChatService completes a conversation, optionally exposing tools.
// The returned message is always assistant-role.
type ChatService interface {
	Complete(ctx context.Context, messages []entities.Message, tools []entities.Tool) (*entities.Message, error)
}

// VectorStore persists and queries document embeddings.
type VectorStore interface {
	Store(ctx context.Context, chunks []entities.Chunk) error
	Search(ctx context.Context, embedding []float32, topK int) ([]entities.QueryResult, error)
	Delete(ctx context.Context, documentID string) error
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}

// Retriever returns the corpusLimit best candidates for a query, of which
// the best topK are kept. Each result names its source file.
type Retriever interface {
	Retrieve(ctx context.Context, query string, corpusLimit, topK int) ([]entities.QueryResult, error)
}

// SQLExecutor is the NL2SQL collaborator: it turns a sub-query over the
// named tables into SQL, runs it, and reports the schema it prompted with.
type SQLExecutor interface {
	Execute(ctx context.Context, tableAliases []string, subquery string) (*entities.SQLResult, error)
}

// Ingestor turns a directory of spreadsheets into stored rows and schema files.
type Ingestor interface {
	Import(ctx context.Context, dataDir, schemaDir string) (map[string]any, error)
	Healthy(ctx context.Context) bool
}

// TableStore is the relational store the ingested rows live in.
type TableStore interface {
	DropTable(ctx context.Context, name string) error
	ListTables(ctx context.Context) ([]string, error)
}

// TaskStore keeps background task records.
type TaskStore interface {
	Save(ctx context.Context, rec entities.TaskRecord) error
	Get(ctx context.Context, id string) (*entities.TaskRecord, error)
}

// DocumentLoader reads and parses documents from various formats.
type DocumentLoader interface {
	Load(ctx context.Context, path string) (*entities.Document, error)
	SupportedExtensions() []string
}

// TableRenderer renders a data file as a markdown table.
type TableRenderer interface {
	RenderTable(ctx context.Context, path string) (string, error)
}

// FileWatcher monitors directories for changes.
type FileWatcher interface {
	Watch(ctx context.Context, dirs ...string) (<-chan FileEvent, error)
	Stop() error
}

// FileEvent represents a file system change.
type FileEvent struct {
	Path      string
	Operation FileOperation
}

// FileOperation is the type of file change.
type FileOperation int

const (
	FileCreated FileOperation = iota
	FileModified
	FileDeleted
)

func (op FileOperation) String() string {
	switch op {
	case FileCreated:
		return "created"
	case FileModified:
		return "modified"
	case FileDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}
