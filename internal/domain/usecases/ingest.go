// Package usecases contains application business rules.
// Usecases orchestrate entities and depend on port interfaces only.
package usecases

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/entities"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/ports"
)

// BuildPolicy decides what Build does with an existing index.
type BuildPolicy string

const (
	PolicyRebuild        BuildPolicy = "rebuild"
	PolicyBuildIfMissing BuildPolicy = "build_if_missing"
	PolicyLoadOnly       BuildPolicy = "load_only"

	// PolicyDefault asks Build for the use case's configured policy.
	PolicyDefault BuildPolicy = ""
)

// ParseBuildPolicy validates a policy name. Empty means PolicyDefault.
func ParseBuildPolicy(s string) (BuildPolicy, error) {
	switch p := BuildPolicy(strings.TrimSpace(s)); p {
	case PolicyRebuild, PolicyBuildIfMissing, PolicyLoadOnly, PolicyDefault:
		return p, nil
	default:
		return "", fmt.Errorf("unknown build policy %q", s)
	}
}

// IndexSources are the directories the retrieval index is built from.
type IndexSources struct {
	SchemaDir string // schema descriptions (.json)
	DataDir   string // spreadsheets, indexed as rendered markdown
	DocDir    string // free-text notes
}

var (
	schemaExts = []string{".json"}
	dataExts   = []string{".xlsx", ".csv"}
)

// BuildReport summarizes one Build call.
type BuildReport struct {
	Policy    BuildPolicy `json:"policy"`
	Built     bool        `json:"built"`
	Documents int         `json:"documents"`
	Chunks    int         `json:"chunks"`
	Skipped   []string    `json:"skipped,omitempty"`
}

// IndexUseCase builds and maintains the retrieval index.
type IndexUseCase struct {
	embedder     ports.EmbeddingService
	vectorStore  ports.VectorStore
	loader       ports.DocumentLoader
	sources      IndexSources
	chunkSize    int
	chunkOverlap int
	logger       hclog.Logger

	// DefaultPolicy replaces PolicyDefault in Build. It starts as
	// build_if_missing.
	DefaultPolicy BuildPolicy
}

// NewIndexUseCase creates an IndexUseCase with injected dependencies.
// Chunk sizes are in characters. A non-positive size takes 500 and a
// negative overlap takes 50.
func NewIndexUseCase(
	embedder ports.EmbeddingService,
	vectorStore ports.VectorStore,
	loader ports.DocumentLoader,
	sources IndexSources,
	chunkSize, chunkOverlap int,
	logger hclog.Logger,
) *IndexUseCase {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	if chunkOverlap < 0 {
		chunkOverlap = 50
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 10
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &IndexUseCase{
		embedder:     embedder,
		vectorStore:  vectorStore,
		loader:       loader,
		sources:      sources,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		logger:       logger,

		DefaultPolicy: PolicyBuildIfMissing,
	}
}

// Build applies policy: load_only never writes, build_if_missing only
// builds an empty index, rebuild clears and rebuilds.
func (uc *IndexUseCase) Build(ctx context.Context, policy BuildPolicy) (*BuildReport, error) {
	if policy == PolicyDefault {
		policy = uc.DefaultPolicy
	}
	report := &BuildReport{Policy: policy}
	existing, err := uc.vectorStore.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting indexed chunks: %w", err)
	}

	switch policy {
	case PolicyLoadOnly:
		report.Chunks = existing
		uc.logger.Info("using existing index", "chunks", existing)
		return report, nil
	case PolicyBuildIfMissing:
		if existing > 0 {
			report.Chunks = existing
			uc.logger.Info("index present, not rebuilding", "chunks", existing)
			return report, nil
		}
	case PolicyRebuild:
		if err := uc.vectorStore.Clear(ctx); err != nil {
			return nil, fmt.Errorf("clearing index: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown build policy %q", policy)
	}

	for _, path := range uc.sourceFiles() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := uc.loader.Load(ctx, path)
		if err != nil {
			uc.logger.Warn("skipping file", "file", filepath.Base(path), "error", err)
			report.Skipped = append(report.Skipped, filepath.Base(path))
			continue
		}
		n, err := uc.ingest(ctx, doc)
		if err != nil {
			return nil, fmt.Errorf("indexing %s: %w", doc.Name, err)
		}
		report.Documents++
		report.Chunks += n
	}
	report.Built = true
	uc.logger.Info("index built", "documents", report.Documents, "chunks", report.Chunks, "skipped", len(report.Skipped))
	return report, nil
}

// Ingest chunks, embeds and stores one document.
func (uc *IndexUseCase) Ingest(ctx context.Context, doc *entities.Document) error {
	_, err := uc.ingest(ctx, doc)
	return err
}

func (uc *IndexUseCase) ingest(ctx context.Context, doc *entities.Document) (int, error) {
	chunks := uc.chunkDocument(doc)
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}
	embeddings, err := uc.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, err
	}
	if len(embeddings) != len(chunks) {
		return 0, fmt.Errorf("got %d embeddings for %d chunks", len(embeddings), len(chunks))
	}
	for i := range chunks {
		chunks[i].Embedding = embeddings[i]
	}

	if err := uc.vectorStore.Store(ctx, chunks); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// DeleteSource drops every chunk indexed from the file at path.
func (uc *IndexUseCase) DeleteSource(ctx context.Context, path string) error {
	if err := uc.vectorStore.Delete(ctx, entities.DocumentID(path)); err != nil {
		return fmt.Errorf("removing %s from index: %w", filepath.Base(path), err)
	}
	uc.logger.Debug("source removed from index", "file", filepath.Base(path))
	return nil
}

func (uc *IndexUseCase) sourceFiles() []string {
	var files []string
	files = append(files, listByExt(uc.sources.SchemaDir, schemaExts, uc.logger)...)
	files = append(files, listByExt(uc.sources.DataDir, dataExts, uc.logger)...)
	if uc.loader != nil {
		files = append(files, listByExt(uc.sources.DocDir, uc.loader.SupportedExtensions(), uc.logger)...)
	}
	return files
}

func listByExt(dir string, exts []string, logger hclog.Logger) []string {
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("cannot list directory", "dir", dir, "error", err)
		}
		return nil
	}
	want := make(map[string]bool, len(exts))
	for _, e := range exts {
		want[e] = true
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if want[strings.ToLower(filepath.Ext(e.Name()))] {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out
}

// chunkDocument splits document content into overlapping chunks,
// breaking at a space where one is available. Sizes count runes.
func (uc *IndexUseCase) chunkDocument(doc *entities.Document) []entities.Chunk {
	content := []rune(strings.TrimSpace(doc.Content))
	if len(content) == 0 {
		return nil
	}

	var chunks []entities.Chunk
	start := 0
	index := 0

	for start < len(content) {
		end := start + uc.chunkSize
		if end > len(content) {
			end = len(content)
		}

		if end < len(content) {
			if lastSpace := lastSpaceIn(content[start:end]); lastSpace > 0 {
				end = start + lastSpace
			}
		}

		if text := strings.TrimSpace(string(content[start:end])); text != "" {
			chunks = append(chunks, entities.Chunk{
				ID:         generateChunkID(doc.ID, index),
				DocumentID: doc.ID,
				SourceDoc:  doc.Name,
				Content:    text,
				Index:      index,
			})
			index++
		}

		if end >= len(content) {
			break
		}
		next := end - uc.chunkOverlap
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}

func lastSpaceIn(rs []rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == ' ' {
			return i
		}
	}
	return -1
}

// generateChunkID creates a deterministic ID for a chunk.
func generateChunkID(docID string, index int) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", docID, index)))
	return hex.EncodeToString(hash[:8])
}
