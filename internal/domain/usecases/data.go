package usecases

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/ports"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/tables"
)

// IndexBuilder builds the retrieval index under a policy.
type IndexBuilder interface {
	Build(ctx context.Context, policy BuildPolicy) (*BuildReport, error)
}

// ImportReport is the result of one data import.
type ImportReport struct {
	Ingestion map[string]any `json:"ingestion"`
	Tables    int            `json:"tables"`
	Index     *BuildReport   `json:"index,omitempty"`
}

// DataUseCase accepts spreadsheets and runs the row-ingestion pipeline.
type DataUseCase struct {
	ingestor  ports.Ingestor
	catalog   CatalogRebuilder
	index     IndexBuilder
	dataDir   string
	schemaDir string
	logger    hclog.Logger
}

func NewDataUseCase(ingestor ports.Ingestor, catalog CatalogRebuilder, index IndexBuilder, dataDir, schemaDir string, logger hclog.Logger) *DataUseCase {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &DataUseCase{
		ingestor:  ingestor,
		catalog:   catalog,
		index:     index,
		dataDir:   dataDir,
		schemaDir: schemaDir,
		logger:    logger,
	}
}

// Import sends the data directory to the ingestion service, then refreshes
// the table catalog and builds the retrieval index under its default policy.
func (uc *DataUseCase) Import(ctx context.Context) (*ImportReport, error) {
	result, err := uc.ingestor.Import(ctx, uc.dataDir, uc.schemaDir)
	if err != nil {
		return nil, fmt.Errorf("importing data: %w", err)
	}
	report := &ImportReport{Ingestion: result}
	if uc.catalog != nil {
		report.Tables = uc.catalog.Rebuild().Len()
	}
	if uc.index != nil {
		report.Index, err = uc.index.Build(ctx, PolicyDefault)
		if err != nil {
			return report, fmt.Errorf("building index after import: %w", err)
		}
	}
	uc.logger.Info("data import finished", "tables", report.Tables)
	return report, nil
}

// SaveUpload writes one uploaded spreadsheet into the data directory and
// returns its path. Only the base name of filename is used.
func (uc *DataUseCase) SaveUpload(filename string, r io.Reader) (string, error) {
	name := filepath.Base(filepath.Clean("/" + filename))
	if name == "/" || name == "." || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid file name %q", filename)
	}
	if !isDataFile(name) {
		return "", fmt.Errorf("unsupported file type %q", filepath.Ext(name))
	}
	if err := os.MkdirAll(uc.dataDir, 0755); err != nil {
		return "", fmt.Errorf("creating data directory: %w", err)
	}

	path := filepath.Join(uc.dataDir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", name, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("writing %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing %s: %w", name, err)
	}
	uc.logger.Info("upload saved", "file", name)
	return path, nil
}

func isDataFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range tables.DataExtensions {
		if ext == want {
			return true
		}
	}
	return false
}
