package usecases

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/hashicorp/go-hclog"

	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/entities"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/ports"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/tables"
)

// TableLister is the catalog view needed for listings.
type TableLister interface {
	tables.Catalog
	PreferredDataFile(id string) string
	PreferredSchemaFile(id string) string
}

// TablesUseCase lists known tables.
type TablesUseCase struct {
	catalog TableLister
	store   ports.TableStore
	logger  hclog.Logger
}

func NewTablesUseCase(catalog TableLister, store ports.TableStore, logger hclog.Logger) *TablesUseCase {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &TablesUseCase{catalog: catalog, store: store, logger: logger}
}

// List returns every canonical table sorted by id. With includeMeta the
// schema file's metadata fields are read as well.
func (uc *TablesUseCase) List(includeMeta bool) []entities.TableInfo {
	ids := uc.catalog.AllIDs()
	out := make([]entities.TableInfo, 0, len(ids))
	for _, id := range ids {
		info := entities.TableInfo{
			ID:         id,
			Aliases:    uc.catalog.AliasesOf(id),
			DataFile:   baseName(uc.catalog.PreferredDataFile(id)),
			SchemaFile: baseName(uc.catalog.PreferredSchemaFile(id)),
		}
		if schema := uc.catalog.PreferredSchemaFile(id); includeMeta && schema != "" {
			meta, err := tables.ReadSchemaMeta(schema)
			if err != nil {
				uc.logger.Warn("reading table metadata", "table", id, "error", err)
			} else {
				info.TableName = meta.TableName
				info.OriginalFilename = meta.OriginalFilename
				info.SourceFileHash = meta.SourceFileHash
			}
		}
		out = append(out, info)
	}
	return out
}

// Stored lists the tables present in the relational store.
func (uc *TablesUseCase) Stored(ctx context.Context) ([]string, error) {
	if uc.store == nil {
		return nil, fmt.Errorf("no table store configured")
	}
	names, err := uc.store.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing stored tables: %w", err)
	}
	return names, nil
}

func baseName(path string) string {
	if path == "" {
		return ""
	}
	return filepath.Base(path)
}
