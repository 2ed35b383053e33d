// Package loader provides document loading adapters.
package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/entities"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/ports"
)

// TextLoader loads plain text documents (.txt, .md).
type TextLoader struct{}

// NewTextLoader creates a new text document loader.
func NewTextLoader() *TextLoader {
	return &TextLoader{}
}

// Load reads a text document from the given path.
func (l *TextLoader) Load(ctx context.Context, path string) (*entities.Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return newDocument(path, string(content))
}

// SupportedExtensions returns file extensions this loader handles.
func (l *TextLoader) SupportedExtensions() []string {
	return []string{".txt", ".md", ".markdown"}
}

// SchemaLoader loads table schema descriptions written by the ingestion
// service. The JSON is re-indented so chunk boundaries fall between fields.
type SchemaLoader struct{}

func NewSchemaLoader() *SchemaLoader {
	return &SchemaLoader{}
}

func (l *SchemaLoader) Load(ctx context.Context, path string) (*entities.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, fmt.Errorf("schema %s is not valid JSON: %w", filepath.Base(path), err)
	}
	return newDocument(path, buf.String())
}

func (l *SchemaLoader) SupportedExtensions() []string {
	return []string{".json"}
}

// SpreadsheetLoader renders a data file as a markdown table.
type SpreadsheetLoader struct {
	renderer *TableRenderer
}

func NewSpreadsheetLoader(renderer *TableRenderer) *SpreadsheetLoader {
	if renderer == nil {
		renderer = NewTableRenderer(0)
	}
	return &SpreadsheetLoader{renderer: renderer}
}

func (l *SpreadsheetLoader) Load(ctx context.Context, path string) (*entities.Document, error) {
	md, err := l.renderer.RenderTable(ctx, path)
	if err != nil {
		return nil, err
	}
	return newDocument(path, md)
}

func (l *SpreadsheetLoader) SupportedExtensions() []string {
	return []string{".xlsx", ".csv"}
}

// MultiLoader combines multiple loaders.
type MultiLoader struct {
	loaders map[string]ports.DocumentLoader
}

// NewMultiLoader creates a loader that handles every indexed file type.
func NewMultiLoader(renderer *TableRenderer) *MultiLoader {
	m := &MultiLoader{loaders: make(map[string]ports.DocumentLoader)}
	for _, l := range []ports.DocumentLoader{NewTextLoader(), NewSchemaLoader(), NewSpreadsheetLoader(renderer)} {
		for _, ext := range l.SupportedExtensions() {
			m.loaders[ext] = l
		}
	}
	return m
}

// Load dispatches to the appropriate loader based on extension.
func (m *MultiLoader) Load(ctx context.Context, path string) (*entities.Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	loader, ok := m.loaders[ext]
	if !ok {
		return nil, fmt.Errorf("unsupported file type %q", ext)
	}
	return loader.Load(ctx, path)
}

// SupportedExtensions returns all supported extensions, sorted.
func (m *MultiLoader) SupportedExtensions() []string {
	exts := make([]string, 0, len(m.loaders))
	for ext := range m.loaders {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

func newDocument(path, content string) (*entities.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return &entities.Document{
		ID:        entities.DocumentID(path),
		Name:      filepath.Base(path),
		Path:      path,
		Content:   content,
		CreatedAt: info.ModTime(),
		UpdatedAt: time.Now(),
	}, nil
}
