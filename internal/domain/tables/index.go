package tables

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/entities"
)

// DataExtensions are the spreadsheet formats registered as data files.
var DataExtensions = []string{".xlsx", ".xls", ".csv"}

// Index is an immutable alias -> canonical id map built from one scan.
type Index struct {
	tables      map[string]*entities.CanonicalTable
	aliases     map[string]string
	slugAliases map[string]string
	ids         []string
}

// SchemaMeta is the subset of a schema description file the index reads.
type SchemaMeta struct {
	TableName        string `json:"table_name"`
	OriginalFilename string `json:"original_filename"`
	SourceFileHash   string `json:"source_file_hash"`
}

// ReadSchemaMeta decodes the metadata fields of a schema file.
func ReadSchemaMeta(path string) (*SchemaMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var meta SchemaMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	return &meta, nil
}

// BuildIndex scans dataDir for spreadsheets and schemaDir for schema files.
// Unreadable schema files are logged and skipped.
func BuildIndex(schemaDir, dataDir string, logger hclog.Logger) *Index {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	b := &indexBuilder{
		tables:  make(map[string]*entities.CanonicalTable),
		aliases: make(map[string]string),
	}

	for _, path := range listFiles(dataDir, DataExtensions, logger) {
		base := filepath.Base(path)
		stem := StripExt(base)
		id := Slug(stem)
		if id == "" {
			continue
		}
		b.addAlias(id, stem)
		b.addAlias(id, base)
		if t := b.table(id); t.DataFile == "" {
			t.DataFile = path
		}
	}

	for _, path := range listFiles(schemaDir, []string{".json"}, logger) {
		base := filepath.Base(path)
		stem := StripExt(base)
		meta, err := ReadSchemaMeta(path)
		if err != nil {
			logger.Warn("skipping unreadable schema file", "file", base, "error", err)
			continue
		}

		id := Slug(stem)
		if preferred := Slug(meta.TableName); preferred != "" && preferred != id {
			b.migrate(id, preferred)
			id = preferred
		}
		if id == "" {
			continue
		}
		b.addAlias(id, stem)
		b.addAlias(id, base)
		b.addAlias(id, meta.TableName)
		if t := b.table(id); t.SchemaFile == "" {
			t.SchemaFile = path
		}
	}

	return b.finish()
}

func listFiles(dir string, exts []string, logger hclog.Logger) []string {
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
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		for _, want := range exts {
			if ext == want {
				files = append(files, filepath.Join(dir, e.Name()))
				break
			}
		}
	}
	sort.Strings(files)
	return files
}

type indexBuilder struct {
	tables  map[string]*entities.CanonicalTable
	aliases map[string]string
}

func (b *indexBuilder) table(id string) *entities.CanonicalTable {
	t, ok := b.tables[id]
	if !ok {
		t = &entities.CanonicalTable{ID: id, Aliases: make(map[string]struct{})}
		b.tables[id] = t
	}
	return t
}

// addAlias attaches alias to id, detaching it from any previous owner.
func (b *indexBuilder) addAlias(id, alias string) {
	alias = strings.TrimSpace(alias)
	if alias == "" {
		return
	}
	if prev, ok := b.aliases[alias]; ok && prev != id {
		if t := b.tables[prev]; t != nil {
			delete(t.Aliases, alias)
		}
	}
	b.aliases[alias] = id
	b.table(id).Aliases[alias] = struct{}{}
}

// migrate moves every alias and preferred file of from onto to.
func (b *indexBuilder) migrate(from, to string) {
	old, ok := b.tables[from]
	if !ok || from == to {
		return
	}
	target := b.table(to)
	for alias := range old.Aliases {
		b.aliases[alias] = to
		target.Aliases[alias] = struct{}{}
	}
	if target.DataFile == "" {
		target.DataFile = old.DataFile
	}
	if target.SchemaFile == "" {
		target.SchemaFile = old.SchemaFile
	}
	delete(b.tables, from)
}

func (b *indexBuilder) finish() *Index {
	ix := &Index{
		tables:      b.tables,
		aliases:     b.aliases,
		slugAliases: make(map[string]string),
	}
	for id, t := range b.tables {
		if len(t.Aliases) == 0 && t.DataFile == "" && t.SchemaFile == "" {
			delete(ix.tables, id)
			continue
		}
		ix.ids = append(ix.ids, id)
	}
	sort.Strings(ix.ids)

	names := make([]string, 0, len(b.aliases))
	for alias := range b.aliases {
		names = append(names, alias)
	}
	sort.Strings(names)
	for _, alias := range names {
		id := b.aliases[alias]
		for _, s := range []string{Slug(alias), Slug(StripExt(alias))} {
			if _, taken := ix.slugAliases[s]; s != "" && !taken {
				ix.slugAliases[s] = id
			}
		}
	}
	return ix
}

// Resolve maps any known name to its canonical id.
func (ix *Index) Resolve(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	if id, ok := ix.aliases[name]; ok {
		return id, true
	}
	stem := StripExt(name)
	if id, ok := ix.aliases[stem]; ok {
		return id, true
	}
	s := Slug(stem)
	if _, ok := ix.tables[s]; ok {
		return s, true
	}
	if id, ok := ix.slugAliases[s]; ok {
		return id, true
	}
	return "", false
}

// AliasesOf returns the sorted aliases of id.
func (ix *Index) AliasesOf(id string) []string {
	t, ok := ix.tables[id]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(t.Aliases))
	for a := range t.Aliases {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// PreferredDataFile returns the spreadsheet registered for id, if any.
func (ix *Index) PreferredDataFile(id string) string {
	if t, ok := ix.tables[id]; ok {
		return t.DataFile
	}
	return ""
}

// PreferredSchemaFile returns the schema file registered for id, if any.
func (ix *Index) PreferredSchemaFile(id string) string {
	if t, ok := ix.tables[id]; ok {
		return t.SchemaFile
	}
	return ""
}

// AllIDs returns every canonical id, sorted.
func (ix *Index) AllIDs() []string {
	return append([]string(nil), ix.ids...)
}

// ServiceAliases lists the names a downstream SQL service is most likely to
// know the table by: data file stem, schema file stem, canonical id.
func (ix *Index) ServiceAliases(id string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	if t, ok := ix.tables[id]; ok {
		if t.DataFile != "" {
			add(StripExt(filepath.Base(t.DataFile)))
		}
		if t.SchemaFile != "" {
			add(StripExt(filepath.Base(t.SchemaFile)))
		}
	}
	add(id)
	return out
}

// Len returns the number of canonical tables.
func (ix *Index) Len() int {
	return len(ix.ids)
}
