package tables

import (
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"
)

// Catalog is the read side of the resolver used by selection.
type Catalog interface {
	Resolve(name string) (string, bool)
	AliasesOf(id string) []string
	AllIDs() []string
}

// Registry publishes the current Index. Rebuild builds a fresh index and
// swaps it in atomically, so readers never observe a half-built one.
type Registry struct {
	schemaDir string
	dataDir   string
	logger    hclog.Logger

	mu      sync.Mutex // serializes rebuilds
	current atomic.Pointer[Index]
}

// NewRegistry scans both directories once and returns a ready registry.
func NewRegistry(schemaDir, dataDir string, logger hclog.Logger) *Registry {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	r := &Registry{schemaDir: schemaDir, dataDir: dataDir, logger: logger}
	r.Rebuild()
	return r
}

// Rebuild rescans the directories and publishes the new index.
func (r *Registry) Rebuild() *Index {
	r.mu.Lock()
	defer r.mu.Unlock()

	ix := BuildIndex(r.schemaDir, r.dataDir, r.logger)
	r.current.Store(ix)
	r.logger.Debug("table index rebuilt", "tables", ix.Len())
	return ix
}

// Current returns the published index.
func (r *Registry) Current() *Index {
	return r.current.Load()
}

func (r *Registry) Resolve(name string) (string, bool) { return r.Current().Resolve(name) }
func (r *Registry) AliasesOf(id string) []string       { return r.Current().AliasesOf(id) }
func (r *Registry) AllIDs() []string                   { return r.Current().AllIDs() }
func (r *Registry) ServiceAliases(id string) []string  { return r.Current().ServiceAliases(id) }
func (r *Registry) PreferredDataFile(id string) string { return r.Current().PreferredDataFile(id) }

func (r *Registry) PreferredSchemaFile(id string) string {
	return r.Current().PreferredSchemaFile(id)
}
