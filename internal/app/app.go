// Package app wires configuration, adapters and use cases together.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/KagamiharaNadeshiko/Table-RAG/internal/adapters/embedding"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/adapters/filewatcher"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/adapters/gateway"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/adapters/ingestion"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/adapters/llm"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/adapters/loader"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/adapters/nl2sql"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/adapters/sqlstore"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/adapters/taskstore"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/adapters/vectordb"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/config"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/entities"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/ports"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/tables"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/tasks"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/usecases"
	httpserver "github.com/KagamiharaNadeshiko/Table-RAG/internal/infrastructure/http"
)

// refreshDebounce groups bursts of file events into one catalog rebuild.
const refreshDebounce = time.Second

// App holds every long-lived component of one process.
type App struct {
	Config config.Config
	Logger hclog.Logger

	Registry *tables.Registry
	Query    *usecases.QueryUseCase
	Index    *usecases.IndexUseCase
	Data     *usecases.DataUseCase
	Tables   *usecases.TablesUseCase
	Cleanup  *usecases.CleanupPlanner
	Tasks    *tasks.Manager
	Ingestor *ingestion.Client

	closers []func() error
}

// New builds the application from cfg. Close releases what it opened.
func New(ctx context.Context, cfg config.Config, logger hclog.Logger) (*App, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	a := &App{Config: cfg, Logger: logger}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config
	for _, dir := range []string{cfg.Paths.SchemaDir, cfg.Paths.DataDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	gw := gateway.New(gateway.Policy{
		MaxRetries:   cfg.LLM.MaxRetries,
		InitialDelay: config.Millis(cfg.LLM.InitialDelayMS),
		Timeout:      config.Seconds(cfg.LLM.TimeoutSeconds),
	}, a.Logger.Named("gateway"))

	chat, err := a.chatService(gw)
	if err != nil {
		return err
	}
	embedder := embedding.NewOllamaAdapter(cfg.Embedding.BaseURL, cfg.Embedding.Model, gw, a.Logger.Named("embedding"))

	vectors, err := a.vectorStore()
	if err != nil {
		return err
	}

	if cfg.Database.Driver == "sqlite3" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.DSN), 0755); err != nil {
			return fmt.Errorf("creating database directory: %w", err)
		}
	}
	store, err := sqlstore.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, store.Close)

	taskStore, err := a.taskStore(ctx)
	if err != nil {
		return err
	}
	a.Tasks = tasks.NewManager(taskStore, a.Logger.Named("tasks"))

	renderer := loader.NewTableRenderer(loader.DefaultMaxRows)
	retriever := usecases.NewRetrieveUseCase(embedder, vectors)
	a.Registry = tables.NewRegistry(cfg.Paths.SchemaDir, cfg.Paths.DataDir, a.Logger.Named("tables"))
	selector := tables.NewSelector(a.Registry, retriever, tables.SelectorConfig{
		Alpha:           cfg.Selection.Alpha,
		Beta:            cfg.Selection.Beta,
		TopM:            cfg.Selection.TopM,
		StrongThreshold: cfg.Selection.StrongThreshold,
		YearGuardMin:    cfg.Selection.YearGuardMin,
		DefaultTopK:     cfg.Selection.DefaultTopK,
	}, a.Logger.Named("selector"))

	sql := nl2sql.NewClient(cfg.NL2SQL.URL, servicePolicy(cfg.NL2SQL, cfg.LLM), gw, a.Logger.Named("nl2sql"))
	a.Ingestor = ingestion.NewClient(cfg.Ingestion.URL, servicePolicy(cfg.Ingestion, cfg.LLM), gw, a.Logger.Named("ingestion"))

	a.Query = usecases.NewQueryUseCase(a.Registry, selector, retriever, chat, sql, renderer, usecases.QueryConfig{
		MaxIterations: cfg.Agent.MaxIterations,
		CorpusLimit:   cfg.Agent.CorpusLimit,
		RetrieveTopK:  cfg.Agent.RetrieveTopK,
		SelectTopK:    cfg.Selection.DefaultTopK,
	}, a.Logger.Named("query"))
	a.Index = usecases.NewIndexUseCase(embedder, vectors, loader.NewMultiLoader(renderer), usecases.IndexSources{
		SchemaDir: cfg.Paths.SchemaDir,
		DataDir:   cfg.Paths.DataDir,
		DocDir:    cfg.Paths.DocDir,
	}, 0, -1, a.Logger.Named("index"))
	if a.Index.DefaultPolicy, err = usecases.ParseBuildPolicy(cfg.Embedding.Policy); err != nil {
		return err
	}
	a.Data = usecases.NewDataUseCase(a.Ingestor, a.Registry, a.Index, cfg.Paths.DataDir, cfg.Paths.SchemaDir, a.Logger.Named("data"))
	a.Tables = usecases.NewTablesUseCase(a.Registry, store, a.Logger.Named("tables"))
	a.Cleanup = usecases.NewCleanupPlanner(cfg.Paths.SchemaDir, cfg.Paths.DataDir, store, a.Logger.Named("cleanup"))
	return nil
}

// vectorStore opens the persistent index, or keeps it in memory when no
// index directory is configured.
func (a *App) vectorStore() (ports.VectorStore, error) {
	dir := a.Config.Paths.IndexDir
	if dir == "" {
		a.Logger.Warn("paths.index_dir is empty, the retrieval index lives in memory")
		return vectordb.NewInMemoryStore(), nil
	}
	vectors, err := vectordb.NewSQLiteStore(dir)
	if err != nil {
		return nil, fmt.Errorf("opening vector index: %w", err)
	}
	a.closers = append(a.closers, vectors.Close)
	return vectors, nil
}

func (a *App) chatService(gw *gateway.Gateway) (ports.ChatService, error) {
	c := a.Config.LLM
	switch c.Provider {
	case "ollama":
		return llm.NewOllamaChat(c.BaseURL, c.Model, c.Temperature, gw, a.Logger.Named("llm")), nil
	case "openai":
		if c.APIKey == "" {
			return nil, errors.New("llm.api_key is required for the openai provider")
		}
		return llm.NewOpenAIChat(c.APIKey, c.BaseURL, c.Model, c.Temperature, gw, a.Logger.Named("llm")), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", c.Provider)
	}
}

func (a *App) taskStore(ctx context.Context) (ports.TaskStore, error) {
	t := a.Config.Tasks
	if t.Backend != "redis" {
		return tasks.NewMemoryStore(), nil
	}
	rs, err := taskstore.Dial(ctx, t.RedisURL, t.Retention())
	if err != nil {
		return nil, fmt.Errorf("connecting task store: %w", err)
	}
	a.closers = append(a.closers, rs.Close)
	return rs, nil
}

func servicePolicy(s config.ServiceConfig, l config.LLMConfig) gateway.Policy {
	return gateway.Policy{
		MaxRetries:   s.MaxRetries,
		InitialDelay: config.Millis(l.InitialDelayMS),
		Timeout:      config.Seconds(s.TimeoutSeconds),
	}
}

// Server returns the HTTP API over this application.
func (a *App) Server() *httpserver.Server {
	return httpserver.NewServer(httpserver.Services{
		Query:   a.Query,
		Tasks:   a.Tasks,
		Cleanup: a.CleanupService(),
		Data:    a.Data,
		Index:   a.Index,
		Tables:  a.Tables,

		Ingestion: a.Ingestor,
	}, a.Config.Server.Addr, a.Logger.Named("http"))
}

// CleanupService returns the cleanup planner with catalog and index upkeep
// attached.
func (a *App) CleanupService() *CatalogCleanup {
	return &CatalogCleanup{CleanupPlanner: a.Cleanup, registry: a.Registry, index: a.Index, logger: a.Logger.Named("cleanup")}
}

// CatalogCleanup drops removed files from the retrieval index and rebuilds
// the table catalog once a cleanup has removed anything.
type CatalogCleanup struct {
	*usecases.CleanupPlanner
	registry *tables.Registry
	index    *usecases.IndexUseCase
	logger   hclog.Logger
}

func (c *CatalogCleanup) Execute(ctx context.Context, plan *entities.CleanupPlan, assumeYes, dryRun bool) entities.CleanupOutcome {
	out := c.CleanupPlanner.Execute(ctx, plan, assumeYes, dryRun)
	removed := append(append([]string(nil), out.RemovedSchemas...), out.RemovedDataFiles...)
	if len(removed) == 0 {
		return out
	}
	for _, path := range removed {
		if err := c.index.DeleteSource(ctx, path); err != nil {
			c.logger.Warn("index cleanup failed", "file", path, "error", err)
		}
	}
	c.registry.Rebuild()
	return out
}

// WatchTables keeps the table catalog in sync with the schema and data
// directories until ctx is done.
func (a *App) WatchTables(ctx context.Context) error {
	w, err := filewatcher.NewFSNotifyWatcher(filewatcher.DefaultExtensions, a.Logger.Named("watcher"))
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Stop()

	r := usecases.NewCatalogRefresher(w, a.Registry,
		[]string{a.Config.Paths.SchemaDir, a.Config.Paths.DataDir},
		refreshDebounce, a.Logger.Named("refresh"))
	r.OnDelete = func(ctx context.Context, path string) {
		if err := a.Index.DeleteSource(ctx, path); err != nil {
			a.Logger.Warn("dropping deleted file from index", "file", path, "error", err)
		}
	}
	return r.Run(ctx)
}

// Close releases stores in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
