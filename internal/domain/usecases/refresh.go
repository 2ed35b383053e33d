package usecases

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/ports"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/tables"
)

// CatalogRebuilder publishes a fresh table index.
type CatalogRebuilder interface {
	Rebuild() *tables.Index
}

// CatalogRefresher rebuilds the table catalog when schema or data files
// change. Bursts of events within the debounce window cause one rebuild.
type CatalogRefresher struct {
	watcher  ports.FileWatcher
	catalog  CatalogRebuilder
	dirs     []string
	debounce time.Duration
	logger   hclog.Logger

	// OnRebuild, if set, runs after every rebuild.
	OnRebuild func(ctx context.Context, ix *tables.Index)
	// OnDelete, if set, runs for every removed file as its event arrives.
	OnDelete func(ctx context.Context, path string)
}

func NewCatalogRefresher(watcher ports.FileWatcher, catalog CatalogRebuilder, dirs []string, debounce time.Duration, logger hclog.Logger) *CatalogRefresher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &CatalogRefresher{watcher: watcher, catalog: catalog, dirs: dirs, debounce: debounce, logger: logger}
}

// Run watches until ctx is done or the watcher closes its channel.
func (r *CatalogRefresher) Run(ctx context.Context) error {
	events, err := r.watcher.Watch(ctx, r.dirs...)
	if err != nil {
		return err
	}
	r.logger.Info("watching table directories", "dirs", r.dirs)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			r.logger.Debug("table file changed", "path", ev.Path, "op", ev.Operation)
			if ev.Operation == ports.FileDeleted && r.OnDelete != nil {
				r.OnDelete(ctx, ev.Path)
			}
			if timer == nil {
				timer = time.NewTimer(r.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(r.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			ix := r.catalog.Rebuild()
			r.logger.Info("table catalog refreshed", "tables", ix.Len())
			if r.OnRebuild != nil {
				r.OnRebuild(ctx, ix)
			}
		}
	}
}
