// Package filewatcher reports changes to the schema and data directories.
package filewatcher

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"

	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/ports"
)

// DefaultExtensions are the files that change the table catalog.
var DefaultExtensions = []string{".json", ".xlsx", ".xls", ".csv"}

// FSNotifyWatcher implements ports.FileWatcher using fsnotify.
type FSNotifyWatcher struct {
	watcher *fsnotify.Watcher
	exts    map[string]bool
	logger  hclog.Logger
}

// NewFSNotifyWatcher creates a watcher for files with the given extensions,
// matched case-insensitively. No extensions means DefaultExtensions.
func NewFSNotifyWatcher(extensions []string, logger hclog.Logger) (*FSNotifyWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	exts := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		exts[strings.ToLower(e)] = true
	}
	return &FSNotifyWatcher{watcher: w, exts: exts, logger: logger}, nil
}

// Watch monitors every dir and emits one event per relevant change.
// The channel closes when ctx is done or the watcher is stopped.
func (w *FSNotifyWatcher) Watch(ctx context.Context, dirs ...string) (<-chan ports.FileEvent, error) {
	for _, dir := range dirs {
		if err := w.watcher.Add(dir); err != nil {
			return nil, fmt.Errorf("watching %s: %w", dir, err)
		}
		w.logger.Debug("watching directory", "dir", dir)
	}

	out := make(chan ports.FileEvent, 100)
	go w.forward(ctx, out)
	return out, nil
}

func (w *FSNotifyWatcher) forward(ctx context.Context, out chan<- ports.FileEvent) {
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "error", err)
		case raw, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			ev, relevant := w.translate(raw)
			if !relevant {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

// translate maps an fsnotify event onto a FileEvent. Chmod-only events and
// files with other extensions are dropped.
func (w *FSNotifyWatcher) translate(raw fsnotify.Event) (ports.FileEvent, bool) {
	if !w.watches(raw.Name) {
		return ports.FileEvent{}, false
	}
	ev := ports.FileEvent{Path: raw.Name}
	switch {
	case raw.Has(fsnotify.Create):
		ev.Operation = ports.FileCreated
	case raw.Has(fsnotify.Write):
		ev.Operation = ports.FileModified
	case raw.Has(fsnotify.Remove), raw.Has(fsnotify.Rename):
		ev.Operation = ports.FileDeleted
	default:
		return ports.FileEvent{}, false
	}
	return ev, true
}

func (w *FSNotifyWatcher) watches(path string) bool {
	return w.exts[strings.ToLower(filepath.Ext(path))]
}

// Stop closes the underlying watcher, which also ends every Watch channel.
func (w *FSNotifyWatcher) Stop() error {
	return w.watcher.Close()
}
