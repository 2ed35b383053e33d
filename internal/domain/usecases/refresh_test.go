package usecases

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/ports"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/tables"
)

type chanWatcher struct {
	events  chan ports.FileEvent
	dirs    []string
	watchFn func() error
}

func (w *chanWatcher) Watch(ctx context.Context, dirs ...string) (<-chan ports.FileEvent, error) {
	w.dirs = dirs
	if w.watchFn != nil {
		if err := w.watchFn(); err != nil {
			return nil, err
		}
	}
	return w.events, nil
}

func (w *chanWatcher) Stop() error { return nil }

type countingCatalog struct {
	registry *tables.Registry
	rebuilds atomic.Int32
}

func (c *countingCatalog) Rebuild() *tables.Index {
	c.rebuilds.Add(1)
	return c.registry.Rebuild()
}

func newCountingCatalog(t *testing.T) *countingCatalog {
	return &countingCatalog{registry: tables.NewRegistry(t.TempDir(), t.TempDir(), nil)}
}

func TestCatalogRefresher_DebouncesBursts(t *testing.T) {
	watcher := &chanWatcher{events: make(chan ports.FileEvent)}
	catalog := newCountingCatalog(t)
	r := NewCatalogRefresher(watcher, catalog, []string{"schema", "excel"}, 30*time.Millisecond, nil)
	rebuilt := make(chan int, 4)
	r.OnRebuild = func(ctx context.Context, ix *tables.Index) { rebuilt <- ix.Len() }

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	for i := 0; i < 5; i++ {
		watcher.events <- ports.FileEvent{Path: "excel/a.xlsx", Operation: ports.FileModified}
	}
	select {
	case <-rebuilt:
	case <-time.After(2 * time.Second):
		t.Fatal("no rebuild after file events")
	}
	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 1, catalog.rebuilds.Load())
	assert.Equal(t, []string{"schema", "excel"}, watcher.dirs)

	close(watcher.events)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("refresher did not stop when the watcher closed")
	}
}

func TestCatalogRefresher_ReportsDeletions(t *testing.T) {
	watcher := &chanWatcher{events: make(chan ports.FileEvent)}
	r := NewCatalogRefresher(watcher, newCountingCatalog(t), nil, time.Hour, nil)
	var deleted []string
	r.OnDelete = func(ctx context.Context, path string) { deleted = append(deleted, path) }

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	watcher.events <- ports.FileEvent{Path: "excel/a.xlsx", Operation: ports.FileModified}
	watcher.events <- ports.FileEvent{Path: "excel/b.xlsx", Operation: ports.FileDeleted}
	watcher.events <- ports.FileEvent{Path: "schema/b.json", Operation: ports.FileDeleted}
	close(watcher.events)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("refresher did not stop when the watcher closed")
	}
	assert.Equal(t, []string{"excel/b.xlsx", "schema/b.json"}, deleted)
}

func TestCatalogRefresher_StopsOnContext(t *testing.T) {
	watcher := &chanWatcher{events: make(chan ports.FileEvent)}
	r := NewCatalogRefresher(watcher, newCountingCatalog(t), nil, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("refresher ignored cancellation")
	}
}

func TestCatalogRefresher_WatchError(t *testing.T) {
	watcher := &chanWatcher{watchFn: func() error { return errors.New("no such dir") }}
	r := NewCatalogRefresher(watcher, newCountingCatalog(t), []string{"missing"}, 0, nil)

	err := r.Run(context.Background())
	require.Error(t, err)
}
