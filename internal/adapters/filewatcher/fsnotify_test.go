package filewatcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/ports"
)

func TestFSNotifyWatcher_DefaultExtensions(t *testing.T) {
	watcher, err := NewFSNotifyWatcher(nil, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	assert.Len(t, watcher.exts, len(DefaultExtensions))
	assert.True(t, watcher.watches("/x/Report.XLSX"))
	assert.False(t, watcher.watches("/x/notes.txt"))
}

func TestFSNotifyWatcher_Translate(t *testing.T) {
	watcher, err := NewFSNotifyWatcher(nil, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	cases := []struct {
		op   fsnotify.Op
		want ports.FileOperation
		ok   bool
	}{
		{fsnotify.Create, ports.FileCreated, true},
		{fsnotify.Write, ports.FileModified, true},
		{fsnotify.Remove, ports.FileDeleted, true},
		{fsnotify.Rename, ports.FileDeleted, true},
		{fsnotify.Chmod, 0, false},
	}
	for _, tc := range cases {
		ev, ok := watcher.translate(fsnotify.Event{Name: "/data/acme.csv", Op: tc.op})
		assert.Equal(t, tc.ok, ok, tc.op.String())
		if ok {
			assert.Equal(t, tc.want, ev.Operation, tc.op.String())
		}
	}

	_, ok := watcher.translate(fsnotify.Event{Name: "/data/readme.md", Op: fsnotify.Create})
	assert.False(t, ok)
}

func TestFSNotifyWatcher_WatchesEveryDirectory(t *testing.T) {
	schemaDir, dataDir := t.TempDir(), t.TempDir()

	watcher, err := NewFSNotifyWatcher(nil, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	events, err := watcher.Watch(ctx, schemaDir, dataDir)
	require.NoError(t, err)

	go func() {
		time.Sleep(100 * time.Millisecond)
		os.WriteFile(filepath.Join(dataDir, "acme_2023.xlsx"), []byte("x"), 0644)
	}()

	select {
	case event := <-events:
		assert.Equal(t, ports.FileCreated, event.Operation)
		assert.Equal(t, "acme_2023.xlsx", filepath.Base(event.Path))
	case <-ctx.Done():
		t.Fatal("timeout waiting for event")
	}
}

func TestFSNotifyWatcher_FiltersByExtension(t *testing.T) {
	dir := t.TempDir()

	watcher, err := NewFSNotifyWatcher([]string{".json"}, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	events, err := watcher.Watch(ctx, dir)
	require.NoError(t, err)

	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0644)

	select {
	case <-events:
		t.Error("should not receive event for .txt")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestFSNotifyWatcher_MissingDirectory(t *testing.T) {
	watcher, err := NewFSNotifyWatcher(nil, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	_, err = watcher.Watch(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestFSNotifyWatcher_Stop(t *testing.T) {
	watcher, err := NewFSNotifyWatcher(nil, nil)
	require.NoError(t, err)
	assert.NoError(t, watcher.Stop())
}
