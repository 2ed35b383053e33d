package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/entities"
)

// recordingStore wraps MemoryStore and remembers every saved status per task.
type recordingStore struct {
	*MemoryStore
	mu      sync.Mutex
	history map[string][]entities.TaskStatus
}

func newRecordingStore() *recordingStore {
	return &recordingStore{MemoryStore: NewMemoryStore(), history: make(map[string][]entities.TaskStatus)}
}

func (s *recordingStore) Save(ctx context.Context, rec entities.TaskRecord) error {
	s.mu.Lock()
	s.history[rec.ID] = append(s.history[rec.ID], rec.Status)
	s.mu.Unlock()
	return s.MemoryStore.Save(ctx, rec)
}

func (s *recordingStore) statuses(id string) []entities.TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entities.TaskStatus(nil), s.history[id]...)
}

func TestManager_SuccessLifecycle(t *testing.T) {
	store := newRecordingStore()
	m := NewManager(store, nil)

	id, err := m.Submit("embeddings", func(ctx context.Context) (any, error) {
		return map[string]int{"chunks": 12}, nil
	})
	require.NoError(t, err)
	m.Wait()

	rec, err := m.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, entities.TaskSucceeded, rec.Status)
	assert.Equal(t, map[string]int{"chunks": 12}, rec.Result)
	assert.Empty(t, rec.Error)
	require.NotNil(t, rec.StartedAt)
	require.NotNil(t, rec.EndedAt)
	assert.False(t, rec.EndedAt.Before(*rec.StartedAt))
	assert.Equal(t, []entities.TaskStatus{entities.TaskQueued, entities.TaskRunning, entities.TaskSucceeded}, store.statuses(id))
}

func TestManager_FailureLifecycle(t *testing.T) {
	store := newRecordingStore()
	m := NewManager(store, nil)

	id, err := m.Submit("import", func(ctx context.Context) (any, error) {
		return "ignored", errors.New("ingestion service unreachable")
	})
	require.NoError(t, err)
	m.Wait()

	rec, err := m.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, entities.TaskFailed, rec.Status)
	assert.Nil(t, rec.Result, "result and error are mutually exclusive")
	assert.Equal(t, "ingestion service unreachable", rec.Error)
	assert.Equal(t, []entities.TaskStatus{entities.TaskQueued, entities.TaskRunning, entities.TaskFailed}, store.statuses(id))
}

func TestManager_PanicBecomesFailure(t *testing.T) {
	m := NewManager(nil, nil)

	id, err := m.Submit("cleanup", func(ctx context.Context) (any, error) {
		panic("disk on fire")
	})
	require.NoError(t, err)
	m.Wait()

	rec, err := m.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, entities.TaskFailed, rec.Status)
	assert.Contains(t, rec.Error, "panic: disk on fire")
	assert.Contains(t, rec.Error, "goroutine")
}

func TestManager_SubmitDoesNotWait(t *testing.T) {
	m := NewManager(nil, nil)
	release := make(chan struct{})
	started := make(chan struct{})

	id, err := m.Submit("slow", func(ctx context.Context) (any, error) {
		close(started)
		<-release
		return "done", nil
	})
	require.NoError(t, err)

	<-started
	rec, err := m.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, entities.TaskRunning, rec.Status)
	assert.Nil(t, rec.EndedAt)

	close(release)
	m.Wait()
	rec, err = m.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, entities.TaskSucceeded, rec.Status)
}

func TestManager_UnknownTask(t *testing.T) {
	m := NewManager(nil, nil)
	_, err := m.Get(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestManager_ConcurrentSubmissions(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(store, nil)

	var wg sync.WaitGroup
	ids := make(chan string, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id, err := m.Submit("bulk", func(ctx context.Context) (any, error) { return n, nil })
			assert.NoError(t, err)
			ids <- id
		}(i)
	}
	wg.Wait()
	m.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		assert.False(t, seen[id], "ids must be unique")
		seen[id] = true
		rec, err := m.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, entities.TaskSucceeded, rec.Status)
	}
	assert.Equal(t, 50, store.Len())
}
