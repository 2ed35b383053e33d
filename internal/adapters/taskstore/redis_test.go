package taskstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/entities"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/tasks"
)

func setupRedis(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewRedisStore(client, ttl)
}

func TestRedisStore_SaveAndGet(t *testing.T) {
	mr, store := setupRedis(t, time.Hour)
	ctx := context.Background()

	started := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	rec := entities.TaskRecord{
		ID:        "abc",
		Kind:      "import",
		Status:    entities.TaskRunning,
		CreatedAt: started.Add(-time.Second),
		StartedAt: &started,
	}
	require.NoError(t, store.Save(ctx, rec))
	assert.True(t, mr.Exists("tablerag:task:abc"))

	got, err := store.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, entities.TaskRunning, got.Status)
	assert.Equal(t, "import", got.Kind)
	require.NotNil(t, got.StartedAt)
	assert.True(t, started.Equal(*got.StartedAt))
	assert.Nil(t, got.EndedAt)
}

func TestRedisStore_Expiry(t *testing.T) {
	mr, store := setupRedis(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, entities.TaskRecord{ID: "old", Status: entities.TaskSucceeded}))
	mr.FastForward(2 * time.Minute)

	_, err := store.Get(ctx, "old")
	assert.ErrorIs(t, err, tasks.ErrTaskNotFound)
}

func TestRedisStore_UnknownTask(t *testing.T) {
	_, store := setupRedis(t, 0)
	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, tasks.ErrTaskNotFound)
}

func TestRedisStore_BacksManager(t *testing.T) {
	_, store := setupRedis(t, time.Hour)
	m := tasks.NewManager(store, nil)

	id, err := m.Submit("embeddings", func(ctx context.Context) (any, error) {
		return map[string]any{"chunks": 3}, nil
	})
	require.NoError(t, err)
	m.Wait()

	rec, err := m.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, entities.TaskSucceeded, rec.Status)
	assert.Equal(t, map[string]any{"chunks": float64(3)}, rec.Result)
}
