// Package taskstore persists background task records outside the process.
package taskstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/entities"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/tasks"
)

const keyPrefix = "tablerag:task:"

// RedisStore keeps each task as a JSON string under tablerag:task:{id}.
// Records expire after the retention period; a zero ttl keeps them forever.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Dial parses a redis:// URL, connects and pings the server.
func Dial(ctx context.Context, url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return NewRedisStore(client, ttl), nil
}

func (s *RedisStore) Save(ctx context.Context, rec entities.TaskRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("task id cannot be empty")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding task %s: %w", rec.ID, err)
	}
	if err := s.client.Set(ctx, keyPrefix+rec.ID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("storing task %s: %w", rec.ID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*entities.TaskRecord, error) {
	data, err := s.client.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, tasks.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading task %s: %w", id, err)
	}
	var rec entities.TaskRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding task %s: %w", id, err)
	}
	return &rec, nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
