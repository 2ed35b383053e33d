// Package tasks runs long operations in the background and tracks their
// status by id.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/entities"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/ports"
)

// ErrTaskNotFound is returned for unknown task ids.
var ErrTaskNotFound = errors.New("task not found")

// Job is one unit of background work. Its return value becomes the task result.
type Job func(ctx context.Context) (any, error)

// Manager starts jobs immediately on their own goroutine. There is no
// queue limit, cancellation or retry at this layer.
type Manager struct {
	store  ports.TaskStore
	logger hclog.Logger
	now    func() time.Time
	wg     sync.WaitGroup
}

// NewManager creates a Manager over store. A nil store means an in-memory one.
func NewManager(store ports.TaskStore, logger hclog.Logger) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Manager{store: store, logger: logger, now: time.Now}
}

// Submit records a queued task and starts job without waiting for it.
func (m *Manager) Submit(kind string, job Job) (string, error) {
	rec := entities.TaskRecord{
		ID:        uuid.New().String(),
		Kind:      kind,
		Status:    entities.TaskQueued,
		CreatedAt: m.now(),
	}
	if err := m.store.Save(context.Background(), rec); err != nil {
		return "", fmt.Errorf("saving task: %w", err)
	}
	m.logger.Info("task submitted", "task_id", rec.ID, "kind", kind)

	m.wg.Add(1)
	go m.run(rec, job)
	return rec.ID, nil
}

// Get returns a snapshot of the task record.
func (m *Manager) Get(ctx context.Context, id string) (*entities.TaskRecord, error) {
	return m.store.Get(ctx, id)
}

// Wait blocks until every submitted job has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) run(rec entities.TaskRecord, job Job) {
	defer m.wg.Done()
	ctx := context.Background()

	started := m.now()
	rec.StartedAt = &started
	if !m.transition(ctx, &rec, entities.TaskRunning) {
		return
	}

	result, err := m.execute(ctx, job)

	ended := m.now()
	rec.EndedAt = &ended
	if err != nil {
		rec.Error = err.Error()
		m.transition(ctx, &rec, entities.TaskFailed)
		m.logger.Error("task failed", "task_id", rec.ID, "kind", rec.Kind, "error", err)
		return
	}
	rec.Result = result
	m.transition(ctx, &rec, entities.TaskSucceeded)
	m.logger.Info("task succeeded", "task_id", rec.ID, "kind", rec.Kind, "duration", ended.Sub(started))
}

func (m *Manager) transition(ctx context.Context, rec *entities.TaskRecord, next entities.TaskStatus) bool {
	if !rec.Status.CanTransitionTo(next) {
		m.logger.Error("illegal task transition", "task_id", rec.ID, "from", rec.Status, "to", next)
		return false
	}
	rec.Status = next
	if err := m.store.Save(ctx, *rec); err != nil {
		m.logger.Error("saving task state", "task_id", rec.ID, "status", next, "error", err)
	}
	return true
}

// execute runs job, turning a panic into an error carrying the stack.
func (m *Manager) execute(ctx context.Context, job Job) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return job(ctx)
}
