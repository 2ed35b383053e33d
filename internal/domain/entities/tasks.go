package entities

import "time"

// TaskStatus is the lifecycle state of a background task.
type TaskStatus string

const (
	TaskQueued    TaskStatus = "queued"
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
)

// IsTerminal reports whether no further transition is possible.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskSucceeded || s == TaskFailed
}

// CanTransitionTo reports whether s -> next is a legal lifecycle step.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	switch s {
	case TaskQueued:
		return next == TaskRunning
	case TaskRunning:
		return next == TaskSucceeded || next == TaskFailed
	default:
		return false
	}
}

// TaskRecord is the tracked state of one background job.
type TaskRecord struct {
	ID        string     `json:"task_id"`
	Kind      string     `json:"kind"`
	Status    TaskStatus `json:"status"`
	Result    any        `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}
