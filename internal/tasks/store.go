// Package tasks provides a process-wide store for background task statuses.
//
// Every optimization, allocation and rebalance invocation runs as background
// work identified by a task ID; callers poll the store for progress. The
// store is injected into the engines so no engine holds package-level state.
// Entries never expire: the store grows with task history, which is accepted
// for a single-process deployment with infrequent task launches.
package tasks

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Status is the lifecycle state of a background task.
type Status string

const (
	StatusStarted   Status = "started"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Task is a snapshot of one background task's state.
type Task struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`      // "optimization", "allocation", "rebalance"
	TargetID   int64      `json:"target_id"` // Strategy or portfolio ID
	Status     Status     `json:"status"`
	Progress   float64    `json:"progress"` // [0,1], non-decreasing while running
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
	Result     any        `json:"result,omitempty"`
}

// Store is a mutex-guarded task status map. A single lock covers the whole
// store; status updates are infrequent enough that per-key locking would be
// overkill.
type Store struct {
	mu    sync.Mutex
	tasks map[string]Task
	log   zerolog.Logger
}

// NewStore creates an empty task status store.
func NewStore(log zerolog.Logger) *Store {
	return &Store{
		tasks: make(map[string]Task),
		log:   log.With().Str("component", "tasks").Logger(),
	}
}

// Start registers a new task in the started state.
func (s *Store) Start(id, kind string, targetID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks[id] = Task{
		ID:        id,
		Kind:      kind,
		TargetID:  targetID,
		Status:    StatusStarted,
		StartedAt: time.Now().UTC(),
	}
}

// SetRunning transitions a task to running.
func (s *Store) SetRunning(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return
	}
	task.Status = StatusRunning
	s.tasks[id] = task
}

// SetProgress updates a running task's progress. Progress is advisory and
// monotonic: updates that would move it backwards are dropped.
func (s *Store) SetProgress(id string, progress float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok || task.Status != StatusRunning {
		return
	}
	if progress > task.Progress {
		task.Progress = progress
		s.tasks[id] = task
	}
}

// Complete marks a task completed with an optional result payload.
func (s *Store) Complete(id string, result any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return
	}
	now := time.Now().UTC()
	task.Status = StatusCompleted
	task.Progress = 1.0
	task.FinishedAt = &now
	task.Result = result
	s.tasks[id] = task

	s.log.Debug().Str("task_id", id).Str("kind", task.Kind).Msg("Task completed")
}

// Fail marks a task failed with a short error message.
func (s *Store) Fail(id, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return
	}
	now := time.Now().UTC()
	task.Status = StatusFailed
	task.FinishedAt = &now
	task.Error = errMsg
	s.tasks[id] = task

	s.log.Warn().Str("task_id", id).Str("kind", task.Kind).Str("error", errMsg).Msg("Task failed")
}

// Get returns a snapshot of a task's state.
func (s *Store) Get(id string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	return task, ok
}
