package task

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// TaskStatus represents the current state of a task
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Factory turns a payload into the result of one stage invocation.
type Factory[P, R any] func(ctx context.Context, payload P) (R, error)

// Job is a task body handed to an Executor.
type Job func(ctx context.Context)

// Executor runs jobs off the control goroutine.
type Executor interface {
	// Submit schedules job for execution and returns without waiting for it.
	// Returns an error if the executor cannot accept the job.
	Submit(job Job) error
}

// Task is one submitted unit of work. It is owned by the Queue that created
// it until it is collected.
type Task[P, R any] struct {
	id      uuid.UUID
	payload P

	started atomic.Bool
	done    chan struct{}
	once    sync.Once

	// result and err are written once, before done is closed.
	result R
	err    error
}

func newTask[P, R any](payload P) *Task[P, R] {
	return &Task[P, R]{
		id:      uuid.New(),
		payload: payload,
		done:    make(chan struct{}),
	}
}

// ID returns the task's unique identifier
func (t *Task[P, R]) ID() uuid.UUID {
	return t.id
}

// Payload returns the input the task was submitted with
func (t *Task[P, R]) Payload() P {
	return t.payload
}

// Done reports whether the task has finished. It never blocks.
func (t *Task[P, R]) Done() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Status returns the current task status
func (t *Task[P, R]) Status() TaskStatus {
	if t.Done() {
		if t.err != nil {
			return TaskStatusFailed
		}
		return TaskStatusCompleted
	}
	if t.started.Load() {
		return TaskStatusProcessing
	}
	return TaskStatusPending
}

// Wait blocks until the task finishes or ctx is done. It is the only blocking
// join on a task; everything else polls.
func (t *Task[P, R]) Wait(ctx context.Context) (R, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

// outcome returns the result of a finished task.
func (t *Task[P, R]) outcome() (R, error) {
	return t.result, t.err
}

func (t *Task[P, R]) finish(result R, err error) {
	t.once.Do(func() {
		t.result = result
		t.err = err
		close(t.done)
	})
}
