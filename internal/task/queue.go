package task

import (
	"context"
	"fmt"
	"log/slog"
)

// Report is a point-in-time view of a Queue's counts.
type Report struct {
	Stage     string `json:"stage"`
	Queued    int    `json:"queued"`
	Completed int    `json:"completed"`
	Size      int    `json:"size"`
}

// Queue tracks the tasks of one pipeline stage from submission until their
// outcome is collected.
//
// The bookkeeping is single-writer: AddTask, CollectResults and the counters
// must only be called from one goroutine. The task bodies themselves run on
// the Executor.
type Queue[P, R any] struct {
	stage   string
	exec    Executor
	factory Factory[P, R]
	tasks   []*Task[P, R]
	logger  *slog.Logger
}

// NewQueue creates a queue whose tasks run factory on exec.
func NewQueue[P, R any](stage string, exec Executor, factory Factory[P, R], logger *slog.Logger) *Queue[P, R] {
	return &Queue[P, R]{
		stage:   stage,
		exec:    exec,
		factory: factory,
		logger:  logger.With("stage", stage),
	}
}

// Stage returns the name of the stage the queue serves.
func (q *Queue[P, R]) Stage() string {
	return q.stage
}

// AddTask submits a new task for payload and returns its handle without
// waiting for it. If the executor refuses the job the task is finished
// immediately with that error, so the refusal is collected as a failure.
func (q *Queue[P, R]) AddTask(payload P) *Task[P, R] {
	t := newTask[P, R](payload)
	q.tasks = append(q.tasks, t)

	err := q.exec.Submit(func(ctx context.Context) {
		t.started.Store(true)
		defer func() {
			if r := recover(); r != nil {
				var zero R
				t.finish(zero, fmt.Errorf("task panicked: %v", r))
			}
		}()
		result, err := q.factory(ctx, payload)
		t.finish(result, err)
	})
	if err != nil {
		q.logger.Warn("failed to submit task", "task_id", t.ID(), "error", err)
		var zero R
		t.finish(zero, fmt.Errorf("submit %s task: %w", q.stage, err))
	}

	return t
}

// Size returns the number of tracked tasks, running or finished but not yet
// collected.
func (q *Queue[P, R]) Size() int {
	return len(q.tasks)
}

// QueuedCount returns the number of tasks that have not finished.
func (q *Queue[P, R]) QueuedCount() int {
	n := 0
	for _, t := range q.tasks {
		if !t.Done() {
			n++
		}
	}
	return n
}

// CompletedCount returns the number of finished tasks not yet collected.
func (q *Queue[P, R]) CompletedCount() int {
	n := 0
	for _, t := range q.tasks {
		if t.Done() {
			n++
		}
	}
	return n
}

// CollectResults removes every finished task from the queue and returns the
// results of the successful ones together with the number that failed.
// Running tasks are left in place. Collecting from a queue with no finished
// tasks returns nil and zero.
func (q *Queue[P, R]) CollectResults() ([]R, int) {
	var (
		results []R
		failed  int
	)

	remaining := q.tasks[:0]
	for _, t := range q.tasks {
		if !t.Done() {
			remaining = append(remaining, t)
			continue
		}

		result, err := t.outcome()
		if err != nil {
			failed++
			q.logger.Warn("task failed", "task_id", t.ID(), "error", err)
			continue
		}
		results = append(results, result)
	}

	// Drop references held by the tail of the backing array.
	for i := len(remaining); i < len(q.tasks); i++ {
		q.tasks[i] = nil
	}
	q.tasks = remaining

	return results, failed
}

// Report returns the current counts. It has no side effects.
func (q *Queue[P, R]) Report() Report {
	completed := q.CompletedCount()
	return Report{
		Stage:     q.stage,
		Queued:    len(q.tasks) - completed,
		Completed: completed,
		Size:      len(q.tasks),
	}
}
