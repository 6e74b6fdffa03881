// Package background runs fire-and-forget work (persisting a finished
// stream, summarizing a conversation) as tasks whose completion callers
// can observe, and whose failures are logged instead of silently dropped.
package background

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// FailureRecorder counts failed tasks by name.
type FailureRecorder interface {
	RecordBackgroundFailure(task string)
}

// Task is a handle on one background unit of work.
type Task struct {
	id   string
	name string
	done chan struct{}
	err  error
}

// ID returns the task id used in log lines.
func (t *Task) ID() string { return t.id }

// Name returns the task name.
func (t *Task) Name() string { return t.name }

// Done is closed when the task has finished.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the task's error once it has finished.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until the task finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Group tracks background tasks. The zero value is not usable; use
// NewGroup.
type Group struct {
	eg       errgroup.Group
	logger   *slog.Logger
	recorder FailureRecorder

	mu     sync.Mutex
	failed []error
}

// NewGroup creates a task group. recorder may be nil.
func NewGroup(logger *slog.Logger, recorder FailureRecorder) *Group {
	if logger == nil {
		logger = slog.Default()
	}
	return &Group{logger: logger, recorder: recorder}
}

// Go runs fn in the background. The task is detached from ctx's
// cancellation so it outlives the request that started it; ctx values are
// preserved. attrs are added to the failure log line.
func (g *Group) Go(ctx context.Context, name string, fn func(ctx context.Context) error, attrs ...any) *Task {
	task := &Task{
		id:   uuid.New().String(),
		name: name,
		done: make(chan struct{}),
	}
	taskCtx := context.WithoutCancel(ctx)

	g.eg.Go(func() error {
		defer close(task.done)
		err := fn(taskCtx)
		if err == nil {
			return nil
		}
		task.err = err

		args := append([]any{"task", name, "task_id", task.id, "error", err}, attrs...)
		g.logger.Error("background task failed", args...)
		if g.recorder != nil {
			g.recorder.RecordBackgroundFailure(name)
		}

		g.mu.Lock()
		g.failed = append(g.failed, err)
		g.mu.Unlock()
		return err
	})
	return task
}

// Wait blocks until every task started so far has finished and returns the
// failures collected since the previous Wait, joined.
func (g *Group) Wait() error {
	_ = g.eg.Wait()

	g.mu.Lock()
	defer g.mu.Unlock()
	err := errors.Join(g.failed...)
	g.failed = nil
	return err
}
