// internal/queue/repository.go
package queue

import (
	"context"
	"time"
)

// Repository persists tasks. The postgres implementation lives in
// internal/repository/postgres.
type Repository interface {
	Enqueue(ctx context.Context, task *Task) error

	// DuePending claims up to limit pending tasks whose run_at has passed,
	// marking them running so concurrent workers never pick the same task.
	DuePending(ctx context.Context, now time.Time, limit int) ([]*Task, error)

	MarkCompleted(ctx context.Context, task *Task) error

	// MarkFailed records the failure and either re-schedules the task per
	// its backoff or marks it permanently failed.
	MarkFailed(ctx context.Context, task *Task, taskErr error) error

	// Stats returns task counts by status for the ops endpoint.
	Stats(ctx context.Context) (map[TaskStatus]int64, error)

	// ResetStuck returns tasks stuck in running longer than maxAge to
	// pending.
	ResetStuck(ctx context.Context, maxAge time.Duration) (int64, error)
}
