package postgres

import (
	"context"
	"time"

	"github.com/stockwise/forecaster/internal/queue"
)

// TaskRepository is the postgres-backed task queue. Claiming uses
// FOR UPDATE SKIP LOCKED so concurrent workers never pick the same task.
type TaskRepository struct {
	db *DB
}

func NewTaskRepository(db *DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Enqueue(ctx context.Context, task *queue.Task) error {
	query := `
		INSERT INTO tasks (name, payload, status, retry_count, run_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		task.Name, task.Payload, queue.TaskStatusPending, task.RetryCount, task.RunAt,
	).Scan(&task.ID, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return wrapDBError(err)
	}
	return nil
}

func (r *TaskRepository) DuePending(ctx context.Context, now time.Time, limit int) ([]*queue.Task, error) {
	query := `
		UPDATE tasks
		SET status = $1, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM tasks
			WHERE status = $2 AND run_at <= $3
			ORDER BY run_at
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, name, payload, status, retry_count, run_at, last_error, created_at, updated_at
	`
	var tasks []*queue.Task
	err := r.db.SelectContext(ctx, &tasks, query,
		queue.TaskStatusRunning, queue.TaskStatusPending, now, limit)
	if err != nil {
		return nil, wrapDBError(err)
	}
	return tasks, nil
}

func (r *TaskRepository) MarkCompleted(ctx context.Context, task *queue.Task) error {
	query := `UPDATE tasks SET status = $1, last_error = '', updated_at = NOW() WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, queue.TaskStatusCompleted, task.ID); err != nil {
		return wrapDBError(err)
	}
	return nil
}

func (r *TaskRepository) MarkFailed(ctx context.Context, task *queue.Task, taskErr error) error {
	task.RetryCount++
	status := queue.TaskStatusFailed
	runAt := task.RunAt
	if next, ok := queue.NextRunAt(task.RetryCount, time.Now().UTC()); ok {
		status = queue.TaskStatusPending
		runAt = next
	}

	query := `
		UPDATE tasks
		SET status = $1, retry_count = $2, run_at = $3, last_error = $4, updated_at = NOW()
		WHERE id = $5
	`
	_, err := r.db.ExecContext(ctx, query, status, task.RetryCount, runAt, taskErr.Error(), task.ID)
	if err != nil {
		return wrapDBError(err)
	}
	task.Status = status
	task.RunAt = runAt
	task.LastError = taskErr.Error()
	return nil
}

func (r *TaskRepository) Stats(ctx context.Context) (map[queue.TaskStatus]int64, error) {
	query := `SELECT status, COUNT(*) AS count FROM tasks GROUP BY status`
	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, wrapDBError(err)
	}
	defer rows.Close()

	stats := make(map[queue.TaskStatus]int64)
	for rows.Next() {
		var status queue.TaskStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, wrapDBError(err)
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

func (r *TaskRepository) ResetStuck(ctx context.Context, maxAge time.Duration) (int64, error) {
	query := `
		UPDATE tasks
		SET status = $1, updated_at = NOW()
		WHERE status = $2 AND updated_at < $3
	`
	res, err := r.db.ExecContext(ctx, query,
		queue.TaskStatusPending, queue.TaskStatusRunning, time.Now().UTC().Add(-maxAge))
	if err != nil {
		return 0, wrapDBError(err)
	}
	return res.RowsAffected()
}
