// internal/queue/types.go
package queue

import (
	"encoding/json"
	"time"
)

type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Task is one unit of delayed work. Payload is an opaque JSON document the
// registered handler decodes.
type Task struct {
	ID         int64           `json:"id" db:"id"`
	Name       string          `json:"name" db:"name"`
	Payload    json.RawMessage `json:"payload" db:"payload"`
	Status     TaskStatus      `json:"status" db:"status"`
	RetryCount int             `json:"retry_count" db:"retry_count"`
	RunAt      time.Time       `json:"run_at" db:"run_at"`
	LastError  string          `json:"last_error" db:"last_error"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
}

// RetryBackoff is the delayed-retry schedule. The policy is data attached
// to the task lifecycle, not code: a task failing for the nth time is
// re-scheduled after RetryBackoff[n-1], and abandoned once the schedule is
// exhausted.
var RetryBackoff = []time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	10 * time.Minute,
	30 * time.Minute,
}

// NextRunAt returns the next scheduled run after the given failure count,
// or false when retries are exhausted.
func NextRunAt(retryCount int, now time.Time) (time.Time, bool) {
	if retryCount < 1 || retryCount > len(RetryBackoff) {
		return time.Time{}, false
	}
	return now.Add(RetryBackoff[retryCount-1]), true
}
