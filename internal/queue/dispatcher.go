// internal/queue/dispatcher.go
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Dispatcher is the boundary between pipeline stages. A stage never calls
// the next one directly: it dispatches a named task, which either runs
// inline (small batches, or queueing disabled) or lands on the task table
// for a worker to pick up later.
type Dispatcher struct {
	repo      Repository
	threshold int
	enabled   bool

	mu       sync.Mutex
	handlers map[string]Handler
}

func NewDispatcher(repo Repository, threshold int, enabled bool) *Dispatcher {
	if threshold < 1 {
		threshold = 1
	}
	return &Dispatcher{
		repo:      repo,
		threshold: threshold,
		enabled:   enabled,
		handlers:  make(map[string]Handler),
	}
}

// Register binds a task name to the handler used for inline execution.
func (d *Dispatcher) Register(name string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = h
}

// Dispatch submits work. batchSize below the configured threshold runs the
// handler synchronously in the caller's transaction context; larger batches
// are deferred to the queue.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, payload any, batchSize int) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload for task %q: %w", name, err)
	}

	if !d.enabled || batchSize < d.threshold {
		d.mu.Lock()
		handler, ok := d.handlers[name]
		d.mu.Unlock()
		if !ok {
			return fmt.Errorf("no handler registered for task %q", name)
		}
		log.Debug().Str("task", name).Int("batch_size", batchSize).Msg("running task inline")
		return handler(ctx, raw)
	}

	task := &Task{
		Name:    name,
		Payload: raw,
		Status:  TaskStatusPending,
		RunAt:   time.Now().UTC(),
	}
	if err := d.repo.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("failed to enqueue task %q: %w", name, err)
	}
	log.Info().Str("task", name).Int64("id", task.ID).Int("batch_size", batchSize).Msg("task enqueued")
	return nil
}
