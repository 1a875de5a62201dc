// internal/queue/worker.go
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/stockwise/forecaster/internal/domain"
)

// Handler executes one task payload. Returning a retryable error re-queues
// the task per its backoff schedule; any other error fails it permanently.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Worker polls the task table and fans claimed tasks out to a goroutine
// pool.
type Worker struct {
	repo         Repository
	handlers     map[string]Handler
	count        int
	pollInterval time.Duration
	mu           sync.Mutex
}

func NewWorker(repo Repository, count int, pollInterval time.Duration) *Worker {
	if count < 1 {
		count = 1
	}
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Worker{
		repo:         repo,
		handlers:     make(map[string]Handler),
		count:        count,
		pollInterval: pollInterval,
	}
}

// Register binds a task name to its handler. Registration happens during
// wiring, before Run.
func (w *Worker) Register(name string, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[name] = h
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	log.Info().Int("workers", w.count).Dur("poll_interval", w.pollInterval).Msg("task worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("task worker stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := w.drain(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("task poll failed")
			}
		}
	}
}

// drain claims due tasks and processes them on the pool.
func (w *Worker) drain(ctx context.Context) error {
	tasks, err := w.repo.DuePending(ctx, time.Now().UTC(), w.count*4)
	if err != nil {
		return fmt.Errorf("failed to claim due tasks: %w", err)
	}
	if len(tasks) == 0 {
		return nil
	}

	taskChan := make(chan *Task, len(tasks))
	var wg sync.WaitGroup

	for i := 0; i < w.count; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for task := range taskChan {
				w.process(ctx, workerID, task)
			}
		}(i)
	}

	for _, task := range tasks {
		select {
		case <-ctx.Done():
			close(taskChan)
			wg.Wait()
			return ctx.Err()
		case taskChan <- task:
		}
	}
	close(taskChan)
	wg.Wait()

	return nil
}

func (w *Worker) process(ctx context.Context, workerID int, task *Task) {
	start := time.Now()

	w.mu.Lock()
	handler, ok := w.handlers[task.Name]
	w.mu.Unlock()
	if !ok {
		log.Error().Str("task", task.Name).Int64("id", task.ID).Msg("no handler registered for task")
		if err := w.repo.MarkFailed(ctx, task, fmt.Errorf("no handler for %q", task.Name)); err != nil {
			log.Error().Err(err).Int64("id", task.ID).Msg("failed to mark task failed")
		}
		return
	}

	err := handler(ctx, task.Payload)
	if err == nil {
		if err := w.repo.MarkCompleted(ctx, task); err != nil {
			log.Error().Err(err).Int64("id", task.ID).Msg("failed to mark task completed")
		}
		log.Info().Int("worker", workerID).Str("task", task.Name).Int64("id", task.ID).
			Dur("duration", time.Since(start)).Msg("task completed")
		return
	}

	if !domain.IsRetryable(err) {
		// Exhaust retries immediately for non-retryable failures.
		task.RetryCount = len(RetryBackoff)
	}
	log.Error().Err(err).Int("worker", workerID).Str("task", task.Name).Int64("id", task.ID).
		Int("retry_count", task.RetryCount).Msg("task failed")
	if mErr := w.repo.MarkFailed(ctx, task, err); mErr != nil {
		log.Error().Err(mErr).Int64("id", task.ID).Msg("failed to record task failure")
	}
}
