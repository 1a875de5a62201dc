// internal/service/pipeline_service.go
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/stockwise/forecaster/internal/cache"
	"github.com/stockwise/forecaster/internal/daily"
	"github.com/stockwise/forecaster/internal/domain"
	"github.com/stockwise/forecaster/internal/queue"
	"github.com/stockwise/forecaster/internal/reconcile"
	"github.com/stockwise/forecaster/internal/reorder"
)

// HandlerRegistry is implemented by both the inline dispatcher and the
// queue worker, so the pipeline wires the same handlers into either side.
type HandlerRegistry interface {
	Register(name string, h queue.Handler)
}

// PipelineService chains the forecast stages: reconcile applied batches
// into adjustment lines, decompose lines into daily rows, and recompute
// reordering suggestions for the subjects that changed. Stages never call
// each other directly; each dispatches the next as a named task.
type PipelineService struct {
	dispatcher  *queue.Dispatcher
	reconciler  *reconcile.Reconciler
	decomposer  *daily.Decomposer
	recommender *reorder.Recommender
	summaries   cache.SummaryCache
}

func NewPipelineService(
	dispatcher *queue.Dispatcher,
	reconciler *reconcile.Reconciler,
	decomposer *daily.Decomposer,
	recommender *reorder.Recommender,
	summaries cache.SummaryCache,
) *PipelineService {
	return &PipelineService{
		dispatcher:  dispatcher,
		reconciler:  reconciler,
		decomposer:  decomposer,
		recommender: recommender,
		summaries:   summaries,
	}
}

// RegisterHandlers binds every pipeline stage on the given registry.
func (s *PipelineService) RegisterHandlers(reg HandlerRegistry) {
	reg.Register(TaskReconcile, s.handleReconcile)
	reg.Register(TaskDecompose, s.handleDecompose)
	reg.Register(TaskRecommend, s.handleRecommend)
	reg.Register(TaskRefreshWindows, s.handleRefreshWindows)
	reg.Register(TaskPromote, s.handlePromote)
}

func (s *PipelineService) handleReconcile(ctx context.Context, payload json.RawMessage) error {
	var p ReconcilePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("bad reconcile payload: %w", err)
	}

	lineIDs, err := s.reconciler.Reconcile(ctx, p.PubTime, p.Level)
	if err != nil {
		return asRetryable(err)
	}
	if len(lineIDs) == 0 {
		return nil
	}
	return s.dispatcher.Dispatch(ctx, TaskDecompose, DecomposePayload{LineIDs: lineIDs}, len(lineIDs))
}

func (s *PipelineService) handleDecompose(ctx context.Context, payload json.RawMessage) error {
	var p DecomposePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("bad decompose payload: %w", err)
	}

	_, touched, err := s.decomposer.Decompose(ctx, p.LineIDs)
	if err != nil {
		return asRetryable(err)
	}
	if len(touched) == 0 {
		return nil
	}
	return s.dispatcher.Dispatch(ctx, TaskRecommend, RecommendPayload{Keys: touched}, len(touched))
}

func (s *PipelineService) handleRecommend(ctx context.Context, payload json.RawMessage) error {
	var p RecommendPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("bad recommend payload: %w", err)
	}

	var failed int
	var lastErr error
	for _, key := range p.Keys {
		if _, err := s.recommender.Recommend(ctx, key); err != nil {
			// A missing product or an out-of-range result is final for
			// this subject; keep going so one bad subject never starves
			// the rest of the batch.
			if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidRange) {
				log.Warn().Err(err).Int64("product_id", key.ProductID).Msg("recommendation skipped")
				continue
			}
			failed++
			lastErr = err
		}
	}
	if failed > 0 {
		return asRetryable(fmt.Errorf("%d of %d recommendations failed: %w", failed, len(p.Keys), lastErr))
	}
	return nil
}

func (s *PipelineService) handleRefreshWindows(ctx context.Context, payload json.RawMessage) error {
	if err := s.reconciler.UpdateWindows(ctx, time.Now().UTC()); err != nil {
		return asRetryable(err)
	}
	if err := s.summaries.InvalidateAll(ctx); err != nil {
		log.Warn().Err(err).Msg("summary cache invalidation failed after window refresh")
	}
	return nil
}

func (s *PipelineService) handlePromote(ctx context.Context, payload json.RawMessage) error {
	var p PromotePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("bad promote payload: %w", err)
	}
	if _, err := s.recommender.Promote(ctx, p.Since); err != nil {
		return asRetryable(err)
	}
	return nil
}

// RefreshWindows runs the window slide outside the queue, for the worker
// CLI.
func (s *PipelineService) RefreshWindows(ctx context.Context) error {
	return s.handleRefreshWindows(ctx, nil)
}

// Promote runs tracker promotion outside the queue, for the worker CLI.
func (s *PipelineService) Promote(ctx context.Context, since time.Time) error {
	if _, err := s.recommender.Promote(ctx, since); err != nil {
		return err
	}
	return nil
}

// asRetryable marks transient failures for the queue's backoff schedule.
// Validation and range errors are final and exhaust immediately.
func asRetryable(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrInvalidRange) ||
		errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return domain.Retryable(err)
}
