// internal/service/summary_service.go
package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/stockwise/forecaster/internal/cache"
	"github.com/stockwise/forecaster/internal/domain"
	"github.com/stockwise/forecaster/internal/repository"
)

// SummaryService serves the chart payloads built by the window refresh.
type SummaryService struct {
	lines repository.AdjustmentRepository
	cache cache.SummaryCache
}

func NewSummaryService(lines repository.AdjustmentRepository, summaryCache cache.SummaryCache) *SummaryService {
	return &SummaryService{lines: lines, cache: summaryCache}
}

// Chart returns the historical and forecast series for one subject and
// period granularity.
func (s *SummaryService) Chart(ctx context.Context, key domain.ForecastKey, periodType domain.PeriodType) (*domain.SummaryChart, error) {
	if !periodType.Valid() {
		return nil, fmt.Errorf("%w: unknown period_type %q", domain.ErrValidation, periodType)
	}

	if cached, err := s.cache.Get(ctx, key, periodType); err != nil {
		log.Warn().Err(err).Msg("summary cache read failed, falling back to database")
	} else if cached != nil {
		return cached, nil
	}

	summary, err := s.lines.GetSummary(ctx, key, periodType)
	if err != nil {
		return nil, fmt.Errorf("failed to load summary: %w", err)
	}
	if summary == nil {
		return nil, fmt.Errorf("%w: no summary for subject", domain.ErrNotFound)
	}

	chart := &domain.SummaryChart{
		ForecastKey: summary.ForecastKey,
		PeriodType:  summary.PeriodType,
		StartWindow: summary.StartWindow,
		EndWindow:   summary.EndWindow,
		LastUpdate:  summary.LastUpdate,
	}
	if len(summary.HistoricalSeries) > 0 {
		if err := json.Unmarshal(summary.HistoricalSeries, &chart.HistoricalSeries); err != nil {
			return nil, fmt.Errorf("corrupt historical series for summary %d: %w", summary.ID, err)
		}
	}
	if len(summary.ForecastSeries) > 0 {
		if err := json.Unmarshal(summary.ForecastSeries, &chart.ForecastSeries); err != nil {
			return nil, fmt.Errorf("corrupt forecast series for summary %d: %w", summary.ID, err)
		}
	}

	if err := s.cache.Set(ctx, chart); err != nil {
		log.Warn().Err(err).Msg("summary cache write failed")
	}
	return chart, nil
}
