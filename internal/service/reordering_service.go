// internal/service/reordering_service.go
package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/stockwise/forecaster/internal/domain"
	"github.com/stockwise/forecaster/internal/repository"
)

// ReorderingService exposes the monitor rows and records user edits.
type ReorderingService struct {
	repo repository.ReorderingRepository
}

func NewReorderingService(repo repository.ReorderingRepository) *ReorderingService {
	return &ReorderingService{repo: repo}
}

func (s *ReorderingService) GetMonitor(ctx context.Context, key domain.ForecastKey) (*domain.ReorderingMonitor, error) {
	monitor, err := s.repo.GetMonitor(ctx, key)
	if err != nil {
		return nil, err
	}
	if monitor == nil {
		return nil, fmt.Errorf("%w: no reordering monitor for subject", domain.ErrNotFound)
	}
	return monitor, nil
}

func (s *ReorderingService) ListMonitors(ctx context.Context, companyID int64, limit, offset int) ([]*domain.ReorderingMonitor, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListMonitors(ctx, companyID, limit, offset)
}

// UpdateQuantities records a user edit of the reordering quantities. The
// effective min/max pair after the edit must still satisfy min <= max;
// unchanged columns keep their current value.
func (s *ReorderingService) UpdateQuantities(ctx context.Context, key domain.ForecastKey, minQty, maxQty, safetyStock *float64) (*domain.ReorderingMonitor, error) {
	if minQty == nil && maxQty == nil && safetyStock == nil {
		return nil, fmt.Errorf("%w: no quantities to update", domain.ErrValidation)
	}
	for _, v := range []*float64{minQty, maxQty, safetyStock} {
		if v != nil && *v < 0 {
			return nil, fmt.Errorf("%w: quantities must be non-negative", domain.ErrValidation)
		}
	}

	monitor, err := s.GetMonitor(ctx, key)
	if err != nil {
		return nil, err
	}

	effMin := effectiveQty(minQty, monitor.NewMinQty, monitor.MinForecast)
	effMax := effectiveQty(maxQty, monitor.NewMaxQty, monitor.MaxForecast)
	if effMin > effMax {
		return nil, fmt.Errorf("%w: min %.4f > max %.4f", domain.ErrInvalidRange, effMin, effMax)
	}

	if err := s.repo.UpdateMonitorQuantities(ctx, key, minQty, maxQty, safetyStock); err != nil {
		return nil, err
	}
	log.Info().Int64("product_id", key.ProductID).Int64("warehouse_id", key.WarehouseID).
		Msg("reordering quantities updated")
	return s.GetMonitor(ctx, key)
}

// effectiveQty resolves the value a column will have after the edit: the
// incoming edit, else the prior user edit, else the engine suggestion.
func effectiveQty(edit, current *float64, suggestion float64) float64 {
	if edit != nil {
		return *edit
	}
	if current != nil {
		return *current
	}
	return suggestion
}
