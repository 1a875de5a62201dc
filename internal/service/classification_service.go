// internal/service/classification_service.go
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/stockwise/forecaster/internal/domain"
	"github.com/stockwise/forecaster/internal/repository"
)

// forecastGroups maps a demand pattern to the period granularity the
// recommender reads history at. Stable patterns forecast weekly; sparse
// ones need the longer monthly buckets to see any signal.
var forecastGroups = map[string]domain.PeriodType{
	"smooth":       domain.PeriodWeekly,
	"erratic":      domain.PeriodWeekly,
	"intermittent": domain.PeriodMonthly,
	"lumpy":        domain.PeriodMonthly,
}

const defaultForecastGroup = domain.PeriodWeekly

// ClassificationService maintains the per-subject classification truth
// from the latest approved snapshots.
type ClassificationService struct {
	repo repository.ClassificationRepository
}

func NewClassificationService(repo repository.ClassificationRepository) *ClassificationService {
	return &ClassificationService{repo: repo}
}

// Refresh rebuilds the classification info row for one subject from the
// latest approved demand class and service tier. Unapproved snapshots
// never reach the info row.
func (s *ClassificationService) Refresh(ctx context.Context, key domain.ForecastKey) error {
	demand, err := s.repo.LatestApprovedDemandClass(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to load approved demand class: %w", err)
	}
	tier, err := s.repo.LatestApprovedServiceLevel(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to load approved service level: %w", err)
	}
	if demand == nil && tier == nil {
		log.Debug().Int64("product_id", key.ProductID).Msg("no approved classification yet, skipping refresh")
		return nil
	}

	info := &domain.ProductClassificationInfo{
		ForecastKey:   key,
		ForecastGroup: string(defaultForecastGroup),
		UpdatedAt:     time.Now().UTC(),
	}
	if demand != nil {
		info.DemandType = strings.ToLower(demand.DemandType)
		info.ActualDemandID = &demand.ID
		if group, ok := forecastGroups[info.DemandType]; ok {
			info.ForecastGroup = string(group)
		}
	}
	if tier != nil {
		info.ServiceLevel = strings.ToLower(tier.ServiceLevel)
		info.ActualServiceLevelID = &tier.ID
	}

	if err := s.repo.UpsertClassificationInfo(ctx, info); err != nil {
		return fmt.Errorf("failed to upsert classification info: %w", err)
	}
	return nil
}

// Info returns the current classification truth for a subject, or nil
// when nothing has been approved yet.
func (s *ClassificationService) Info(ctx context.Context, key domain.ForecastKey) (*domain.ProductClassificationInfo, error) {
	return s.repo.GetClassificationInfo(ctx, key)
}
