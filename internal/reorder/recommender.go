// internal/reorder/recommender.go
package reorder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/stockwise/forecaster/internal/config"
	"github.com/stockwise/forecaster/internal/domain"
	"github.com/stockwise/forecaster/internal/engine"
	"github.com/stockwise/forecaster/internal/repository"
)

// History lookback sizes by period granularity.
const (
	dailyHistoryPoints   = 25
	defaultHistoryPoints = 6
)

// Recommender assembles the reordering inputs for one subject, submits
// them to the engine, and records the suggestion as a tracker snapshot.
type Recommender struct {
	daily          repository.DailyRepository
	results        repository.ResultRepository
	classification repository.ClassificationRepository
	products       repository.ProductRepository
	reordering     repository.ReorderingRepository
	engine         engine.Client
	cfg            config.ForecastingConfig
}

func New(
	daily repository.DailyRepository,
	results repository.ResultRepository,
	classification repository.ClassificationRepository,
	products repository.ProductRepository,
	reordering repository.ReorderingRepository,
	engineClient engine.Client,
	cfg config.ForecastingConfig,
) *Recommender {
	return &Recommender{
		daily:          daily,
		results:        results,
		classification: classification,
		products:       products,
		reordering:     reordering,
		engine:         engineClient,
		cfg:            cfg,
	}
}

// Recommend computes and records a reordering suggestion for one subject.
func (r *Recommender) Recommend(ctx context.Context, key domain.ForecastKey) (*domain.ReorderingTracker, error) {
	products, err := r.products.ProductsByIDs(ctx, []int64{key.ProductID})
	if err != nil {
		return nil, fmt.Errorf("failed to load product %d: %w", key.ProductID, err)
	}
	product, ok := products[key.ProductID]
	if !ok {
		return nil, fmt.Errorf("%w: product %d", domain.ErrNotFound, key.ProductID)
	}

	leadTime := product.LeadTimeDays
	if leadTime < 1 {
		leadTime = 1
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	demandOverLead, err := r.daily.SumActiveRange(ctx, key, today, today.AddDate(0, 0, leadTime))
	if err != nil {
		return nil, fmt.Errorf("failed to sum daily demand over lead time: %w", err)
	}

	historyPeriod, serviceClass := r.classificationFor(ctx, key)
	points := defaultHistoryPoints
	if historyPeriod == domain.PeriodDaily {
		points = dailyHistoryPoints
	}
	history, err := r.results.DemandHistory(ctx, key, historyPeriod, points)
	if err != nil {
		return nil, fmt.Errorf("failed to load demand history: %w", err)
	}

	req := engine.ReorderingRequest{
		ProductID:          key.ProductID,
		CompanyID:          key.CompanyID,
		WarehouseID:        key.WarehouseID,
		LeadTimeDays:       leadTime,
		DemandOverLeadTime: demandOverLead,
		DemandHistory:      history,
		ServiceLevelPct:    r.serviceLevelPct(serviceClass),
		HoldingCostPct:     r.cfg.HoldingCostPct,
		FlatCostPerPO:      r.cfg.FlatCostPerPO,
		FlatCostPerMO:      r.cfg.FlatCostPerMO,
		UnitCost:           product.UnitCost,
	}

	resp, err := r.engine.ComputeReordering(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("reordering computation failed: %w", err)
	}

	tracker := &domain.ReorderingTracker{
		ForecastKey:         key,
		MinForecast:         domain.RoundToUoM(domain.ClampNonNegative(resp.MinForecast), product.UoMRounding),
		MaxForecast:         domain.RoundToUoM(domain.ClampNonNegative(resp.MaxForecast), product.UoMRounding),
		SafetyStockForecast: domain.RoundToUoM(domain.ClampNonNegative(resp.SafetyStockForecast), product.UoMRounding),
		CreatedAt:           time.Now().UTC(),
	}
	if tracker.MinForecast > tracker.MaxForecast {
		return nil, fmt.Errorf("%w: min %.4f > max %.4f after rounding", domain.ErrInvalidRange, tracker.MinForecast, tracker.MaxForecast)
	}

	if err := r.reordering.InsertTracker(ctx, tracker); err != nil {
		return nil, fmt.Errorf("failed to record tracker snapshot: %w", err)
	}

	log.Info().Int64("product_id", key.ProductID).Int64("warehouse_id", key.WarehouseID).
		Float64("min", tracker.MinForecast).Float64("max", tracker.MaxForecast).
		Msg("reordering recommendation recorded")
	return tracker, nil
}

// Promote upserts tracker snapshots since the cutoff into the monitor
// table. User-edited quantities survive; only the suggestion columns are
// refreshed.
func (r *Recommender) Promote(ctx context.Context, since time.Time) (int64, error) {
	promoted, err := r.reordering.PromoteTrackers(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("failed to promote trackers: %w", err)
	}
	if promoted > 0 {
		log.Info().Int64("promoted", promoted).Msg("tracker snapshots promoted to monitor")
	}
	return promoted, nil
}

// classificationFor resolves the subject's forecast-group period and ABC
// service class, falling back to weekly granularity and class C.
func (r *Recommender) classificationFor(ctx context.Context, key domain.ForecastKey) (domain.PeriodType, string) {
	historyPeriod := domain.PeriodWeekly
	serviceClass := "c"

	info, err := r.classification.GetClassificationInfo(ctx, key)
	if err != nil {
		log.Warn().Err(err).Int64("product_id", key.ProductID).Msg("classification info unavailable, using defaults")
		return historyPeriod, serviceClass
	}
	if info == nil {
		return historyPeriod, serviceClass
	}
	if pt := domain.PeriodType(info.ForecastGroup); pt.Valid() {
		historyPeriod = pt
	}
	if info.ServiceLevel != "" {
		serviceClass = strings.ToLower(info.ServiceLevel)
	}
	return historyPeriod, serviceClass
}

func (r *Recommender) serviceLevelPct(class string) float64 {
	switch class {
	case "a":
		return r.cfg.ServiceLevelA
	case "b":
		return r.cfg.ServiceLevelB
	default:
		return r.cfg.ServiceLevelC
	}
}
