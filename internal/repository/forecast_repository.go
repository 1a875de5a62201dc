// internal/repository/forecast_repository.go
package repository

import (
	"context"
	"time"

	"github.com/stockwise/forecaster/internal/domain"
	"github.com/stockwise/forecaster/internal/level"
)

// ResultRepository is the upsert store for engine result snapshots. Every
// upsert is a single batched INSERT ... ON CONFLICT on the strategy's
// conflict columns; the incoming record wins outright for non-key columns.
type ResultRepository interface {
	UpsertForecastResults(ctx context.Context, strat level.Strategy, results []domain.ForecastResult) error
	UpsertDemandClassifications(ctx context.Context, strat level.Strategy, results []domain.DemandClassificationResult) error
	UpsertServiceLevels(ctx context.Context, strat level.Strategy, results []domain.ServiceLevelResult) error
	UpsertSummarizeResults(ctx context.Context, strat level.Strategy, results []domain.SummarizeResult) error

	// ForecastResultsByPubTime returns the snapshots of one publish batch.
	ForecastResultsByPubTime(ctx context.Context, pubTime time.Time) ([]domain.ForecastResult, error)

	// SummarizedDemand returns actual-demand buckets for a subject in
	// [from, to], ordered by start date.
	SummarizedDemand(ctx context.Context, key domain.ForecastKey, periodType domain.PeriodType, from, to time.Time) ([]domain.SummarizeResult, error)

	// DemandHistory returns the most recent n summarized demand values for
	// a subject, oldest first.
	DemandHistory(ctx context.Context, key domain.ForecastKey, periodType domain.PeriodType, points int) ([]float64, error)
}

// ClassificationRepository reads and maintains the per-subject
// classification truth.
type ClassificationRepository interface {
	LatestApprovedDemandClass(ctx context.Context, key domain.ForecastKey) (*domain.DemandClassificationResult, error)
	LatestApprovedServiceLevel(ctx context.Context, key domain.ForecastKey) (*domain.ServiceLevelResult, error)
	UpsertClassificationInfo(ctx context.Context, info *domain.ProductClassificationInfo) error
	GetClassificationInfo(ctx context.Context, key domain.ForecastKey) (*domain.ProductClassificationInfo, error)
}

// ProductRepository exposes the replenishment attributes of products.
type ProductRepository interface {
	ProductsByIDs(ctx context.Context, ids []int64) (map[int64]domain.Product, error)
}

// OrderRepository exposes order history for the quiet-hour estimator.
type OrderRepository interface {
	OrderTimesSince(ctx context.Context, since time.Time) ([]time.Time, error)
}
