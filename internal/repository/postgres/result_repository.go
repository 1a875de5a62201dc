package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stockwise/forecaster/internal/domain"
	"github.com/stockwise/forecaster/internal/level"
)

// ResultRepository is the postgres upsert store for engine result
// snapshots. Every upsert is one batched INSERT ... ON CONFLICT on the
// forecast-level strategy's conflict columns; the incoming record wins
// outright for all non-key columns.
type ResultRepository struct {
	db *DB
}

func NewResultRepository(db *DB) *ResultRepository {
	return &ResultRepository{db: db}
}

func (r *ResultRepository) UpsertForecastResults(ctx context.Context, strat level.Strategy, results []domain.ForecastResult) error {
	if len(results) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
		INSERT INTO forecast_results (
			product_id, company_id, warehouse_id, lot_stock_id, algorithm,
			period_type, start_date, end_date, pub_time,
			forecast_result, upper_1, upper_2, lower_1, lower_2
		) VALUES (
			:product_id, :company_id, :warehouse_id, :lot_stock_id, :algorithm,
			:period_type, :start_date, :end_date, :pub_time,
			:forecast_result, :upper_1, :upper_2, :lower_1, :lower_2
		)
		ON CONFLICT (%s) DO UPDATE SET
			algorithm = EXCLUDED.algorithm,
			end_date = EXCLUDED.end_date,
			forecast_result = EXCLUDED.forecast_result,
			upper_1 = EXCLUDED.upper_1,
			upper_2 = EXCLUDED.upper_2,
			lower_1 = EXCLUDED.lower_1,
			lower_2 = EXCLUDED.lower_2
	`, strings.Join(strat.ConflictColumns(level.KindForecastResult), ", "))

	_, err := r.db.NamedExecContext(ctx, query, results)
	if err != nil {
		return wrapDBError(err)
	}
	return nil
}

func (r *ResultRepository) UpsertDemandClassifications(ctx context.Context, strat level.Strategy, results []domain.DemandClassificationResult) error {
	if len(results) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
		INSERT INTO demand_classification_results (
			product_id, company_id, warehouse_id, lot_stock_id,
			demand_type, pub_time, has_approved
		) VALUES (
			:product_id, :company_id, :warehouse_id, :lot_stock_id,
			:demand_type, :pub_time, :has_approved
		)
		ON CONFLICT (%s) DO UPDATE SET
			demand_type = EXCLUDED.demand_type,
			has_approved = EXCLUDED.has_approved
	`, strings.Join(strat.ConflictColumns(level.KindDemandClassification), ", "))

	_, err := r.db.NamedExecContext(ctx, query, results)
	if err != nil {
		return wrapDBError(err)
	}
	return nil
}

func (r *ResultRepository) UpsertServiceLevels(ctx context.Context, strat level.Strategy, results []domain.ServiceLevelResult) error {
	if len(results) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
		INSERT INTO service_level_results (
			product_id, company_id, warehouse_id, lot_stock_id,
			service_level, pub_time, has_approved
		) VALUES (
			:product_id, :company_id, :warehouse_id, :lot_stock_id,
			:service_level, :pub_time, :has_approved
		)
		ON CONFLICT (%s) DO UPDATE SET
			service_level = EXCLUDED.service_level,
			has_approved = EXCLUDED.has_approved
	`, strings.Join(strat.ConflictColumns(level.KindServiceLevel), ", "))

	_, err := r.db.NamedExecContext(ctx, query, results)
	if err != nil {
		return wrapDBError(err)
	}
	return nil
}

func (r *ResultRepository) UpsertSummarizeResults(ctx context.Context, strat level.Strategy, results []domain.SummarizeResult) error {
	if len(results) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
		INSERT INTO summarize_results (
			product_id, company_id, warehouse_id, lot_stock_id,
			period_type, start_date, end_date, pub_time, summarize_value
		) VALUES (
			:product_id, :company_id, :warehouse_id, :lot_stock_id,
			:period_type, :start_date, :end_date, :pub_time, :summarize_value
		)
		ON CONFLICT (%s) DO UPDATE SET
			end_date = EXCLUDED.end_date,
			pub_time = EXCLUDED.pub_time,
			summarize_value = EXCLUDED.summarize_value
	`, strings.Join(strat.ConflictColumns(level.KindSummarizeResult), ", "))

	_, err := r.db.NamedExecContext(ctx, query, results)
	if err != nil {
		return wrapDBError(err)
	}
	return nil
}

func (r *ResultRepository) ForecastResultsByPubTime(ctx context.Context, pubTime time.Time) ([]domain.ForecastResult, error) {
	query := `
		SELECT id, product_id, company_id, warehouse_id, lot_stock_id, algorithm,
		       period_type, start_date, end_date, pub_time,
		       forecast_result, upper_1, upper_2, lower_1, lower_2, created_at
		FROM forecast_results
		WHERE pub_time = $1
		ORDER BY product_id, start_date
	`
	var results []domain.ForecastResult
	if err := r.db.SelectContext(ctx, &results, query, pubTime); err != nil {
		return nil, wrapDBError(err)
	}
	return results, nil
}

func (r *ResultRepository) SummarizedDemand(ctx context.Context, key domain.ForecastKey, periodType domain.PeriodType, from, to time.Time) ([]domain.SummarizeResult, error) {
	query := `
		SELECT id, product_id, company_id, warehouse_id, lot_stock_id,
		       period_type, start_date, end_date, pub_time, summarize_value, created_at
		FROM summarize_results
		WHERE product_id = $1 AND company_id = $2 AND warehouse_id = $3 AND lot_stock_id = $4
		  AND period_type = $5 AND start_date >= $6 AND start_date <= $7
		ORDER BY start_date
	`
	var results []domain.SummarizeResult
	err := r.db.SelectContext(ctx, &results, query,
		key.ProductID, key.CompanyID, key.WarehouseID, key.LotStockID, periodType, from, to)
	if err != nil {
		return nil, wrapDBError(err)
	}
	return results, nil
}

func (r *ResultRepository) DemandHistory(ctx context.Context, key domain.ForecastKey, periodType domain.PeriodType, points int) ([]float64, error) {
	query := `
		SELECT summarize_value FROM summarize_results
		WHERE product_id = $1 AND company_id = $2 AND warehouse_id = $3 AND lot_stock_id = $4
		  AND period_type = $5
		ORDER BY start_date DESC
		LIMIT $6
	`
	var values []float64
	err := r.db.SelectContext(ctx, &values, query,
		key.ProductID, key.CompanyID, key.WarehouseID, key.LotStockID, periodType, points)
	if err != nil {
		return nil, wrapDBError(err)
	}
	// Newest-first from the query; callers want oldest-first.
	for i, j := 0, len(values)-1; i < j; i, j = i+1, j-1 {
		values[i], values[j] = values[j], values[i]
	}
	return values, nil
}
