package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stockwise/forecaster/internal/domain"
)

// AdjustmentRepository persists adjustment lines and their parent
// summaries. Lines are upserted by natural key so concurrent reconcilers
// of the same batch serialize on the unique index instead of racing.
type AdjustmentRepository struct {
	db *DB
}

func NewAdjustmentRepository(db *DB) *AdjustmentRepository {
	return &AdjustmentRepository{db: db}
}

const lineColumns = `
	id, product_id, company_id, warehouse_id, lot_stock_id, period_type,
	start_date, end_date, forecast_result, adjust_value, demand, demand_gap,
	fore_pub_time, forecast_result_id, summary_id, muted, created_at, updated_at`

func (r *AdjustmentRepository) LinesByKeys(ctx context.Context, keys []domain.LineKey) ([]*domain.AdjustmentLine, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	tuples := make([]string, 0, len(keys))
	args := make([]interface{}, 0, len(keys)*6)
	for i, key := range keys {
		base := i * 6
		tuples = append(tuples, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6))
		args = append(args, key.ProductID, key.CompanyID, key.WarehouseID, key.LotStockID, key.PeriodType, key.StartDate)
	}

	query := fmt.Sprintf(`
		SELECT %s FROM adjustment_lines
		WHERE (product_id, company_id, warehouse_id, lot_stock_id, period_type, start_date) IN (%s)
	`, lineColumns, strings.Join(tuples, ", "))

	var lines []*domain.AdjustmentLine
	if err := r.db.SelectContext(ctx, &lines, query, args...); err != nil {
		return nil, wrapDBError(err)
	}
	return lines, nil
}

func (r *AdjustmentRepository) UpsertLines(ctx context.Context, lines []*domain.AdjustmentLine) ([]int64, error) {
	if len(lines) == 0 {
		return nil, nil
	}

	query := `
		INSERT INTO adjustment_lines (
			product_id, company_id, warehouse_id, lot_stock_id, period_type,
			start_date, end_date, forecast_result, adjust_value, demand, demand_gap,
			fore_pub_time, forecast_result_id, summary_id, muted, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW())
		ON CONFLICT (product_id, company_id, warehouse_id, lot_stock_id, period_type, start_date)
		DO UPDATE SET
			end_date = EXCLUDED.end_date,
			forecast_result = EXCLUDED.forecast_result,
			adjust_value = EXCLUDED.adjust_value,
			demand = EXCLUDED.demand,
			demand_gap = EXCLUDED.demand_gap,
			fore_pub_time = EXCLUDED.fore_pub_time,
			forecast_result_id = EXCLUDED.forecast_result_id,
			summary_id = COALESCE(EXCLUDED.summary_id, adjustment_lines.summary_id),
			updated_at = NOW()
		RETURNING id
	`

	ids := make([]int64, 0, len(lines))
	err := r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		for _, line := range lines {
			var id int64
			err := tx.QueryRowContext(ctx, query,
				line.ProductID, line.CompanyID, line.WarehouseID, line.LotStockID, line.PeriodType,
				line.StartDate, line.EndDate, line.ForecastValue, line.AdjustValue, line.Demand, line.DemandGap,
				line.ForePubTime, line.ForecastResultID, line.SummaryID, line.Muted,
			).Scan(&id)
			if err != nil {
				return err
			}
			line.ID = id
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, wrapDBError(err)
	}
	return ids, nil
}

func (r *AdjustmentRepository) LinesForSubject(ctx context.Context, key domain.ForecastKey, periodType domain.PeriodType, from, to time.Time) ([]*domain.AdjustmentLine, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM adjustment_lines
		WHERE product_id = $1 AND company_id = $2 AND warehouse_id = $3 AND lot_stock_id = $4
		  AND period_type = $5 AND start_date >= $6 AND start_date <= $7
		ORDER BY start_date
	`, lineColumns)

	var lines []*domain.AdjustmentLine
	err := r.db.SelectContext(ctx, &lines, query,
		key.ProductID, key.CompanyID, key.WarehouseID, key.LotStockID, periodType, from, to)
	if err != nil {
		return nil, wrapDBError(err)
	}
	return lines, nil
}

func (r *AdjustmentRepository) LinesByIDs(ctx context.Context, ids []int64) ([]*domain.AdjustmentLine, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(fmt.Sprintf(`SELECT %s FROM adjustment_lines WHERE id IN (?)`, lineColumns), ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build lines query: %w", err)
	}
	query = r.db.Rebind(query)

	var lines []*domain.AdjustmentLine
	if err := r.db.SelectContext(ctx, &lines, query, args...); err != nil {
		return nil, wrapDBError(err)
	}
	return lines, nil
}

func (r *AdjustmentRepository) DetachAndMuteBefore(ctx context.Context, summaryID int64, before time.Time) (int64, error) {
	query := `
		UPDATE adjustment_lines
		SET summary_id = NULL, muted = TRUE, updated_at = NOW()
		WHERE summary_id = $1 AND start_date < $2
	`
	res, err := r.db.ExecContext(ctx, query, summaryID, before)
	if err != nil {
		return 0, wrapDBError(err)
	}
	return res.RowsAffected()
}

func (r *AdjustmentRepository) DetachAfter(ctx context.Context, summaryID int64, onOrAfter time.Time) (int64, error) {
	query := `
		UPDATE adjustment_lines
		SET summary_id = NULL, updated_at = NOW()
		WHERE summary_id = $1 AND start_date >= $2
	`
	res, err := r.db.ExecContext(ctx, query, summaryID, onOrAfter)
	if err != nil {
		return 0, wrapDBError(err)
	}
	return res.RowsAffected()
}

func (r *AdjustmentRepository) AttachWindow(ctx context.Context, summaryID int64, key domain.ForecastKey, periodType domain.PeriodType, from, to time.Time) (int64, error) {
	query := `
		UPDATE adjustment_lines
		SET summary_id = $1, muted = FALSE, updated_at = NOW()
		WHERE product_id = $2 AND company_id = $3 AND warehouse_id = $4 AND lot_stock_id = $5
		  AND period_type = $6 AND start_date >= $7 AND start_date < $8
		  AND (summary_id IS DISTINCT FROM $1 OR muted)
	`
	res, err := r.db.ExecContext(ctx, query, summaryID,
		key.ProductID, key.CompanyID, key.WarehouseID, key.LotStockID, periodType, from, to)
	if err != nil {
		return 0, wrapDBError(err)
	}
	return res.RowsAffected()
}

const summaryColumns = `
	id, product_id, company_id, warehouse_id, lot_stock_id, period_type,
	start_window, end_window, historical_series, forecast_series,
	last_update, last_receive_result`

func (r *AdjustmentRepository) GetOrCreateSummary(ctx context.Context, key domain.ForecastKey, periodType domain.PeriodType) (*domain.AdjustmentSummary, error) {
	insert := `
		INSERT INTO adjustment_summaries (product_id, company_id, warehouse_id, lot_stock_id, period_type)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (product_id, company_id, warehouse_id, lot_stock_id, period_type) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, insert,
		key.ProductID, key.CompanyID, key.WarehouseID, key.LotStockID, periodType); err != nil {
		return nil, wrapDBError(err)
	}

	query := fmt.Sprintf(`
		SELECT %s FROM adjustment_summaries
		WHERE product_id = $1 AND company_id = $2 AND warehouse_id = $3 AND lot_stock_id = $4
		  AND period_type = $5
	`, summaryColumns)

	summary := &domain.AdjustmentSummary{}
	err := r.db.GetContext(ctx, summary, query,
		key.ProductID, key.CompanyID, key.WarehouseID, key.LotStockID, periodType)
	if err != nil {
		return nil, wrapDBError(err)
	}
	return summary, nil
}

func (r *AdjustmentRepository) UpdateSummary(ctx context.Context, summary *domain.AdjustmentSummary) error {
	query := `
		UPDATE adjustment_summaries
		SET start_window = $1, end_window = $2, historical_series = $3,
		    forecast_series = $4, last_update = $5
		WHERE id = $6
	`
	_, err := r.db.ExecContext(ctx, query,
		summary.StartWindow, summary.EndWindow, summary.HistoricalSeries,
		summary.ForecastSeries, summary.LastUpdate, summary.ID)
	if err != nil {
		return wrapDBError(err)
	}
	return nil
}

func (r *AdjustmentRepository) ListSummaries(ctx context.Context) ([]*domain.AdjustmentSummary, error) {
	query := fmt.Sprintf(`SELECT %s FROM adjustment_summaries ORDER BY id`, summaryColumns)
	var summaries []*domain.AdjustmentSummary
	if err := r.db.SelectContext(ctx, &summaries, query); err != nil {
		return nil, wrapDBError(err)
	}
	return summaries, nil
}

func (r *AdjustmentRepository) TouchLastReceive(ctx context.Context, keys []domain.ForecastKey, periodType domain.PeriodType, at time.Time) error {
	if len(keys) == 0 {
		return nil
	}
	tuples := make([]string, 0, len(keys))
	args := []interface{}{at, periodType}
	for i, key := range keys {
		n := 2 + i*4
		tuples = append(tuples, fmt.Sprintf("($%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4))
		args = append(args, key.ProductID, key.CompanyID, key.WarehouseID, key.LotStockID)
	}
	query := fmt.Sprintf(`
		UPDATE adjustment_summaries
		SET last_receive_result = $1
		WHERE period_type = $2
		  AND (product_id, company_id, warehouse_id, lot_stock_id) IN (%s)
	`, strings.Join(tuples, ", "))

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return wrapDBError(err)
	}
	return nil
}

// GetSummary fetches one summary row, nil when absent.
func (r *AdjustmentRepository) GetSummary(ctx context.Context, key domain.ForecastKey, periodType domain.PeriodType) (*domain.AdjustmentSummary, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM adjustment_summaries
		WHERE product_id = $1 AND company_id = $2 AND warehouse_id = $3 AND lot_stock_id = $4
		  AND period_type = $5
	`, summaryColumns)

	summary := &domain.AdjustmentSummary{}
	err := r.db.GetContext(ctx, summary, query,
		key.ProductID, key.CompanyID, key.WarehouseID, key.LotStockID, periodType)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapDBError(err)
	}
	return summary, nil
}
