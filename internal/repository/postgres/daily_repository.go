package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stockwise/forecaster/internal/domain"
)

// DailyRepository persists the decomposed daily forecast rows. The
// deactivate/rewrite/reactivate swap runs inside one transaction so a
// reader of active rows never observes a half-written window; dates that
// fall out of a shrinking line simply stay inactive.
type DailyRepository struct {
	db *DB
}

func NewDailyRepository(db *DB) *DailyRepository {
	return &DailyRepository{db: db}
}

func (r *DailyRepository) ReplaceLineDays(ctx context.Context, line *domain.AdjustmentLine, rows []domain.DailyForecast) error {
	deactivate := `UPDATE daily_forecasts SET active = FALSE WHERE adjust_line_id = $1`
	upsert := `
		INSERT INTO daily_forecasts (
			adjust_line_id, product_id, company_id, warehouse_id, lot_stock_id,
			date, value, active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
		ON CONFLICT (adjust_line_id, date) DO UPDATE SET
			value = EXCLUDED.value,
			active = TRUE
	`

	err := r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, deactivate, line.ID); err != nil {
			return err
		}
		for _, row := range rows {
			_, err := tx.ExecContext(ctx, upsert,
				line.ID, row.ProductID, row.CompanyID, row.WarehouseID, row.LotStockID,
				row.Date, row.Value)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return wrapDBError(err)
	}
	return nil
}

func (r *DailyRepository) SumActiveRange(ctx context.Context, key domain.ForecastKey, from, to time.Time) (float64, error) {
	query := `
		SELECT COALESCE(SUM(value), 0)
		FROM daily_forecasts
		WHERE product_id = $1 AND company_id = $2 AND warehouse_id = $3 AND lot_stock_id = $4
		  AND active AND date >= $5 AND date <= $6
	`
	var sum float64
	err := r.db.GetContext(ctx, &sum, query,
		key.ProductID, key.CompanyID, key.WarehouseID, key.LotStockID, from, to)
	if err != nil {
		return 0, wrapDBError(err)
	}
	return sum, nil
}
