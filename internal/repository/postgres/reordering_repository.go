package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/stockwise/forecaster/internal/domain"
)

// ReorderingRepository persists tracker snapshots and the monitor table.
type ReorderingRepository struct {
	db *DB
}

func NewReorderingRepository(db *DB) *ReorderingRepository {
	return &ReorderingRepository{db: db}
}

func (r *ReorderingRepository) InsertTracker(ctx context.Context, tracker *domain.ReorderingTracker) error {
	query := `
		INSERT INTO reordering_trackers (
			product_id, company_id, warehouse_id, lot_stock_id,
			new_min_forecast, new_max_forecast, new_safety_stock_forecast
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		tracker.ProductID, tracker.CompanyID, tracker.WarehouseID, tracker.LotStockID,
		tracker.MinForecast, tracker.MaxForecast, tracker.SafetyStockForecast,
	).Scan(&tracker.ID, &tracker.CreatedAt)
	if err != nil {
		return wrapDBError(err)
	}
	return nil
}

// PromoteTrackers upserts the newest tracker per subject since the cutoff
// into the monitor table. Only the *_forecast suggestion columns are
// refreshed; the user-owned new_min_qty/new_max_qty/new_safety_stock
// columns are never touched by promotion.
func (r *ReorderingRepository) PromoteTrackers(ctx context.Context, since time.Time) (int64, error) {
	query := `
		INSERT INTO reordering_monitors (
			product_id, company_id, warehouse_id, lot_stock_id,
			new_min_forecast, new_max_forecast, new_safety_stock_forecast, updated_at
		)
		SELECT DISTINCT ON (product_id, company_id, warehouse_id, lot_stock_id)
			product_id, company_id, warehouse_id, lot_stock_id,
			new_min_forecast, new_max_forecast, new_safety_stock_forecast, NOW()
		FROM reordering_trackers
		WHERE created_at >= $1
		ORDER BY product_id, company_id, warehouse_id, lot_stock_id, created_at DESC
		ON CONFLICT (product_id, company_id, warehouse_id, lot_stock_id) DO UPDATE SET
			new_min_forecast = EXCLUDED.new_min_forecast,
			new_max_forecast = EXCLUDED.new_max_forecast,
			new_safety_stock_forecast = EXCLUDED.new_safety_stock_forecast,
			updated_at = NOW()
	`
	res, err := r.db.ExecContext(ctx, query, since)
	if err != nil {
		return 0, wrapDBError(err)
	}
	return res.RowsAffected()
}

const monitorColumns = `
	id, product_id, company_id, warehouse_id, lot_stock_id,
	new_min_forecast, new_max_forecast, new_safety_stock_forecast,
	new_min_qty, new_max_qty, new_safety_stock, updated_at`

func (r *ReorderingRepository) GetMonitor(ctx context.Context, key domain.ForecastKey) (*domain.ReorderingMonitor, error) {
	query := `
		SELECT ` + monitorColumns + `
		FROM reordering_monitors
		WHERE product_id = $1 AND company_id = $2 AND warehouse_id = $3 AND lot_stock_id = $4
	`
	monitor := &domain.ReorderingMonitor{}
	err := r.db.GetContext(ctx, monitor, query,
		key.ProductID, key.CompanyID, key.WarehouseID, key.LotStockID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapDBError(err)
	}
	return monitor, nil
}

func (r *ReorderingRepository) ListMonitors(ctx context.Context, companyID int64, limit, offset int) ([]*domain.ReorderingMonitor, error) {
	query := `
		SELECT ` + monitorColumns + `
		FROM reordering_monitors
		WHERE company_id = $1
		ORDER BY product_id, warehouse_id
		LIMIT $2 OFFSET $3
	`
	var monitors []*domain.ReorderingMonitor
	if err := r.db.SelectContext(ctx, &monitors, query, companyID, limit, offset); err != nil {
		return nil, wrapDBError(err)
	}
	return monitors, nil
}

func (r *ReorderingRepository) UpdateMonitorQuantities(ctx context.Context, key domain.ForecastKey, minQty, maxQty, safetyStock *float64) error {
	query := `
		UPDATE reordering_monitors
		SET new_min_qty = COALESCE($1, new_min_qty),
		    new_max_qty = COALESCE($2, new_max_qty),
		    new_safety_stock = COALESCE($3, new_safety_stock),
		    updated_at = NOW()
		WHERE product_id = $4 AND company_id = $5 AND warehouse_id = $6 AND lot_stock_id = $7
	`
	res, err := r.db.ExecContext(ctx, query, minQty, maxQty, safetyStock,
		key.ProductID, key.CompanyID, key.WarehouseID, key.LotStockID)
	if err != nil {
		return wrapDBError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return wrapDBError(err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
