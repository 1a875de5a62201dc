package postgres

import (
	"context"
	"database/sql"

	"github.com/stockwise/forecaster/internal/domain"
)

// ClassificationRepository reads classification snapshots and maintains
// the per-subject current-truth row.
type ClassificationRepository struct {
	db *DB
}

func NewClassificationRepository(db *DB) *ClassificationRepository {
	return &ClassificationRepository{db: db}
}

func (r *ClassificationRepository) LatestApprovedDemandClass(ctx context.Context, key domain.ForecastKey) (*domain.DemandClassificationResult, error) {
	query := `
		SELECT id, product_id, company_id, warehouse_id, lot_stock_id,
		       demand_type, pub_time, has_approved, created_at
		FROM demand_classification_results
		WHERE product_id = $1 AND company_id = $2 AND warehouse_id = $3 AND lot_stock_id = $4
		  AND has_approved
		ORDER BY pub_time DESC
		LIMIT 1
	`
	result := &domain.DemandClassificationResult{}
	err := r.db.GetContext(ctx, result, query,
		key.ProductID, key.CompanyID, key.WarehouseID, key.LotStockID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapDBError(err)
	}
	return result, nil
}

func (r *ClassificationRepository) LatestApprovedServiceLevel(ctx context.Context, key domain.ForecastKey) (*domain.ServiceLevelResult, error) {
	query := `
		SELECT id, product_id, company_id, warehouse_id, lot_stock_id,
		       service_level, pub_time, has_approved, created_at
		FROM service_level_results
		WHERE product_id = $1 AND company_id = $2 AND warehouse_id = $3 AND lot_stock_id = $4
		  AND has_approved
		ORDER BY pub_time DESC
		LIMIT 1
	`
	result := &domain.ServiceLevelResult{}
	err := r.db.GetContext(ctx, result, query,
		key.ProductID, key.CompanyID, key.WarehouseID, key.LotStockID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapDBError(err)
	}
	return result, nil
}

func (r *ClassificationRepository) UpsertClassificationInfo(ctx context.Context, info *domain.ProductClassificationInfo) error {
	query := `
		INSERT INTO product_classification_infos (
			product_id, company_id, warehouse_id, lot_stock_id,
			demand_type, service_level, forecast_group,
			actual_demand_id, actual_service_level_id, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (product_id, company_id, warehouse_id, lot_stock_id) DO UPDATE SET
			demand_type = EXCLUDED.demand_type,
			service_level = EXCLUDED.service_level,
			forecast_group = EXCLUDED.forecast_group,
			actual_demand_id = EXCLUDED.actual_demand_id,
			actual_service_level_id = EXCLUDED.actual_service_level_id,
			updated_at = NOW()
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		info.ProductID, info.CompanyID, info.WarehouseID, info.LotStockID,
		info.DemandType, info.ServiceLevel, info.ForecastGroup,
		info.ActualDemandID, info.ActualServiceLevelID,
	).Scan(&info.ID)
	if err != nil {
		return wrapDBError(err)
	}
	return nil
}

func (r *ClassificationRepository) GetClassificationInfo(ctx context.Context, key domain.ForecastKey) (*domain.ProductClassificationInfo, error) {
	query := `
		SELECT id, product_id, company_id, warehouse_id, lot_stock_id,
		       demand_type, service_level, forecast_group,
		       actual_demand_id, actual_service_level_id, updated_at
		FROM product_classification_infos
		WHERE product_id = $1 AND company_id = $2 AND warehouse_id = $3 AND lot_stock_id = $4
	`
	info := &domain.ProductClassificationInfo{}
	err := r.db.GetContext(ctx, info, query,
		key.ProductID, key.CompanyID, key.WarehouseID, key.LotStockID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapDBError(err)
	}
	return info, nil
}
