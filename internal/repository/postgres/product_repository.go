package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stockwise/forecaster/internal/domain"
)

// ProductRepository reads the replenishment attributes mirrored from the
// host ERP.
type ProductRepository struct {
	db *DB
}

func NewProductRepository(db *DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) ProductsByIDs(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	out := make(map[int64]domain.Product)
	if len(ids) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`
		SELECT id, sku, name, uom_rounding, lead_time_days, unit_cost
		FROM products
		WHERE id IN (?)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build products query: %w", err)
	}
	query = r.db.Rebind(query)

	var products []domain.Product
	if err := r.db.SelectContext(ctx, &products, query, args...); err != nil {
		return nil, wrapDBError(err)
	}
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

// OrderRepository reads mirrored order history for the quiet-hour
// estimator.
type OrderRepository struct {
	db *DB
}

func NewOrderRepository(db *DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) OrderTimesSince(ctx context.Context, since time.Time) ([]time.Time, error) {
	query := `SELECT order_time FROM orders WHERE order_time >= $1 ORDER BY order_time`
	var times []time.Time
	if err := r.db.SelectContext(ctx, &times, query, since); err != nil {
		return nil, wrapDBError(err)
	}
	return times, nil
}
