// internal/repository/reordering_repository.go
package repository

import (
	"context"
	"time"

	"github.com/stockwise/forecaster/internal/domain"
)

// ReorderingRepository owns the tracker snapshots and the monitor table
// downstream replenishment reads.
type ReorderingRepository interface {
	InsertTracker(ctx context.Context, tracker *domain.ReorderingTracker) error

	// PromoteTrackers upserts the newest tracker per subject since the
	// cutoff into the monitor table, refreshing only the *_forecast
	// suggestion columns. User-edited quantities are never touched.
	PromoteTrackers(ctx context.Context, since time.Time) (int64, error)

	GetMonitor(ctx context.Context, key domain.ForecastKey) (*domain.ReorderingMonitor, error)
	ListMonitors(ctx context.Context, companyID int64, limit, offset int) ([]*domain.ReorderingMonitor, error)

	// UpdateMonitorQuantities records a user edit of the reordering
	// quantities. Callers validate min <= max before persisting.
	UpdateMonitorQuantities(ctx context.Context, key domain.ForecastKey, minQty, maxQty, safetyStock *float64) error
}
