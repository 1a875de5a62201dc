// internal/service/tasks.go
package service

import (
	"time"

	"github.com/stockwise/forecaster/internal/domain"
)

// Task names shared by the dispatcher (inline execution) and the worker
// (queued execution). Both register the same handlers.
const (
	TaskReconcile      = "forecast.reconcile"
	TaskDecompose      = "forecast.decompose_daily"
	TaskRecommend      = "reordering.recommend"
	TaskRefreshWindows = "forecast.refresh_windows"
	TaskPromote        = "reordering.promote"
)

// ReconcilePayload identifies one publish batch to merge into the
// adjustment lines.
type ReconcilePayload struct {
	PubTime time.Time `json:"pub_time"`
	Level   string    `json:"level"`
}

// DecomposePayload names the adjustment lines whose daily rows need
// rewriting.
type DecomposePayload struct {
	LineIDs []int64 `json:"line_ids"`
}

// RecommendPayload names the subjects whose reordering suggestions need
// recomputation.
type RecommendPayload struct {
	Keys []domain.ForecastKey `json:"keys"`
}

// PromotePayload bounds which tracker snapshots get promoted to the
// monitor table.
type PromotePayload struct {
	Since time.Time `json:"since"`
}
