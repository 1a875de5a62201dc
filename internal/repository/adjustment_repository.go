// internal/repository/adjustment_repository.go
package repository

import (
	"context"
	"time"

	"github.com/stockwise/forecaster/internal/domain"
)

// AdjustmentRepository owns adjustment lines and their parent summaries.
type AdjustmentRepository interface {
	// LinesByKeys fetches existing lines for the given natural keys.
	LinesByKeys(ctx context.Context, keys []domain.LineKey) ([]*domain.AdjustmentLine, error)

	// UpsertLines writes lines keyed by natural key and returns the ids of
	// every written line, in input order.
	UpsertLines(ctx context.Context, lines []*domain.AdjustmentLine) ([]int64, error)

	// LinesForSubject returns lines for one subject and period type with
	// start_date in [from, to], ordered by start date.
	LinesForSubject(ctx context.Context, key domain.ForecastKey, periodType domain.PeriodType, from, to time.Time) ([]*domain.AdjustmentLine, error)

	// LinesByIDs fetches lines by id.
	LinesByIDs(ctx context.Context, ids []int64) ([]*domain.AdjustmentLine, error)

	// DetachAndMuteBefore detaches lines of a summary whose bucket starts
	// before the window and marks them muted history.
	DetachAndMuteBefore(ctx context.Context, summaryID int64, before time.Time) (int64, error)

	// DetachAfter detaches lines of a summary whose bucket starts on or
	// after the window end. Unlike past-side detachment the lines are not
	// muted; they re-attach when the window grows again.
	DetachAfter(ctx context.Context, summaryID int64, onOrAfter time.Time) (int64, error)

	// AttachWindow parents every unattached line of the subject inside
	// [from, to) to the summary.
	AttachWindow(ctx context.Context, summaryID int64, key domain.ForecastKey, periodType domain.PeriodType, from, to time.Time) (int64, error)

	GetOrCreateSummary(ctx context.Context, key domain.ForecastKey, periodType domain.PeriodType) (*domain.AdjustmentSummary, error)

	// GetSummary returns the summary for one (subject, period_type), or nil
	// when none exists.
	GetSummary(ctx context.Context, key domain.ForecastKey, periodType domain.PeriodType) (*domain.AdjustmentSummary, error)
	UpdateSummary(ctx context.Context, summary *domain.AdjustmentSummary) error
	ListSummaries(ctx context.Context) ([]*domain.AdjustmentSummary, error)
	TouchLastReceive(ctx context.Context, keys []domain.ForecastKey, periodType domain.PeriodType, at time.Time) error
}

// DailyRepository owns the decomposed daily forecast rows.
type DailyRepository interface {
	// ReplaceLineDays swaps the daily rows of one line inside a single
	// transaction: deactivate, upsert by (line, date), reactivate. A reader
	// of active rows never sees a half-written window.
	ReplaceLineDays(ctx context.Context, line *domain.AdjustmentLine, rows []domain.DailyForecast) error

	// SumActiveRange sums active daily values for a subject over [from, to].
	SumActiveRange(ctx context.Context, key domain.ForecastKey, from, to time.Time) (float64, error)
}
