// internal/daily/decomposer.go
package daily

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/stockwise/forecaster/internal/domain"
	"github.com/stockwise/forecaster/internal/period"
	"github.com/stockwise/forecaster/internal/repository"
)

// Decomposer expands period-bucketed adjustment lines into one row per
// calendar day, the substrate for lead-time-window aggregation.
type Decomposer struct {
	lines repository.AdjustmentRepository
	daily repository.DailyRepository
}

func New(lines repository.AdjustmentRepository, daily repository.DailyRepository) *Decomposer {
	return &Decomposer{lines: lines, daily: daily}
}

// Decompose rewrites the daily rows of the given lines and returns the
// number of rows written plus the distinct subjects touched, so the caller
// can trigger reordering recomputation for them.
//
// The daily value is adjust_value divided by the fixed day count of the
// period type (see period.DaysPerPeriod), spread over the line's actual
// calendar span. Existing rows are overwritten, never summed.
func (d *Decomposer) Decompose(ctx context.Context, lineIDs []int64) (int, []domain.ForecastKey, error) {
	lines, err := d.lines.LinesByIDs(ctx, lineIDs)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to load adjustment lines: %w", err)
	}

	written := 0
	seen := make(map[domain.ForecastKey]struct{})
	var touched []domain.ForecastKey

	for _, line := range lines {
		days, ok := period.DayCount(line.PeriodType)
		if !ok {
			log.Warn().Int64("line_id", line.ID).Str("period_type", string(line.PeriodType)).
				Msg("decompose: unknown period type, skipping line")
			continue
		}

		value := line.AdjustValue / float64(days)
		rows := make([]domain.DailyForecast, 0, days)
		for day := line.StartDate; !day.After(line.EndDate); day = day.AddDate(0, 0, 1) {
			rows = append(rows, domain.DailyForecast{
				LineID:      line.ID,
				ForecastKey: line.ForecastKey,
				Date:        day,
				Value:       value,
				Active:      true,
			})
		}

		if err := d.daily.ReplaceLineDays(ctx, line, rows); err != nil {
			return written, touched, fmt.Errorf("failed to replace daily rows for line %d: %w", line.ID, err)
		}
		written += len(rows)

		if _, dup := seen[line.ForecastKey]; !dup {
			seen[line.ForecastKey] = struct{}{}
			touched = append(touched, line.ForecastKey)
		}
	}

	log.Info().Int("lines", len(lines)).Int("daily_rows", written).Msg("daily decomposition done")
	return written, touched, nil
}
