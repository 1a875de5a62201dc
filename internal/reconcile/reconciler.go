// internal/reconcile/reconciler.go
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/stockwise/forecaster/internal/config"
	"github.com/stockwise/forecaster/internal/domain"
	"github.com/stockwise/forecaster/internal/level"
	"github.com/stockwise/forecaster/internal/period"
	"github.com/stockwise/forecaster/internal/repository"
)

// Reconciler merges newly published forecast results into the mutable
// adjustment lines and maintains the rolling summary windows.
type Reconciler struct {
	results  repository.ResultRepository
	lines    repository.AdjustmentRepository
	products repository.ProductRepository
	cfg      config.ForecastingConfig
}

func New(results repository.ResultRepository, lines repository.AdjustmentRepository, products repository.ProductRepository, cfg config.ForecastingConfig) *Reconciler {
	return &Reconciler{results: results, lines: lines, products: products, cfg: cfg}
}

// Reconcile applies one publish batch to the adjustment lines and returns
// the ids of every written line.
//
// Rules, per line:
//   - an incoming batch older than the line's applied watermark is skipped;
//     late deliveries never regress a line
//   - re-delivery of the same pub_time is a plain overwrite (last write
//     wins), never additive
//   - a newer pub_time overwrites the forecast value; a user's manual
//     adjustment delta is carried over on top of the new value
//   - values are clamped to >= 0 and rounded to the product's UoM rounding
//     increment on every write path
func (r *Reconciler) Reconcile(ctx context.Context, pubTime time.Time, levelName string) ([]int64, error) {
	strat, err := level.Get(levelName)
	if err != nil {
		return nil, err
	}

	results, err := r.results.ForecastResultsByPubTime(ctx, pubTime)
	if err != nil {
		return nil, fmt.Errorf("failed to load forecast results for batch: %w", err)
	}
	if len(results) == 0 {
		log.Debug().Time("pub_time", pubTime).Msg("reconcile: empty batch")
		return nil, nil
	}

	keys := make([]domain.LineKey, 0, len(results))
	productIDs := make([]int64, 0, len(results))
	for i := range results {
		results[i].ForecastKey = strat.Normalize(results[i].ForecastKey)
		keys = append(keys, domain.LineKey{
			ForecastKey: results[i].ForecastKey,
			PeriodType:  results[i].PeriodType,
			StartDate:   results[i].StartDate,
		})
		productIDs = append(productIDs, results[i].ProductID)
	}

	existing, err := r.lines.LinesByKeys(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to load adjustment lines: %w", err)
	}
	byKey := make(map[domain.LineKey]*domain.AdjustmentLine, len(existing))
	for _, line := range existing {
		byKey[line.Key()] = line
	}

	products, err := r.products.ProductsByIDs(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	now := time.Now().UTC()
	writes := make([]*domain.AdjustmentLine, 0, len(results))
	for i := range results {
		res := &results[i]
		product, known := products[res.ProductID]
		if !known {
			log.Warn().
				Int64("product_id", res.ProductID).
				Time("pub_time", pubTime).
				Msg("reconcile: product not mirrored, no UoM rounding applied")
		}
		newValue := domain.RoundToUoM(domain.ClampNonNegative(res.Value), product.UoMRounding)

		line, ok := byKey[keys[i]]
		if !ok {
			line = &domain.AdjustmentLine{
				ForecastKey:   res.ForecastKey,
				PeriodType:    res.PeriodType,
				StartDate:     res.StartDate,
				EndDate:       res.EndDate,
				ForecastValue: newValue,
				AdjustValue:   newValue,
				CreatedAt:     now,
			}
		} else {
			if line.ForePubTime != nil && pubTime.Before(*line.ForePubTime) {
				log.Warn().
					Time("pub_time", pubTime).
					Time("applied_pub_time", *line.ForePubTime).
					Int64("product_id", res.ProductID).
					Msg("reconcile: stale batch for line, skipping")
				continue
			}
			// Carry any manual adjustment delta over onto the new forecast.
			delta := line.AdjustValue - line.ForecastValue
			line.ForecastValue = newValue
			line.AdjustValue = domain.RoundToUoM(domain.ClampNonNegative(newValue+delta), product.UoMRounding)
		}
		pt := pubTime
		line.ForePubTime = &pt
		if res.ID != 0 {
			id := res.ID
			line.ForecastResultID = &id
		}
		line.DemandGap = line.Demand - line.ForecastValue
		line.UpdatedAt = now
		writes = append(writes, line)
	}

	if len(writes) == 0 {
		return nil, nil
	}

	ids, err := r.lines.UpsertLines(ctx, writes)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert adjustment lines: %w", err)
	}

	if err := r.ensureSummaries(ctx, writes, pubTime); err != nil {
		return nil, err
	}

	log.Info().Time("pub_time", pubTime).Int("lines", len(ids)).Msg("reconcile: batch applied")
	return ids, nil
}

// ensureSummaries guarantees a parent summary exists for every touched
// (subject, period_type) pair and stamps the receive time used by the
// scheduled refresh.
func (r *Reconciler) ensureSummaries(ctx context.Context, writes []*domain.AdjustmentLine, pubTime time.Time) error {
	type pair struct {
		key domain.ForecastKey
		pt  domain.PeriodType
	}
	seen := make(map[pair]struct{})
	byPeriod := make(map[domain.PeriodType][]domain.ForecastKey)
	for _, line := range writes {
		p := pair{key: line.ForecastKey, pt: line.PeriodType}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		if _, err := r.lines.GetOrCreateSummary(ctx, line.ForecastKey, line.PeriodType); err != nil {
			return fmt.Errorf("failed to ensure adjustment summary: %w", err)
		}
		byPeriod[line.PeriodType] = append(byPeriod[line.PeriodType], line.ForecastKey)
	}
	for pt, keys := range byPeriod {
		if err := r.lines.TouchLastReceive(ctx, keys, pt, pubTime); err != nil {
			return fmt.Errorf("failed to stamp last receive time: %w", err)
		}
	}
	return nil
}

// UpdateWindows slides every summary's rolling window to
// [now - past_periods, now + future_periods), detaching and muting lines
// that fell out of the window, attaching new ones, backfilling placeholder
// lines for past buckets that have recorded actuals but no engine output,
// and recomputing the chart series.
func (r *Reconciler) UpdateWindows(ctx context.Context, now time.Time) error {
	summaries, err := r.lines.ListSummaries(ctx)
	if err != nil {
		return fmt.Errorf("failed to list summaries: %w", err)
	}

	for _, summary := range summaries {
		if err := r.updateWindow(ctx, summary, now); err != nil {
			return fmt.Errorf("failed to update window for summary %d: %w", summary.ID, err)
		}
	}
	return nil
}

func (r *Reconciler) updateWindow(ctx context.Context, summary *domain.AdjustmentSummary, now time.Time) error {
	bucketStart, _ := period.BucketBounds(now, summary.PeriodType)
	windowStart := period.Shift(bucketStart, summary.PeriodType, -r.cfg.PastPeriods)
	windowEnd := period.Shift(bucketStart, summary.PeriodType, r.cfg.FuturePeriods)

	muted, err := r.lines.DetachAndMuteBefore(ctx, summary.ID, windowStart)
	if err != nil {
		return err
	}
	if muted > 0 {
		log.Debug().Int64("summary_id", summary.ID).Int64("muted", muted).Msg("window slide muted history lines")
	}
	// A shrunken future bound strands lines attached under the wider
	// window; detach them without muting so they re-attach if it grows.
	detached, err := r.lines.DetachAfter(ctx, summary.ID, windowEnd)
	if err != nil {
		return err
	}
	if detached > 0 {
		log.Debug().Int64("summary_id", summary.ID).Int64("detached", detached).Msg("window slide detached future lines")
	}
	if _, err := r.lines.AttachWindow(ctx, summary.ID, summary.ForecastKey, summary.PeriodType, windowStart, windowEnd); err != nil {
		return err
	}

	if err := r.backfillActuals(ctx, summary, windowStart, bucketStart); err != nil {
		return err
	}

	lines, err := r.lines.LinesForSubject(ctx, summary.ForecastKey, summary.PeriodType, windowStart, windowEnd)
	if err != nil {
		return err
	}

	historical := make([]domain.SeriesPoint, 0, r.cfg.PastPeriods)
	future := make([]domain.SeriesPoint, 0, r.cfg.FuturePeriods)
	byStart := make(map[string]*domain.AdjustmentLine, len(lines))
	for _, line := range lines {
		byStart[line.StartDate.Format("2006-01-02")] = line
	}
	for _, bucket := range period.Sequence(windowStart, period.Shift(windowEnd, summary.PeriodType, -1), summary.PeriodType) {
		date := bucket.Start.Format("2006-01-02")
		var demand, adjust float64
		if line, ok := byStart[date]; ok {
			demand, adjust = line.Demand, line.AdjustValue
		}
		if bucket.Start.Before(bucketStart) {
			historical = append(historical, domain.SeriesPoint{Date: date, Value: demand})
		} else {
			future = append(future, domain.SeriesPoint{Date: date, Value: adjust})
		}
	}

	histJSON, err := json.Marshal(historical)
	if err != nil {
		return err
	}
	futJSON, err := json.Marshal(future)
	if err != nil {
		return err
	}

	stamp := now.UTC()
	summary.StartWindow = windowStart
	summary.EndWindow = windowEnd
	summary.HistoricalSeries = histJSON
	summary.ForecastSeries = futJSON
	summary.LastUpdate = &stamp
	return r.lines.UpdateSummary(ctx, summary)
}

// backfillActuals creates placeholder lines for past buckets where actual
// demand was summarized but no forecast ever arrived, and refreshes the
// demand columns of lines that do exist.
func (r *Reconciler) backfillActuals(ctx context.Context, summary *domain.AdjustmentSummary, windowStart, bucketStart time.Time) error {
	actuals, err := r.results.SummarizedDemand(ctx, summary.ForecastKey, summary.PeriodType, windowStart, bucketStart)
	if err != nil {
		return err
	}
	if len(actuals) == 0 {
		return nil
	}

	lines, err := r.lines.LinesForSubject(ctx, summary.ForecastKey, summary.PeriodType, windowStart, bucketStart)
	if err != nil {
		return err
	}
	byStart := make(map[string]*domain.AdjustmentLine, len(lines))
	for _, line := range lines {
		byStart[line.StartDate.Format("2006-01-02")] = line
	}

	now := time.Now().UTC()
	var writes []*domain.AdjustmentLine
	for i := range actuals {
		actual := &actuals[i]
		demand := domain.ClampNonNegative(actual.Value)
		if line, ok := byStart[actual.StartDate.Format("2006-01-02")]; ok {
			if line.Demand == demand {
				continue
			}
			line.Demand = demand
			line.DemandGap = demand - line.ForecastValue
			line.UpdatedAt = now
			writes = append(writes, line)
			continue
		}
		writes = append(writes, &domain.AdjustmentLine{
			ForecastKey: summary.ForecastKey,
			PeriodType:  summary.PeriodType,
			StartDate:   actual.StartDate,
			EndDate:     actual.EndDate,
			Demand:      demand,
			DemandGap:   demand,
			SummaryID:   &summary.ID,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	if len(writes) == 0 {
		return nil
	}
	_, err = r.lines.UpsertLines(ctx, writes)
	return err
}
