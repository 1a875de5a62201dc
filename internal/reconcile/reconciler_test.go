package reconcile

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stockwise/forecaster/internal/config"
	"github.com/stockwise/forecaster/internal/domain"
	"github.com/stockwise/forecaster/internal/level"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResults struct {
	results []domain.ForecastResult
	actuals []domain.SummarizeResult
}

func (f *fakeResults) UpsertForecastResults(ctx context.Context, strat level.Strategy, results []domain.ForecastResult) error {
	f.results = append(f.results, results...)
	return nil
}

func (f *fakeResults) UpsertDemandClassifications(ctx context.Context, strat level.Strategy, results []domain.DemandClassificationResult) error {
	return nil
}

func (f *fakeResults) UpsertServiceLevels(ctx context.Context, strat level.Strategy, results []domain.ServiceLevelResult) error {
	return nil
}

func (f *fakeResults) UpsertSummarizeResults(ctx context.Context, strat level.Strategy, results []domain.SummarizeResult) error {
	return nil
}

func (f *fakeResults) ForecastResultsByPubTime(ctx context.Context, pubTime time.Time) ([]domain.ForecastResult, error) {
	var out []domain.ForecastResult
	for _, r := range f.results {
		if r.PubTime.Equal(pubTime) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeResults) SummarizedDemand(ctx context.Context, key domain.ForecastKey, periodType domain.PeriodType, from, to time.Time) ([]domain.SummarizeResult, error) {
	var out []domain.SummarizeResult
	for _, a := range f.actuals {
		if a.ForecastKey == key && a.PeriodType == periodType &&
			!a.StartDate.Before(from) && !a.StartDate.After(to) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeResults) DemandHistory(ctx context.Context, key domain.ForecastKey, periodType domain.PeriodType, points int) ([]float64, error) {
	return nil, nil
}

type fakeLines struct {
	lines     map[domain.LineKey]*domain.AdjustmentLine
	summaries map[string]*domain.AdjustmentSummary
	nextID    int64
	received  []time.Time
}

func newFakeLines() *fakeLines {
	return &fakeLines{
		lines:     make(map[domain.LineKey]*domain.AdjustmentLine),
		summaries: make(map[string]*domain.AdjustmentSummary),
	}
}

func (f *fakeLines) LinesByKeys(ctx context.Context, keys []domain.LineKey) ([]*domain.AdjustmentLine, error) {
	var out []*domain.AdjustmentLine
	for _, key := range keys {
		if line, ok := f.lines[key]; ok {
			cp := *line
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeLines) UpsertLines(ctx context.Context, lines []*domain.AdjustmentLine) ([]int64, error) {
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		existing, ok := f.lines[line.Key()]
		if ok {
			line.ID = existing.ID
		} else {
			f.nextID++
			line.ID = f.nextID
		}
		cp := *line
		f.lines[line.Key()] = &cp
		ids = append(ids, line.ID)
	}
	return ids, nil
}

func (f *fakeLines) LinesForSubject(ctx context.Context, key domain.ForecastKey, periodType domain.PeriodType, from, to time.Time) ([]*domain.AdjustmentLine, error) {
	var out []*domain.AdjustmentLine
	for _, line := range f.lines {
		if line.ForecastKey == key && line.PeriodType == periodType &&
			!line.StartDate.Before(from) && !line.StartDate.After(to) {
			cp := *line
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeLines) LinesByIDs(ctx context.Context, ids []int64) ([]*domain.AdjustmentLine, error) {
	var out []*domain.AdjustmentLine
	for _, line := range f.lines {
		for _, id := range ids {
			if line.ID == id {
				cp := *line
				out = append(out, &cp)
			}
		}
	}
	return out, nil
}

func (f *fakeLines) DetachAndMuteBefore(ctx context.Context, summaryID int64, before time.Time) (int64, error) {
	var n int64
	for _, line := range f.lines {
		if line.SummaryID != nil && *line.SummaryID == summaryID && line.StartDate.Before(before) {
			line.SummaryID = nil
			line.Muted = true
			n++
		}
	}
	return n, nil
}

func (f *fakeLines) DetachAfter(ctx context.Context, summaryID int64, onOrAfter time.Time) (int64, error) {
	var n int64
	for _, line := range f.lines {
		if line.SummaryID != nil && *line.SummaryID == summaryID && !line.StartDate.Before(onOrAfter) {
			line.SummaryID = nil
			n++
		}
	}
	return n, nil
}

func (f *fakeLines) AttachWindow(ctx context.Context, summaryID int64, key domain.ForecastKey, periodType domain.PeriodType, from, to time.Time) (int64, error) {
	var n int64
	for _, line := range f.lines {
		if line.ForecastKey == key && line.PeriodType == periodType &&
			!line.StartDate.Before(from) && line.StartDate.Before(to) {
			id := summaryID
			line.SummaryID = &id
			line.Muted = false
			n++
		}
	}
	return n, nil
}

func summaryKey(key domain.ForecastKey, pt domain.PeriodType) string {
	return fmt.Sprintf("%d/%d/%d/%d/%s", key.ProductID, key.CompanyID, key.WarehouseID, key.LotStockID, pt)
}

func (f *fakeLines) GetOrCreateSummary(ctx context.Context, key domain.ForecastKey, periodType domain.PeriodType) (*domain.AdjustmentSummary, error) {
	sk := summaryKey(key, periodType)
	if s, ok := f.summaries[sk]; ok {
		return s, nil
	}
	f.nextID++
	s := &domain.AdjustmentSummary{ID: f.nextID, ForecastKey: key, PeriodType: periodType}
	f.summaries[sk] = s
	return s, nil
}

func (f *fakeLines) GetSummary(ctx context.Context, key domain.ForecastKey, periodType domain.PeriodType) (*domain.AdjustmentSummary, error) {
	return f.summaries[summaryKey(key, periodType)], nil
}

func (f *fakeLines) UpdateSummary(ctx context.Context, summary *domain.AdjustmentSummary) error {
	f.summaries[summaryKey(summary.ForecastKey, summary.PeriodType)] = summary
	return nil
}

func (f *fakeLines) ListSummaries(ctx context.Context) ([]*domain.AdjustmentSummary, error) {
	var out []*domain.AdjustmentSummary
	for _, s := range f.summaries {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeLines) TouchLastReceive(ctx context.Context, keys []domain.ForecastKey, periodType domain.PeriodType, at time.Time) error {
	f.received = append(f.received, at)
	return nil
}

type fakeProducts map[int64]domain.Product

func (f fakeProducts) ProductsByIDs(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	out := make(map[int64]domain.Product)
	for _, id := range ids {
		if p, ok := f[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

var testCfg = config.ForecastingConfig{PastPeriods: 6, FuturePeriods: 6}

func testKey() domain.ForecastKey {
	return domain.ForecastKey{ProductID: 1, CompanyID: 1, WarehouseID: 2}
}

func weeklyResult(value float64, pubTime time.Time) domain.ForecastResult {
	return domain.ForecastResult{
		ForecastKey: testKey(),
		Algorithm:   "prophet",
		PeriodType:  domain.PeriodWeekly,
		StartDate:   time.Date(2025, time.June, 16, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2025, time.June, 22, 0, 0, 0, 0, time.UTC),
		PubTime:     pubTime,
		Value:       value,
	}
}

func newTestReconciler(results *fakeResults, lines *fakeLines) *Reconciler {
	products := fakeProducts{1: {ID: 1, UoMRounding: 1.0, LeadTimeDays: 3}}
	return New(results, lines, products, testCfg)
}

func TestReconcileCreatesLine(t *testing.T) {
	pub := time.Date(2025, time.June, 20, 3, 0, 0, 0, time.UTC)
	results := &fakeResults{results: []domain.ForecastResult{weeklyResult(140, pub)}}
	lines := newFakeLines()

	ids, err := newTestReconciler(results, lines).Reconcile(context.Background(), pub, level.Warehouse)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	line := lines.lines[domain.LineKey{
		ForecastKey: testKey(),
		PeriodType:  domain.PeriodWeekly,
		StartDate:   time.Date(2025, time.June, 16, 0, 0, 0, 0, time.UTC),
	}]
	require.NotNil(t, line)
	assert.Equal(t, 140.0, line.ForecastValue)
	assert.Equal(t, 140.0, line.AdjustValue)
	require.NotNil(t, line.ForePubTime)
	assert.True(t, line.ForePubTime.Equal(pub))

	// A parent summary now exists and has its receive time stamped.
	assert.Len(t, lines.summaries, 1)
	assert.Len(t, lines.received, 1)
}

func TestReconcileCarriesManualDelta(t *testing.T) {
	pub1 := time.Date(2025, time.June, 20, 3, 0, 0, 0, time.UTC)
	pub2 := pub1.Add(24 * time.Hour)
	results := &fakeResults{results: []domain.ForecastResult{
		weeklyResult(140, pub1),
		weeklyResult(70, pub2),
	}}
	lines := newFakeLines()
	r := newTestReconciler(results, lines)

	_, err := r.Reconcile(context.Background(), pub1, level.Warehouse)
	require.NoError(t, err)

	// User raises the working forecast by 10 on top of the engine value.
	key := domain.LineKey{ForecastKey: testKey(), PeriodType: domain.PeriodWeekly,
		StartDate: time.Date(2025, time.June, 16, 0, 0, 0, 0, time.UTC)}
	lines.lines[key].AdjustValue = 150

	_, err = r.Reconcile(context.Background(), pub2, level.Warehouse)
	require.NoError(t, err)

	line := lines.lines[key]
	assert.Equal(t, 70.0, line.ForecastValue)
	assert.Equal(t, 80.0, line.AdjustValue, "manual +10 delta carried onto the new forecast")
}

func TestReconcileSamePubTimeOverwrites(t *testing.T) {
	pub := time.Date(2025, time.June, 20, 3, 0, 0, 0, time.UTC)
	results := &fakeResults{results: []domain.ForecastResult{weeklyResult(140, pub)}}
	lines := newFakeLines()
	r := newTestReconciler(results, lines)

	_, err := r.Reconcile(context.Background(), pub, level.Warehouse)
	require.NoError(t, err)
	_, err = r.Reconcile(context.Background(), pub, level.Warehouse)
	require.NoError(t, err)

	key := domain.LineKey{ForecastKey: testKey(), PeriodType: domain.PeriodWeekly,
		StartDate: time.Date(2025, time.June, 16, 0, 0, 0, 0, time.UTC)}
	line := lines.lines[key]
	assert.Equal(t, 140.0, line.AdjustValue, "re-delivery is an overwrite, never additive")
	assert.Len(t, lines.lines, 1)
}

func TestReconcileSkipsStaleBatch(t *testing.T) {
	pubNew := time.Date(2025, time.June, 21, 3, 0, 0, 0, time.UTC)
	pubOld := pubNew.Add(-48 * time.Hour)
	results := &fakeResults{results: []domain.ForecastResult{
		weeklyResult(140, pubNew),
		weeklyResult(999, pubOld),
	}}
	lines := newFakeLines()
	r := newTestReconciler(results, lines)

	_, err := r.Reconcile(context.Background(), pubNew, level.Warehouse)
	require.NoError(t, err)

	ids, err := r.Reconcile(context.Background(), pubOld, level.Warehouse)
	require.NoError(t, err)
	assert.Empty(t, ids, "late batch must not regress the line")

	key := domain.LineKey{ForecastKey: testKey(), PeriodType: domain.PeriodWeekly,
		StartDate: time.Date(2025, time.June, 16, 0, 0, 0, 0, time.UTC)}
	assert.Equal(t, 140.0, lines.lines[key].ForecastValue)
}

func TestReconcileClampsAndRounds(t *testing.T) {
	pub := time.Date(2025, time.June, 20, 3, 0, 0, 0, time.UTC)
	negative := weeklyResult(-12, pub)
	fractional := weeklyResult(19.6, pub)
	fractional.StartDate = time.Date(2025, time.June, 23, 0, 0, 0, 0, time.UTC)
	fractional.EndDate = time.Date(2025, time.June, 29, 0, 0, 0, 0, time.UTC)
	results := &fakeResults{results: []domain.ForecastResult{negative, fractional}}
	lines := newFakeLines()

	_, err := newTestReconciler(results, lines).Reconcile(context.Background(), pub, level.Warehouse)
	require.NoError(t, err)

	negLine := lines.lines[domain.LineKey{ForecastKey: testKey(), PeriodType: domain.PeriodWeekly,
		StartDate: time.Date(2025, time.June, 16, 0, 0, 0, 0, time.UTC)}]
	assert.Equal(t, 0.0, negLine.ForecastValue)

	fracLine := lines.lines[domain.LineKey{ForecastKey: testKey(), PeriodType: domain.PeriodWeekly,
		StartDate: time.Date(2025, time.June, 23, 0, 0, 0, 0, time.UTC)}]
	assert.Equal(t, 20.0, fracLine.ForecastValue, "rounded to the UoM increment")
}

func TestReconcileUnknownProductKeepsRawValue(t *testing.T) {
	pub := time.Date(2025, time.June, 20, 3, 0, 0, 0, time.UTC)
	results := &fakeResults{results: []domain.ForecastResult{weeklyResult(19.6, pub)}}
	lines := newFakeLines()
	r := New(results, lines, fakeProducts{}, testCfg)

	ids, err := r.Reconcile(context.Background(), pub, level.Warehouse)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	line := lines.lines[domain.LineKey{ForecastKey: testKey(), PeriodType: domain.PeriodWeekly,
		StartDate: time.Date(2025, time.June, 16, 0, 0, 0, 0, time.UTC)}]
	assert.Equal(t, 19.6, line.ForecastValue, "no mirrored product means no UoM rounding")
}

func TestUpdateWindowsDetachesShrunkFutureWindow(t *testing.T) {
	pub := time.Date(2025, time.June, 20, 3, 0, 0, 0, time.UTC)
	farOut := weeklyResult(90, pub)
	farOut.StartDate = time.Date(2025, time.August, 25, 0, 0, 0, 0, time.UTC)
	farOut.EndDate = time.Date(2025, time.August, 31, 0, 0, 0, 0, time.UTC)
	results := &fakeResults{results: []domain.ForecastResult{weeklyResult(140, pub), farOut}}
	lines := newFakeLines()
	products := fakeProducts{1: {ID: 1, UoMRounding: 1.0, LeadTimeDays: 3}}
	now := time.Date(2025, time.June, 20, 12, 0, 0, 0, time.UTC)

	wide := New(results, lines, products, config.ForecastingConfig{PastPeriods: 6, FuturePeriods: 12})
	_, err := wide.Reconcile(context.Background(), pub, level.Warehouse)
	require.NoError(t, err)
	require.NoError(t, wide.UpdateWindows(context.Background(), now))

	farKey := domain.LineKey{ForecastKey: testKey(), PeriodType: domain.PeriodWeekly,
		StartDate: farOut.StartDate}
	require.NotNil(t, lines.lines[farKey].SummaryID, "attached under the wide window")

	// The future bound is tightened to 6 periods; the week-10 line must
	// fall out of the window without being muted as history.
	narrow := New(results, lines, products, testCfg)
	require.NoError(t, narrow.UpdateWindows(context.Background(), now))

	farLine := lines.lines[farKey]
	assert.Nil(t, farLine.SummaryID, "line beyond the new end_window detached")
	assert.False(t, farLine.Muted, "future lines are detached, not muted")

	summary, err := lines.GetSummary(context.Background(), testKey(), domain.PeriodWeekly)
	require.NoError(t, err)
	for _, line := range lines.lines {
		if line.SummaryID == nil || *line.SummaryID != summary.ID {
			continue
		}
		assert.False(t, line.StartDate.Before(summary.StartWindow),
			"attached line %s before start_window", line.StartDate.Format("2006-01-02"))
		assert.True(t, line.StartDate.Before(summary.EndWindow),
			"attached line %s on or after end_window", line.StartDate.Format("2006-01-02"))
	}
}

func TestUpdateWindowsBackfillsActuals(t *testing.T) {
	pub := time.Date(2025, time.June, 20, 3, 0, 0, 0, time.UTC)
	results := &fakeResults{results: []domain.ForecastResult{weeklyResult(140, pub)}}
	lines := newFakeLines()
	r := newTestReconciler(results, lines)

	_, err := r.Reconcile(context.Background(), pub, level.Warehouse)
	require.NoError(t, err)

	// A past bucket has summarized demand but never saw a forecast.
	pastStart := time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC)
	results.actuals = append(results.actuals, domain.SummarizeResult{
		ForecastKey: testKey(),
		PeriodType:  domain.PeriodWeekly,
		StartDate:   pastStart,
		EndDate:     pastStart.AddDate(0, 0, 6),
		Value:       35,
	})

	now := time.Date(2025, time.June, 20, 12, 0, 0, 0, time.UTC)
	require.NoError(t, r.UpdateWindows(context.Background(), now))

	placeholder := lines.lines[domain.LineKey{ForecastKey: testKey(), PeriodType: domain.PeriodWeekly, StartDate: pastStart}]
	require.NotNil(t, placeholder, "placeholder line created for recorded actuals")
	assert.Equal(t, 35.0, placeholder.Demand)
	assert.Equal(t, 0.0, placeholder.ForecastValue)

	summary, err := lines.GetSummary(context.Background(), testKey(), domain.PeriodWeekly)
	require.NoError(t, err)
	require.NotNil(t, summary.LastUpdate)
	assert.False(t, summary.StartWindow.IsZero())
	assert.NotEmpty(t, summary.HistoricalSeries)
	assert.NotEmpty(t, summary.ForecastSeries)
}
