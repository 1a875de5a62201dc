package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stockwise/forecaster/internal/auth"
	"github.com/stockwise/forecaster/internal/config"
	"github.com/stockwise/forecaster/internal/domain"
	"github.com/stockwise/forecaster/internal/level"
	"github.com/stockwise/forecaster/internal/queue"
	"github.com/stockwise/forecaster/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResults struct {
	forecasts       []domain.ForecastResult
	classifications []domain.DemandClassificationResult
	serviceLevels   []domain.ServiceLevelResult
	summaries       []domain.SummarizeResult
	upsertErr       error
}

func (f *fakeResults) UpsertForecastResults(ctx context.Context, strat level.Strategy, results []domain.ForecastResult) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.forecasts = append(f.forecasts, results...)
	return nil
}

func (f *fakeResults) UpsertDemandClassifications(ctx context.Context, strat level.Strategy, results []domain.DemandClassificationResult) error {
	f.classifications = append(f.classifications, results...)
	return nil
}

func (f *fakeResults) UpsertServiceLevels(ctx context.Context, strat level.Strategy, results []domain.ServiceLevelResult) error {
	f.serviceLevels = append(f.serviceLevels, results...)
	return nil
}

func (f *fakeResults) UpsertSummarizeResults(ctx context.Context, strat level.Strategy, results []domain.SummarizeResult) error {
	f.summaries = append(f.summaries, results...)
	return nil
}

func (f *fakeResults) ForecastResultsByPubTime(ctx context.Context, pubTime time.Time) ([]domain.ForecastResult, error) {
	return nil, nil
}

func (f *fakeResults) SummarizedDemand(ctx context.Context, key domain.ForecastKey, periodType domain.PeriodType, from, to time.Time) ([]domain.SummarizeResult, error) {
	return nil, nil
}

func (f *fakeResults) DemandHistory(ctx context.Context, key domain.ForecastKey, periodType domain.PeriodType, points int) ([]float64, error) {
	return nil, nil
}

type fakeClassificationRepo struct {
	demand *domain.DemandClassificationResult
	tier   *domain.ServiceLevelResult
	infos  []*domain.ProductClassificationInfo
}

func (f *fakeClassificationRepo) LatestApprovedDemandClass(ctx context.Context, key domain.ForecastKey) (*domain.DemandClassificationResult, error) {
	return f.demand, nil
}

func (f *fakeClassificationRepo) LatestApprovedServiceLevel(ctx context.Context, key domain.ForecastKey) (*domain.ServiceLevelResult, error) {
	return f.tier, nil
}

func (f *fakeClassificationRepo) UpsertClassificationInfo(ctx context.Context, info *domain.ProductClassificationInfo) error {
	f.infos = append(f.infos, info)
	return nil
}

func (f *fakeClassificationRepo) GetClassificationInfo(ctx context.Context, key domain.ForecastKey) (*domain.ProductClassificationInfo, error) {
	if len(f.infos) == 0 {
		return nil, nil
	}
	return f.infos[len(f.infos)-1], nil
}

type fakeTaskRepo struct {
	enqueued []*queue.Task
}

func (f *fakeTaskRepo) Enqueue(ctx context.Context, task *queue.Task) error {
	task.ID = int64(len(f.enqueued) + 1)
	f.enqueued = append(f.enqueued, task)
	return nil
}

func (f *fakeTaskRepo) DuePending(ctx context.Context, now time.Time, limit int) ([]*queue.Task, error) {
	return nil, nil
}
func (f *fakeTaskRepo) MarkCompleted(ctx context.Context, task *queue.Task) error { return nil }
func (f *fakeTaskRepo) MarkFailed(ctx context.Context, task *queue.Task, taskErr error) error {
	return nil
}
func (f *fakeTaskRepo) Stats(ctx context.Context) (map[queue.TaskStatus]int64, error) {
	return nil, nil
}
func (f *fakeTaskRepo) ResetStuck(ctx context.Context, maxAge time.Duration) (int64, error) {
	return 0, nil
}

type recordingArchive struct {
	keys []string
}

func (r *recordingArchive) UploadObject(ctx context.Context, key string, data []byte) error {
	r.keys = append(r.keys, key)
	return nil
}

func (r *recordingArchive) ListObjects(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	return nil, nil
}

const testPass = "s3cret"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	hash, err := auth.Hash(testPass)
	require.NoError(t, err)
	return &config.Config{
		Auth: config.AuthConfig{ServerPassHash: hash},
		Forecasting: config.ForecastingConfig{
			ThresholdToTriggerQueueJob: 10,
			AllowTriggerQueueJob:       true,
		},
	}
}

func forecastRecord() ForecastRecord {
	return ForecastRecord{
		RecordKey:  RecordKey{ProductID: 1, CompanyID: 1, WarehouseID: 2},
		Algorithm:  "prophet",
		PeriodType: "weekly",
		StartDate:  "2025-06-16",
		EndDate:    "2025-06-22",
		PubTime:    "2025-06-20 03:00:00",
		Value:      140,
	}
}

func newIngestFixture(t *testing.T, results *fakeResults) (*IngestService, *fakeTaskRepo, *recordingArchive, *queue.Dispatcher) {
	t.Helper()
	taskRepo := &fakeTaskRepo{}
	dispatcher := queue.NewDispatcher(taskRepo, 10, true)
	archive := &recordingArchive{}
	classification := NewClassificationService(&fakeClassificationRepo{})
	svc := NewIngestService(results, classification, dispatcher, archive, testConfig(t))
	return svc, taskRepo, archive, dispatcher
}

func TestIngestForecastsRejectsBadCredential(t *testing.T) {
	svc, _, _, _ := newIngestFixture(t, &fakeResults{})
	_, err := svc.IngestForecasts(context.Background(), &ForecastIngestRequest{
		ServerPass: "wrong",
		Data:       []ForecastRecord{forecastRecord()},
	})
	assert.ErrorIs(t, err, domain.ErrAuth)
}

func TestIngestForecastsRejectsEmptyBatch(t *testing.T) {
	svc, _, _, _ := newIngestFixture(t, &fakeResults{})
	_, err := svc.IngestForecasts(context.Background(), &ForecastIngestRequest{ServerPass: testPass})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestIngestForecastsValidation(t *testing.T) {
	svc, _, _, _ := newIngestFixture(t, &fakeResults{})

	bad := forecastRecord()
	bad.PeriodType = "hourly"
	_, err := svc.IngestForecasts(context.Background(), &ForecastIngestRequest{
		ServerPass: testPass, Data: []ForecastRecord{bad},
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	bad = forecastRecord()
	bad.ProductID = 0
	_, err = svc.IngestForecasts(context.Background(), &ForecastIngestRequest{
		ServerPass: testPass, Data: []ForecastRecord{bad},
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	bad = forecastRecord()
	bad.EndDate = "2025-06-10"
	_, err = svc.IngestForecasts(context.Background(), &ForecastIngestRequest{
		ServerPass: testPass, Data: []ForecastRecord{bad},
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestIngestForecastsDispatchesReconcile(t *testing.T) {
	results := &fakeResults{}
	svc, _, _, dispatcher := newIngestFixture(t, results)

	var got ReconcilePayload
	dispatcher.Register(TaskReconcile, func(ctx context.Context, payload json.RawMessage) error {
		return json.Unmarshal(payload, &got)
	})

	count, err := svc.IngestForecasts(context.Background(), &ForecastIngestRequest{
		ServerPass: testPass,
		Data:       []ForecastRecord{forecastRecord()},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.Len(t, results.forecasts, 1)

	// Warehouse level drops lot granularity and the batch runs inline
	// below the queue threshold.
	assert.Zero(t, results.forecasts[0].LotStockID)
	assert.Equal(t, level.Warehouse, got.Level)
	assert.Equal(t, time.Date(2025, time.June, 20, 3, 0, 0, 0, time.UTC), got.PubTime)
}

func TestIngestForecastsEnqueuesLargeBatch(t *testing.T) {
	results := &fakeResults{}
	svc, taskRepo, _, _ := newIngestFixture(t, results)

	data := make([]ForecastRecord, 0, 12)
	for i := 0; i < 12; i++ {
		rec := forecastRecord()
		rec.ProductID = int64(i + 1)
		data = append(data, rec)
	}
	_, err := svc.IngestForecasts(context.Background(), &ForecastIngestRequest{
		ServerPass: testPass, Data: data,
	})
	require.NoError(t, err)
	require.Len(t, taskRepo.enqueued, 1)
	assert.Equal(t, TaskReconcile, taskRepo.enqueued[0].Name)
}

func TestIngestForecastsArchivesRejectedBatch(t *testing.T) {
	results := &fakeResults{upsertErr: domain.ErrDuplicateKey}
	svc, _, archive, _ := newIngestFixture(t, results)

	_, err := svc.IngestForecasts(context.Background(), &ForecastIngestRequest{
		ServerPass: testPass,
		Data:       []ForecastRecord{forecastRecord()},
	})
	require.Error(t, err)
	require.Len(t, archive.keys, 1)
	assert.Contains(t, archive.keys[0], "rejected/forecast/")
}

func TestClassificationRefreshMapsForecastGroup(t *testing.T) {
	repo := &fakeClassificationRepo{
		demand: &domain.DemandClassificationResult{ID: 11, DemandType: "Lumpy", HasApproved: true},
		tier:   &domain.ServiceLevelResult{ID: 22, ServiceLevel: "B", HasApproved: true},
	}
	svc := NewClassificationService(repo)

	key := domain.ForecastKey{ProductID: 1, CompanyID: 1, WarehouseID: 2}
	require.NoError(t, svc.Refresh(context.Background(), key))

	require.Len(t, repo.infos, 1)
	info := repo.infos[0]
	assert.Equal(t, "lumpy", info.DemandType)
	assert.Equal(t, "b", info.ServiceLevel)
	assert.Equal(t, string(domain.PeriodMonthly), info.ForecastGroup)
	require.NotNil(t, info.ActualDemandID)
	assert.Equal(t, int64(11), *info.ActualDemandID)
	require.NotNil(t, info.ActualServiceLevelID)
	assert.Equal(t, int64(22), *info.ActualServiceLevelID)
}

func TestClassificationRefreshSkipsWithoutApproval(t *testing.T) {
	repo := &fakeClassificationRepo{}
	svc := NewClassificationService(repo)

	key := domain.ForecastKey{ProductID: 1, CompanyID: 1, WarehouseID: 2}
	require.NoError(t, svc.Refresh(context.Background(), key))
	assert.Empty(t, repo.infos, "nothing approved, nothing promoted")
}

type fakeMonitorRepo struct {
	monitor *domain.ReorderingMonitor
	updated bool
}

func (f *fakeMonitorRepo) InsertTracker(ctx context.Context, tracker *domain.ReorderingTracker) error {
	return nil
}
func (f *fakeMonitorRepo) PromoteTrackers(ctx context.Context, since time.Time) (int64, error) {
	return 0, nil
}
func (f *fakeMonitorRepo) GetMonitor(ctx context.Context, key domain.ForecastKey) (*domain.ReorderingMonitor, error) {
	return f.monitor, nil
}
func (f *fakeMonitorRepo) ListMonitors(ctx context.Context, companyID int64, limit, offset int) ([]*domain.ReorderingMonitor, error) {
	return nil, nil
}
func (f *fakeMonitorRepo) UpdateMonitorQuantities(ctx context.Context, key domain.ForecastKey, minQty, maxQty, safetyStock *float64) error {
	f.updated = true
	if minQty != nil {
		f.monitor.NewMinQty = minQty
	}
	if maxQty != nil {
		f.monitor.NewMaxQty = maxQty
	}
	if safetyStock != nil {
		f.monitor.NewSafetyStock = safetyStock
	}
	return nil
}

func ptr(v float64) *float64 { return &v }

func TestUpdateQuantitiesValidatesRange(t *testing.T) {
	repo := &fakeMonitorRepo{monitor: &domain.ReorderingMonitor{
		ForecastKey: domain.ForecastKey{ProductID: 1, CompanyID: 1, WarehouseID: 2},
		MinForecast: 10, MaxForecast: 30, SafetyStockForecast: 5,
	}}
	svc := NewReorderingService(repo)
	key := domain.ForecastKey{ProductID: 1, CompanyID: 1, WarehouseID: 2}

	// Edit that inverts the pair against the suggested max.
	_, err := svc.UpdateQuantities(context.Background(), key, ptr(45), nil, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidRange)
	assert.False(t, repo.updated)

	// Valid edit persists.
	monitor, err := svc.UpdateQuantities(context.Background(), key, ptr(12), ptr(40), nil)
	require.NoError(t, err)
	assert.True(t, repo.updated)
	assert.Equal(t, 12.0, *monitor.NewMinQty)
	assert.Equal(t, 40.0, *monitor.NewMaxQty)
}

func TestUpdateQuantitiesRejectsEmptyAndNegative(t *testing.T) {
	repo := &fakeMonitorRepo{monitor: &domain.ReorderingMonitor{}}
	svc := NewReorderingService(repo)
	key := domain.ForecastKey{ProductID: 1, CompanyID: 1, WarehouseID: 2}

	_, err := svc.UpdateQuantities(context.Background(), key, nil, nil, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.UpdateQuantities(context.Background(), key, ptr(-1), nil, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestUpdateQuantitiesMissingMonitor(t *testing.T) {
	svc := NewReorderingService(&fakeMonitorRepo{})
	key := domain.ForecastKey{ProductID: 9, CompanyID: 1, WarehouseID: 2}

	_, err := svc.UpdateQuantities(context.Background(), key, ptr(1), nil, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
