// internal/service/ingest_service.go
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/stockwise/forecaster/internal/auth"
	"github.com/stockwise/forecaster/internal/config"
	"github.com/stockwise/forecaster/internal/domain"
	"github.com/stockwise/forecaster/internal/level"
	"github.com/stockwise/forecaster/internal/queue"
	"github.com/stockwise/forecaster/internal/repository"
	"github.com/stockwise/forecaster/internal/storage"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "2006-01-02 15:04:05"
)

// RecordKey is the subject key as it appears on the wire.
type RecordKey struct {
	ProductID   int64 `json:"product_id"`
	CompanyID   int64 `json:"company_id"`
	WarehouseID int64 `json:"warehouse_id"`
	LotStockID  int64 `json:"lot_stock_id"`
}

// ForecastIngestRequest is the engine's forecast publish envelope.
type ForecastIngestRequest struct {
	ServerPass string           `json:"server_pass"`
	Level      string           `json:"forecast_level,omitempty"`
	Data       []ForecastRecord `json:"data"`
}

type ForecastRecord struct {
	RecordKey
	Algorithm  string  `json:"algorithm"`
	PeriodType string  `json:"period_type"`
	StartDate  string  `json:"start_date"`
	EndDate    string  `json:"end_date"`
	PubTime    string  `json:"pub_time"`
	Value      float64 `json:"forecast_result"`
	Upper1     float64 `json:"upper_1"`
	Upper2     float64 `json:"upper_2"`
	Lower1     float64 `json:"lower_1"`
	Lower2     float64 `json:"lower_2"`
}

// ClassificationIngestRequest carries demand-pattern classification
// snapshots.
type ClassificationIngestRequest struct {
	ServerPass string                 `json:"server_pass"`
	Level      string                 `json:"forecast_level,omitempty"`
	Data       []ClassificationRecord `json:"data"`
}

type ClassificationRecord struct {
	RecordKey
	DemandType  string `json:"demand_type"`
	PubTime     string `json:"pub_time"`
	HasApproved bool   `json:"has_approved"`
}

// ServiceLevelIngestRequest carries ABC service-tier snapshots.
type ServiceLevelIngestRequest struct {
	ServerPass string               `json:"server_pass"`
	Level      string               `json:"forecast_level,omitempty"`
	Data       []ServiceLevelRecord `json:"data"`
}

type ServiceLevelRecord struct {
	RecordKey
	ServiceLevel string `json:"service_level"`
	PubTime      string `json:"pub_time"`
	HasApproved  bool   `json:"has_approved"`
}

// DemandIngestRequest carries summarized actual-demand buckets.
type DemandIngestRequest struct {
	ServerPass string         `json:"server_pass"`
	Level      string         `json:"forecast_level,omitempty"`
	Data       []DemandRecord `json:"data"`
}

type DemandRecord struct {
	RecordKey
	PeriodType string  `json:"period_type"`
	StartDate  string  `json:"start_date"`
	EndDate    string  `json:"end_date"`
	PubTime    string  `json:"pub_time"`
	Value      float64 `json:"summarize_value"`
}

// IngestService accepts engine publish batches: authenticate, validate,
// upsert the snapshots, and kick the downstream pipeline. Failed batches
// are archived to object storage for forensic replay.
type IngestService struct {
	results        repository.ResultRepository
	classification *ClassificationService
	dispatcher     *queue.Dispatcher
	archive        storage.ObjectStorage
	cfg            *config.Config
}

func NewIngestService(
	results repository.ResultRepository,
	classification *ClassificationService,
	dispatcher *queue.Dispatcher,
	archive storage.ObjectStorage,
	cfg *config.Config,
) *IngestService {
	return &IngestService{
		results:        results,
		classification: classification,
		dispatcher:     dispatcher,
		archive:        archive,
		cfg:            cfg,
	}
}

// IngestForecasts stores a forecast publish batch and dispatches
// reconciliation per distinct pub_time. Returns the accepted record count.
func (s *IngestService) IngestForecasts(ctx context.Context, req *ForecastIngestRequest) (int, error) {
	strat, err := s.authenticate(req.ServerPass, req.Level, len(req.Data))
	if err != nil {
		return 0, err
	}

	results := make([]domain.ForecastResult, 0, len(req.Data))
	batches := make(map[time.Time]int)
	for i := range req.Data {
		rec := &req.Data[i]
		if err := validateKey(rec.RecordKey); err != nil {
			return 0, err
		}
		pt, start, end, err := parseBucket(rec.PeriodType, rec.StartDate, rec.EndDate)
		if err != nil {
			return 0, err
		}
		pub, err := parseTime(rec.PubTime)
		if err != nil {
			return 0, fmt.Errorf("%w: record %d: %v", domain.ErrValidation, i, err)
		}

		results = append(results, domain.ForecastResult{
			ForecastKey: strat.Normalize(keyOf(rec.RecordKey)),
			Algorithm:   rec.Algorithm,
			PeriodType:  pt,
			StartDate:   start,
			EndDate:     end,
			PubTime:     pub,
			Value:       rec.Value,
			Upper1:      rec.Upper1,
			Upper2:      rec.Upper2,
			Lower1:      rec.Lower1,
			Lower2:      rec.Lower2,
		})
		batches[pub]++
	}

	if err := s.results.UpsertForecastResults(ctx, strat, results); err != nil {
		s.archiveBatch(ctx, "forecast", req)
		return 0, err
	}

	for pub, count := range batches {
		payload := ReconcilePayload{PubTime: pub, Level: strat.Name()}
		if err := s.dispatcher.Dispatch(ctx, TaskReconcile, payload, count); err != nil {
			return 0, fmt.Errorf("batch stored but reconcile dispatch failed: %w", err)
		}
	}
	return len(results), nil
}

// IngestClassifications stores classification snapshots and refreshes the
// per-subject truth for approved records.
func (s *IngestService) IngestClassifications(ctx context.Context, req *ClassificationIngestRequest) (int, error) {
	strat, err := s.authenticate(req.ServerPass, req.Level, len(req.Data))
	if err != nil {
		return 0, err
	}

	results := make([]domain.DemandClassificationResult, 0, len(req.Data))
	for i := range req.Data {
		rec := &req.Data[i]
		if err := validateKey(rec.RecordKey); err != nil {
			return 0, err
		}
		if rec.DemandType == "" {
			return 0, fmt.Errorf("%w: record %d: missing demand_type", domain.ErrValidation, i)
		}
		pub, err := parseTime(rec.PubTime)
		if err != nil {
			return 0, fmt.Errorf("%w: record %d: %v", domain.ErrValidation, i, err)
		}
		results = append(results, domain.DemandClassificationResult{
			ForecastKey: strat.Normalize(keyOf(rec.RecordKey)),
			DemandType:  rec.DemandType,
			PubTime:     pub,
			HasApproved: rec.HasApproved,
		})
	}

	if err := s.results.UpsertDemandClassifications(ctx, strat, results); err != nil {
		s.archiveBatch(ctx, "classification", req)
		return 0, err
	}

	s.refreshApproved(ctx, approvedKeys(results))
	return len(results), nil
}

// IngestServiceLevels stores service-tier snapshots and refreshes the
// per-subject truth for approved records.
func (s *IngestService) IngestServiceLevels(ctx context.Context, req *ServiceLevelIngestRequest) (int, error) {
	strat, err := s.authenticate(req.ServerPass, req.Level, len(req.Data))
	if err != nil {
		return 0, err
	}

	results := make([]domain.ServiceLevelResult, 0, len(req.Data))
	for i := range req.Data {
		rec := &req.Data[i]
		if err := validateKey(rec.RecordKey); err != nil {
			return 0, err
		}
		if rec.ServiceLevel == "" {
			return 0, fmt.Errorf("%w: record %d: missing service_level", domain.ErrValidation, i)
		}
		pub, err := parseTime(rec.PubTime)
		if err != nil {
			return 0, fmt.Errorf("%w: record %d: %v", domain.ErrValidation, i, err)
		}
		results = append(results, domain.ServiceLevelResult{
			ForecastKey:  strat.Normalize(keyOf(rec.RecordKey)),
			ServiceLevel: rec.ServiceLevel,
			PubTime:      pub,
			HasApproved:  rec.HasApproved,
		})
	}

	if err := s.results.UpsertServiceLevels(ctx, strat, results); err != nil {
		s.archiveBatch(ctx, "service_level", req)
		return 0, err
	}

	keys := make([]domain.ForecastKey, 0)
	for i := range results {
		if results[i].HasApproved {
			keys = append(keys, results[i].ForecastKey)
		}
	}
	s.refreshApproved(ctx, keys)
	return len(results), nil
}

// IngestDemand stores summarized actual-demand buckets. The scheduled
// window refresh folds them into the charts; no pipeline dispatch here.
func (s *IngestService) IngestDemand(ctx context.Context, req *DemandIngestRequest) (int, error) {
	strat, err := s.authenticate(req.ServerPass, req.Level, len(req.Data))
	if err != nil {
		return 0, err
	}

	results := make([]domain.SummarizeResult, 0, len(req.Data))
	for i := range req.Data {
		rec := &req.Data[i]
		if err := validateKey(rec.RecordKey); err != nil {
			return 0, err
		}
		pt, start, end, err := parseBucket(rec.PeriodType, rec.StartDate, rec.EndDate)
		if err != nil {
			return 0, err
		}
		pub, err := parseTime(rec.PubTime)
		if err != nil {
			return 0, fmt.Errorf("%w: record %d: %v", domain.ErrValidation, i, err)
		}
		results = append(results, domain.SummarizeResult{
			ForecastKey: strat.Normalize(keyOf(rec.RecordKey)),
			PeriodType:  pt,
			StartDate:   start,
			EndDate:     end,
			PubTime:     pub,
			Value:       rec.Value,
		})
	}

	if err := s.results.UpsertSummarizeResults(ctx, strat, results); err != nil {
		s.archiveBatch(ctx, "demand", req)
		return 0, err
	}
	return len(results), nil
}

// authenticate checks the shared secret and resolves the forecast-level
// strategy before any data is touched.
func (s *IngestService) authenticate(serverPass, levelName string, records int) (level.Strategy, error) {
	if err := auth.Verify(serverPass, s.cfg.Auth.ServerPassHash); err != nil {
		return nil, err
	}
	if records == 0 {
		return nil, fmt.Errorf("%w: empty data", domain.ErrValidation)
	}
	if levelName == "" {
		levelName = level.Warehouse
	}
	strat, err := level.Get(levelName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return strat, nil
}

func (s *IngestService) refreshApproved(ctx context.Context, keys []domain.ForecastKey) {
	for _, key := range keys {
		if err := s.classification.Refresh(ctx, key); err != nil {
			log.Warn().Err(err).Int64("product_id", key.ProductID).
				Msg("classification info refresh failed")
		}
	}
}

// archiveBatch writes the rejected envelope to object storage. Best
// effort: archive failure is logged, never masks the storage error.
func (s *IngestService) archiveBatch(ctx context.Context, kind string, req any) {
	raw, err := json.Marshal(req)
	if err != nil {
		log.Error().Err(err).Str("kind", kind).Msg("failed to encode rejected batch for archive")
		return
	}
	key := fmt.Sprintf("rejected/%s/%s.json", kind, time.Now().UTC().Format("20060102T150405.000000000"))
	if err := s.archive.UploadObject(ctx, key, raw); err != nil {
		log.Error().Err(err).Str("key", key).Msg("failed to archive rejected batch")
		return
	}
	log.Info().Str("key", key).Str("kind", kind).Msg("rejected batch archived")
}

func keyOf(k RecordKey) domain.ForecastKey {
	return domain.ForecastKey{
		ProductID:   k.ProductID,
		CompanyID:   k.CompanyID,
		WarehouseID: k.WarehouseID,
		LotStockID:  k.LotStockID,
	}
}

func validateKey(k RecordKey) error {
	if k.ProductID <= 0 || k.CompanyID <= 0 || k.WarehouseID <= 0 {
		return fmt.Errorf("%w: product_id, company_id and warehouse_id must be positive", domain.ErrValidation)
	}
	return nil
}

func parseBucket(periodType, startDate, endDate string) (domain.PeriodType, time.Time, time.Time, error) {
	pt := domain.PeriodType(periodType)
	if !pt.Valid() {
		return "", time.Time{}, time.Time{}, fmt.Errorf("%w: unknown period_type %q", domain.ErrValidation, periodType)
	}
	start, err := time.Parse(dateLayout, startDate)
	if err != nil {
		return "", time.Time{}, time.Time{}, fmt.Errorf("%w: bad start_date %q", domain.ErrValidation, startDate)
	}
	end, err := time.Parse(dateLayout, endDate)
	if err != nil {
		return "", time.Time{}, time.Time{}, fmt.Errorf("%w: bad end_date %q", domain.ErrValidation, endDate)
	}
	if end.Before(start) {
		return "", time.Time{}, time.Time{}, fmt.Errorf("%w: end_date before start_date", domain.ErrValidation)
	}
	return pt, start, end, nil
}

func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q", v)
	}
	return t.UTC(), nil
}

func approvedKeys(results []domain.DemandClassificationResult) []domain.ForecastKey {
	keys := make([]domain.ForecastKey, 0)
	for i := range results {
		if results[i].HasApproved {
			keys = append(keys, results[i].ForecastKey)
		}
	}
	return keys
}
