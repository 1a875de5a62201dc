// internal/domain/models.go
package domain

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// PeriodType is the bucketing granularity of a forecast series.
type PeriodType string

const (
	PeriodDaily     PeriodType = "daily"
	PeriodWeekly    PeriodType = "weekly"
	PeriodBiweekly  PeriodType = "biweekly"
	PeriodMonthly   PeriodType = "monthly"
	PeriodQuarterly PeriodType = "quarterly"
	PeriodYearly    PeriodType = "yearly"
)

// Valid reports whether p is a known period granularity.
func (p PeriodType) Valid() bool {
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodBiweekly, PeriodMonthly, PeriodQuarterly, PeriodYearly:
		return true
	}
	return false
}

// ForecastKey identifies the subject of a forecast at the active forecast
// level. LotStockID narrows the key below warehouse granularity and is zero
// for the warehouse level.
type ForecastKey struct {
	ProductID   int64 `json:"product_id" db:"product_id"`
	CompanyID   int64 `json:"company_id" db:"company_id"`
	WarehouseID int64 `json:"warehouse_id" db:"warehouse_id"`
	LotStockID  int64 `json:"lot_stock_id,omitempty" db:"lot_stock_id"`
}

// LineKey is the natural key of an adjustment line: subject plus bucket.
type LineKey struct {
	ForecastKey
	PeriodType PeriodType `json:"period_type" db:"period_type"`
	StartDate  time.Time  `json:"start_date" db:"start_date"`
}

// ForecastResult is an immutable snapshot of one engine prediction. New
// pub_times create new rows; the same (key, period, start_date, pub_time)
// is overwritten outright on re-delivery.
type ForecastResult struct {
	ID int64 `json:"id" db:"id"`
	ForecastKey
	Algorithm  string     `json:"algorithm" db:"algorithm"`
	PeriodType PeriodType `json:"period_type" db:"period_type"`
	StartDate  time.Time  `json:"start_date" db:"start_date"`
	EndDate    time.Time  `json:"end_date" db:"end_date"`
	PubTime    time.Time  `json:"pub_time" db:"pub_time"`
	Value      float64    `json:"forecast_result" db:"forecast_result"`
	Upper1     float64    `json:"upper_1" db:"upper_1"`
	Upper2     float64    `json:"upper_2" db:"upper_2"`
	Lower1     float64    `json:"lower_1" db:"lower_1"`
	Lower2     float64    `json:"lower_2" db:"lower_2"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// AdjustmentLine is the mutable working forecast for one bucket of one
// subject. ForePubTime is the watermark of the newest applied forecast
// batch; older batches never regress the line.
type AdjustmentLine struct {
	ID int64 `json:"id" db:"id"`
	ForecastKey
	PeriodType       PeriodType `json:"period_type" db:"period_type"`
	StartDate        time.Time  `json:"start_date" db:"start_date"`
	EndDate          time.Time  `json:"end_date" db:"end_date"`
	ForecastValue    float64    `json:"forecast_result" db:"forecast_result"`
	AdjustValue      float64    `json:"adjust_value" db:"adjust_value"`
	Demand           float64    `json:"demand" db:"demand"`
	DemandGap        float64    `json:"demand_gap" db:"demand_gap"`
	ForePubTime      *time.Time `json:"fore_pub_time,omitempty" db:"fore_pub_time"`
	ForecastResultID *int64     `json:"forecast_result_id,omitempty" db:"forecast_result_id"`
	SummaryID        *int64     `json:"summary_id,omitempty" db:"summary_id"`
	Muted            bool       `json:"muted" db:"muted"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// Key returns the line's natural key.
func (l *AdjustmentLine) Key() LineKey {
	return LineKey{ForecastKey: l.ForecastKey, PeriodType: l.PeriodType, StartDate: l.StartDate}
}

// SeriesPoint is one bucket of a chart series.
type SeriesPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// SummaryChart is the chart payload served to clients: the decoded series
// of one adjustment summary.
type SummaryChart struct {
	ForecastKey
	PeriodType       PeriodType    `json:"period_type"`
	StartWindow      time.Time     `json:"start_window"`
	EndWindow        time.Time     `json:"end_window"`
	HistoricalSeries []SeriesPoint `json:"historical_series"`
	ForecastSeries   []SeriesPoint `json:"forecast_series"`
	LastUpdate       *time.Time    `json:"last_update,omitempty"`
}

// AdjustmentSummary aggregates the rolling window of adjustment lines for
// one (subject, period_type) into chart-ready series.
type AdjustmentSummary struct {
	ID int64 `json:"id" db:"id"`
	ForecastKey
	PeriodType        PeriodType     `json:"period_type" db:"period_type"`
	StartWindow       time.Time      `json:"start_window" db:"start_window"`
	EndWindow         time.Time      `json:"end_window" db:"end_window"`
	HistoricalSeries  types.JSONText `json:"historical_series" db:"historical_series"`
	ForecastSeries    types.JSONText `json:"forecast_series" db:"forecast_series"`
	LastUpdate        *time.Time     `json:"last_update,omitempty" db:"last_update"`
	LastReceiveResult *time.Time     `json:"last_receive_result,omitempty" db:"last_receive_result"`
}

// DailyForecast is one calendar day of a decomposed adjustment line.
// Active rows are the readable set; recomputation swaps the whole window
// inside one transaction.
type DailyForecast struct {
	ID     int64 `json:"id" db:"id"`
	LineID int64 `json:"adjust_line_id" db:"adjust_line_id"`
	ForecastKey
	Date   time.Time `json:"date" db:"date"`
	Value  float64   `json:"value" db:"value"`
	Active bool      `json:"active" db:"active"`
}

// DemandClassificationResult is a snapshot of the demand-pattern class the
// engine assigned to a subject. HasApproved gates promotion into the
// product classification info.
type DemandClassificationResult struct {
	ID int64 `json:"id" db:"id"`
	ForecastKey
	DemandType  string    `json:"demand_type" db:"demand_type"`
	PubTime     time.Time `json:"pub_time" db:"pub_time"`
	HasApproved bool      `json:"has_approved" db:"has_approved"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// ServiceLevelResult is a snapshot of the ABC service tier the engine
// assigned to a subject.
type ServiceLevelResult struct {
	ID int64 `json:"id" db:"id"`
	ForecastKey
	ServiceLevel string    `json:"service_level" db:"service_level"`
	PubTime      time.Time `json:"pub_time" db:"pub_time"`
	HasApproved  bool      `json:"has_approved" db:"has_approved"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// SummarizeResult is a snapshot of summarized actual demand for one bucket,
// produced by the engine from order history.
type SummarizeResult struct {
	ID int64 `json:"id" db:"id"`
	ForecastKey
	PeriodType PeriodType `json:"period_type" db:"period_type"`
	StartDate  time.Time  `json:"start_date" db:"start_date"`
	EndDate    time.Time  `json:"end_date" db:"end_date"`
	PubTime    time.Time  `json:"pub_time" db:"pub_time"`
	Value      float64    `json:"summarize_value" db:"summarize_value"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// ProductClassificationInfo is the current-truth row for a subject: the
// latest approved demand class and service tier, and the forecast group
// they map to.
type ProductClassificationInfo struct {
	ID int64 `json:"id" db:"id"`
	ForecastKey
	DemandType           string    `json:"demand_type" db:"demand_type"`
	ServiceLevel         string    `json:"service_level" db:"service_level"`
	ForecastGroup        string    `json:"forecast_group" db:"forecast_group"`
	ActualDemandID       *int64    `json:"actual_demand_id,omitempty" db:"actual_demand_id"`
	ActualServiceLevelID *int64    `json:"actual_service_level_id,omitempty" db:"actual_service_level_id"`
	UpdatedAt            time.Time `json:"updated_at" db:"updated_at"`
}

// Product carries the replenishment attributes the recommender needs.
type Product struct {
	ID          int64   `json:"id" db:"id"`
	SKU         string  `json:"sku" db:"sku"`
	Name        string  `json:"name" db:"name"`
	UoMRounding float64 `json:"uom_rounding" db:"uom_rounding"`
	// LeadTimeDays is the max of the vendor and manufacturing delays.
	LeadTimeDays int     `json:"lead_time_days" db:"lead_time_days"`
	UnitCost     float64 `json:"unit_cost" db:"unit_cost"`
}

// ReorderingTracker is a write-once snapshot of one recommendation run.
type ReorderingTracker struct {
	ID int64 `json:"id" db:"id"`
	ForecastKey
	MinForecast         float64   `json:"new_min_forecast" db:"new_min_forecast"`
	MaxForecast         float64   `json:"new_max_forecast" db:"new_max_forecast"`
	SafetyStockForecast float64   `json:"new_safety_stock_forecast" db:"new_safety_stock_forecast"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
}

// ReorderingMonitor is the row downstream replenishment reads. The New*
// columns are nullable and owned by the user once set; promotion refreshes
// only the *_forecast suggestions.
type ReorderingMonitor struct {
	ID int64 `json:"id" db:"id"`
	ForecastKey
	MinForecast         float64   `json:"new_min_forecast" db:"new_min_forecast"`
	MaxForecast         float64   `json:"new_max_forecast" db:"new_max_forecast"`
	SafetyStockForecast float64   `json:"new_safety_stock_forecast" db:"new_safety_stock_forecast"`
	NewMinQty           *float64  `json:"new_min_qty,omitempty" db:"new_min_qty"`
	NewMaxQty           *float64  `json:"new_max_qty,omitempty" db:"new_max_qty"`
	NewSafetyStock      *float64  `json:"new_safety_stock,omitempty" db:"new_safety_stock"`
	UpdatedAt           time.Time `json:"updated_at" db:"updated_at"`
}
