// internal/engine/client.go
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/stockwise/forecaster/internal/config"
	"github.com/stockwise/forecaster/internal/domain"
)

// ReorderingRequest is the per-product payload assembled for the external
// forecasting engine. The reorder-point formula itself lives in the engine;
// this service only gathers inputs and reconciles the response.
type ReorderingRequest struct {
	ProductID   int64 `json:"product_id"`
	CompanyID   int64 `json:"company_id"`
	WarehouseID int64 `json:"warehouse_id"`

	LeadTimeDays       int       `json:"lead_time_days"`
	DemandOverLeadTime float64   `json:"demand_over_lead_time"`
	DemandHistory      []float64 `json:"demand_history"`

	ServiceLevelPct float64 `json:"service_level_pct"`
	HoldingCostPct  float64 `json:"holding_cost_pct"`
	FlatCostPerPO   float64 `json:"flat_cost_per_po"`
	FlatCostPerMO   float64 `json:"flat_cost_per_mo"`
	UnitCost        float64 `json:"unit_cost"`
}

// ReorderingResponse carries the engine's suggested reorder points.
type ReorderingResponse struct {
	MinForecast         float64 `json:"new_min_forecast"`
	MaxForecast         float64 `json:"new_max_forecast"`
	SafetyStockForecast float64 `json:"new_safety_stock_forecast"`
}

// Client is the outbound boundary to the forecasting engine.
type Client interface {
	ComputeReordering(ctx context.Context, req ReorderingRequest) (*ReorderingResponse, error)
}

type httpClient struct {
	baseURL string
	client  *http.Client
}

func NewClient(cfg config.EngineConfig) Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &httpClient{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *httpClient) ComputeReordering(ctx context.Context, req ReorderingRequest) (*ReorderingResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode reordering request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/reordering/compute", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("engine request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("engine returned status %d", resp.StatusCode)
	}

	var out ReorderingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode engine response: %w", err)
	}
	if out.MinForecast > out.MaxForecast {
		return nil, fmt.Errorf("%w: engine suggested min %.4f > max %.4f", domain.ErrInvalidRange, out.MinForecast, out.MaxForecast)
	}
	return &out, nil
}
