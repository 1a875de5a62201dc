package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/stockwise/forecaster/internal/domain"
	"github.com/stockwise/forecaster/internal/service"
)

// SummaryHandler serves chart payloads for the adjustment dashboards.
type SummaryHandler struct {
	service *service.SummaryService
}

func NewSummaryHandler(summary *service.SummaryService) *SummaryHandler {
	return &SummaryHandler{service: summary}
}

func parseKey(c *gin.Context) (domain.ForecastKey, bool) {
	var key domain.ForecastKey
	var err error
	if key.ProductID, err = strconv.ParseInt(c.Query("product_id"), 10, 64); err != nil {
		return key, false
	}
	if key.CompanyID, err = strconv.ParseInt(c.Query("company_id"), 10, 64); err != nil {
		return key, false
	}
	if key.WarehouseID, err = strconv.ParseInt(c.Query("warehouse_id"), 10, 64); err != nil {
		return key, false
	}
	if raw := c.Query("lot_stock_id"); raw != "" {
		if key.LotStockID, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return key, false
		}
	}
	return key, true
}

func (h *SummaryHandler) GetChart(c *gin.Context) {
	key, ok := parseKey(c)
	if !ok {
		respond(c, http.StatusBadRequest, "product_id, company_id and warehouse_id must be integers")
		return
	}
	periodType := domain.PeriodType(c.DefaultQuery("period_type", string(domain.PeriodWeekly)))

	chart, err := h.service.Chart(c.Request.Context(), key, periodType)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, chart)
}
