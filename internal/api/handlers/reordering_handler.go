package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/stockwise/forecaster/internal/domain"
	"github.com/stockwise/forecaster/internal/service"
)

// ReorderingHandler exposes the monitor rows downstream replenishment
// reads, plus the user edit path.
type ReorderingHandler struct {
	service *service.ReorderingService
}

func NewReorderingHandler(reordering *service.ReorderingService) *ReorderingHandler {
	return &ReorderingHandler{service: reordering}
}

func (h *ReorderingHandler) ListMonitors(c *gin.Context) {
	companyID, err := strconv.ParseInt(c.Query("company_id"), 10, 64)
	if err != nil {
		respond(c, http.StatusBadRequest, "company_id must be an integer")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	monitors, err := h.service.ListMonitors(c.Request.Context(), companyID, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"monitors": monitors,
		"total":    len(monitors),
	})
}

func (h *ReorderingHandler) GetMonitor(c *gin.Context) {
	key, ok := parseKey(c)
	if !ok {
		respond(c, http.StatusBadRequest, "product_id, company_id and warehouse_id must be integers")
		return
	}

	monitor, err := h.service.GetMonitor(c.Request.Context(), key)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, monitor)
}

type updateQuantitiesRequest struct {
	ProductID      int64    `json:"product_id" binding:"required"`
	CompanyID      int64    `json:"company_id" binding:"required"`
	WarehouseID    int64    `json:"warehouse_id" binding:"required"`
	LotStockID     int64    `json:"lot_stock_id"`
	NewMinQty      *float64 `json:"new_min_qty"`
	NewMaxQty      *float64 `json:"new_max_qty"`
	NewSafetyStock *float64 `json:"new_safety_stock"`
}

func (h *ReorderingHandler) UpdateQuantities(c *gin.Context) {
	var req updateQuantitiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, "malformed request body")
		return
	}

	key := domain.ForecastKey{
		ProductID:   req.ProductID,
		CompanyID:   req.CompanyID,
		WarehouseID: req.WarehouseID,
		LotStockID:  req.LotStockID,
	}
	monitor, err := h.service.UpdateQuantities(c.Request.Context(), key, req.NewMinQty, req.NewMaxQty, req.NewSafetyStock)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, monitor)
}
