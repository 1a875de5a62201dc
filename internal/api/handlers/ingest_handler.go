package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/stockwise/forecaster/internal/service"
)

// IngestHandler receives engine publish batches.
type IngestHandler struct {
	service *service.IngestService
}

func NewIngestHandler(ingest *service.IngestService) *IngestHandler {
	return &IngestHandler{service: ingest}
}

func (h *IngestHandler) PostForecasts(c *gin.Context) {
	var req service.ForecastIngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, "malformed request body")
		return
	}

	count, err := h.service.IngestForecasts(c.Request.Context(), &req)
	if err != nil {
		log.Error().Err(err).Msg("forecast ingestion failed")
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, fmt.Sprintf("%d forecast records accepted", count))
}

func (h *IngestHandler) PostClassifications(c *gin.Context) {
	var req service.ClassificationIngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, "malformed request body")
		return
	}

	count, err := h.service.IngestClassifications(c.Request.Context(), &req)
	if err != nil {
		log.Error().Err(err).Msg("classification ingestion failed")
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, fmt.Sprintf("%d classification records accepted", count))
}

func (h *IngestHandler) PostServiceLevels(c *gin.Context) {
	var req service.ServiceLevelIngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, "malformed request body")
		return
	}

	count, err := h.service.IngestServiceLevels(c.Request.Context(), &req)
	if err != nil {
		log.Error().Err(err).Msg("service level ingestion failed")
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, fmt.Sprintf("%d service level records accepted", count))
}

func (h *IngestHandler) PostDemand(c *gin.Context) {
	var req service.DemandIngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, "malformed request body")
		return
	}

	count, err := h.service.IngestDemand(c.Request.Context(), &req)
	if err != nil {
		log.Error().Err(err).Msg("demand ingestion failed")
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, fmt.Sprintf("%d demand records accepted", count))
}
