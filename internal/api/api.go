// internal/api/api.go
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stockwise/forecaster/internal/api/handlers"
	"github.com/stockwise/forecaster/internal/api/middleware"
	"github.com/stockwise/forecaster/internal/service"
)

type Services struct {
	IngestService     *service.IngestService
	SummaryService    *service.SummaryService
	ReorderingService *service.ReorderingService
}

func NewRouter(services *Services, allowedOrigins []string) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	corsConfig := cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) > 0 {
		normalizedOrigins, allowAll := normalizeAllowedOrigins(allowedOrigins)
		if allowAll {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowOriginFunc = func(origin string) bool { return true }
		} else if len(normalizedOrigins) > 0 {
			corsConfig.AllowOrigins = normalizedOrigins
		}
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiGroup := router.Group("/api/v1")

	if services != nil {
		if services.IngestService != nil {
			ingestHandler := handlers.NewIngestHandler(services.IngestService)
			forecastGroup := apiGroup.Group("/forecast")
			{
				forecastGroup.POST("/results", ingestHandler.PostForecasts)
				forecastGroup.POST("/classifications", ingestHandler.PostClassifications)
				forecastGroup.POST("/service_levels", ingestHandler.PostServiceLevels)
				forecastGroup.POST("/demand", ingestHandler.PostDemand)
			}
		}

		if services.SummaryService != nil {
			summaryHandler := handlers.NewSummaryHandler(services.SummaryService)
			apiGroup.GET("/forecast/summary", summaryHandler.GetChart)
		}

		if services.ReorderingService != nil {
			reorderingHandler := handlers.NewReorderingHandler(services.ReorderingService)
			reorderingGroup := apiGroup.Group("/reordering")
			{
				reorderingGroup.GET("/monitors", reorderingHandler.ListMonitors)
				reorderingGroup.GET("/monitor", reorderingHandler.GetMonitor)
				reorderingGroup.PUT("/monitor", reorderingHandler.UpdateQuantities)
			}
		}
	}

	return router
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		for _, part := range strings.Split(origin, ",") {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if trimmed == "*" {
				allowAll = true
				continue
			}
			parsed = append(parsed, trimmed)
		}
	}
	return parsed, allowAll
}
