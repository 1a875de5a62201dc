package cache

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/stockwise/forecaster/internal/config"
	"github.com/stockwise/forecaster/internal/domain"
)

const summaryKeyPrefix = "summary:"

// SummaryCache caches chart payloads so repeated dashboard reads skip the
// database. A miss returns (nil, nil).
type SummaryCache interface {
	Get(ctx context.Context, key domain.ForecastKey, periodType domain.PeriodType) (*domain.SummaryChart, error)
	Set(ctx context.Context, chart *domain.SummaryChart) error
	InvalidateAll(ctx context.Context) error
}

type redisSummaryCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSummaryCache builds the redis-backed cache, or a noop when caching is
// disabled or redis is unreachable.
func NewSummaryCache(cfg config.CacheConfig) SummaryCache {
	if !cfg.Enabled {
		return NoopSummaryCache{}
	}
	client, ttl, err := newRedisClient(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("summary cache disabled, falling back to noop")
		return NoopSummaryCache{}
	}
	return &redisSummaryCache{client: client, ttl: ttl}
}

func summaryCacheKey(key domain.ForecastKey, periodType domain.PeriodType) string {
	raw := fmt.Sprintf("%d:%d:%d:%d:%s", key.ProductID, key.CompanyID, key.WarehouseID, key.LotStockID, periodType)
	return summaryKeyPrefix + fmt.Sprintf("%x", sha1.Sum([]byte(raw)))
}

func (c *redisSummaryCache) Get(ctx context.Context, key domain.ForecastKey, periodType domain.PeriodType) (*domain.SummaryChart, error) {
	raw, err := c.client.Get(ctx, summaryCacheKey(key, periodType)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("summary cache get failed: %w", err)
	}
	var chart domain.SummaryChart
	if err := json.Unmarshal(raw, &chart); err != nil {
		return nil, fmt.Errorf("summary cache payload corrupt: %w", err)
	}
	return &chart, nil
}

func (c *redisSummaryCache) Set(ctx context.Context, chart *domain.SummaryChart) error {
	raw, err := json.Marshal(chart)
	if err != nil {
		return fmt.Errorf("summary cache marshal failed: %w", err)
	}
	if err := c.client.Set(ctx, summaryCacheKey(chart.ForecastKey, chart.PeriodType), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("summary cache set failed: %w", err)
	}
	return nil
}

func (c *redisSummaryCache) InvalidateAll(ctx context.Context) error {
	return deleteKeysWithPrefix(ctx, c.client, summaryKeyPrefix, 100)
}

// NoopSummaryCache always misses.
type NoopSummaryCache struct{}

func (NoopSummaryCache) Get(ctx context.Context, key domain.ForecastKey, periodType domain.PeriodType) (*domain.SummaryChart, error) {
	return nil, nil
}
func (NoopSummaryCache) Set(ctx context.Context, chart *domain.SummaryChart) error { return nil }
func (NoopSummaryCache) InvalidateAll(ctx context.Context) error                   { return nil }
