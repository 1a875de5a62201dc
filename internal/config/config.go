// internal/config/config.go
package config

import (
	"sync"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Cache       CacheConfig
	Forecasting ForecastingConfig
	Engine      EngineConfig
	Archive     ArchiveConfig
	Worker      WorkerConfig
	Auth        AuthConfig
}

type ServerConfig struct {
	Port           string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type CacheConfig struct {
	Enabled           bool
	RedisURL          string
	RedisHost         string
	RedisPort         string
	RedisPassword     string
	RedisDB           int
	SummaryTTLSeconds int
}

// ForecastingConfig carries the per-tenant forecasting parameters. It is
// loaded once and injected into component constructors; nothing reads a
// parameter store at runtime.
type ForecastingConfig struct {
	// PastPeriods and FuturePeriods bound the rolling adjustment window.
	// Both are clamped to [6, 24].
	PastPeriods   int
	FuturePeriods int

	// Batches smaller than ThresholdToTriggerQueueJob run inline instead of
	// going through the delayed-task queue.
	ThresholdToTriggerQueueJob int
	AllowTriggerQueueJob       bool

	// Service-level percentages by ABC class.
	ServiceLevelA float64
	ServiceLevelB float64
	ServiceLevelC float64

	// Cost parameters fed to the reordering computation.
	HoldingCostPct float64
	FlatCostPerPO  float64
	FlatCostPerMO  float64
}

type EngineConfig struct {
	BaseURL        string
	TimeoutSeconds int
}

// ArchiveConfig configures the object-storage archive of rejected
// ingestion batches.
type ArchiveConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type WorkerConfig struct {
	Count               int
	PollIntervalSeconds int
	StatusPort          string
}

type AuthConfig struct {
	// ServerPassHash is the bcrypt hash the ingestion shared secret is
	// checked against.
	ServerPassHash string
}

const (
	minWindowPeriods = 6
	maxWindowPeriods = 24
)

var (
	once     sync.Once
	instance *Config
)

func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		viper.SetDefault("SERVER_PORT", "8080")
		viper.SetDefault("SERVER_MODE", "debug")
		viper.SetDefault("SERVER_READ_TIMEOUT", 15)
		viper.SetDefault("SERVER_WRITE_TIMEOUT", 15)
		viper.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})
		viper.SetDefault("DB_HOST", "localhost")
		viper.SetDefault("DB_PORT", "5432")
		viper.SetDefault("DB_USER", "postgres")
		viper.SetDefault("DB_PASSWORD", "postgres")
		viper.SetDefault("DB_NAME", "forecaster")
		viper.SetDefault("DB_SSLMODE", "disable")
		viper.SetDefault("CACHE_ENABLED", false)
		viper.SetDefault("REDIS_URL", "")
		viper.SetDefault("REDIS_HOST", "127.0.0.1")
		viper.SetDefault("REDIS_PORT", "6379")
		viper.SetDefault("REDIS_PASSWORD", "")
		viper.SetDefault("REDIS_DB", 0)
		viper.SetDefault("CACHE_SUMMARY_TTL_SECONDS", 300)
		viper.SetDefault("FORECAST_PAST_PERIODS", 24)
		viper.SetDefault("FORECAST_FUTURE_PERIODS", 6)
		viper.SetDefault("QUEUE_JOB_THRESHOLD", 10)
		viper.SetDefault("QUEUE_JOB_ENABLED", true)
		viper.SetDefault("SERVICE_LEVEL_A", 96.0)
		viper.SetDefault("SERVICE_LEVEL_B", 91.0)
		viper.SetDefault("SERVICE_LEVEL_C", 85.0)
		viper.SetDefault("HOLDING_COST_PCT", 20.0)
		viper.SetDefault("FLAT_COST_PER_PO", 0.0)
		viper.SetDefault("FLAT_COST_PER_MO", 0.0)
		viper.SetDefault("ENGINE_BASE_URL", "http://localhost:9000")
		viper.SetDefault("ENGINE_TIMEOUT_SECONDS", 30)
		viper.SetDefault("ARCHIVE_ENABLED", false)
		viper.SetDefault("ARCHIVE_ENDPOINT", "")
		viper.SetDefault("ARCHIVE_ACCESS_KEY", "")
		viper.SetDefault("ARCHIVE_SECRET_KEY", "")
		viper.SetDefault("ARCHIVE_BUCKET", "forecast-batches")
		viper.SetDefault("ARCHIVE_USE_SSL", true)
		viper.SetDefault("WORKER_COUNT", 4)
		viper.SetDefault("WORKER_POLL_INTERVAL_SECONDS", 5)
		viper.SetDefault("WORKER_STATUS_PORT", "8090")
		viper.SetDefault("SERVER_PASS_HASH", "")

		viper.AutomaticEnv()

		instance = &Config{
			Server: ServerConfig{
				Port:           viper.GetString("SERVER_PORT"),
				Mode:           viper.GetString("SERVER_MODE"),
				ReadTimeout:    viper.GetInt("SERVER_READ_TIMEOUT"),
				WriteTimeout:   viper.GetInt("SERVER_WRITE_TIMEOUT"),
				AllowedOrigins: viper.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
			},
			Database: DatabaseConfig{
				Host:     viper.GetString("DB_HOST"),
				Port:     viper.GetString("DB_PORT"),
				User:     viper.GetString("DB_USER"),
				Password: viper.GetString("DB_PASSWORD"),
				DBName:   viper.GetString("DB_NAME"),
				SSLMode:  viper.GetString("DB_SSLMODE"),
			},
			Cache: CacheConfig{
				Enabled:           viper.GetBool("CACHE_ENABLED"),
				RedisURL:          viper.GetString("REDIS_URL"),
				RedisHost:         viper.GetString("REDIS_HOST"),
				RedisPort:         viper.GetString("REDIS_PORT"),
				RedisPassword:     viper.GetString("REDIS_PASSWORD"),
				RedisDB:           viper.GetInt("REDIS_DB"),
				SummaryTTLSeconds: viper.GetInt("CACHE_SUMMARY_TTL_SECONDS"),
			},
			Forecasting: ForecastingConfig{
				PastPeriods:                clampWindow("FORECAST_PAST_PERIODS", viper.GetInt("FORECAST_PAST_PERIODS")),
				FuturePeriods:              clampWindow("FORECAST_FUTURE_PERIODS", viper.GetInt("FORECAST_FUTURE_PERIODS")),
				ThresholdToTriggerQueueJob: viper.GetInt("QUEUE_JOB_THRESHOLD"),
				AllowTriggerQueueJob:       viper.GetBool("QUEUE_JOB_ENABLED"),
				ServiceLevelA:              viper.GetFloat64("SERVICE_LEVEL_A"),
				ServiceLevelB:              viper.GetFloat64("SERVICE_LEVEL_B"),
				ServiceLevelC:              viper.GetFloat64("SERVICE_LEVEL_C"),
				HoldingCostPct:             viper.GetFloat64("HOLDING_COST_PCT"),
				FlatCostPerPO:              viper.GetFloat64("FLAT_COST_PER_PO"),
				FlatCostPerMO:              viper.GetFloat64("FLAT_COST_PER_MO"),
			},
			Engine: EngineConfig{
				BaseURL:        viper.GetString("ENGINE_BASE_URL"),
				TimeoutSeconds: viper.GetInt("ENGINE_TIMEOUT_SECONDS"),
			},
			Archive: ArchiveConfig{
				Enabled:   viper.GetBool("ARCHIVE_ENABLED"),
				Endpoint:  viper.GetString("ARCHIVE_ENDPOINT"),
				AccessKey: viper.GetString("ARCHIVE_ACCESS_KEY"),
				SecretKey: viper.GetString("ARCHIVE_SECRET_KEY"),
				Bucket:    viper.GetString("ARCHIVE_BUCKET"),
				UseSSL:    viper.GetBool("ARCHIVE_USE_SSL"),
			},
			Worker: WorkerConfig{
				Count:               viper.GetInt("WORKER_COUNT"),
				PollIntervalSeconds: viper.GetInt("WORKER_POLL_INTERVAL_SECONDS"),
				StatusPort:          viper.GetString("WORKER_STATUS_PORT"),
			},
			Auth: AuthConfig{
				ServerPassHash: viper.GetString("SERVER_PASS_HASH"),
			},
		}
	})

	return instance
}

func clampWindow(name string, v int) int {
	if v < minWindowPeriods {
		log.Warn().Str("param", name).Int("value", v).Int("min", minWindowPeriods).Msg("window periods below minimum, clamping")
		return minWindowPeriods
	}
	if v > maxWindowPeriods {
		log.Warn().Str("param", name).Int("value", v).Int("max", maxWindowPeriods).Msg("window periods above maximum, clamping")
		return maxWindowPeriods
	}
	return v
}
