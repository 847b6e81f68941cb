// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases (always absolute)
	Port     int
	DevMode  bool
	LogLevel string

	// External collaborators
	BrokerAPIURL      string
	BrokerAPIKey      string
	BrokerAPISecret   string
	FillStreamURL     string // WebSocket endpoint of the trade-fill event source
	EngineURLs        map[string]string
	EngineTimeout     time.Duration // Per-engine fetch deadline for aggregation fan-out
	BrokerCallTimeout time.Duration

	Aggregation    AggregationConfig
	Calibration    CalibrationConfig
	Health         HealthConfig
	Reconciliation ReconciliationConfig
	TaxLots        TaxLotConfig
	Backup         BackupConfig
}

// AggregationConfig holds signal aggregation tunables
type AggregationConfig struct {
	DegradedPenalty float64 // Confidence multiplier when fewer than MinEngines respond
	MinEngines      int     // Responders below this flag the result degraded
}

// CalibrationConfig holds confidence calibration tunables
type CalibrationConfig struct {
	Buckets          int     // Number of fixed-width confidence buckets
	MinSamples       int     // Closed executions required before calibrating
	UncertaintyFloor float64 // Uncertainty never drops below this
}

// HealthConfig holds strategy health / alpha-decay tunables
type HealthConfig struct {
	WindowSize        int     // Closed executions per evaluation window
	MinObservations   int     // Observations required before decay is computed
	WinRateDegrading  float64 // healthy -> degrading below this
	WinRateCritical   float64 // degrading -> critical below this
	DecayRateLimit    float64 // healthy -> degrading above this decay magnitude
	SharpeCritical    float64 // degrading -> critical below this sharpe
	HysteresisWindows int     // Consecutive out-of-threshold windows required for a transition
	CriticalMaxAge    time.Duration
	Schedule          string // Cron expression for health evaluation
}

// ReconciliationConfig holds ledger reconciliation tunables
type ReconciliationConfig struct {
	Schedule           string  // Cron expression for scheduled passes
	QuantityTolerance  float64 // Absolute qty difference still considered a match
	CostBasisTolerance float64 // Absolute cost basis difference still considered a match
}

// TaxLotConfig holds tax lot engine tunables
type TaxLotConfig struct {
	MatchStrategy      string // fifo, lifo or hifo
	WashSaleWindowDays int
	LongTermDays       int
}

// BackupConfig holds S3-compatible ledger backup settings
type BackupConfig struct {
	Enabled       bool
	Schedule      string
	Endpoint      string // S3-compatible endpoint (empty = AWS default resolution)
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	RetentionDays int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("VERDICT_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("VERDICT_PORT", 8002),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		BrokerAPIURL:    getEnv("BROKER_API_URL", "http://localhost:8100"),
		BrokerAPIKey:    getEnv("BROKER_API_KEY", ""),
		BrokerAPISecret: getEnv("BROKER_API_SECRET", ""),
		FillStreamURL:   getEnv("FILL_STREAM_URL", ""),
		EngineURLs: map[string]string{
			"technical":    getEnv("ENGINE_TECHNICAL_URL", "http://localhost:9101"),
			"fundamental":  getEnv("ENGINE_FUNDAMENTAL_URL", "http://localhost:9102"),
			"quantitative": getEnv("ENGINE_QUANTITATIVE_URL", "http://localhost:9103"),
			"sentiment":    getEnv("ENGINE_SENTIMENT_URL", "http://localhost:9104"),
		},
		EngineTimeout:     getEnvAsDuration("ENGINE_TIMEOUT", 3*time.Second),
		BrokerCallTimeout: getEnvAsDuration("BROKER_CALL_TIMEOUT", 10*time.Second),

		Aggregation: AggregationConfig{
			DegradedPenalty: getEnvAsFloat("AGG_DEGRADED_PENALTY", 0.5),
			MinEngines:      getEnvAsInt("AGG_MIN_ENGINES", 2),
		},
		Calibration: CalibrationConfig{
			Buckets:          getEnvAsInt("CALIBRATION_BUCKETS", 10),
			MinSamples:       getEnvAsInt("CALIBRATION_MIN_SAMPLES", 20),
			UncertaintyFloor: getEnvAsFloat("CALIBRATION_UNCERTAINTY_FLOOR", 0.05),
		},
		Health: HealthConfig{
			WindowSize:        getEnvAsInt("HEALTH_WINDOW_SIZE", 30),
			MinObservations:   getEnvAsInt("HEALTH_MIN_OBSERVATIONS", 10),
			WinRateDegrading:  getEnvAsFloat("HEALTH_WIN_RATE_DEGRADING", 0.45),
			WinRateCritical:   getEnvAsFloat("HEALTH_WIN_RATE_CRITICAL", 0.35),
			DecayRateLimit:    getEnvAsFloat("HEALTH_DECAY_RATE_LIMIT", 0.10),
			SharpeCritical:    getEnvAsFloat("HEALTH_SHARPE_CRITICAL", -0.5),
			HysteresisWindows: getEnvAsInt("HEALTH_HYSTERESIS_WINDOWS", 2),
			CriticalMaxAge:    getEnvAsDuration("HEALTH_CRITICAL_MAX_AGE", 14*24*time.Hour),
			Schedule:          getEnv("HEALTH_SCHEDULE", "@every 1h"),
		},
		Reconciliation: ReconciliationConfig{
			Schedule:           getEnv("RECONCILIATION_SCHEDULE", "@every 15m"),
			QuantityTolerance:  getEnvAsFloat("RECONCILIATION_QTY_TOLERANCE", 1e-6),
			CostBasisTolerance: getEnvAsFloat("RECONCILIATION_COST_TOLERANCE", 0.01),
		},
		TaxLots: TaxLotConfig{
			MatchStrategy:      getEnv("TAXLOT_MATCH_STRATEGY", "fifo"),
			WashSaleWindowDays: getEnvAsInt("TAXLOT_WASH_SALE_WINDOW_DAYS", 30),
			LongTermDays:       getEnvAsInt("TAXLOT_LONG_TERM_DAYS", 365),
		},
		Backup: BackupConfig{
			Enabled:       getEnvAsBool("BACKUP_ENABLED", false),
			Schedule:      getEnv("BACKUP_SCHEDULE", "0 0 3 * * *"),
			Endpoint:      getEnv("BACKUP_S3_ENDPOINT", ""),
			Region:        getEnv("BACKUP_S3_REGION", "auto"),
			Bucket:        getEnv("BACKUP_S3_BUCKET", ""),
			AccessKey:     getEnv("BACKUP_S3_ACCESS_KEY", ""),
			SecretKey:     getEnv("BACKUP_S3_SECRET_KEY", ""),
			RetentionDays: getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present and consistent
func (c *Config) Validate() error {
	if c.Aggregation.DegradedPenalty <= 0 || c.Aggregation.DegradedPenalty > 1 {
		return fmt.Errorf("AGG_DEGRADED_PENALTY must be in (0,1], got %f", c.Aggregation.DegradedPenalty)
	}
	if c.Calibration.Buckets < 2 {
		return fmt.Errorf("CALIBRATION_BUCKETS must be at least 2, got %d", c.Calibration.Buckets)
	}
	if c.Health.HysteresisWindows < 1 {
		return fmt.Errorf("HEALTH_HYSTERESIS_WINDOWS must be at least 1, got %d", c.Health.HysteresisWindows)
	}
	switch c.TaxLots.MatchStrategy {
	case "fifo", "lifo", "hifo":
	default:
		return fmt.Errorf("TAXLOT_MATCH_STRATEGY must be fifo, lifo or hifo, got %q", c.TaxLots.MatchStrategy)
	}
	if c.Backup.Enabled && c.Backup.Bucket == "" {
		return fmt.Errorf("BACKUP_S3_BUCKET required when backups are enabled")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
