// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the engine database (always absolute)
	LogLevel string
	DevMode  bool

	Engine EngineConfig
	Jobs   JobsConfig
	Backup BackupConfig
}

// EngineConfig holds the engine's policy knobs. Every constant the automation
// components apply (drift threshold, Kelly scaling, risk thresholds) is
// configurable here rather than hard-coded in the services.
type EngineConfig struct {
	RebalanceThreshold    float64 // Max tolerated |drift| before rebalancing (default 0.05)
	RiskFreeRate          float64 // Annual risk-free rate used by Sharpe figures (default 0.02)
	VaRConfidence         float64 // Confidence level for parametric VaR (default 0.95)
	MaxPositionWeight     float64 // Single-position weight above which sizing is capped (default 0.20)
	ConcentrationWarning  float64 // Concentration above which a recommendation fires (default 0.40)
	KellyFraction         float64 // Fractional Kelly multiplier (default 0.25)
	KellyMaxPortfolioPct  float64 // Kelly position cap as a fraction of portfolio value (default 0.10)
	VolatilityEstimateLen int     // Rolling window (trading days) for volatility estimation (default 30)
}

// JobsConfig holds cron schedules for the background jobs.
type JobsConfig struct {
	CycleSchedule       string // Automation cycle (default: every 15 minutes)
	HealthSchedule      string // Health check (default: hourly)
	BackupSchedule      string // Database backup (default: daily at 02:00)
	MaintenanceSchedule string // Data pruning and compaction (default: Sunday 03:30)
}

// BackupConfig holds S3-compatible backup target settings. Backups are
// disabled when the bucket is empty.
type BackupConfig struct {
	Bucket          string
	Endpoint        string // Custom endpoint for S3-compatible stores (R2, minio); empty for AWS
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	RetainCount     int // Number of backup archives to keep remotely
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("HELMSMAN_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		Engine: EngineConfig{
			RebalanceThreshold:    getEnvAsFloat("REBALANCE_THRESHOLD", 0.05),
			RiskFreeRate:          getEnvAsFloat("RISK_FREE_RATE", 0.02),
			VaRConfidence:         getEnvAsFloat("VAR_CONFIDENCE", 0.95),
			MaxPositionWeight:     getEnvAsFloat("MAX_POSITION_WEIGHT", 0.20),
			ConcentrationWarning:  getEnvAsFloat("CONCENTRATION_WARNING", 0.40),
			KellyFraction:         getEnvAsFloat("KELLY_FRACTION", 0.25),
			KellyMaxPortfolioPct:  getEnvAsFloat("KELLY_MAX_PORTFOLIO_PCT", 0.10),
			VolatilityEstimateLen: getEnvAsInt("VOLATILITY_ESTIMATE_DAYS", 30),
		},
		Jobs: JobsConfig{
			CycleSchedule:       getEnv("CYCLE_SCHEDULE", "0 */15 * * * *"),
			HealthSchedule:      getEnv("HEALTH_SCHEDULE", "0 0 * * * *"),
			BackupSchedule:      getEnv("BACKUP_SCHEDULE", "0 0 2 * * *"),
			MaintenanceSchedule: getEnv("MAINTENANCE_SCHEDULE", "0 30 3 * * 0"),
		},
		Backup: BackupConfig{
			Bucket:          getEnv("BACKUP_S3_BUCKET", ""),
			Endpoint:        getEnv("BACKUP_S3_ENDPOINT", ""),
			Region:          getEnv("BACKUP_S3_REGION", "auto"),
			AccessKeyID:     getEnv("BACKUP_S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("BACKUP_S3_SECRET_ACCESS_KEY", ""),
			RetainCount:     getEnvAsInt("BACKUP_RETAIN_COUNT", 14),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that policy values are in range.
func (c *Config) Validate() error {
	e := c.Engine
	if e.RebalanceThreshold <= 0 || e.RebalanceThreshold >= 1 {
		return fmt.Errorf("REBALANCE_THRESHOLD must be in (0, 1), got %f", e.RebalanceThreshold)
	}
	if e.VaRConfidence <= 0 || e.VaRConfidence >= 1 {
		return fmt.Errorf("VAR_CONFIDENCE must be in (0, 1), got %f", e.VaRConfidence)
	}
	if e.KellyFraction <= 0 || e.KellyFraction > 1 {
		return fmt.Errorf("KELLY_FRACTION must be in (0, 1], got %f", e.KellyFraction)
	}
	if e.KellyMaxPortfolioPct <= 0 || e.KellyMaxPortfolioPct > 1 {
		return fmt.Errorf("KELLY_MAX_PORTFOLIO_PCT must be in (0, 1], got %f", e.KellyMaxPortfolioPct)
	}
	if c.Backup.Bucket != "" && (c.Backup.AccessKeyID == "" || c.Backup.SecretAccessKey == "") {
		return fmt.Errorf("BACKUP_S3_BUCKET is set but S3 credentials are missing")
	}
	return nil
}

// DatabasePath returns the path of the engine database file.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "helmsman.db")
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
