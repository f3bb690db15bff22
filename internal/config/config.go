// Package config loads tool configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration. Command-line flags override it.
type Config struct {
	LogLevel  string
	LogPretty bool

	CacheSize       int
	SolverMaxIter   int
	SolverTolerance float64
	Workers         int
	PathTimeout     time.Duration
	StopWhenRetired bool
	PostgresDSN     string
	ClickHouseDSN   string
	MetricsAddr     string
	OutputDir       string
}

// Load reads configuration from environment variables, after loading a .env
// file if one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		LogLevel:        getEnv("WATERFALL_LOG_LEVEL", "info"),
		LogPretty:       getEnvAsBool("WATERFALL_LOG_PRETTY", false),
		CacheSize:       getEnvAsInt("WATERFALL_CACHE_SIZE", 4096),
		SolverMaxIter:   getEnvAsInt("WATERFALL_SOLVER_MAX_ITER", 10),
		SolverTolerance: getEnvAsFloat("WATERFALL_SOLVER_TOLERANCE", 1e-8),
		Workers:         getEnvAsInt("WATERFALL_WORKERS", 4),
		PathTimeout:     getEnvAsDuration("WATERFALL_PATH_TIMEOUT", 0),
		StopWhenRetired: getEnvAsBool("WATERFALL_STOP_WHEN_RETIRED", true),
		PostgresDSN:     getEnv("POSTGRES_DSN", ""),
		ClickHouseDSN:   getEnv("CLICKHOUSE_DSN", ""),
		MetricsAddr:     getEnv("WATERFALL_METRICS_ADDR", ""),
		OutputDir:       getEnv("WATERFALL_OUTPUT_DIR", "./out"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.CacheSize <= 0 {
		return fmt.Errorf("WATERFALL_CACHE_SIZE must be positive, got %d", c.CacheSize)
	}
	if c.SolverMaxIter <= 0 {
		return fmt.Errorf("WATERFALL_SOLVER_MAX_ITER must be positive, got %d", c.SolverMaxIter)
	}
	if c.SolverTolerance <= 0 {
		return fmt.Errorf("WATERFALL_SOLVER_TOLERANCE must be positive, got %g", c.SolverTolerance)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("WATERFALL_WORKERS must be positive, got %d", c.Workers)
	}
	if c.PathTimeout < 0 {
		return fmt.Errorf("WATERFALL_PATH_TIMEOUT must not be negative")
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
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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
