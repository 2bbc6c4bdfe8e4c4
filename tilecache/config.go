package tilecache

import (
	"fmt"
	"os"
	"time"
)

// Config controls cache identity, storage location and worker cadence.
type Config struct {
	// ID tags log output of this cache instance. Defaults to a fresh UUID.
	ID string
	// OutputDir is the toplevel directory of the tile pyramid on disk.
	OutputDir string
	// FlushInterval is the background worker's wake cadence.
	FlushInterval time.Duration
	// LogLevel is used by NewFromEnv when building the cache's own logger.
	LogLevel string
}

func DefaultConfig() Config {
	return Config{
		FlushInterval: time.Second,
		LogLevel:      "info",
	}
}

// ConfigFromEnv builds a Config from TILE_CACHE_* environment variables,
// falling back to defaults for anything unset.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	cfg.ID = getEnv("TILE_CACHE_ID", cfg.ID)
	cfg.OutputDir = getEnv("TILE_CACHE_DIR", cfg.OutputDir)
	cfg.FlushInterval = getEnvDuration("TILE_CACHE_FLUSH_INTERVAL", cfg.FlushInterval)
	cfg.LogLevel = getEnv("TILE_CACHE_LOG_LEVEL", cfg.LogLevel)
	return cfg
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("output directory cannot be empty")
	}
	if c.FlushInterval <= 0 {
		return fmt.Errorf("flush interval must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
