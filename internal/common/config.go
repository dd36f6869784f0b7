package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Coordinator CoordinatorConfig
	Partition   PartitionConfig
	Worker      WorkerConfig
	Merge       MergeConfig
	Log         LogConfig
}

// CoordinatorConfig holds shared-store configuration. The coordinator
// database must sit on a path every worker machine can reach.
type CoordinatorConfig struct {
	Path         string
	LeaseTimeout time.Duration
	BusyTimeout  time.Duration
}

// PartitionConfig holds per-worker result store configuration.
type PartitionConfig struct {
	Dir string
}

// WorkerConfig holds worker loop configuration.
type WorkerConfig struct {
	ID            string
	PollInterval  time.Duration
	MaxPoll       time.Duration
	ClaimAttempts uint
	FetchDelay    time.Duration
}

// MergeConfig holds merge reconciler configuration.
type MergeConfig struct {
	Policy     string
	SchemaPath string
	OutDir     string
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Coordinator: CoordinatorConfig{
			Path:         getEnv("COORDINATOR_DB", "scraping_coordinator.db"),
			LeaseTimeout: getEnvAsDuration("LEASE_TIMEOUT", 30*time.Minute),
			BusyTimeout:  getEnvAsDuration("STORE_BUSY_TIMEOUT", 5*time.Second),
		},
		Partition: PartitionConfig{
			Dir: getEnv("PARTITION_DIR", "partitions"),
		},
		Worker: WorkerConfig{
			ID:            getEnv("WORKER_ID", ""),
			PollInterval:  getEnvAsDuration("WORKER_POLL_INTERVAL", 5*time.Second),
			MaxPoll:       getEnvAsDuration("WORKER_MAX_POLL", 2*time.Minute),
			ClaimAttempts: uint(getEnvAsInt("WORKER_CLAIM_ATTEMPTS", 5)),
			FetchDelay:    getEnvAsDuration("WORKER_FETCH_DELAY", 500*time.Millisecond),
		},
		Merge: MergeConfig{
			Policy:     getEnv("MERGE_POLICY", "first"),
			SchemaPath: getEnv("MERGE_SCHEMA", ""),
			OutDir:     getEnv("MERGE_OUT_DIR", "merged"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}
}

// Helper functions for environment variable parsing
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// ValidateConfig validates the loaded configuration
func (c *Config) Validate() error {
	if c.Coordinator.Path == "" {
		return NewAppError("CONFIG_ERROR", "COORDINATOR_DB is required", ErrInvalidInput)
	}
	if c.Coordinator.LeaseTimeout <= 0 {
		return NewAppError("CONFIG_ERROR", "LEASE_TIMEOUT must be positive", ErrInvalidInput)
	}
	if c.Partition.Dir == "" {
		return NewAppError("CONFIG_ERROR", "PARTITION_DIR is required", ErrInvalidInput)
	}
	return nil
}
