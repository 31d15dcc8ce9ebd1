package config

import (
	"os"
	"strconv"
	"strings"

	"trialrand/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Database      DatabaseConfig
	Server        ServerConfig
	Output        OutputConfig
	Randomisation RandomisationConfig
}

// DatabaseConfig holds database connection settings. An empty URL keeps runs
// in memory, bounded by MemoryRunLimit.
type DatabaseConfig struct {
	URL            string
	MaxOpenConns   int
	MemoryRunLimit int
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port string
}

// OutputConfig holds export settings
type OutputConfig struct {
	Dir    string
	Format string // csv, xlsx or both
}

// RandomisationConfig holds schedule generation settings
type RandomisationConfig struct {
	CodeVersion    string
	ParallelStrata bool
	MinIDWidth     int
	TraceStreams   bool
}

// Enabled reports whether a database is configured
func (d DatabaseConfig) Enabled() bool {
	return d.URL != ""
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Database: DatabaseConfig{
			URL:            os.Getenv("DATABASE_URL"),
			MaxOpenConns:   getEnvIntOrDefault("DB_MAX_OPEN_CONNS", 10),
			MemoryRunLimit: getEnvIntOrDefault("MEMORY_RUN_LIMIT", 100),
		},
		Server: ServerConfig{
			Port: getEnvOrDefault("PORT", "8080"),
		},
		Output: OutputConfig{
			Dir:    getEnvOrDefault("OUTPUT_DIR", "./schedules"),
			Format: strings.ToLower(getEnvOrDefault("OUTPUT_FORMAT", "both")),
		},
		Randomisation: RandomisationConfig{
			CodeVersion:    getEnvOrDefault("CODE_VERSION", "dev"),
			ParallelStrata: getEnvBoolOrDefault("PARALLEL_STRATA", false),
			MinIDWidth:     getEnvIntOrDefault("ID_MIN_WIDTH", 0),
			TraceStreams:   getEnvBoolOrDefault("TRACE_RNG_STREAMS", false),
		},
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func validateConfig(config *Config) error {
	if config.Server.Port == "" {
		return errors.ConfigInvalid("PORT cannot be empty")
	}
	if config.Output.Dir == "" {
		return errors.ConfigInvalid("OUTPUT_DIR cannot be empty")
	}
	switch config.Output.Format {
	case "csv", "xlsx", "both":
	default:
		return errors.ConfigInvalid("OUTPUT_FORMAT must be csv, xlsx or both, got " + config.Output.Format)
	}
	if config.Randomisation.MinIDWidth < 0 {
		return errors.ConfigInvalid("ID_MIN_WIDTH cannot be negative")
	}
	if config.Database.MaxOpenConns <= 0 {
		return errors.ConfigInvalid("DB_MAX_OPEN_CONNS must be positive")
	}
	if config.Database.MemoryRunLimit <= 0 {
		return errors.ConfigInvalid("MEMORY_RUN_LIMIT must be positive")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
