package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"labstats/domain/stats"
	"labstats/internal"
	"labstats/internal/analysis/correction"
	"labstats/internal/analysis/hypothesis"
	"labstats/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Log      LogConfig
	Analysis AnalysisConfig
	Database DatabaseConfig
	Data     DataConfig
}

// LogConfig holds logger settings
type LogConfig struct {
	Level       internal.LogLevel
	Development bool
}

// AnalysisConfig holds defaults for the statistical tests
type AnalysisConfig struct {
	CorrectionMethod stats.CorrectionMethod
	Workers          int     // parallel pairwise comparisons
	LowExpectedCount float64 // chi-square expected-count warning threshold
}

// DatabaseConfig holds database connection settings. URL is optional; without
// it observations come from a workbook.
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	QueryTimeout time.Duration
}

// DataConfig holds data file settings
type DataConfig struct {
	WorkbookPath string
}

// Load reads an optional .env file from the working directory, then the
// environment, and validates the result
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit env file. A missing file is not an error;
// variables already set in the environment take precedence over the file.
func LoadFile(envFile string) (*Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, errors.Wrapf(err, "failed to read env file %s", envFile)
			}
		}
	}

	config := &Config{}

	logConfig, err := loadLogConfig()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load log configuration")
	}
	config.Log = *logConfig

	analysisConfig, err := loadAnalysisConfig()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load analysis configuration")
	}
	config.Analysis = *analysisConfig

	config.Database = *loadDatabaseConfig()
	config.Data = *loadDataConfig()

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadLogConfig() (*LogConfig, error) {
	levelName := getEnvOrDefault("LOG_LEVEL", "INFO")
	level, ok := internal.ParseLogLevel(levelName)
	if !ok {
		return nil, errors.ConfigInvalid("LOG_LEVEL must be one of ERROR, WARN, INFO, DEBUG, TRACE, got " + strconv.Quote(levelName))
	}
	return &LogConfig{
		Level:       level,
		Development: getEnvBoolOrDefault("LOG_DEVELOPMENT", false),
	}, nil
}

func loadAnalysisConfig() (*AnalysisConfig, error) {
	method, err := correction.ParseMethod(getEnvOrDefault("CORRECTION_METHOD", string(stats.CorrectionHolm)))
	if err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, err)
	}
	return &AnalysisConfig{
		CorrectionMethod: method,
		Workers:          getEnvIntOrDefault("ANALYSIS_WORKERS", 4),
		LowExpectedCount: getEnvFloatOrDefault("LOW_EXPECTED_COUNT", hypothesis.DefaultLowExpectedCount),
	}, nil
}

func loadDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		URL:          getEnvOrDefault("DATABASE_URL", ""),
		MaxOpenConns: getEnvIntOrDefault("DB_MAX_OPEN_CONNS", 10),
		QueryTimeout: getEnvDurationOrDefault("DB_QUERY_TIMEOUT", 30*time.Second),
	}
}

func loadDataConfig() *DataConfig {
	return &DataConfig{
		WorkbookPath: getEnvOrDefault("EXCEL_FILE", ""),
	}
}

func validateConfig(config *Config) error {
	if config.Analysis.Workers < 1 {
		return errors.ConfigInvalid("ANALYSIS_WORKERS must be at least 1")
	}
	if config.Analysis.LowExpectedCount < 0 {
		return errors.ConfigInvalid("LOW_EXPECTED_COUNT must not be negative")
	}
	if config.Database.MaxOpenConns < 1 {
		return errors.ConfigInvalid("DB_MAX_OPEN_CONNS must be at least 1")
	}
	if config.Database.QueryTimeout <= 0 {
		return errors.ConfigInvalid("DB_QUERY_TIMEOUT must be positive")
	}
	return nil
}

// HasDatabase reports whether observations should be read from Postgres
func (c *Config) HasDatabase() bool {
	return c.Database.URL != ""
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

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
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

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
