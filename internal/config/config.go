package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"imvqa/domain/plate"
	"imvqa/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Ops      OpsConfig
	Blob     BlobConfig
	Plate    PlateConfig
	LogLevel string
}

// Supported database drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
)

// DatabaseConfig holds the connection settings of the analysis store
type DatabaseConfig struct {
	Driver          string
	URL             string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port           string
	GinMode        string
	MaxUploadBytes int64
	SessionTTL     time.Duration
}

// OpsConfig holds the health/metrics/pprof listener settings
type OpsConfig struct {
	Port    string
	Enabled bool
}

// BlobConfig selects where exported workbooks and reports are written
type BlobConfig struct {
	Driver      string // fs | s3
	Dir         string
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3PathStyle bool
}

// PlateConfig holds the header names and control label shared by every component
type PlateConfig struct {
	Columns       plate.Columns
	HistogramBins int
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Database: loadDatabaseConfig(),
		Server:   loadServerConfig(),
		Ops:      loadOpsConfig(),
		Blob:     loadBlobConfig(),
		Plate:    loadPlateConfig(),
		LogLevel: getEnvOrDefault("LOG_LEVEL", "INFO"),
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadDatabaseConfig() DatabaseConfig {
	driver := strings.ToLower(getEnvOrDefault("DB_DRIVER", DriverSQLite))
	url := os.Getenv("DATABASE_URL")
	if url == "" && driver == DriverSQLite {
		url = "imv_qa.db"
	}
	return DatabaseConfig{
		Driver:          driver,
		URL:             url,
		MaxOpenConns:    getEnvIntOrDefault("DB_MAX_OPEN_CONNS", 4),
		ConnMaxLifetime: getEnvDurationOrDefault("DB_CONN_MAX_LIFETIME", 30*time.Minute),
	}
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Port:           getEnvOrDefault("PORT", "8080"),
		GinMode:        getEnvOrDefault("GIN_MODE", "release"),
		MaxUploadBytes: int64(getEnvIntOrDefault("MAX_UPLOAD_MB", 64)) << 20,
		SessionTTL:     getEnvDurationOrDefault("SESSION_TTL", 8*time.Hour),
	}
}

func loadOpsConfig() OpsConfig {
	return OpsConfig{
		Port:    getEnvOrDefault("OPS_PORT", "6060"),
		Enabled: getEnvBoolOrDefault("OPS_ENABLED", true),
	}
}

func loadBlobConfig() BlobConfig {
	return BlobConfig{
		Driver:      strings.ToLower(getEnvOrDefault("BLOB_DRIVER", "fs")),
		Dir:         getEnvOrDefault("BLOB_DIR", "exports"),
		S3Bucket:    os.Getenv("BLOB_S3_BUCKET"),
		S3Region:    getEnvOrDefault("BLOB_S3_REGION", "us-east-1"),
		S3Endpoint:  os.Getenv("BLOB_S3_ENDPOINT"),
		S3PathStyle: getEnvBoolOrDefault("BLOB_S3_PATH_STYLE", false),
	}
}

func loadPlateConfig() PlateConfig {
	cols := plate.DefaultColumns()
	cols.Row = getEnvOrDefault("PLATE_ROW_HEADER", cols.Row)
	cols.Column = getEnvOrDefault("PLATE_COLUMN_HEADER", cols.Column)
	cols.Field = getEnvOrDefault("PLATE_FIELD_HEADER", cols.Field)
	cols.Compound = getEnvOrDefault("PLATE_COMPOUND_HEADER", cols.Compound)
	cols.Control = getEnvOrDefault("PLATE_CONTROL_COMPOUND", cols.Control)
	cols.Median = getEnvOrDefault("PLATE_MEDIAN_HEADER", cols.Median)
	cols.Variation = getEnvOrDefault("PLATE_VARIATION_HEADER", cols.Variation)
	return PlateConfig{
		Columns:       cols,
		HistogramBins: getEnvIntOrDefault("HISTOGRAM_BINS", 20),
	}
}

func validateConfig(config *Config) error {
	switch config.Database.Driver {
	case DriverSQLite, DriverPostgres, DriverPgx:
	default:
		return errors.ConfigInvalid("DB_DRIVER must be one of sqlite, postgres, pgx")
	}
	if config.Database.URL == "" {
		return errors.ConfigInvalid("DATABASE_URL is required for " + config.Database.Driver)
	}
	switch config.Blob.Driver {
	case "fs":
		if config.Blob.Dir == "" {
			return errors.ConfigInvalid("BLOB_DIR is required for the fs blob driver")
		}
	case "s3":
		if config.Blob.S3Bucket == "" {
			return errors.ConfigInvalid("BLOB_S3_BUCKET is required for the s3 blob driver")
		}
	default:
		return errors.ConfigInvalid("BLOB_DRIVER must be fs or s3")
	}
	cols := config.Plate.Columns
	headers := map[string]bool{}
	for _, h := range []string{cols.Row, cols.Column, cols.Field, cols.Variation} {
		if h == "" {
			return errors.ConfigInvalid("plate header names cannot be empty")
		}
		if headers[h] {
			return errors.ConfigInvalid("plate header names must be distinct: " + h)
		}
		headers[h] = true
	}
	if cols.Control == "" {
		return errors.ConfigInvalid("PLATE_CONTROL_COMPOUND is required")
	}
	if config.Plate.HistogramBins < 1 {
		return errors.ConfigInvalid("HISTOGRAM_BINS must be positive")
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

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
