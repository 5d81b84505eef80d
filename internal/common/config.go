package common

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	OCR       OCRConfig
	Pipeline  PipelineConfig
	Storage   StorageConfig
	Ingest    IngestConfig
	Retention RetentionConfig
	LogLevel  string
}

// DatabaseConfig holds database-related configuration. An empty DSN disables
// batch persistence.
type DatabaseConfig struct {
	Driver           string
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr string
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	TesseractBin      string
	PdftoppmBin       string
	PdftotextBin      string
	TessdataDir       string
	Lang              string
	DPI               int
	PSM               string
	OEM               string
	MinTextLayerChars int
	LowConfidence     float32
}

// PipelineConfig tunes the page-processing pipeline.
type PipelineConfig struct {
	Workers           int
	QueueSize         int
	PageTimeout       time.Duration
	UploadConcurrency int
	IdentifierWidth   int
	OutputExt         string
	BundleLayout      string
}

// StorageConfig selects the blob store.
type StorageConfig struct {
	Backend string
	Root    string
	Bucket  string
}

// IngestConfig configures the inbox watcher of the daemon.
type IngestConfig struct {
	InboxDir  string
	OutboxDir string
	Debounce  time.Duration
}

// RetentionConfig drives eviction of finished batches.
type RetentionConfig struct {
	MaxAge   time.Duration
	Interval time.Duration
}

const (
	StorageFS     = "fs"
	StorageMemory = "memory"
	StorageGCS    = "gcs"

	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"

	LayoutFlat         = "flat"
	LayoutByIdentifier = "by-identifier"
)

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:           getEnv("DB_DRIVER", DriverSQLite),
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 2),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			GRPCAddr: getEnv("GRPC_ADDR", ":8080"),
		},
		OCR: OCRConfig{
			TesseractBin:      getEnv("TESSERACT_BIN", "tesseract"),
			PdftoppmBin:       getEnv("PDFTOPPM_BIN", "pdftoppm"),
			PdftotextBin:      getEnv("PDFTOTEXT_BIN", "pdftotext"),
			TessdataDir:       getEnv("TESSDATA_PREFIX", ""),
			Lang:              getEnv("OCR_LANG", "fra"),
			DPI:               getEnvAsInt("OCR_DPI", 300),
			PSM:               getEnv("OCR_PSM", ""),
			OEM:               getEnv("OCR_OEM", ""),
			MinTextLayerChars: getEnvAsInt("OCR_MIN_TEXT_CHARS", 50),
			LowConfidence:     getEnvAsFloat32("OCR_LOW_CONFIDENCE", 0.6),
		},
		Pipeline: PipelineConfig{
			Workers:           getEnvAsInt("PIPELINE_WORKERS", 4),
			QueueSize:         getEnvAsInt("PIPELINE_QUEUE_SIZE", 256),
			PageTimeout:       getEnvAsDuration("PIPELINE_PAGE_TIMEOUT", 0),
			UploadConcurrency: getEnvAsInt("PIPELINE_UPLOAD_CONCURRENCY", 10),
			IdentifierWidth:   getEnvAsInt("IDENTIFIER_WIDTH", 5),
			OutputExt:         getEnv("OUTPUT_EXT", ".pdf"),
			BundleLayout:      getEnv("BUNDLE_LAYOUT", LayoutFlat),
		},
		Storage: StorageConfig{
			Backend: strings.ToLower(getEnv("STORAGE_BACKEND", StorageFS)),
			Root:    getEnv("STORAGE_ROOT", "./data"),
			Bucket:  getEnv("GCS_BUCKET", ""),
		},
		Ingest: IngestConfig{
			InboxDir:  getEnv("INBOX_DIR", ""),
			OutboxDir: getEnv("OUTBOX_DIR", "./out"),
			Debounce:  getEnvAsDuration("INBOX_DEBOUNCE", 500*time.Millisecond),
		},
		Retention: RetentionConfig{
			MaxAge:   getEnvAsDuration("RETENTION_MAX_AGE", 7*24*time.Hour),
			Interval: getEnvAsDuration("RETENTION_INTERVAL", time.Hour),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
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

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// DebugEnabled reports whether verbose command logging was requested.
func DebugEnabled() bool {
	return getEnvAsBool("DEBUG", false)
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator()
	v.Field("OCR_LANG", c.OCR.Lang, Required).
		Field("OCR_DPI", c.OCR.DPI, Positive).
		Field("OCR_LOW_CONFIDENCE", c.OCR.LowConfidence, Ratio).
		Field("PIPELINE_WORKERS", c.Pipeline.Workers, Positive).
		Field("PIPELINE_QUEUE_SIZE", c.Pipeline.QueueSize, Positive).
		Field("PIPELINE_PAGE_TIMEOUT", c.Pipeline.PageTimeout, NonNegativeDuration).
		Field("PIPELINE_UPLOAD_CONCURRENCY", c.Pipeline.UploadConcurrency, Positive).
		Field("IDENTIFIER_WIDTH", c.Pipeline.IdentifierWidth, Positive).
		Field("OUTPUT_EXT", c.Pipeline.OutputExt, Required).
		Field("BUNDLE_LAYOUT", c.Pipeline.BundleLayout, OneOf(LayoutFlat, LayoutByIdentifier)).
		Field("STORAGE_BACKEND", c.Storage.Backend, OneOf(StorageFS, StorageMemory, StorageGCS)).
		Field("DB_DRIVER", c.Database.Driver, OneOf(DriverSQLite, DriverPostgres)).
		Field("RETENTION_MAX_AGE", c.Retention.MaxAge, NonNegativeDuration)

	if c.Storage.Backend == StorageGCS {
		v.Field("GCS_BUCKET", c.Storage.Bucket, Required)
	}
	if c.Storage.Backend == StorageFS {
		v.Field("STORAGE_ROOT", c.Storage.Root, Required)
	}
	if err := v.Error(); err != nil {
		return NewAppError("CONFIG_ERROR", "invalid configuration", err)
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level; unknown values mean info.
// DEBUG=true forces debug.
func (c *Config) SlogLevel() slog.Level {
	if DebugEnabled() {
		return slog.LevelDebug
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
