package config

import (
	"os"
	"strconv"
	"time"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
	// ApplicationName shows up in pg_stat_activity.
	ApplicationName string
	// StatementTimeoutMs bounds every statement server-side; 0 leaves the server default.
	StatementTimeoutMs int
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint         string
	AccessKey        string
	SecretKey        string
	Bucket           string
	UseSSL           bool
	PresignExpirySec int
}

// RedisConfig holds the connection used for the assembly lock.
// An empty Addr selects the in-process lock.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	LockTTLSec int
}

// HandoverConfig tunes classification, assembly and the staleness sweeper.
type HandoverConfig struct {
	// TaxonomyPath points at a YAML rule table; empty uses the embedded default.
	TaxonomyPath             string
	MergeSimilarityThreshold float64
	HighRiskSeverity         string
	DraftArchiveAfterHours   int
	ReviewStaleAfterHours    int
	AcceptedStaleAfterHours  int
	// SweepIntervalSec enables the in-process sweeper when > 0.
	SweepIntervalSec int
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost     string
	Port        string
	StoreDriver string
	LogLevel    string
	Timezone    string
	Database    DatabaseConfig
	MinIO       MinIOConfig
	Redis       RedisConfig
	Handover    HandoverConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		AppHost:     getEnv("APP_HOST", "localhost:8080"),
		Port:        getEnv("PORT", "8080"),
		StoreDriver: getEnv("STORE_DRIVER", "postgres"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Timezone:    getEnv("TIMEZONE", "UTC"),
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
			ApplicationName:    getEnv("DB_APPLICATION_NAME", "handover"),
			StatementTimeoutMs: getEnvInt("DB_STATEMENT_TIMEOUT_MS", 0),
		},
		MinIO: MinIOConfig{
			Endpoint:         getEnv("MINIO_ENDPOINT", ""),
			AccessKey:        getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey:        getEnv("MINIO_SECRET_KEY", ""),
			Bucket:           getEnv("MINIO_BUCKET", ""),
			UseSSL:           getEnvBool("MINIO_USE_SSL", false),
			PresignExpirySec: getEnvInt("PRESIGN_EXPIRY_SEC", 900),
		},
		Redis: RedisConfig{
			Addr:       getEnv("REDIS_ADDR", ""),
			Password:   getEnv("REDIS_PASSWORD", ""),
			DB:         getEnvInt("REDIS_DB", 0),
			LockTTLSec: getEnvInt("LOCK_TTL_SEC", 30),
		},
		Handover: HandoverConfig{
			TaxonomyPath:             getEnv("TAXONOMY_PATH", ""),
			MergeSimilarityThreshold: getEnvFloat("MERGE_SIMILARITY_THRESHOLD", 0.3),
			HighRiskSeverity:         getEnv("HIGH_RISK_SEVERITY", "SAFETY_CRITICAL"),
			DraftArchiveAfterHours:   getEnvInt("DRAFT_ARCHIVE_AFTER_HOURS", 168),
			ReviewStaleAfterHours:    getEnvInt("REVIEW_STALE_AFTER_HOURS", 48),
			AcceptedStaleAfterHours:  getEnvInt("ACCEPTED_STALE_AFTER_HOURS", 24),
			SweepIntervalSec:         getEnvInt("SWEEP_INTERVAL_SEC", 0),
		},
	}
}

// Location resolves Timezone, falling back to UTC.
func (c *AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}
