package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Assignment strategies understood by the submission engine.
const (
	AssignmentUniformRandom    = "uniform_random"
	AssignmentNearestHaversine = "nearest_haversine"
)

// Oracle modes.
const (
	OracleModeSimulated = "simulated"
	OracleModeHTTP      = "http"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Session    SessionConfig
	CORS       CORSConfig
	Log        LogConfig
	Oracle     OracleConfig
	Assignment AssignmentConfig
	Rewards    RewardsConfig
	Uploads    UploadsConfig
	Metrics    MetricsConfig
	Tracing    TracingConfig
	Seed       SeedConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

// SessionConfig controls the server-side session store.
type SessionConfig struct {
	InactivityTimeout time.Duration
	EncryptionKey     string
	KeyPrefix         string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// OracleConfig configures the waste verification oracle and its worker queue.
type OracleConfig struct {
	Mode       string
	URL        string
	Timeout    time.Duration
	MinLatency time.Duration
	MaxLatency time.Duration
	Workers    int
	QueueSize  int
	MaxRetries int
	RetryDelay time.Duration
}

// AssignmentConfig selects the verifier assignment policy.
type AssignmentConfig struct {
	Strategy string
}

// RewardsConfig tunes voucher redemption and catalog caching.
type RewardsConfig struct {
	VoucherCodePrefix string
	VoucherCodeTTL    time.Duration
	CatalogCacheTTL   time.Duration
}

// UploadsConfig controls storage of submission photos.
type UploadsConfig struct {
	StorageDir       string
	SignedURLSecret  string
	SignedURLTTL     time.Duration
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

type MetricsConfig struct {
	Enabled bool
}

// TracingConfig enables OpenTelemetry spans. Exporter endpoints come from OTEL_EXPORTER_OTLP_*.
type TracingConfig struct {
	Enabled     bool
	Stdout      bool
	SampleRatio float64
	ServiceName string
}

// SeedConfig is only read by the seed command.
type SeedConfig struct {
	DemoPassword string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.Session = SessionConfig{
		InactivityTimeout: parseDuration(v.GetString("SESSION_INACTIVITY_TIMEOUT"), 7*24*time.Hour),
		EncryptionKey:     v.GetString("SESSION_ENCRYPTION_KEY"),
		KeyPrefix:         v.GetString("SESSION_KEY_PREFIX"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Oracle = OracleConfig{
		Mode:       strings.ToLower(v.GetString("ORACLE_MODE")),
		URL:        v.GetString("ORACLE_URL"),
		Timeout:    parseDuration(v.GetString("ORACLE_TIMEOUT"), 5*time.Second),
		MinLatency: parseDuration(v.GetString("ORACLE_MIN_LATENCY"), time.Second),
		MaxLatency: parseDuration(v.GetString("ORACLE_MAX_LATENCY"), 3*time.Second),
		Workers:    v.GetInt("ORACLE_WORKERS"),
		QueueSize:  v.GetInt("ORACLE_QUEUE_SIZE"),
		MaxRetries: v.GetInt("ORACLE_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("ORACLE_RETRY_DELAY"), 2*time.Second),
	}

	cfg.Assignment = AssignmentConfig{
		Strategy: strings.ToLower(v.GetString("ASSIGNMENT_STRATEGY")),
	}

	cfg.Rewards = RewardsConfig{
		VoucherCodePrefix: v.GetString("VOUCHER_CODE_PREFIX"),
		VoucherCodeTTL:    parseDuration(v.GetString("VOUCHER_CODE_TTL"), 30*24*time.Hour),
		CatalogCacheTTL:   parseDuration(v.GetString("CATALOG_CACHE_TTL"), 5*time.Minute),
	}

	maxUploadSize := v.GetInt64("UPLOADS_MAX_FILE_SIZE")
	if maxUploadSize <= 0 {
		maxUploadSize = 8 * 1024 * 1024
	}
	cfg.Uploads = UploadsConfig{
		StorageDir:       v.GetString("UPLOADS_STORAGE_DIR"),
		SignedURLSecret:  v.GetString("UPLOADS_SIGNED_URL_SECRET"),
		SignedURLTTL:     parseDuration(v.GetString("UPLOADS_SIGNED_URL_TTL"), 24*time.Hour),
		MaxFileSizeBytes: maxUploadSize,
		AllowedMIMEs:     splitAndTrim(v.GetString("UPLOADS_ALLOWED_MIME_TYPES")),
	}

	cfg.Metrics = MetricsConfig{Enabled: v.GetBool("ENABLE_METRICS")}

	ratio := v.GetFloat64("TRACING_SAMPLE_RATIO")
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}
	cfg.Tracing = TracingConfig{
		Enabled:     v.GetBool("TRACING_ENABLED"),
		Stdout:      v.GetBool("TRACING_STDOUT"),
		SampleRatio: ratio,
		ServiceName: v.GetString("TRACING_SERVICE_NAME"),
	}

	cfg.Seed = SeedConfig{DemoPassword: v.GetString("SEED_DEMO_PASSWORD")}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "trash2cash")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "trash2cash-api")

	v.SetDefault("SESSION_INACTIVITY_TIMEOUT", "168h")
	v.SetDefault("SESSION_ENCRYPTION_KEY", "dev_session_key_dev_session_key_")
	v.SetDefault("SESSION_KEY_PREFIX", "t2c:session:")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ORACLE_MODE", OracleModeSimulated)
	v.SetDefault("ORACLE_URL", "")
	v.SetDefault("ORACLE_TIMEOUT", "5s")
	v.SetDefault("ORACLE_MIN_LATENCY", "1s")
	v.SetDefault("ORACLE_MAX_LATENCY", "3s")
	v.SetDefault("ORACLE_WORKERS", 4)
	v.SetDefault("ORACLE_QUEUE_SIZE", 512)
	v.SetDefault("ORACLE_MAX_RETRIES", 2)
	v.SetDefault("ORACLE_RETRY_DELAY", "2s")

	v.SetDefault("ASSIGNMENT_STRATEGY", AssignmentUniformRandom)

	v.SetDefault("VOUCHER_CODE_PREFIX", "T2C")
	v.SetDefault("VOUCHER_CODE_TTL", "720h")
	v.SetDefault("CATALOG_CACHE_TTL", "5m")

	v.SetDefault("UPLOADS_STORAGE_DIR", "./uploads")
	v.SetDefault("UPLOADS_SIGNED_URL_SECRET", "dev_uploads_secret")
	v.SetDefault("UPLOADS_SIGNED_URL_TTL", "24h")
	v.SetDefault("UPLOADS_MAX_FILE_SIZE", 8*1024*1024)
	v.SetDefault("UPLOADS_ALLOWED_MIME_TYPES", "image/jpeg,image/png,image/webp")

	v.SetDefault("ENABLE_METRICS", true)
	v.SetDefault("TRACING_ENABLED", false)
	v.SetDefault("TRACING_STDOUT", false)
	v.SetDefault("TRACING_SAMPLE_RATIO", 1.0)
	v.SetDefault("TRACING_SERVICE_NAME", "trash2cash-api")
	v.SetDefault("SEED_DEMO_PASSWORD", "demo123")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
