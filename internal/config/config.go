package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig
	Store   StoreConfig
	DB      DBConfig
	S3      S3Config
	OCR     OCRConfig
	Matcher MatcherConfig
	Queue   QueueConfig
	Poll    PollConfig
	Export  ExportConfig
	Email   EmailConfig
	CORS    CORSConfig
	Log     LogConfig
}

// StoreConfig selects and configures the record store backend.
type StoreConfig struct {
	Backend  string `mapstructure:"backend"`
	APIKey   string `mapstructure:"api_key"`
	BaseID   string `mapstructure:"base_id"`
	Endpoint string `mapstructure:"endpoint"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"`
}

// DBConfig holds PostgreSQL connection settings for the postgres backend.
type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxOpen  int    `mapstructure:"max_open"`
	MaxIdle  int    `mapstructure:"max_idle"`
}

// DSN returns the PostgreSQL connection string.
func (d *DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// S3Config holds AWS S3 settings.
type S3Config struct {
	Region        string `mapstructure:"region"`
	Bucket        string `mapstructure:"bucket"`
	Endpoint      string `mapstructure:"endpoint"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	MaxFileSizeMB int64  `mapstructure:"max_file_size_mb"`
	PresignExpiry int64  `mapstructure:"presign_expiry"`
}

// OCRConfig holds Google Cloud Vision settings.
type OCRConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	CredentialsJSON string `mapstructure:"credentials_json"`
	TimeoutSecs     int    `mapstructure:"timeout_secs"`
}

// MatcherConfig holds structured extraction (LLM) settings used by both
// the field-extraction and PO-matching calls.
type MatcherConfig struct {
	APIKey       string `mapstructure:"api_key"`
	DefaultModel string `mapstructure:"default_model"`
	MaxRetries   int    `mapstructure:"max_retries"`
	TimeoutSecs  int    `mapstructure:"timeout_secs"`
	Endpoint     string `mapstructure:"endpoint"`
}

// QueueConfig holds match queue worker settings.
type QueueConfig struct {
	PollIntervalSecs int `mapstructure:"poll_interval_secs"`
	MaxRetries       int `mapstructure:"max_retries"`
	Concurrency      int `mapstructure:"concurrency"`
}

// PollConfig holds status poller settings.
type PollConfig struct {
	IntervalSecs int `mapstructure:"interval_secs"`
}

// ExportConfig holds workbook export settings.
type ExportConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// EmailConfig holds reviewer alert delivery settings.
type EmailConfig struct {
	Provider        string `mapstructure:"provider"`
	Region          string `mapstructure:"region"`
	FromAddress     string `mapstructure:"from_address"`
	FromName        string `mapstructure:"from_name"`
	ReviewerAddress string `mapstructure:"reviewer_address"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from environment variables with the PAYABLES_ prefix.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PAYABLES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Server defaults
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.environment", "development")

	// Store defaults
	v.SetDefault("store.backend", "airtable")
	v.SetDefault("store.api_key", "")
	v.SetDefault("store.base_id", "")
	v.SetDefault("store.endpoint", "")

	// DB defaults (postgres backend)
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "payables")
	v.SetDefault("db.password", "payables_secret")
	v.SetDefault("db.name", "payables_db")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open", 25)
	v.SetDefault("db.max_idle", 10)

	// S3 defaults
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket", "payables-uploads")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.max_file_size_mb", 50)
	v.SetDefault("s3.presign_expiry", 3600)

	// OCR defaults
	v.SetDefault("ocr.credentials_file", "")
	v.SetDefault("ocr.credentials_json", "")
	v.SetDefault("ocr.timeout_secs", 120)

	// Matcher defaults
	v.SetDefault("matcher.api_key", "")
	v.SetDefault("matcher.default_model", "gpt-4o-2024-08-06")
	v.SetDefault("matcher.max_retries", 2)
	v.SetDefault("matcher.timeout_secs", 120)
	v.SetDefault("matcher.endpoint", "")

	// Queue defaults
	v.SetDefault("queue.poll_interval_secs", 10)
	v.SetDefault("queue.max_retries", 5)
	v.SetDefault("queue.concurrency", 5)

	// Poll defaults
	v.SetDefault("poll.interval_secs", 5)

	// Export defaults
	v.SetDefault("export.bucket", "")
	v.SetDefault("export.prefix", "exports")

	// Email defaults
	v.SetDefault("email.provider", "noop")
	v.SetDefault("email.region", "us-east-1")
	v.SetDefault("email.from_address", "noreply@payables.local")
	v.SetDefault("email.from_name", "Payables")
	v.SetDefault("email.reviewer_address", "")

	// CORS defaults (localhost origins for development)
	v.SetDefault("cors.allowed_origins", "http://localhost:3000,http://127.0.0.1:3000")

	// Log defaults
	v.SetDefault("log.level", "debug")
	v.SetDefault("log.format", "console")

	// Bind environment variables explicitly for nested keys
	envBindings := map[string]string{
		"server.port":              "PAYABLES_SERVER_PORT",
		"server.read_timeout":      "PAYABLES_SERVER_READ_TIMEOUT",
		"server.write_timeout":     "PAYABLES_SERVER_WRITE_TIMEOUT",
		"server.environment":       "PAYABLES_SERVER_ENVIRONMENT",
		"store.backend":            "PAYABLES_STORE_BACKEND",
		"store.api_key":            "PAYABLES_STORE_API_KEY",
		"store.base_id":            "PAYABLES_STORE_BASE_ID",
		"store.endpoint":           "PAYABLES_STORE_ENDPOINT",
		"db.host":                  "PAYABLES_DB_HOST",
		"db.port":                  "PAYABLES_DB_PORT",
		"db.user":                  "PAYABLES_DB_USER",
		"db.password":              "PAYABLES_DB_PASSWORD",
		"db.name":                  "PAYABLES_DB_NAME",
		"db.sslmode":               "PAYABLES_DB_SSLMODE",
		"db.max_open":              "PAYABLES_DB_MAX_OPEN",
		"db.max_idle":              "PAYABLES_DB_MAX_IDLE",
		"s3.region":                "PAYABLES_S3_REGION",
		"s3.bucket":                "PAYABLES_S3_BUCKET",
		"s3.endpoint":              "PAYABLES_S3_ENDPOINT",
		"s3.access_key":            "PAYABLES_S3_ACCESS_KEY",
		"s3.secret_key":            "PAYABLES_S3_SECRET_KEY",
		"s3.max_file_size_mb":      "PAYABLES_S3_MAX_FILE_SIZE_MB",
		"s3.presign_expiry":        "PAYABLES_S3_PRESIGN_EXPIRY",
		"ocr.credentials_file":     "PAYABLES_OCR_CREDENTIALS_FILE",
		"ocr.credentials_json":     "PAYABLES_OCR_CREDENTIALS_JSON",
		"ocr.timeout_secs":         "PAYABLES_OCR_TIMEOUT_SECS",
		"matcher.api_key":          "PAYABLES_MATCHER_API_KEY",
		"matcher.default_model":    "PAYABLES_MATCHER_DEFAULT_MODEL",
		"matcher.max_retries":      "PAYABLES_MATCHER_MAX_RETRIES",
		"matcher.timeout_secs":     "PAYABLES_MATCHER_TIMEOUT_SECS",
		"matcher.endpoint":         "PAYABLES_MATCHER_ENDPOINT",
		"queue.poll_interval_secs": "PAYABLES_QUEUE_POLL_INTERVAL_SECS",
		"queue.max_retries":        "PAYABLES_QUEUE_MAX_RETRIES",
		"queue.concurrency":        "PAYABLES_QUEUE_CONCURRENCY",
		"poll.interval_secs":       "PAYABLES_POLL_INTERVAL_SECS",
		"export.bucket":            "PAYABLES_EXPORT_BUCKET",
		"export.prefix":            "PAYABLES_EXPORT_PREFIX",
		"email.provider":           "PAYABLES_EMAIL_PROVIDER",
		"email.region":             "PAYABLES_EMAIL_REGION",
		"email.from_address":       "PAYABLES_EMAIL_FROM_ADDRESS",
		"email.from_name":          "PAYABLES_EMAIL_FROM_NAME",
		"email.reviewer_address":   "PAYABLES_EMAIL_REVIEWER_ADDRESS",
		"cors.allowed_origins":     "PAYABLES_CORS_ALLOWED_ORIGINS",
		"log.level":                "PAYABLES_LOG_LEVEL",
		"log.format":               "PAYABLES_LOG_FORMAT",
	}
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	cfg := &Config{}

	// Railway/Heroku/Render set a PORT env var. Use it if PAYABLES_SERVER_PORT is not explicitly set.
	serverPort := v.GetString("server.port")
	if port := os.Getenv("PORT"); port != "" && os.Getenv("PAYABLES_SERVER_PORT") == "" {
		serverPort = ":" + port
	}

	cfg.Server = ServerConfig{
		Port:         serverPort,
		ReadTimeout:  v.GetDuration("server.read_timeout"),
		WriteTimeout: v.GetDuration("server.write_timeout"),
		Environment:  v.GetString("server.environment"),
	}
	cfg.Store = StoreConfig{
		Backend:  v.GetString("store.backend"),
		APIKey:   v.GetString("store.api_key"),
		BaseID:   v.GetString("store.base_id"),
		Endpoint: v.GetString("store.endpoint"),
	}
	cfg.DB = DBConfig{
		Host:     v.GetString("db.host"),
		Port:     v.GetInt("db.port"),
		User:     v.GetString("db.user"),
		Password: v.GetString("db.password"),
		Name:     v.GetString("db.name"),
		SSLMode:  v.GetString("db.sslmode"),
		MaxOpen:  v.GetInt("db.max_open"),
		MaxIdle:  v.GetInt("db.max_idle"),
	}
	cfg.S3 = S3Config{
		Region:        v.GetString("s3.region"),
		Bucket:        v.GetString("s3.bucket"),
		Endpoint:      v.GetString("s3.endpoint"),
		AccessKey:     v.GetString("s3.access_key"),
		SecretKey:     v.GetString("s3.secret_key"),
		MaxFileSizeMB: v.GetInt64("s3.max_file_size_mb"),
		PresignExpiry: v.GetInt64("s3.presign_expiry"),
	}
	cfg.OCR = OCRConfig{
		CredentialsFile: v.GetString("ocr.credentials_file"),
		CredentialsJSON: v.GetString("ocr.credentials_json"),
		TimeoutSecs:     v.GetInt("ocr.timeout_secs"),
	}
	cfg.Matcher = MatcherConfig{
		APIKey:       v.GetString("matcher.api_key"),
		DefaultModel: v.GetString("matcher.default_model"),
		MaxRetries:   v.GetInt("matcher.max_retries"),
		TimeoutSecs:  v.GetInt("matcher.timeout_secs"),
		Endpoint:     v.GetString("matcher.endpoint"),
	}
	cfg.Queue = QueueConfig{
		PollIntervalSecs: v.GetInt("queue.poll_interval_secs"),
		MaxRetries:       v.GetInt("queue.max_retries"),
		Concurrency:      v.GetInt("queue.concurrency"),
	}
	cfg.Poll = PollConfig{
		IntervalSecs: v.GetInt("poll.interval_secs"),
	}
	exportBucket := v.GetString("export.bucket")
	if exportBucket == "" {
		exportBucket = cfg.S3.Bucket
	}
	cfg.Export = ExportConfig{
		Bucket: exportBucket,
		Prefix: v.GetString("export.prefix"),
	}
	cfg.Email = EmailConfig{
		Provider:        v.GetString("email.provider"),
		Region:          v.GetString("email.region"),
		FromAddress:     v.GetString("email.from_address"),
		FromName:        v.GetString("email.from_name"),
		ReviewerAddress: v.GetString("email.reviewer_address"),
	}
	// Parse CORS allowed origins from comma-separated string
	var corsOrigins []string
	for _, o := range strings.Split(v.GetString("cors.allowed_origins"), ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			corsOrigins = append(corsOrigins, o)
		}
	}
	cfg.CORS = CORSConfig{
		AllowedOrigins: corsOrigins,
	}
	cfg.Log = LogConfig{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
	}

	return cfg, nil
}
