package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/local/cropmargins/internal/settings"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// WorkerConfig defines worker behavior and limits.
type WorkerConfig struct {
	Enabled            bool
	Concurrency        int
	JobTimeout         time.Duration
	JobMaxAttempts     int
	RetryBaseDelay     time.Duration
	RetryJitter        time.Duration
	RetryBackoffFactor float64
}

// QueueConfig defines queue connectivity and names.
type QueueConfig struct {
	RedisURL     string
	Stream       string
	Group        string
	PollInterval time.Duration
	ResultTTL    time.Duration
}

// StorageConfig defines where documents are fetched from and published to.
type StorageConfig struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	OutputBucket    string
	OutputPrefix    string
	WorkDir         string
	HTTPTimeout     time.Duration

	// InputRoot is the only directory service requests may read local PDFs
	// from. Empty rejects local inputs.
	InputRoot string
	// OutputRoot holds every local file a service request writes.
	OutputRoot string
}

// CropConfig defines crop defaults applied under every request.
type CropConfig struct {
	DefaultsFile string
}

// HTTPConfig defines the API listener.
type HTTPConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
}

// Config is the top-level configuration.
type Config struct {
	Logging LoggingConfig
	Axiom   AxiomConfig
	Worker  WorkerConfig
	Queue   QueueConfig
	Storage StorageConfig
	Crop    CropConfig
	HTTP    HTTPConfig
}

// Load reads an optional .env file and then the environment. Variables
// already set in the environment win over the file.
func Load(files ...string) Config {
	if err := godotenv.Load(files...); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("failed to load .env file")
	}
	return FromEnv()
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	// Logging defaults
	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/cropmargins.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	// Axiom defaults
	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_cropmargins",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	// Worker defaults
	cfg.Worker = WorkerConfig{
		Enabled:            parseBool(getEnv("WORKER_ENABLED", "true")),
		Concurrency:        parseInt(getEnv("WORKER_CONCURRENCY", "4"), 4),
		JobTimeout:         parseDuration(getEnv("JOB_TIMEOUT", "5m"), 5*time.Minute),
		JobMaxAttempts:     parseInt(getEnv("JOB_MAX_ATTEMPTS", "3"), 3),
		RetryBaseDelay:     parseDuration(getEnv("RETRY_BASE_DELAY", "2s"), 2*time.Second),
		RetryJitter:        parseDuration(getEnv("RETRY_JITTER", "200ms"), 200*time.Millisecond),
		RetryBackoffFactor: parseFloat(getEnv("RETRY_BACKOFF_FACTOR", "2.0"), 2.0),
	}
	if cfg.Worker.Concurrency <= 0 {
		cfg.Worker.Concurrency = 1
	}
	if cfg.Worker.JobMaxAttempts <= 0 {
		cfg.Worker.JobMaxAttempts = 1
	}

	// Queue defaults
	cfg.Queue = QueueConfig{
		RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379"),
		Stream:       getEnv("QUEUE_STREAM", "jobs:crop"),
		Group:        getEnv("QUEUE_GROUP", "workers:crop"),
		PollInterval: parseDuration(getEnv("QUEUE_POLL_INTERVAL", "100ms"), 100*time.Millisecond),
		ResultTTL:    parseDuration(getEnv("RESULT_TTL", "24h"), 24*time.Hour),
	}

	// Storage defaults
	cfg.Storage = StorageConfig{
		Region:          getEnv("AWS_REGION", "us-east-1"),
		Endpoint:        getEnv("S3_ENDPOINT", ""),
		AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
		UsePathStyle:    parseBool(getEnv("S3_USE_PATH_STYLE", "false")),
		OutputBucket:    getEnv("S3_OUTPUT_BUCKET", ""),
		OutputPrefix:    getEnv("S3_OUTPUT_PREFIX", "cropped/"),
		WorkDir:         getEnv("WORK_DIR", os.TempDir()),
		HTTPTimeout:     parseDuration(getEnv("DOWNLOAD_TIMEOUT", "60s"), 60*time.Second),
		InputRoot:       getEnv("INPUT_ROOT", ""),
	}
	cfg.Storage.OutputRoot = getEnv("OUTPUT_ROOT", filepath.Join(cfg.Storage.WorkDir, "results"))

	cfg.Crop = CropConfig{
		DefaultsFile: getEnv("CROP_DEFAULTS_FILE", ""),
	}

	cfg.HTTP = HTTPConfig{
		Addr:            getEnv("HTTP_ADDR", ":8080"),
		ShutdownTimeout: parseDuration(getEnv("SHUTDOWN_TIMEOUT", "10s"), 10*time.Second),
		MaxBodyBytes:    int64(parseInt(getEnv("MAX_BODY_BYTES", "8388608"), 8<<20)),
	}

	return cfg
}

// CropDefaults returns the settings every request is decoded onto.
func (c Config) CropDefaults() (settings.Settings, error) {
	return settings.LoadFile(c.Crop.DefaultsFile)
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
