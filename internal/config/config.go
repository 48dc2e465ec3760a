package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ServiceName    string `yaml:"service_name"`
	LogLevel       string `yaml:"log_level"`
	HTTPListenAddr string `yaml:"http_listen_addr"`
	DatabaseURL    string `yaml:"database_url"`
	RedisURL       string `yaml:"redis_url"`

	// Worker-side metrics/health listener.
	MetricsListenAddr string `yaml:"metrics_listen_addr"`

	// Local disk roots for uploaded inputs and generated reports.
	DocumentDir string `yaml:"document_dir"`
	OutputDir   string `yaml:"output_dir"`

	// Maximum combined size of one upload batch.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// Dispatch loop cadence and retry policy.
	DispatchInterval time.Duration `yaml:"dispatch_interval"`
	DispatchWarmup   time.Duration `yaml:"dispatch_warmup"`
	RetryLimit       int           `yaml:"retry_limit"`
	RetryDelay       time.Duration `yaml:"retry_delay"`

	// Per-job execution budget; a timed-out job is FAILED.
	JobTimeout time.Duration `yaml:"job_timeout"`

	// Worker-side queue concurrency.
	WorkerConcurrency int `yaml:"worker_concurrency"`

	// Join parameters: the identifier column name shared across files and the
	// identifier's fixed column index in the main file.
	JoinColumnName  string `yaml:"join_column_name"`
	MainIDColumnIdx int    `yaml:"main_id_column_idx"`

	// Fallback time of day (UTC, "HH:MM") when no schedule timing row exists.
	DefaultScheduleTime string `yaml:"default_schedule_time"`
}

// Load reads configuration from the environment, after loading an optional
// .env file and an optional YAML file named by REPORTGEN_CONFIG. Environment
// variables win over YAML values.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServiceName:         "reportgen",
		LogLevel:            "info",
		HTTPListenAddr:      ":8090",
		MetricsListenAddr:   ":9091",
		DocumentDir:         "data/documents",
		OutputDir:           "data/reports",
		MaxUploadBytes:      3 << 30,
		DispatchInterval:    90 * time.Second,
		DispatchWarmup:      60 * time.Second,
		RetryLimit:          3,
		RetryDelay:          5 * time.Minute,
		JobTimeout:          10 * time.Minute,
		WorkerConcurrency:   4,
		JoinColumnName:      "NationalIdentifier",
		MainIDColumnIdx:     4,
		DefaultScheduleTime: "18:00",
	}

	if path := os.Getenv("REPORTGEN_CONFIG"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.ServiceName = getEnv("SERVICE_NAME", cfg.ServiceName)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.HTTPListenAddr = getEnv("HTTP_LISTEN_ADDR", cfg.HTTPListenAddr)
	cfg.MetricsListenAddr = getEnv("METRICS_LISTEN_ADDR", cfg.MetricsListenAddr)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.DocumentDir = getEnv("DOCUMENT_DIR", cfg.DocumentDir)
	cfg.OutputDir = getEnv("OUTPUT_DIR", cfg.OutputDir)
	cfg.DefaultScheduleTime = getEnv("DEFAULT_SCHEDULE_TIME", cfg.DefaultScheduleTime)
	cfg.JoinColumnName = getEnv("JOIN_COLUMN_NAME", cfg.JoinColumnName)

	var err error
	if cfg.MaxUploadBytes, err = getEnvInt64("MAX_UPLOAD_BYTES", cfg.MaxUploadBytes); err != nil {
		return nil, err
	}
	if cfg.RetryLimit, err = getEnvInt("RETRY_LIMIT", cfg.RetryLimit); err != nil {
		return nil, err
	}
	if cfg.WorkerConcurrency, err = getEnvInt("WORKER_CONCURRENCY", cfg.WorkerConcurrency); err != nil {
		return nil, err
	}
	if cfg.MainIDColumnIdx, err = getEnvInt("MAIN_ID_COLUMN_IDX", cfg.MainIDColumnIdx); err != nil {
		return nil, err
	}
	if cfg.DispatchInterval, err = getEnvDuration("DISPATCH_INTERVAL", cfg.DispatchInterval); err != nil {
		return nil, err
	}
	if cfg.DispatchWarmup, err = getEnvDuration("DISPATCH_WARMUP", cfg.DispatchWarmup); err != nil {
		return nil, err
	}
	if cfg.RetryDelay, err = getEnvDuration("RETRY_DELAY", cfg.RetryDelay); err != nil {
		return nil, err
	}
	if cfg.JobTimeout, err = getEnvDuration("JOB_TIMEOUT", cfg.JobTimeout); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the settings a given binary cannot run without.
func (c *Config) Validate(component string) error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s: DATABASE_URL is required", component)
	}
	if c.RedisURL == "" {
		return fmt.Errorf("%s: REDIS_URL is required", component)
	}
	if c.RetryLimit < 0 {
		return fmt.Errorf("%s: RETRY_LIMIT must be non-negative", component)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func getEnvInt64(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
