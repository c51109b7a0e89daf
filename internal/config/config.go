package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Postgres PostgresConfig `json:"postgres"`
	Download DownloadConfig `json:"download"`
	Worker   WorkerConfig   `json:"worker"`
	Logger   LoggerConfig   `json:"logger"`
	Metrics  MetricsConfig  `json:"metrics"`
}

type PostgresConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Dsn      string `json:"dsn"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
	TimeZone string `json:"timezone"`
}

type DownloadConfig struct {
	BaseURL string        `json:"base_url"`
	Timeout time.Duration `json:"timeout"`
}

type WorkerConfig struct {
	Concurrency  int           `json:"concurrency"`
	PollInterval time.Duration `json:"poll_interval"`
	MaxRetries   int           `json:"max_retries"`
	SourceTag    string        `json:"source_tag"`
}

type LoggerConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

type MetricsConfig struct {
	Addr string `json:"addr"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	config := &Config{
		Postgres: PostgresConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvAsInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", ""),
			Database: getEnv("POSTGRES_DATABASE", "rain_gauge"),
			SSLMode:  getEnv("POSTGRES_SSL_MODE", "disable"),
			TimeZone: getEnv("POSTGRES_TIMEZONE", "UTC"),
		},
		Download: DownloadConfig{
			BaseURL: getEnv("DOWNLOAD_BASE_URL", "https://alert.fcd.maricopa.gov/alert/Rain"),
			Timeout: time.Duration(getEnvAsInt("DOWNLOAD_TIMEOUT_SECONDS", 60)) * time.Second,
		},
		Worker: WorkerConfig{
			Concurrency:  getEnvAsInt("FOPR_WORKER_CONCURRENCY", 10),
			PollInterval: time.Duration(getEnvAsInt("FOPR_POLL_INTERVAL_SECONDS", 30)) * time.Second,
			MaxRetries:   getEnvAsInt("FOPR_MAX_RETRIES", 3),
			SourceTag:    getEnv("FOPR_SOURCE_TAG", "fopr_worker"),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
		Metrics: MetricsConfig{
			Addr: getEnv("METRICS_ADDR", ":9091"),
		},
	}

	baseURL, found := strings.CutSuffix(config.Download.BaseURL, "/")
	if found {
		config.Download.BaseURL = baseURL
	}

	config.Postgres.Dsn = fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		config.Postgres.Host, config.Postgres.Port, config.Postgres.User, config.Postgres.Password, config.Postgres.Database,
		func() string {
			if config.Postgres.SSLMode == "false" || config.Postgres.SSLMode == "" {
				return "disable"
			}
			return config.Postgres.SSLMode
		}(),
		config.Postgres.TimeZone,
	)

	return config, config.validate()
}

func (c *Config) validate() error {
	if c.Download.BaseURL == "" {
		return fmt.Errorf("DOWNLOAD_BASE_URL has to be set")
	}
	if c.Download.Timeout <= 0 {
		return fmt.Errorf("DOWNLOAD_TIMEOUT_SECONDS must be greater than 0")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("FOPR_WORKER_CONCURRENCY must be greater than 0")
	}
	if c.Worker.PollInterval <= 0 {
		return fmt.Errorf("FOPR_POLL_INTERVAL_SECONDS must be greater than 0")
	}
	if c.Worker.MaxRetries < 0 {
		return fmt.Errorf("FOPR_MAX_RETRIES must not be negative")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
