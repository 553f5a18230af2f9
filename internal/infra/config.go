package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv string
	Port   string

	// Remote generation service.
	FluxAPIKey  string
	FluxBaseURL string
	FluxModel   string

	// Artifact and history persistence. DatabaseURL is optional; when empty
	// the history store is disabled and artifacts only land on disk.
	OutputDir   string
	DatabaseURL string

	// Orchestrator tuning.
	MaxConcurrency int
	RateLimitRPS   float64
	RateLimitBurst int
	MaxAttempts    int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
	RequestTimeout time.Duration
	PollInterval   time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from the environment, reading a local .env
// file first when present, and applies defaults where needed.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env", ".env.local")

	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "8080"),
		FluxAPIKey:       os.Getenv("FLUX_API_KEY"),
		FluxBaseURL:      getEnv("FLUX_BASE_URL", "https://api.bfl.ml/v1"),
		FluxModel:        getEnv("FLUX_MODEL", "flux-pro-1.1"),
		OutputDir:        getEnv("OUTPUT_DIR", "./output"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		MaxConcurrency:   getEnvInt("MAX_CONCURRENCY", 3),
		RateLimitRPS:     getEnvFloat("RATE_LIMIT_RPS", 0.5),
		RateLimitBurst:   getEnvInt("RATE_LIMIT_BURST", 2),
		MaxAttempts:      getEnvInt("MAX_ATTEMPTS", 3),
		BaseBackoff:      time.Millisecond * time.Duration(getEnvInt("BASE_BACKOFF_MS", 1000)),
		MaxBackoff:       time.Millisecond * time.Duration(getEnvInt("MAX_BACKOFF_MS", 30000)),
		RequestTimeout:   time.Second * time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 120)),
		PollInterval:     time.Millisecond * time.Duration(getEnvInt("POLL_INTERVAL_MS", 2000)),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.MaxConcurrency < 1 {
		return nil, fmt.Errorf("MAX_CONCURRENCY must be at least 1")
	}
	if cfg.RateLimitRPS <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_RPS must be positive")
	}
	if cfg.RateLimitBurst < 1 {
		return nil, fmt.Errorf("RATE_LIMIT_BURST must be at least 1")
	}
	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("MAX_ATTEMPTS must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
