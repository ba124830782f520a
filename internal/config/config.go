// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration for the orchestrator.
type Config struct {
	Port        string
	Environment string

	// Docker runtime
	DockerHost     string
	RuntimeImage   string
	PreviewPort    int
	InstallTimeout time.Duration

	// Execution backends
	RemoteExecutorURL   string
	FallbackExecutorURL string
	ExecutionTimeout    time.Duration

	// Storage
	DatabasePath string

	// HTTP
	RateLimitRPS       int
	CORSAllowedOrigins string
}

// Load reads configuration from environment variables, applying defaults.
func Load() *Config {
	return &Config{
		Port:        envOr("PORT", "8080"),
		Environment: envOr("ENVIRONMENT", "development"),

		DockerHost:     os.Getenv("DOCKER_HOST"),
		RuntimeImage:   envOr("RUNTIME_IMAGE", "node:20-alpine"),
		PreviewPort:    envOrInt("PREVIEW_PORT", 5173),
		InstallTimeout: time.Duration(envOrInt("INSTALL_TIMEOUT_SECONDS", 90)) * time.Second,

		RemoteExecutorURL:   envOr("REMOTE_EXECUTOR_URL", "https://emkc.org/api/v2/piston"),
		FallbackExecutorURL: os.Getenv("FALLBACK_EXECUTOR_URL"),
		ExecutionTimeout:    time.Duration(envOrInt("EXECUTION_TIMEOUT_SECONDS", 30)) * time.Second,

		DatabasePath: envOr("DATABASE_PATH", "stagebox.db"),

		RateLimitRPS:       envOrInt("RATE_LIMIT_RPS", 20),
		CORSAllowedOrigins: os.Getenv("CORS_ALLOWED_ORIGINS"),
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
