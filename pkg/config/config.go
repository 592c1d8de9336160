// Package config loads application configuration from KVGATE_-prefixed
// environment variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vberkoz/kvgate/pkg/observability"
	"github.com/vberkoz/kvgate/pkg/store"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Store         StoreConfig
	Redis         RedisConfig
	Auth          AuthConfig
	Observability ObservabilityConfig
	Usage         UsageConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// CORSOrigins is the cross-origin allow-list.
	CORSOrigins []string
}

// StoreConfig selects and configures the storage backend.
type StoreConfig struct {
	// Type is "memory" or "dynamodb".
	Type   string
	Dynamo store.DynamoConfig
}

// RedisConfig configures the distributed rate limiter. Empty URL means
// the in-process limiter is used.
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	// FailOpen allows requests when Redis is unreachable.
	FailOpen bool
}

// AuthConfig configures the bearer-token verifier. Empty issuer
// disables bearer auth; API keys keep working.
type AuthConfig struct {
	OIDCIssuerURL string
	OIDCClientID  string
	// PlanCacheSize and PlanCacheTTL bound the tenant-plan cache.
	PlanCacheSize int
	PlanCacheTTL  time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// UsageConfig tunes metering.
type UsageConfig struct {
	// AlertThresholdPercent of the monthly quota at which tenants are
	// notified.
	AlertThresholdPercent int
	// SweepKeepMonths is how many calendar months of counters survive a
	// sweep, current month included.
	SweepKeepMonths int
	// WebhookURL, when set, receives signed threshold alerts instead of
	// a log line. WebhookSecret signs the payloads.
	WebhookURL    string
	WebhookSecret string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("KVGATE_HOST", "0.0.0.0"),
			Port:            getEnv("KVGATE_PORT", "8080"),
			ReadTimeout:     getEnvDuration("KVGATE_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("KVGATE_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("KVGATE_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("KVGATE_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("KVGATE_HEALTH_PORT", "9090"),
			CORSOrigins:     getEnvList("KVGATE_CORS_ORIGINS", nil),
		},
		Store: StoreConfig{
			Type: getEnv("KVGATE_STORE_TYPE", "memory"),
			Dynamo: store.DynamoConfig{
				TableName: getEnv("KVGATE_DYNAMO_TABLE", "kvgate"),
				IndexName: getEnv("KVGATE_DYNAMO_INDEX", "GSI1"),
				Region:    getEnv("KVGATE_DYNAMO_REGION", "us-east-1"),
				Endpoint:  getEnv("KVGATE_DYNAMO_ENDPOINT", ""),
				AccessKey: getEnv("KVGATE_DYNAMO_ACCESS_KEY", ""),
				SecretKey: getEnv("KVGATE_DYNAMO_SECRET_KEY", ""),
			},
		},
		Redis: RedisConfig{
			URL:      getEnv("KVGATE_REDIS_URL", ""),
			Password: getEnv("KVGATE_REDIS_PASSWORD", ""),
			DB:       getEnvInt("KVGATE_REDIS_DB", 0),
			FailOpen: getEnvBool("KVGATE_REDIS_FAIL_OPEN", true),
		},
		Auth: AuthConfig{
			OIDCIssuerURL: getEnv("KVGATE_OIDC_ISSUER_URL", ""),
			OIDCClientID:  getEnv("KVGATE_OIDC_CLIENT_ID", ""),
			PlanCacheSize: getEnvInt("KVGATE_PLAN_CACHE_SIZE", 10000),
			PlanCacheTTL:  getEnvDuration("KVGATE_PLAN_CACHE_TTL", 5*time.Minute),
		},
		Observability: ObservabilityConfig{
			LogLevel:       parseLogLevel(getEnv("KVGATE_LOG_LEVEL", "info")),
			MetricsEnabled: getEnvBool("KVGATE_METRICS_ENABLED", true),
		},
		Usage: UsageConfig{
			AlertThresholdPercent: getEnvInt("KVGATE_USAGE_ALERT_PERCENT", 80),
			SweepKeepMonths:       getEnvInt("KVGATE_USAGE_KEEP_MONTHS", 2),
			WebhookURL:            getEnv("KVGATE_USAGE_WEBHOOK_URL", ""),
			WebhookSecret:         getEnv("KVGATE_USAGE_WEBHOOK_SECRET", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	switch c.Store.Type {
	case "memory":
	case "dynamodb":
		if c.Store.Dynamo.TableName == "" {
			return fmt.Errorf("dynamo table name is required for dynamodb storage")
		}
		if c.Store.Dynamo.Region == "" {
			return fmt.Errorf("dynamo region is required for dynamodb storage")
		}
	default:
		return fmt.Errorf("invalid store type: %s (must be memory or dynamodb)", c.Store.Type)
	}

	if c.Auth.OIDCIssuerURL != "" && c.Auth.OIDCClientID == "" {
		return fmt.Errorf("OIDC client id is required when an issuer is configured")
	}
	if c.Usage.AlertThresholdPercent < 0 || c.Usage.AlertThresholdPercent > 100 {
		return fmt.Errorf("usage alert percent must be between 0 and 100")
	}
	if c.Usage.SweepKeepMonths < 1 {
		return fmt.Errorf("usage keep months must be at least 1")
	}
	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable or a default
func getEnvList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	}
	return defaultValue
}
