package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for a deployment run
type Config struct {
	Storage      StorageConfig
	Logging      LoggingConfig
	Metrics      MetricsConfig
	Server       ServerConfig
	RateLimit    RateLimitConfig
	Deploy       DeployConfig
	Verification VerificationConfig
	Networks     NetworksConfig
}

// StorageConfig holds artifact store configuration
type StorageConfig struct {
	Type     string // "sqlite", "postgres" or "memory"
	Postgres PostgresConfig
	SQLite   SQLiteConfig
}

// PostgresConfig holds Postgres connection settings
type PostgresConfig struct {
	URL string
}

// SQLiteConfig holds SQLite settings
type SQLiteConfig struct {
	Path string
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string
	Format string // "text" or "json"
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled     bool
	ServiceName string
}

// ServerConfig holds the read API server configuration
type ServerConfig struct {
	Port         int
	Host         string
	ReadTimeout  int // seconds
	WriteTimeout int // seconds
}

// RateLimitConfig holds per-client throttling of the read API
type RateLimitConfig struct {
	Enabled        bool
	RequestsPerMin int
	Burst          int
}

// DeployConfig holds deployer and confirmation settings
type DeployConfig struct {
	PrivateKey          string
	SubmitTimeout       time.Duration
	ConfirmationTimeout time.Duration
	PollInterval        time.Duration
	GasLimit            uint64
	ReconcileCode       bool
}

// VerificationConfig holds block explorer settings
type VerificationConfig struct {
	APIKey       string
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	RequestsPerS float64
}

// NetworksConfig holds network registry settings
type NetworksConfig struct {
	File         string
	RPCOverrides map[int64]string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Storage: StorageConfig{
			Type: getEnv("STORAGE_TYPE", "sqlite"),
			Postgres: PostgresConfig{
				URL: getEnv("DATABASE_URL", ""),
			},
			SQLite: SQLiteConfig{
				Path: getEnv("SQLITE_PATH", "./deployments/contraship.db"),
			},
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
		Metrics: MetricsConfig{
			Enabled:     getEnvBool("METRICS_ENABLED", false),
			ServiceName: getEnv("METRICS_SERVICE_NAME", "contraship"),
		},
		Server: ServerConfig{
			Port:         getEnvInt("PORT", 8080),
			Host:         getEnv("HOST", "127.0.0.1"),
			ReadTimeout:  getEnvInt("SERVER_READ_TIMEOUT", 30),
			WriteTimeout: getEnvInt("SERVER_WRITE_TIMEOUT", 60),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getEnvBool("RATE_LIMIT_ENABLED", false),
			RequestsPerMin: getEnvInt("RATE_LIMIT_RPM", 120),
			Burst:          getEnvInt("RATE_LIMIT_BURST", 20),
		},
		Deploy: DeployConfig{
			PrivateKey:          getEnv("DEPLOYER_PRIVATE_KEY", ""),
			SubmitTimeout:       getEnvDuration("DEPLOY_SUBMIT_TIMEOUT", time.Minute),
			ConfirmationTimeout: getEnvDuration("DEPLOY_CONFIRMATION_TIMEOUT", 5*time.Minute),
			PollInterval:        getEnvDuration("DEPLOY_POLL_INTERVAL", 2*time.Second),
			GasLimit:            uint64(getEnvInt("DEPLOY_GAS_LIMIT", 0)),
			ReconcileCode:       getEnvBool("DEPLOY_RECONCILE_CODE", true),
		},
		Verification: VerificationConfig{
			APIKey:       getEnv("ETHERSCAN_API_KEY", ""),
			MaxAttempts:  getEnvInt("VERIFY_MAX_ATTEMPTS", 5),
			InitialDelay: getEnvDuration("VERIFY_INITIAL_DELAY", 2*time.Second),
			MaxDelay:     getEnvDuration("VERIFY_MAX_DELAY", 30*time.Second),
			RequestsPerS: getEnvFloat("VERIFY_REQUESTS_PER_SECOND", 4),
		},
		Networks: NetworksConfig{
			File:         getEnv("NETWORKS_FILE", ""),
			RPCOverrides: getRPCOverrides(os.Environ()),
		},
	}

	// If DATABASE_URL is set, default to postgres
	if cfg.Storage.Postgres.URL != "" && cfg.Storage.Type == "sqlite" {
		cfg.Storage.Type = "postgres"
	}

	return cfg, nil
}

// HasVerificationCredential reports whether an explorer API key is configured
func (c *Config) HasVerificationCredential() bool {
	return c.Verification.APIKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getRPCOverrides collects RPC_URL_<chainId>=<url> pairs
func getRPCOverrides(environ []string) map[int64]string {
	overrides := make(map[int64]string)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || value == "" || !strings.HasPrefix(key, "RPC_URL_") {
			continue
		}
		chainID, err := strconv.ParseInt(strings.TrimPrefix(key, "RPC_URL_"), 10, 64)
		if err != nil {
			continue
		}
		overrides[chainID] = value
	}
	return overrides
}
