package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	domainconfig "blueprint-drafts/domain/config"
)

// Storage backends
const (
	StorageMemory   = "memory"
	StorageDynamoDB = "dynamodb"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress   string
	Environment     string
	ShutdownTimeout time.Duration

	// AWS configuration
	AWSRegion      string
	StorageBackend string
	SnapshotTable  string
	EventBusName   string
	EventSource    string

	// Lambda configuration
	IsLambda           bool
	LambdaFunctionName string

	// WebSocket configuration
	WebSocketEndpoint string

	// Preview runner
	PreviewRunnerURL     string
	PreviewRetries       int
	PreviewBreakerTrips  int
	PreviewBreakerWindow time.Duration

	// Sessions and caching
	SessionSweepInterval time.Duration
	SnapshotCacheTTL     time.Duration

	// Logging
	LogLevel string

	// Feature flags
	EnableMetrics    bool
	EnablePrometheus bool
	EnableTracing    bool
	EnableCORS       bool
	CORSOrigins      []string

	// Domain holds the reconciliation rules for this environment
	Domain *domainconfig.DomainConfig
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	environment := getEnv("ENVIRONMENT", "development")

	cfg := &Config{
		ServerAddress:   getEnv("SERVER_ADDRESS", ":8080"),
		Environment:     environment,
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),

		AWSRegion:      getEnv("AWS_REGION", "us-west-2"),
		StorageBackend: getEnv("STORAGE_BACKEND", StorageMemory),
		SnapshotTable:  getEnv("SNAPSHOT_TABLE", getEnv("TABLE_NAME", "blueprint-snapshots")),
		EventBusName:   getEnv("EVENT_BUS_NAME", ""),
		EventSource:    getEnv("EVENT_SOURCE", "blueprint.drafts"),

		// Lambda configuration
		IsLambda:           getEnvBool("IS_LAMBDA", false),
		LambdaFunctionName: getEnv("AWS_LAMBDA_FUNCTION_NAME", ""),

		// WebSocket configuration
		WebSocketEndpoint: getEnv("WEBSOCKET_ENDPOINT", ""),

		// Preview runner
		PreviewRunnerURL:     getEnv("PREVIEW_RUNNER_URL", ""),
		PreviewRetries:       getEnvInt("PREVIEW_RETRIES", 2),
		PreviewBreakerTrips:  getEnvInt("PREVIEW_BREAKER_TRIPS", 5),
		PreviewBreakerWindow: getEnvDuration("PREVIEW_BREAKER_WINDOW", 30*time.Second),

		SessionSweepInterval: getEnvDuration("SESSION_SWEEP_INTERVAL", time.Minute),
		SnapshotCacheTTL:     getEnvDuration("SNAPSHOT_CACHE_TTL", 30*time.Second),

		// Logging and features
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		EnableMetrics:    getEnvBool("ENABLE_METRICS", false),
		EnablePrometheus: getEnvBool("ENABLE_PROMETHEUS", true),
		EnableTracing:    getEnvBool("ENABLE_TRACING", false),
		EnableCORS:       getEnvBool("ENABLE_CORS", true),
		CORSOrigins:      getEnvList("CORS_ORIGINS", []string{"*"}),

		Domain: loadDomainConfig(environment),
	}

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadDomainConfig selects the environment rules and applies env overrides
func loadDomainConfig(environment string) *domainconfig.DomainConfig {
	d := domainconfig.LoadDomainConfig(environment)
	d.SurfaceSuperseded = getEnvBool("SURFACE_SUPERSEDED", d.SurfaceSuperseded)
	d.MaxUndoDepth = getEnvInt("MAX_UNDO_DEPTH", d.MaxUndoDepth)
	d.MaxProposalsPerMinute = getEnvInt("MAX_PROPOSALS_PER_MINUTE", d.MaxProposalsPerMinute)
	d.SessionTimeout = getEnvDuration("SESSION_TIMEOUT", d.SessionTimeout)
	d.PreviewTimeout = getEnvDuration("PREVIEW_TIMEOUT", d.PreviewTimeout)
	return d
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case StorageMemory, StorageDynamoDB:
	default:
		return fmt.Errorf("STORAGE_BACKEND must be %q or %q, got %q", StorageMemory, StorageDynamoDB, c.StorageBackend)
	}
	if c.StorageBackend == StorageDynamoDB && c.SnapshotTable == "" {
		return fmt.Errorf("SNAPSHOT_TABLE is required for the dynamodb backend")
	}

	if c.Environment == "production" {
		if c.StorageBackend != StorageDynamoDB {
			return fmt.Errorf("production requires STORAGE_BACKEND=%s", StorageDynamoDB)
		}
		if c.EventBusName == "" {
			return fmt.Errorf("EVENT_BUS_NAME is required in production")
		}
	}

	if c.Domain != nil {
		if err := c.Domain.Validate(); err != nil {
			return fmt.Errorf("domain config: %w", err)
		}
	}

	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration gets a duration environment variable such as "30s"
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList gets a comma separated environment variable
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
