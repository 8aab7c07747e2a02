package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tallyspace/tallyspace/pkg/observability"
	"github.com/tallyspace/tallyspace/pkg/security"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// Auth configuration
	Auth AuthConfig

	// Security screening configuration
	Security SecurityConfig

	// Background jobs configuration
	Jobs JobsConfig

	// Observability configuration
	Observability ObservabilityConfig
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
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
}

// AuthConfig holds session settings
type AuthConfig struct {
	SessionTTL time.Duration
}

// SecurityConfig holds suspicious-activity detector settings
type SecurityConfig struct {
	DetectorEnabled       bool
	MaxActionsPerHour     int
	MaxDistinctIPsPerHour int
	MaxDeletesPerDay      int
	MaxOffHoursPerDay     int
	OffHoursStart         int
	OffHoursEnd           int
}

// DetectorConfig converts the settings into the detector's config type
func (c SecurityConfig) DetectorConfig() security.DetectorConfig {
	cfg := security.DefaultDetectorConfig()
	if c.MaxActionsPerHour > 0 {
		cfg.MaxActionsPerHour = c.MaxActionsPerHour
	}
	if c.MaxDistinctIPsPerHour > 0 {
		cfg.MaxDistinctIPsPerHour = c.MaxDistinctIPsPerHour
	}
	if c.MaxDeletesPerDay > 0 {
		cfg.MaxDeletesPerDay = c.MaxDeletesPerDay
	}
	if c.MaxOffHoursPerDay > 0 {
		cfg.MaxOffHoursPerDay = c.MaxOffHoursPerDay
	}
	if c.OffHoursStart > 0 {
		cfg.OffHoursStart = c.OffHoursStart
	}
	if c.OffHoursEnd > 0 {
		cfg.OffHoursEnd = c.OffHoursEnd
	}
	return cfg
}

// JobsConfig holds background job scheduling settings
type JobsConfig struct {
	Enabled bool
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Auth:          loadAuthConfig(),
		Security:      loadSecurityConfig(),
		Jobs:          loadJobsConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("TALLY_HOST", "0.0.0.0"),
		Port:            getEnv("TALLY_PORT", "8080"),
		ReadTimeout:     getEnvDuration("TALLY_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("TALLY_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("TALLY_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("TALLY_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("TALLY_HEALTH_PORT", "9090"),
	}
}

// loadDatabaseConfig loads PostgreSQL configuration from environment
func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:             getEnv("TALLY_POSTGRES_URL", ""),
		MaxOpenConns:    getEnvInt("TALLY_POSTGRES_MAX_CONNS", 25),
		MaxIdleConns:    getEnvInt("TALLY_POSTGRES_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("TALLY_POSTGRES_CONN_LIFETIME", 5*time.Minute),
		ConnectTimeout:  getEnvDuration("TALLY_POSTGRES_TIMEOUT", 10*time.Second),
	}
}

// loadRedisConfig loads Redis configuration from environment
func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:       getEnv("TALLY_REDIS_ADDR", "localhost:6379"),
		Password:   getEnv("TALLY_REDIS_PASSWORD", ""),
		DB:         getEnvInt("TALLY_REDIS_DB", 0),
		PoolSize:   getEnvInt("TALLY_REDIS_POOL_SIZE", 10),
		MaxRetries: getEnvInt("TALLY_REDIS_MAX_RETRIES", 3),
	}
}

// loadAuthConfig loads session settings from environment
func loadAuthConfig() AuthConfig {
	return AuthConfig{
		SessionTTL: getEnvDuration("TALLY_SESSION_TTL", 24*time.Hour),
	}
}

// loadSecurityConfig loads detector settings from environment
func loadSecurityConfig() SecurityConfig {
	return SecurityConfig{
		DetectorEnabled:       getEnvBool("TALLY_DETECTOR_ENABLED", true),
		MaxActionsPerHour:     getEnvInt("TALLY_DETECTOR_MAX_ACTIONS_PER_HOUR", 0),
		MaxDistinctIPsPerHour: getEnvInt("TALLY_DETECTOR_MAX_IPS_PER_HOUR", 0),
		MaxDeletesPerDay:      getEnvInt("TALLY_DETECTOR_MAX_DELETES_PER_DAY", 0),
		MaxOffHoursPerDay:     getEnvInt("TALLY_DETECTOR_MAX_OFF_HOURS_PER_DAY", 0),
		OffHoursStart:         getEnvInt("TALLY_DETECTOR_OFF_HOURS_START", 0),
		OffHoursEnd:           getEnvInt("TALLY_DETECTOR_OFF_HOURS_END", 0),
	}
}

// loadJobsConfig loads background job settings from environment
func loadJobsConfig() JobsConfig {
	return JobsConfig{
		Enabled: getEnvBool("TALLY_JOBS_ENABLED", true),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("TALLY_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("TALLY_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("TALLY_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("TALLY_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("TALLY_OTEL_SERVICE_NAME", "tallyspaced"),
		OTelServiceVersion: getEnv("TALLY_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("TALLY_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Validate database config
	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	// Validate detector config
	if c.Security.OffHoursStart < 0 || c.Security.OffHoursStart > 23 {
		return fmt.Errorf("off-hours start must be between 0 and 23")
	}
	if c.Security.OffHoursEnd < 0 || c.Security.OffHoursEnd > 24 {
		return fmt.Errorf("off-hours end must be between 0 and 24")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
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
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
