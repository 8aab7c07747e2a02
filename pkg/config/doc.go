// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	TALLY_HOST="0.0.0.0"
//	TALLY_PORT="8080"
//	TALLY_HEALTH_PORT="9090"
//	TALLY_READ_TIMEOUT="15s"
//	TALLY_WRITE_TIMEOUT="15s"
//
// Database settings:
//
//	TALLY_POSTGRES_URL="postgres://localhost/tallyspace"
//	TALLY_POSTGRES_MAX_CONNS="25"
//	TALLY_POSTGRES_CONN_LIFETIME="5m"
//
// Redis settings:
//
//	TALLY_REDIS_ADDR="localhost:6379"
//	TALLY_REDIS_POOL_SIZE="10"
//
// Security settings:
//
//	TALLY_DETECTOR_ENABLED="true"
//	TALLY_DETECTOR_MAX_ACTIONS_PER_HOUR="50"
//	TALLY_DETECTOR_MAX_DELETES_PER_DAY="10"
//
// Observability settings:
//
//	TALLY_LOG_LEVEL="info"  # debug, info, warn, error
//	TALLY_METRICS_ENABLED="true"
//	TALLY_OTEL_ENABLED="true"
//	TALLY_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Log level: %s\n", cfg.Observability.LogLevel)
//
// # Related Packages
//
//   - pkg/storage: Uses database configuration
//   - pkg/observability: Uses observability configuration
package config
