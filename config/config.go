// package config provides functions and values
// for reading and validating batch gateway configuration
package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	LogLevel                                  string
	BatchServicePort                          string
	UpstreamServiceRootURL                    string
	UpstreamTimeout                           time.Duration
	UpstreamRetryMaxAttempts                  int
	UpstreamRetryInterval                     time.Duration
	UpstreamDebugLogResponses                 bool
	CacheEnabled                              bool
	RedisEndpointURL                          string
	RedisPassword                             string
	CacheTTL                                  time.Duration
	CachePrefix                               string
	MetricDatabaseEnabled                     bool
	DatabaseName                              string
	DatabaseEndpointURL                       string
	DatabaseUserName                          string
	DatabasePassword                          string
	DatabaseSSLEnabled                        bool
	DatabaseQueryLoggingEnabled               bool
	DatabaseReadTimeoutSeconds                int64
	DatabaseWriteTimeoutSeconds               int64
	DatabaseMaxIdleConnections                int64
	DatabaseConnectionMaxIdleSeconds          int64
	DatabaseMaxOpenConnections                int64
	RunDatabaseMigrations                     bool
	MetricPruningEnabled                      bool
	MetricPruningRoutineInterval              time.Duration
	MetricPruningRoutineDelayFirstRun         time.Duration
	MetricPruningMaxRequestMetricsHistoryDays int64
}

const (
	LOG_LEVEL_ENVIRONMENT_KEY                                       = "LOG_LEVEL"
	DEFAULT_LOG_LEVEL                                               = "INFO"
	BATCH_SERVICE_PORT_ENVIRONMENT_KEY                              = "BATCH_SERVICE_PORT"
	DEFAULT_BATCH_SERVICE_PORT                                      = "7777"
	UPSTREAM_SERVICE_ROOT_URL_ENVIRONMENT_KEY                       = "UPSTREAM_SERVICE_ROOT_URL"
	UPSTREAM_TIMEOUT_SECONDS_ENVIRONMENT_KEY                        = "UPSTREAM_TIMEOUT_SECONDS"
	DEFAULT_UPSTREAM_TIMEOUT_SECONDS                                = 30
	UPSTREAM_RETRY_MAX_ATTEMPTS_ENVIRONMENT_KEY                     = "UPSTREAM_RETRY_MAX_ATTEMPTS"
	DEFAULT_UPSTREAM_RETRY_MAX_ATTEMPTS                             = 1
	UPSTREAM_RETRY_INTERVAL_MILLISECONDS_ENVIRONMENT_KEY            = "UPSTREAM_RETRY_INTERVAL_MILLISECONDS"
	DEFAULT_UPSTREAM_RETRY_INTERVAL_MILLISECONDS                    = 250
	UPSTREAM_DEBUG_LOG_RESPONSES_ENVIRONMENT_KEY                    = "UPSTREAM_DEBUG_LOG_RESPONSES"
	CACHE_ENABLED_ENVIRONMENT_KEY                                   = "CACHE_ENABLED"
	REDIS_ENDPOINT_URL_ENVIRONMENT_KEY                              = "REDIS_ENDPOINT_URL"
	REDIS_PASSWORD_ENVIRONMENT_KEY                                  = "REDIS_PASSWORD"
	CACHE_TTL_ENVIRONMENT_KEY                                       = "CACHE_TTL_SECONDS"
	DEFAULT_CACHE_TTL_SECONDS                                       = 60
	CACHE_PREFIX_ENVIRONMENT_KEY                                    = "CACHE_PREFIX"
	DEFAULT_CACHE_PREFIX                                            = "odatabatch"
	METRIC_DATABASE_ENABLED_ENVIRONMENT_KEY                         = "METRIC_DATABASE_ENABLED"
	DATABASE_NAME_ENVIRONMENT_KEY                                   = "DATABASE_NAME"
	DATABASE_ENDPOINT_URL_ENVIRONMENT_KEY                           = "DATABASE_ENDPOINT_URL"
	DATABASE_USERNAME_ENVIRONMENT_KEY                               = "DATABASE_USERNAME"
	DATABASE_PASSWORD_ENVIRONMENT_KEY                               = "DATABASE_PASSWORD"
	DATABASE_SSL_ENABLED_ENVIRONMENT_KEY                            = "DATABASE_SSL_ENABLED"
	DATABASE_QUERY_LOGGING_ENABLED_ENVIRONMENT_KEY                  = "DATABASE_QUERY_LOGGING_ENABLED"
	DATABASE_READ_TIMEOUT_SECONDS_ENVIRONMENT_KEY                   = "DATABASE_READ_TIMEOUT_SECONDS"
	DEFAULT_DATABASE_READ_TIMEOUT_SECONDS                           = 60
	DATABASE_WRITE_TIMEOUT_SECONDS_ENVIRONMENT_KEY                  = "DATABASE_WRITE_TIMEOUT_SECONDS"
	DEFAULT_DATABASE_WRITE_TIMEOUT_SECONDS                          = 10
	DATABASE_MAX_IDLE_CONNECTIONS_ENVIRONMENT_KEY                   = "DATABASE_MAX_IDLE_CONNECTIONS"
	DEFAULT_DATABASE_MAX_IDLE_CONNECTIONS                           = 5
	DATABASE_CONNECTION_MAX_IDLE_SECONDS_ENVIRONMENT_KEY            = "DATABASE_CONNECTION_MAX_IDLE_SECONDS"
	DEFAULT_DATABASE_CONNECTION_MAX_IDLE_SECONDS                    = 5
	DATABASE_MAX_OPEN_CONNECTIONS_ENVIRONMENT_KEY                   = "DATABASE_MAX_OPEN_CONNECTIONS"
	DEFAULT_DATABASE_MAX_OPEN_CONNECTIONS                           = 20
	RUN_DATABASE_MIGRATIONS_ENVIRONMENT_KEY                         = "RUN_DATABASE_MIGRATIONS"
	METRIC_PRUNING_ENABLED_ENVIRONMENT_KEY                          = "METRIC_PRUNING_ENABLED"
	METRIC_PRUNING_ROUTINE_INTERVAL_SECONDS_ENVIRONMENT_KEY         = "METRIC_PRUNING_ROUTINE_INTERVAL_SECONDS"
	DEFAULT_METRIC_PRUNING_ROUTINE_INTERVAL_SECONDS                 = 600
	METRIC_PRUNING_ROUTINE_DELAY_FIRST_RUN_SECONDS_ENVIRONMENT_KEY  = "METRIC_PRUNING_ROUTINE_DELAY_FIRST_RUN_SECONDS"
	DEFAULT_METRIC_PRUNING_ROUTINE_DELAY_FIRST_RUN_SECONDS          = 10
	METRIC_PRUNING_MAX_REQUEST_METRICS_HISTORY_DAYS_ENVIRONMENT_KEY = "METRIC_PRUNING_MAX_REQUEST_METRICS_HISTORY_DAYS"
	DEFAULT_METRIC_PRUNING_MAX_REQUEST_METRICS_HISTORY_DAYS         = 45
)

// EnvOrDefault fetches an environment variable value, or if not set returns the fallback value
func EnvOrDefault(key string, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

// EnvOrDefaultInt fetches an int environment variable value, or if not set
// or not an integer returns the fallback value
func EnvOrDefaultInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

// EnvOrDefaultInt64 is EnvOrDefaultInt for int64 values
func EnvOrDefaultInt64(key string, fallback int64) int64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

// EnvOrDefaultBool fetches a bool environment variable value, or if not set
// or not a bool returns the fallback value
func EnvOrDefaultBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func seconds(n int64) time.Duration {
	return time.Duration(n) * time.Second
}

// ReadConfig attempts to parse service config from environment values
// the returned config may be invalid and should be validated via the `Validate`
// function of the Config package before use
func ReadConfig() Config {
	return Config{
		LogLevel:                                  EnvOrDefault(LOG_LEVEL_ENVIRONMENT_KEY, DEFAULT_LOG_LEVEL),
		BatchServicePort:                          EnvOrDefault(BATCH_SERVICE_PORT_ENVIRONMENT_KEY, DEFAULT_BATCH_SERVICE_PORT),
		UpstreamServiceRootURL:                    os.Getenv(UPSTREAM_SERVICE_ROOT_URL_ENVIRONMENT_KEY),
		UpstreamTimeout:                           seconds(EnvOrDefaultInt64(UPSTREAM_TIMEOUT_SECONDS_ENVIRONMENT_KEY, DEFAULT_UPSTREAM_TIMEOUT_SECONDS)),
		UpstreamRetryMaxAttempts:                  EnvOrDefaultInt(UPSTREAM_RETRY_MAX_ATTEMPTS_ENVIRONMENT_KEY, DEFAULT_UPSTREAM_RETRY_MAX_ATTEMPTS),
		UpstreamRetryInterval:                     time.Duration(EnvOrDefaultInt64(UPSTREAM_RETRY_INTERVAL_MILLISECONDS_ENVIRONMENT_KEY, DEFAULT_UPSTREAM_RETRY_INTERVAL_MILLISECONDS)) * time.Millisecond,
		UpstreamDebugLogResponses:                 EnvOrDefaultBool(UPSTREAM_DEBUG_LOG_RESPONSES_ENVIRONMENT_KEY, false),
		CacheEnabled:                              EnvOrDefaultBool(CACHE_ENABLED_ENVIRONMENT_KEY, false),
		RedisEndpointURL:                          os.Getenv(REDIS_ENDPOINT_URL_ENVIRONMENT_KEY),
		RedisPassword:                             os.Getenv(REDIS_PASSWORD_ENVIRONMENT_KEY),
		CacheTTL:                                  seconds(EnvOrDefaultInt64(CACHE_TTL_ENVIRONMENT_KEY, DEFAULT_CACHE_TTL_SECONDS)),
		CachePrefix:                               EnvOrDefault(CACHE_PREFIX_ENVIRONMENT_KEY, DEFAULT_CACHE_PREFIX),
		MetricDatabaseEnabled:                     EnvOrDefaultBool(METRIC_DATABASE_ENABLED_ENVIRONMENT_KEY, false),
		DatabaseName:                              os.Getenv(DATABASE_NAME_ENVIRONMENT_KEY),
		DatabaseEndpointURL:                       os.Getenv(DATABASE_ENDPOINT_URL_ENVIRONMENT_KEY),
		DatabaseUserName:                          os.Getenv(DATABASE_USERNAME_ENVIRONMENT_KEY),
		DatabasePassword:                          os.Getenv(DATABASE_PASSWORD_ENVIRONMENT_KEY),
		DatabaseSSLEnabled:                        EnvOrDefaultBool(DATABASE_SSL_ENABLED_ENVIRONMENT_KEY, false),
		DatabaseQueryLoggingEnabled:               EnvOrDefaultBool(DATABASE_QUERY_LOGGING_ENABLED_ENVIRONMENT_KEY, false),
		DatabaseReadTimeoutSeconds:                EnvOrDefaultInt64(DATABASE_READ_TIMEOUT_SECONDS_ENVIRONMENT_KEY, DEFAULT_DATABASE_READ_TIMEOUT_SECONDS),
		DatabaseWriteTimeoutSeconds:               EnvOrDefaultInt64(DATABASE_WRITE_TIMEOUT_SECONDS_ENVIRONMENT_KEY, DEFAULT_DATABASE_WRITE_TIMEOUT_SECONDS),
		DatabaseMaxIdleConnections:                EnvOrDefaultInt64(DATABASE_MAX_IDLE_CONNECTIONS_ENVIRONMENT_KEY, DEFAULT_DATABASE_MAX_IDLE_CONNECTIONS),
		DatabaseConnectionMaxIdleSeconds:          EnvOrDefaultInt64(DATABASE_CONNECTION_MAX_IDLE_SECONDS_ENVIRONMENT_KEY, DEFAULT_DATABASE_CONNECTION_MAX_IDLE_SECONDS),
		DatabaseMaxOpenConnections:                EnvOrDefaultInt64(DATABASE_MAX_OPEN_CONNECTIONS_ENVIRONMENT_KEY, DEFAULT_DATABASE_MAX_OPEN_CONNECTIONS),
		RunDatabaseMigrations:                     EnvOrDefaultBool(RUN_DATABASE_MIGRATIONS_ENVIRONMENT_KEY, false),
		MetricPruningEnabled:                      EnvOrDefaultBool(METRIC_PRUNING_ENABLED_ENVIRONMENT_KEY, false),
		MetricPruningRoutineInterval:              seconds(EnvOrDefaultInt64(METRIC_PRUNING_ROUTINE_INTERVAL_SECONDS_ENVIRONMENT_KEY, DEFAULT_METRIC_PRUNING_ROUTINE_INTERVAL_SECONDS)),
		MetricPruningRoutineDelayFirstRun:         seconds(EnvOrDefaultInt64(METRIC_PRUNING_ROUTINE_DELAY_FIRST_RUN_SECONDS_ENVIRONMENT_KEY, DEFAULT_METRIC_PRUNING_ROUTINE_DELAY_FIRST_RUN_SECONDS)),
		MetricPruningMaxRequestMetricsHistoryDays: EnvOrDefaultInt64(METRIC_PRUNING_MAX_REQUEST_METRICS_HISTORY_DAYS_ENVIRONMENT_KEY, DEFAULT_METRIC_PRUNING_MAX_REQUEST_METRICS_HISTORY_DAYS),
	}
}
