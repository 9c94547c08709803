package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

var (
	ValidLogLevels = [4]string{"TRACE", "DEBUG", "INFO", "ERROR"}
)

// Validate validates the provided config
// returning a list of errors that can be unwrapped with `errors.Unwrap`
// or nil if the config is valid
func Validate(config Config) error {
	var validLogLevel bool
	var allErrs error

	for _, validLevel := range ValidLogLevels {
		if config.LogLevel == validLevel {
			validLogLevel = true
			break
		}
	}

	if !validLogLevel {
		allErrs = fmt.Errorf("invalid %s specified %s, supported values are %v", LOG_LEVEL_ENVIRONMENT_KEY, config.LogLevel, ValidLogLevels)
	}

	if _, err := strconv.Atoi(config.BatchServicePort); err != nil {
		allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %s", BATCH_SERVICE_PORT_ENVIRONMENT_KEY, config.BatchServicePort))
	}

	serviceRoot, err := url.Parse(config.UpstreamServiceRootURL)
	if err != nil || serviceRoot.Scheme == "" || serviceRoot.Host == "" {
		allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %s, must be an absolute url", UPSTREAM_SERVICE_ROOT_URL_ENVIRONMENT_KEY, config.UpstreamServiceRootURL))
	}

	if config.UpstreamTimeout < 0 {
		allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %s, must not be negative", UPSTREAM_TIMEOUT_SECONDS_ENVIRONMENT_KEY, config.UpstreamTimeout))
	}
	if config.UpstreamRetryMaxAttempts < 1 {
		allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %d, must be at least 1", UPSTREAM_RETRY_MAX_ATTEMPTS_ENVIRONMENT_KEY, config.UpstreamRetryMaxAttempts))
	}
	if config.UpstreamRetryInterval < 0 {
		allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %s, must not be negative", UPSTREAM_RETRY_INTERVAL_MILLISECONDS_ENVIRONMENT_KEY, config.UpstreamRetryInterval))
	}

	if config.CacheEnabled {
		if config.CacheTTL <= 0 {
			allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %s, must be greater than zero", CACHE_TTL_ENVIRONMENT_KEY, config.CacheTTL))
		}
		if strings.Contains(config.CachePrefix, ":") {
			allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %s, must not contain colon symbol", CACHE_PREFIX_ENVIRONMENT_KEY, config.CachePrefix))
		}
		if config.CachePrefix == "" {
			allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %s, must not be empty", CACHE_PREFIX_ENVIRONMENT_KEY, config.CachePrefix))
		}
	}

	if config.MetricDatabaseEnabled {
		if config.DatabaseEndpointURL == "" {
			allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %s, must not be empty", DATABASE_ENDPOINT_URL_ENVIRONMENT_KEY, config.DatabaseEndpointURL))
		}
		if config.DatabaseName == "" {
			allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %s, must not be empty", DATABASE_NAME_ENVIRONMENT_KEY, config.DatabaseName))
		}
	}

	if config.MetricPruningEnabled {
		if !config.MetricDatabaseEnabled {
			allErrs = errors.Join(allErrs, fmt.Errorf("%s requires %s", METRIC_PRUNING_ENABLED_ENVIRONMENT_KEY, METRIC_DATABASE_ENABLED_ENVIRONMENT_KEY))
		}
		if config.MetricPruningRoutineInterval <= 0 {
			allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %s, must be greater than zero", METRIC_PRUNING_ROUTINE_INTERVAL_SECONDS_ENVIRONMENT_KEY, config.MetricPruningRoutineInterval))
		}
		if config.MetricPruningMaxRequestMetricsHistoryDays < 1 {
			allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %d, must be at least 1", METRIC_PRUNING_MAX_REQUEST_METRICS_HISTORY_DAYS_ENVIRONMENT_KEY, config.MetricPruningMaxRequestMetricsHistoryDays))
		}
	}

	return allErrs
}
