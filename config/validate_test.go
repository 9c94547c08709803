package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/omercs/odatabatch/config"
)

func defaultConfig(t *testing.T) config.Config {
	setDefaultEnv(t)
	return config.ReadConfig()
}

func TestUnitTestValidateConfigReturnsNilErrorForValidConfig(t *testing.T) {
	err := config.Validate(defaultConfig(t))

	assert.Nil(t, err)
}

func TestUnitTestValidateConfigReturnsErrorIfInvalidLogLevel(t *testing.T) {
	testConfig := defaultConfig(t)
	testConfig.LogLevel = "whisper"

	err := config.Validate(testConfig)

	assert.ErrorContains(t, err, config.LOG_LEVEL_ENVIRONMENT_KEY)
}

func TestUnitTestValidateConfigRejectsRelativeUpstream(t *testing.T) {
	testConfig := defaultConfig(t)
	testConfig.UpstreamServiceRootURL = "odata/service"

	err := config.Validate(testConfig)

	assert.ErrorContains(t, err, config.UPSTREAM_SERVICE_ROOT_URL_ENVIRONMENT_KEY)
}

func TestUnitTestValidateConfigReportsEveryInvalidValue(t *testing.T) {
	testConfig := defaultConfig(t)
	testConfig.BatchServicePort = "http"
	testConfig.UpstreamRetryMaxAttempts = 0
	testConfig.CacheEnabled = true
	testConfig.RedisEndpointURL = ""
	testConfig.CachePrefix = "a:b"
	testConfig.CacheTTL = 0

	err := config.Validate(testConfig)

	for _, key := range []string{
		config.BATCH_SERVICE_PORT_ENVIRONMENT_KEY,
		config.UPSTREAM_RETRY_MAX_ATTEMPTS_ENVIRONMENT_KEY,
		config.CACHE_PREFIX_ENVIRONMENT_KEY,
		config.CACHE_TTL_ENVIRONMENT_KEY,
	} {
		assert.ErrorContains(t, err, key)
	}
}

func TestUnitTestValidateConfigAllowsCacheWithoutRedis(t *testing.T) {
	testConfig := defaultConfig(t)
	testConfig.CacheEnabled = true
	testConfig.RedisEndpointURL = ""
	testConfig.CachePrefix = "odatabatch"
	testConfig.CacheTTL = time.Minute

	assert.Nil(t, config.Validate(testConfig))
}

func TestUnitTestValidateConfigIgnoresDisabledCache(t *testing.T) {
	testConfig := defaultConfig(t)
	testConfig.CacheEnabled = false
	testConfig.RedisEndpointURL = ""
	testConfig.CachePrefix = ""

	assert.Nil(t, config.Validate(testConfig))
}

func TestUnitTestValidateConfigMetricPruningRequiresDatabase(t *testing.T) {
	testConfig := defaultConfig(t)
	testConfig.MetricPruningEnabled = true
	testConfig.MetricPruningRoutineInterval = time.Minute

	err := config.Validate(testConfig)
	assert.ErrorContains(t, err, config.METRIC_DATABASE_ENABLED_ENVIRONMENT_KEY)

	testConfig.MetricDatabaseEnabled = true
	testConfig.DatabaseEndpointURL = "localhost:5432"
	testConfig.DatabaseName = "postgres"

	assert.Nil(t, config.Validate(testConfig))
}
