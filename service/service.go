// package service provides functions and methods
// for creating and running the api of the batch gateway
package service

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/negroni"

	"github.com/omercs/odatabatch/client"
	"github.com/omercs/odatabatch/clients/cache"
	"github.com/omercs/odatabatch/clients/database"
	"github.com/omercs/odatabatch/clients/database/noop"
	"github.com/omercs/odatabatch/clients/database/postgres"
	"github.com/omercs/odatabatch/clients/database/postgres/migrations"
	"github.com/omercs/odatabatch/config"
	"github.com/omercs/odatabatch/logging"
)

const (
	BatchPath        = "/batch"
	HealthcheckPath  = "/healthcheck"
	ServicecheckPath = "/servicecheck"
	MetricsPath      = "/metrics"
	BatchMetricsPath = "/batch-metrics"

	// metrics are saved after the response was sent,
	// bounded so a slow database can not pile up goroutines forever
	metricSaveTimeout = 5 * time.Second
)

// BatchService represents an instance of the batch gateway API
type BatchService struct {
	Database database.MetricsDatabase
	// Cache is nil when caching is disabled
	Cache *ItemCache

	client   *client.Client
	server   *http.Server
	hostname string
	*logging.ServiceLogger
}

// Dependencies are the collaborators of a BatchService
type Dependencies struct {
	Client   *client.Client
	Database database.MetricsDatabase
	// Cache may be nil to disable caching
	Cache *ItemCache
}

// New returns a new BatchService with the specified config and error (if any)
func New(ctx context.Context, config config.Config, serviceLogger *logging.ServiceLogger) (BatchService, error) {
	upstream, err := client.New(client.Config{
		ServiceRootURL:    config.UpstreamServiceRootURL,
		Timeout:           config.UpstreamTimeout,
		RetryMaxAttempts:  config.UpstreamRetryMaxAttempts,
		RetryInterval:     config.UpstreamRetryInterval,
		DebugLogResponses: config.UpstreamDebugLogResponses,
	}, serviceLogger)
	if err != nil {
		return BatchService{}, err
	}

	db, err := createDatabaseClient(ctx, config, serviceLogger)
	if err != nil {
		return BatchService{}, err
	}

	var itemCache *ItemCache
	if config.CacheEnabled {
		backend, err := createCacheClient(ctx, config, serviceLogger)
		if err != nil {
			return BatchService{}, err
		}
		itemCache = NewItemCache(backend, config.CachePrefix, config.CacheTTL, serviceLogger)
	}

	return NewWithDependencies(config, serviceLogger, Dependencies{
		Client:   upstream,
		Database: db,
		Cache:    itemCache,
	}), nil
}

// createCacheClient returns a redis cache, or a pruned in memory cache
// when no redis endpoint is configured
func createCacheClient(ctx context.Context, config config.Config, logger *logging.ServiceLogger) (cache.Cache, error) {
	if config.RedisEndpointURL == "" {
		logger.Info().Msg("no redis endpoint configured, caching batch items in memory")

		inMemory := cache.NewInMemoryCache()
		inMemory.RunPruning(ctx, config.CacheTTL)
		return inMemory, nil
	}

	redisCache, err := cache.NewRedisCache(&cache.RedisConfig{
		Address:  config.RedisEndpointURL,
		Password: config.RedisPassword,
	}, logger)
	if err != nil {
		return nil, err
	}
	return redisCache, nil
}

// NewWithDependencies returns a BatchService using already created collaborators
func NewWithDependencies(config config.Config, serviceLogger *logging.ServiceLogger, deps Dependencies) BatchService {
	if deps.Database == nil {
		deps.Database = noop.New()
	}

	hostname, err := os.Hostname()
	if err != nil {
		serviceLogger.Error().Err(err).Msg("error looking up hostname")
	}

	service := BatchService{
		Database:      deps.Database,
		Cache:         deps.Cache,
		client:        deps.Client,
		hostname:      hostname,
		ServiceLogger: serviceLogger,
	}

	// create an http router for registering handlers for a given route
	mux := http.NewServeMux()
	mux.HandleFunc(BatchPath, createBatchHandler(&service))
	mux.HandleFunc(HealthcheckPath, createHealthcheckHandler(&service))
	mux.HandleFunc(ServicecheckPath, createServicecheckHandler(&service))
	mux.HandleFunc(BatchMetricsPath, createBatchMetricsHandler(&service))
	mux.Handle(MetricsPath, promhttp.Handler())

	// recover from handler panics before logging so the logged status
	// is the one actually sent
	n := negroni.New()
	n.Use(negroni.HandlerFunc(createRequestLoggingMiddleware(serviceLogger)))
	n.Use(negroni.NewRecovery())
	n.UseHandler(mux)

	// create an http server for the caller to start at their own discretion
	service.server = &http.Server{
		Addr:              fmt.Sprintf(":%s", config.BatchServicePort),
		Handler:           n,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return service
}

// createDatabaseClient returns the postgres metrics database when enabled,
// running migrations if requested, and a noop database otherwise
func createDatabaseClient(ctx context.Context, config config.Config, logger *logging.ServiceLogger) (database.MetricsDatabase, error) {
	if !config.MetricDatabaseEnabled {
		logger.Info().Msg("metric database disabled, batch metrics will not be recorded")
		return noop.New(), nil
	}

	db, err := postgres.NewClient(postgres.DatabaseConfig{
		DatabaseName:                     config.DatabaseName,
		DatabaseEndpointURL:              config.DatabaseEndpointURL,
		DatabaseUsername:                 config.DatabaseUserName,
		DatabasePassword:                 config.DatabasePassword,
		ReadTimeoutSeconds:               config.DatabaseReadTimeoutSeconds,
		WriteTimeoutSeconds:              config.DatabaseWriteTimeoutSeconds,
		DatabaseMaxIdleConnections:       config.DatabaseMaxIdleConnections,
		DatabaseConnectionMaxIdleSeconds: config.DatabaseConnectionMaxIdleSeconds,
		DatabaseMaxOpenConnections:       config.DatabaseMaxOpenConnections,
		SSLEnabled:                       config.DatabaseSSLEnabled,
		QueryLoggingEnabled:              config.DatabaseQueryLoggingEnabled,
		Logger:                           logger,
	})
	if err != nil {
		logger.Error().Err(err).Msg("error creating database client")
		return nil, err
	}

	if config.RunDatabaseMigrations {
		migrated, err := db.Migrate(ctx, migrations.Migrations)
		if err != nil {
			logger.Error().Err(err).Msg("error running database migrations")
			return nil, err
		}
		logger.Debug().Msg(fmt.Sprintf("run migrations %+v", migrated))
	}

	return db, nil
}

// Handler returns the http handler serving every route of the service
func (s *BatchService) Handler() http.Handler {
	return s.server.Handler
}

// Run runs the batch service, returning error (if any) in the event
// the batch service stops
func (s *BatchService) Run() error {
	return s.server.ListenAndServe()
}

// Shutdown stops accepting new requests and waits for running ones
func (s *BatchService) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// IsCacheEnabled reports whether GET items are served from cache
func (s *BatchService) IsCacheEnabled() bool {
	return s.Cache != nil
}
