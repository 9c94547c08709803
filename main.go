// package main reads & validates configuration for the batch gateway
// and if the config is valid starts and monitors an instance of the batch gateway
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/omercs/odatabatch/config"
	"github.com/omercs/odatabatch/logging"
	"github.com/omercs/odatabatch/routines"
	"github.com/omercs/odatabatch/service"
)

const shutdownTimeout = 15 * time.Second

var (
	serviceConfig config.Config
	serviceLogger logging.ServiceLogger
)

func init() {
	serviceConfig = config.ReadConfig()

	err := config.Validate(serviceConfig)

	if err != nil {
		panic(err)
	}

	serviceLogger, err = logging.New(serviceConfig.LogLevel)

	if err != nil {
		panic(err)
	}
}

func startMetricPruningRoutine(ctx context.Context, batchService service.BatchService) {
	if !serviceConfig.MetricPruningEnabled {
		serviceLogger.Info().Msg("skipping starting metric pruning routine since it is disabled via config")

		return
	}

	metricPruningRoutine, err := routines.NewMetricPruningRoutine(routines.MetricPruningRoutineConfig{
		Interval:         serviceConfig.MetricPruningRoutineInterval,
		StartDelay:       serviceConfig.MetricPruningRoutineDelayFirstRun,
		MaxHistoryInDays: serviceConfig.MetricPruningMaxRequestMetricsHistoryDays,
		Database:         batchService.Database,
		Logger:           &serviceLogger,
	})

	if err != nil {
		serviceLogger.Panic().Msg(fmt.Sprintf("%v", err))
	}

	errChan, err := metricPruningRoutine.Run(ctx)

	if err != nil {
		serviceLogger.Panic().Msg(fmt.Sprintf("%v", err))
	}

	go func() {
		for routineErr := range errChan {
			serviceLogger.Error().Msg(fmt.Sprintf("metric pruning routine encountered error %s", routineErr))
		}
	}()
}

func main() {
	serviceLogger.Debug().Msg(fmt.Sprintf("initial config: %+v", serviceConfig))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	batchService, err := service.New(ctx, serviceConfig, &serviceLogger)

	if err != nil {
		serviceLogger.Panic().Msg(fmt.Sprintf("%v", err))
	}

	startMetricPruningRoutine(ctx, batchService)

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := batchService.Shutdown(shutdownCtx); err != nil {
			serviceLogger.Error().Err(err).Msg("error shutting down batch service")
		}
	}()

	serviceLogger.Info().Str("port", serviceConfig.BatchServicePort).Msg("batch service starting")

	if err := batchService.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		serviceLogger.Panic().Msg(fmt.Sprintf("%v", err))
	}
}
