// package routines provides configuration and logic
// for running background routines such as pruning
// of historical batch metrics
package routines

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/omercs/odatabatch/clients/database"
	"github.com/omercs/odatabatch/logging"
)

// MetricPruningRoutineConfig wraps values used
// for creating a new metric pruning routine
type MetricPruningRoutineConfig struct {
	Interval         time.Duration
	StartDelay       time.Duration
	MaxHistoryInDays int64
	Database         database.MetricsDatabase
	Logger           *logging.ServiceLogger
}

// MetricPruningRoutine can be used to
// run a background routine on a configurable interval
// to prune historical batch metrics
type MetricPruningRoutine struct {
	id               string
	interval         time.Duration
	startDelay       time.Duration
	maxHistoryInDays int64
	db               database.MetricsDatabase
	*logging.ServiceLogger
}

// Run starts pruning batch metrics older than the configured history
// in the background until ctx is done, returning error (if any)
// from starting the routine and an error channel which any errors
// encountered during running will be sent on. The channel is closed
// once the routine stops.
func (mpr *MetricPruningRoutine) Run(ctx context.Context) (<-chan error, error) {
	errorChannel := make(chan error, 1)

	go func() {
		defer close(errorChannel)

		select {
		case <-ctx.Done():
			return
		case <-time.After(mpr.startDelay):
		}

		ticker := time.NewTicker(mpr.interval)
		defer ticker.Stop()

		for {
			mpr.prune(ctx, errorChannel)

			select {
			case <-ctx.Done():
				return
			case tick := <-ticker.C:
				mpr.Trace().Str("routine", mpr.id).Time("tick", tick).Msg("metric pruning tick")
			}
		}
	}()

	return errorChannel, nil
}

func (mpr *MetricPruningRoutine) prune(ctx context.Context, errorChannel chan<- error) {
	mpr.Debug().
		Str("routine", mpr.id).
		Int64("max_history_days", mpr.maxHistoryInDays).
		Msg("pruning batch metrics")

	err := mpr.db.DeleteBatchMetricsOlderThanNDays(ctx, mpr.maxHistoryInDays)
	if err == nil {
		return
	}

	mpr.Error().Err(err).Str("routine", mpr.id).Msg("error pruning batch metrics")

	// drop the error when the previous one was not consumed yet
	select {
	case errorChannel <- err:
	default:
	}
}

// NewMetricPruningRoutine creates a new metric pruning routine
// using the provided config, returning the routine and error (if any)
func NewMetricPruningRoutine(config MetricPruningRoutineConfig) (*MetricPruningRoutine, error) {
	if config.Interval <= 0 {
		return nil, errInvalidInterval
	}
	if config.Database == nil {
		return nil, errNoDatabase
	}
	if config.Logger == nil {
		config.Logger = logging.Nop()
	}

	return &MetricPruningRoutine{
		id:               uuid.New().String(),
		interval:         config.Interval,
		startDelay:       config.StartDelay,
		maxHistoryInDays: config.MaxHistoryInDays,
		db:               config.Database,
		ServiceLogger:    config.Logger,
	}, nil
}
