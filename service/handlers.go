package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/omercs/odatabatch/client"
	"github.com/omercs/odatabatch/clients/database"
	"github.com/omercs/odatabatch/decode"
)

// MaxBatchRequestBytes bounds the size of a batch envelope
const MaxBatchRequestBytes = 16 << 20

// ErrorResponse is the body of every error answered by the gateway
type ErrorResponse struct {
	Error string `json:"error"`
}

// createBatchHandler creates the handler answering a json batch envelope
// with the json array of the results of its operations
func createBatchHandler(service *BatchService) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
			return
		}

		requestTime := time.Now()

		rawBody, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBatchRequestBytes))
		if err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, err)
			return
		}

		envelope, err := decode.DecodeBatchEnvelope(rawBody)
		if err != nil {
			service.Debug().Err(err).Msg("invalid batch envelope")
			writeError(w, http.StatusBadRequest, err)
			BatchRequestsTotal.WithLabelValues(strconv.Itoa(http.StatusBadRequest)).Inc()
			return
		}

		processor := NewBatchProcessor(service, envelope)
		results, err := processor.Process(r.Context())

		status := http.StatusOK
		if err != nil {
			status = http.StatusBadGateway
			UpstreamErrorsTotal.Inc()

			if upstreamStatus, ok := client.IsStatusError(err); ok {
				err = fmt.Errorf("upstream answered the batch with status %d: %w", upstreamStatus, err)
			}

			service.Error().Err(err).Msg("error processing batch")
			writeError(w, status, err)
		} else {
			if service.IsCacheEnabled() {
				w.Header().Set(CacheHeaderKey, cacheHitValue(envelope.Len(), processor.CacheHits()))
			}

			if err := MarshalJSONResponse(results, w); err != nil {
				service.Error().Err(err).Msg("error encoding batch results")
			}

			BatchItemsTotal.WithLabelValues("cache").Add(float64(processor.CacheHits()))
			BatchItemsTotal.WithLabelValues("upstream").Add(float64(len(results) - processor.CacheHits()))
		}

		latency := time.Since(requestTime)
		BatchRequestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
		BatchDuration.Observe(latency.Seconds())

		metric := &database.BatchMetric{
			RequestTime:                 requestTime,
			ResponseLatencyMilliseconds: latency.Milliseconds(),
			ItemCount:                   envelope.Len(),
			ChangeSetCount:              processor.ChangeSetCount(),
			CachedItemCount:             processor.CacheHits(),
			UpstreamStatusCode:          processor.UpstreamStatus(),
			Failed:                      err != nil,
			Hostname:                    service.hostname,
			RequestIP:                   clientIP(r),
		}
		if upstreamStatus, ok := client.IsStatusError(err); ok {
			metric.UpstreamStatusCode = upstreamStatus
		}
		if err != nil {
			message := err.Error()
			metric.ErrorMessage = &message
		}
		if userAgent := r.UserAgent(); userAgent != "" {
			metric.UserAgent = &userAgent
		}

		// save the metric out of band of the request-response cycle
		go service.saveBatchMetric(metric)
	}
}

func (s *BatchService) saveBatchMetric(metric *database.BatchMetric) {
	ctx, cancel := context.WithTimeout(context.Background(), metricSaveTimeout)
	defer cancel()

	if err := s.Database.SaveBatchMetric(ctx, metric); err != nil {
		s.Error().Err(err).Msg("error saving batch metric")
	}
}

// clientIP returns the first address of X-Forwarded-For, or the
// remote address of the connection
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// createHealthcheckHandler creates a health check handler function that
// will respond 200 ok if the batch service is able to connect to
// it's dependencies and functioning as expected
func createHealthcheckHandler(service *BatchService) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var combinedErrors error

		service.Debug().Msg("/healthcheck called")

		// check that the database is reachable
		err := service.Database.HealthCheck(r.Context())
		if err != nil {
			service.Logger.Error().
				Err(err).
				Msg("database healthcheck failed")

			errMsg := fmt.Errorf("batch service unable to connect to database: %w", err)
			combinedErrors = errors.Join(combinedErrors, errMsg)
		}

		if service.IsCacheEnabled() {
			// check that the cache is reachable
			err := service.Cache.Healthcheck(r.Context())
			if err != nil {
				service.Logger.Error().
					Err(err).
					Msg("cache healthcheck failed")

				errMsg := fmt.Errorf("batch service unable to connect to cache: %w", err)
				combinedErrors = errors.Join(combinedErrors, errMsg)
			}
		}

		if combinedErrors != nil {
			w.WriteHeader(http.StatusInternalServerError)

			w.Write([]byte(combinedErrors.Error()))

			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("batch service is healthy"))
	}
}

// createServicecheckHandler creates a service check handler function that
// will respond 200 ok if the batch service is running
func createServicecheckHandler(service *BatchService) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		service.Debug().Msg("/servicecheck called")

		w.WriteHeader(http.StatusOK)

		w.Write([]byte("batch service is in service"))
	}
}

const (
	defaultBatchMetricsPageSize = 100
	maxBatchMetricsPageSize     = 1000
)

// BatchMetricsPage is a page of recorded batch metrics, NextCursor is
// zero on the last page
type BatchMetricsPage struct {
	Metrics    []*database.BatchMetric `json:"metrics"`
	NextCursor int64                   `json:"next_cursor"`
}

// createBatchMetricsHandler creates the handler listing recorded batch
// metrics, paged with the cursor and limit query parameters
func createBatchMetricsHandler(service *BatchService) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
			return
		}

		var (
			cursor int64
			limit  = defaultBatchMetricsPageSize
			err    error
		)
		query := r.URL.Query()
		if raw := query.Get("cursor"); raw != "" {
			if cursor, err = strconv.ParseInt(raw, 10, 64); err != nil || cursor < 0 {
				writeError(w, http.StatusBadRequest, fmt.Errorf("invalid cursor %q", raw))
				return
			}
		}
		if raw := query.Get("limit"); raw != "" {
			if limit, err = strconv.Atoi(raw); err != nil || limit < 1 || limit > maxBatchMetricsPageSize {
				writeError(w, http.StatusBadRequest, fmt.Errorf("limit must be between 1 and %d", maxBatchMetricsPageSize))
				return
			}
		}

		metrics, next, err := service.Database.ListBatchMetricsWithPagination(r.Context(), cursor, limit)
		if err != nil {
			service.Error().Err(err).Msg("error listing batch metrics")
			writeError(w, http.StatusInternalServerError, err)
			return
		}

		if err := MarshalJSONResponse(&BatchMetricsPage{Metrics: metrics, NextCursor: next}, w); err != nil {
			service.Error().Err(err).Msg("error encoding batch metrics")
		}
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(&ErrorResponse{Error: err.Error()})
}

// MarshalJSONResponse marshals an interface into the response body and sets JSON content type headers
func MarshalJSONResponse(obj interface{}, w http.ResponseWriter) error {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(obj); err != nil {
		return err
	}
	return nil
}
