package database

import "time"

// BatchMetric contains request metrics for
// a single batch handled by the gateway
type BatchMetric struct {
	ID                          int64     `json:"id"`
	RequestTime                 time.Time `json:"request_time"`
	ResponseLatencyMilliseconds int64     `json:"response_latency_milliseconds"`
	// ItemCount counts every operation of the batch,
	// including the ones inside changesets
	ItemCount       int `json:"item_count"`
	ChangeSetCount  int `json:"changeset_count"`
	CachedItemCount int `json:"cached_item_count"`
	// UpstreamStatusCode is zero when no upstream batch was sent
	UpstreamStatusCode int     `json:"upstream_status_code"`
	Failed             bool    `json:"failed"`
	ErrorMessage       *string `json:"error_message,omitempty"`
	Hostname           string  `json:"hostname"`
	RequestIP          string  `json:"request_ip"`
	UserAgent          *string `json:"user_agent,omitempty"`
}
