package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/omercs/odatabatch/batch"
	"github.com/omercs/odatabatch/decode"
)

var ErrIncompleteUpstreamBatch = errors.New("upstream batch response has fewer items than operations sent")

// ItemResult is the result of one batch operation
type ItemResult struct {
	Status        int                 `json:"status"`
	StatusMessage string              `json:"status_message,omitempty"`
	Headers       map[string][]string `json:"headers,omitempty"`
	// Body is base64 encoded in json
	Body      []byte `json:"body,omitempty"`
	ContentID string `json:"content_id,omitempty"`
	// ChangeSet is the upstream boundary of the changeset the
	// operation was part of
	ChangeSet string `json:"changeset,omitempty"`
	Cached    bool   `json:"cached,omitempty"`
}

// BatchProcessor answers the items of one envelope, from cache when
// possible and otherwise with a single upstream batch
type BatchProcessor struct {
	service  *BatchService
	envelope decode.BatchEnvelope

	// results per envelope item, a changeset item can have several
	results [][]*ItemResult
	// cache keys of cacheable envelope items
	cacheKeys map[int]string
	cacheHits int

	// envelope items sent upstream and their index in envelope
	upstream        decode.BatchEnvelope
	upstreamIndexes []int
	upstreamStatus  int
}

// NewBatchProcessor creates a BatchProcessor for envelope
func NewBatchProcessor(service *BatchService, envelope decode.BatchEnvelope) *BatchProcessor {
	return &BatchProcessor{
		service:   service,
		envelope:  envelope,
		results:   make([][]*ItemResult, len(envelope)),
		cacheKeys: make(map[int]string),
	}
}

// Process returns the results of every operation in envelope order
func (bp *BatchProcessor) Process(ctx context.Context) ([]*ItemResult, error) {
	bp.lookupCache(ctx)

	if len(bp.upstream) > 0 {
		if err := bp.executeUpstream(ctx); err != nil {
			return nil, err
		}
	}

	results := make([]*ItemResult, 0, bp.envelope.Len())
	for _, itemResults := range bp.results {
		results = append(results, itemResults...)
	}

	return results, nil
}

// lookupCache answers cacheable items from cache and queues every other
// item for the upstream batch
func (bp *BatchProcessor) lookupCache(ctx context.Context) {
	for i, item := range bp.envelope {
		if bp.service.IsCacheEnabled() && !item.IsChangeSet() && item.IsCacheable() {
			key := bp.service.Cache.Key(bp.service.client.ServiceRoot(), item.Operation)

			if cached, found := bp.service.Cache.Get(ctx, key); found {
				cached.ContentID = item.ContentID
				bp.results[i] = []*ItemResult{cached}
				bp.cacheHits++
				continue
			}

			bp.cacheKeys[i] = key
		}

		bp.upstream = append(bp.upstream, item)
		bp.upstreamIndexes = append(bp.upstreamIndexes, i)
	}

	bp.service.Trace().
		Int("items", len(bp.envelope)).
		Int("cache_hits", bp.cacheHits).
		Int("upstream_items", len(bp.upstream)).
		Msg("batch cache lookup done")
}

func (bp *BatchProcessor) executeUpstream(ctx context.Context) error {
	res, err := bp.service.client.Execute(ctx, bp.upstream.Batch())
	if err != nil {
		return err
	}
	defer res.Close()

	bp.upstreamStatus = res.StatusCode()

	items := &upstreamItems{res: res}

	for j, item := range bp.upstream {
		i := bp.upstreamIndexes[j]

		if !item.IsChangeSet() {
			result, err := items.next()
			if err != nil {
				return err
			}
			bp.results[i] = []*ItemResult{result}

			if key, ok := bp.cacheKeys[i]; ok {
				bp.service.Cache.Set(ctx, key, result)
			}
			continue
		}

		for k := range item.ChangeSet {
			result, err := items.next()
			if err != nil {
				return err
			}

			if result.ChangeSet == "" {
				// a failed changeset can be answered by a single top level response
				if k == 0 {
					bp.results[i] = append(bp.results[i], result)
				} else {
					items.pushBack(result)
				}
				break
			}

			bp.results[i] = append(bp.results[i], result)
		}
	}

	if extra, err := items.next(); err == nil {
		bp.service.Error().
			Int("status", extra.Status).
			Msg("upstream batch response has more items than operations sent, ignoring the rest")
	} else if !errors.Is(err, ErrIncompleteUpstreamBatch) {
		return err
	}

	return nil
}

// upstreamItems reads the items of an upstream batch response with one
// item of lookahead
type upstreamItems struct {
	res     *batch.BatchResponse
	pending *ItemResult
	count   int
}

func (u *upstreamItems) pushBack(result *ItemResult) {
	u.pending = result
}

func (u *upstreamItems) next() (*ItemResult, error) {
	if u.pending != nil {
		result := u.pending
		u.pending = nil
		return result, nil
	}

	item, err := u.res.Next()
	if err == io.EOF {
		return nil, ErrIncompleteUpstreamBatch
	}
	if err != nil {
		return nil, fmt.Errorf("error reading upstream batch item %d: %w", u.count+1, err)
	}
	u.count++

	return newItemResult(item)
}

func newItemResult(item *batch.Response) (*ItemResult, error) {
	body, err := item.Bytes()
	if err != nil {
		return nil, fmt.Errorf("error reading body of upstream batch item: %w", err)
	}

	header := item.Header()

	result := &ItemResult{
		Status:        item.StatusCode(),
		StatusMessage: item.StatusMessage(),
		Body:          body,
		ContentID:     item.ContentID(),
		ChangeSet:     item.ChangeSet(),
	}
	if header.Len() > 0 {
		result.Headers = header.Map()
	}

	return result, nil
}

// ChangeSetCount returns the number of changesets in the envelope
func (bp *BatchProcessor) ChangeSetCount() int {
	var count int
	for _, item := range bp.envelope {
		if item.IsChangeSet() {
			count++
		}
	}
	return count
}

// CacheHits returns the number of items answered from cache
func (bp *BatchProcessor) CacheHits() int {
	return bp.cacheHits
}

// UpstreamStatus returns the status of the upstream batch exchange,
// zero when none was sent
func (bp *BatchProcessor) UpstreamStatus() int {
	return bp.upstreamStatus
}
