package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/omercs/odatabatch/clients/cache"
	"github.com/omercs/odatabatch/decode"
	"github.com/omercs/odatabatch/logging"
)

const (
	CacheHeaderKey          = "X-Odata-Batch-Cache-Status"
	CacheHitHeaderValue     = "HIT"
	CacheMissHeaderValue    = "MISS"
	CachePartialHeaderValue = "PARTIAL"
)

// ItemCache keeps the results of cacheable batch operations
type ItemCache struct {
	cache  cache.Cache
	prefix string
	ttl    time.Duration
	*logging.ServiceLogger
}

// NewItemCache creates an ItemCache storing values in c under prefix
func NewItemCache(c cache.Cache, prefix string, ttl time.Duration, logger *logging.ServiceLogger) *ItemCache {
	return &ItemCache{
		cache:         c,
		prefix:        prefix,
		ttl:           ttl,
		ServiceLogger: logger,
	}
}

// Key returns the cache key of op sent to serviceRoot. Headers are part
// of the key since they select the representation.
func (c *ItemCache) Key(serviceRoot string, op decode.Operation) string {
	names := make([]string, 0, len(op.Headers))
	for name := range op.Headers {
		names = append(names, strings.ToLower(name))
	}
	sort.Strings(names)

	hash := sha256.New()
	hash.Write([]byte(strings.ToUpper(op.Method) + " " + serviceRoot + " " + op.URL + "\n"))
	for _, name := range names {
		hash.Write([]byte(name + ": " + headerValue(op.Headers, name) + "\n"))
	}

	parts := []string{
		c.prefix,
		"item",
		hex.EncodeToString(hash.Sum(nil)),
	}

	return strings.Join(parts, ":")
}

func headerValue(headers map[string]string, lowerName string) string {
	for name, value := range headers {
		if strings.ToLower(name) == lowerName {
			return value
		}
	}
	return ""
}

// Get returns the cached result stored under key, if any
func (c *ItemCache) Get(ctx context.Context, key string) (*ItemResult, bool) {
	value, err := c.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			c.Error().Err(err).Str("key", key).Msg("error reading cached batch item")
		}
		return nil, false
	}

	var result ItemResult
	if err := json.Unmarshal(value, &result); err != nil {
		c.Error().Err(err).Str("key", key).Msg("error decoding cached batch item")
		return nil, false
	}
	result.Cached = true

	return &result, true
}

// Set caches result under key when it is a successful read
func (c *ItemCache) Set(ctx context.Context, key string, result *ItemResult) {
	if result.Status != http.StatusOK {
		return
	}

	stored := *result
	stored.ContentID = ""
	stored.ChangeSet = ""
	stored.Cached = false

	value, err := json.Marshal(&stored)
	if err != nil {
		c.Error().Err(err).Str("key", key).Msg("error encoding batch item for cache")
		return
	}

	if err := c.cache.Set(ctx, key, value, c.ttl); err != nil {
		c.Error().Err(err).Str("key", key).Msg("error caching batch item")
	}
}

// Healthcheck checks the underlying cache
func (c *ItemCache) Healthcheck(ctx context.Context) error {
	return c.cache.Healthcheck(ctx)
}

// cacheHitValue handles the combined response's CacheHeader
func cacheHitValue(totalNum, cacheHits int) string {
	// totalNum should never be 0. if it is, this will indicate a cache MISS.
	if cacheHits == 0 || totalNum == 0 {
		// case 1. no results from cache => MISS
		return CacheMissHeaderValue
	} else if cacheHits == totalNum {
		// case 2: all results from cache => HIT
		return CacheHitHeaderValue
	}
	//case 3: some results from cache => PARTIAL
	return CachePartialHeaderValue
}
