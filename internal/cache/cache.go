// Package cache implements the Redis-backed query result cache.
//
// Keys follow cache:{project_id}:{sha256(normalized_query)}. Invalidation
// is coarse: any change to a project's corpus drops every cached result for
// that project. Cache failures are soft, the caller logs them and proceeds
// uncached.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	qerr "github.com/docuquery/docuquery/internal/errors"
)

// DefaultTTL bounds the staleness window for cached results.
const DefaultTTL = time.Hour

// Source is one cited chunk in a cached answer.
type Source struct {
	Content string `json:"content"`
	Source  string `json:"source"`
}

// Entry is a cached query result.
type Entry struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// ErrMiss is returned by Get when the key is absent.
var ErrMiss = fmt.Errorf("cache miss")

// ResultCache caches query results in Redis, keyed by project and
// normalized query.
type ResultCache struct {
	client *redis.Client
	ttl    time.Duration
}

// Config configures the Redis connection.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// New creates a result cache. The connection is verified lazily; an
// unreachable Redis surfaces as soft CacheBackendError on first use.
func New(cfg Config) *ResultCache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &ResultCache{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		ttl: cfg.TTL,
	}
}

// NormalizeQuery canonicalizes a query for cache keying: trimmed,
// lowercased, inner whitespace collapsed to single spaces. Queries that
// differ only in casing or spacing share a cache entry.
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// Key builds the cache key for a project and an already-normalized query.
func Key(projectID, normalizedQuery string) string {
	hash := sha256.Sum256([]byte(normalizedQuery))
	return fmt.Sprintf("cache:%s:%s", projectID, hex.EncodeToString(hash[:]))
}

// Get looks up a cached result. Returns ErrMiss when absent and a
// CacheBackendError when Redis is unreachable.
func (c *ResultCache) Get(ctx context.Context, projectID, normalizedQuery string) (*Entry, error) {
	data, err := c.client.Get(ctx, Key(projectID, normalizedQuery)).Result()
	if err == redis.Nil {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, qerr.CacheBackendError("cache get failed", err)
	}

	var entry Entry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		// A corrupt entry acts as a miss; it will be overwritten.
		return nil, ErrMiss
	}
	return &entry, nil
}

// Set stores a result with the configured TTL.
func (c *ResultCache) Set(ctx context.Context, projectID, normalizedQuery string, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return qerr.CacheBackendError("cache marshal failed", err)
	}
	if err := c.client.Set(ctx, Key(projectID, normalizedQuery), data, c.ttl).Err(); err != nil {
		return qerr.CacheBackendError("cache set failed", err)
	}
	return nil
}

// InvalidateProject removes every cached result for the project. Scanning
// an empty keyspace is a no-op, so invalidating a project with no cached
// queries is safe.
func (c *ResultCache) InvalidateProject(ctx context.Context, projectID string) error {
	pattern := fmt.Sprintf("cache:%s:*", projectID)

	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return qerr.CacheBackendError("cache scan failed", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return qerr.CacheBackendError("cache delete failed", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Ping verifies the Redis connection.
func (c *ResultCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return qerr.CacheBackendError("cache ping failed", err)
	}
	return nil
}

// Close releases the Redis connection.
func (c *ResultCache) Close() error {
	return c.client.Close()
}
