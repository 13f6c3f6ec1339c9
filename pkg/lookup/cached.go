package lookup

import (
	"context"
	"errors"
	"time"

	"github.com/Sternrassler/userlink-enricher/pkg/cache"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultCacheTTL is used when WithCache is given a non-positive TTL.
const DefaultCacheTTL = 10 * time.Minute

// CachedFetcher serves links from the Redis cache and falls back to the
// wrapped Fetcher on a miss. Cache failures never fail a lookup.
type CachedFetcher struct {
	next   Fetcher
	cache  *cache.Manager
	ttl    time.Duration
	logger zerolog.Logger

	// refresh skips cache reads; successes are still stored.
	refresh bool
}

// WithCache wraps next with a Redis-backed link cache.
func WithCache(next Fetcher, manager *cache.Manager, ttl time.Duration) *CachedFetcher {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedFetcher{
		next:   next,
		cache:  manager,
		ttl:    ttl,
		logger: log.With().Str("component", "lookup-cache").Logger(),
	}
}

// WithRefreshingCache wraps next so that every lookup reaches the link
// service and refreshes the cached value. Use it when present links are
// refetched.
func WithRefreshingCache(next Fetcher, manager *cache.Manager, ttl time.Duration) *CachedFetcher {
	c := WithCache(next, manager, ttl)
	c.refresh = true
	return c
}

// Fetch implements Fetcher.
func (c *CachedFetcher) Fetch(ctx context.Context, id int64) (string, error) {
	key := cache.LinkKey(id)

	if !c.refresh {
		entry, err := c.cache.Get(ctx, key)
		switch {
		case err == nil:
			c.logger.Debug().Int64("user_id", id).Msg("Link cache hit")
			return entry.Value, nil
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Int64("user_id", id).Msg("Link cache get error")
		}
	}

	link, err := c.next.Fetch(ctx, id)
	if err != nil {
		return "", err
	}

	if err := c.cache.Set(ctx, key, cache.NewEntry(link, c.ttl)); err != nil {
		c.logger.Warn().Err(err).Int64("user_id", id).Msg("Failed to cache link")
	}

	return link, nil
}
