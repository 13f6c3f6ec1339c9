// Package cache stores fetched user links in Redis.
//
// A link fetched from the remote link service is cached under a deterministic
// key with a TTL, so repeated listings within that window do not call the
// service again. Redis expiry and the entry's own Expires field both bound
// the lifetime of an entry.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient)
//
//	key := cache.LinkKey(42)
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the link service, then:
//		_ = manager.Set(ctx, key, cache.NewEntry(link, 10*time.Minute))
//	}
//
// # Metrics
//
//   - userlink_cache_hits_total - Cache hits
//   - userlink_cache_misses_total - Cache misses
//   - userlink_cache_errors_total{operation} - Cache operation errors
package cache
