package lookup

import (
	"context"
	"testing"
	"time"

	"github.com/Sternrassler/userlink-enricher/pkg/cache"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupCache(t *testing.T) (*cache.Manager, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	return cache.NewManager(client), mr
}

func TestCachedFetcher_MissThenHit(t *testing.T) {
	manager, _ := setupCache(t)
	next := &scriptedFetcher{results: []scriptedResult{{link: "L1"}}}
	fetcher := WithCache(next, manager, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		link, err := fetcher.Fetch(ctx, 1)
		if err != nil {
			t.Fatalf("Fetch() #%d error = %v", i, err)
		}
		if link != "L1" {
			t.Errorf("Fetch() #%d = %q, want L1", i, link)
		}
	}

	if next.Calls() != 1 {
		t.Errorf("remote calls = %d, want 1", next.Calls())
	}
}

func TestCachedFetcher_FailuresNotCached(t *testing.T) {
	manager, mr := setupCache(t)
	next := &scriptedFetcher{results: []scriptedResult{
		{err: &Error{ID: 2, Reason: ReasonBadResponse, StatusCode: 500}},
		{link: "L2"},
	}}
	fetcher := WithCache(next, manager, time.Minute)
	ctx := context.Background()

	if _, err := fetcher.Fetch(ctx, 2); ReasonOf(err) != ReasonBadResponse {
		t.Fatalf("first Fetch() error = %v, want bad_response", err)
	}
	if mr.Exists(cache.LinkKey(2).String()) {
		t.Error("failed lookup must not be cached")
	}

	link, err := fetcher.Fetch(ctx, 2)
	if err != nil || link != "L2" {
		t.Errorf("second Fetch() = %q, %v; want L2", link, err)
	}
	if next.Calls() != 2 {
		t.Errorf("remote calls = %d, want 2", next.Calls())
	}
}

func TestCachedFetcher_RedisDownFallsBack(t *testing.T) {
	manager, mr := setupCache(t)
	mr.Close()

	next := &scriptedFetcher{results: []scriptedResult{{link: "L3"}}}
	fetcher := WithCache(next, manager, time.Minute)

	link, err := fetcher.Fetch(context.Background(), 3)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if link != "L3" {
		t.Errorf("Fetch() = %q, want L3", link)
	}
}

func TestWithCache_DefaultTTL(t *testing.T) {
	manager, _ := setupCache(t)
	fetcher := WithCache(&scriptedFetcher{results: []scriptedResult{{link: "x"}}}, manager, 0)

	if fetcher.ttl != DefaultCacheTTL {
		t.Errorf("ttl = %v, want %v", fetcher.ttl, DefaultCacheTTL)
	}
}

func TestRefreshingCache_AlwaysReachesService(t *testing.T) {
	manager, mr := setupCache(t)
	next := &scriptedFetcher{results: []scriptedResult{{link: "old"}, {link: "new"}}}
	ctx := context.Background()

	// a plain cache would keep answering "old" for the TTL
	if _, err := WithCache(next, manager, time.Hour).Fetch(ctx, 4); err != nil {
		t.Fatalf("seeding Fetch() error = %v", err)
	}

	fetcher := WithRefreshingCache(next, manager, time.Hour)
	link, err := fetcher.Fetch(ctx, 4)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if link != "new" {
		t.Errorf("Fetch() = %q, want new", link)
	}
	if next.Calls() != 2 {
		t.Errorf("remote calls = %d, want 2", next.Calls())
	}

	cached, err := manager.Get(ctx, cache.LinkKey(4))
	if err != nil {
		t.Fatalf("cache Get() error = %v", err)
	}
	if cached.Value != "new" {
		t.Errorf("cached value = %q, want refreshed new", cached.Value)
	}
	if !mr.Exists(cache.LinkKey(4).String()) {
		t.Error("refreshed link must be stored")
	}
}
