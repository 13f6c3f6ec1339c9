package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Sternrassler/userlink-enricher/internal/config"
	"github.com/Sternrassler/userlink-enricher/internal/store"
	"github.com/Sternrassler/userlink-enricher/internal/testutil"
	"github.com/Sternrassler/userlink-enricher/pkg/cache"
	"github.com/Sternrassler/userlink-enricher/pkg/lookup"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testConfig(linkServiceURL string) *config.Config {
	return &config.Config{
		HTTPAddr:             ":0",
		StoreBatchLimit:      100,
		LinkCacheTTL:         time.Minute,
		LinkServiceURL:       linkServiceURL,
		LookupTimeout:        time.Second,
		LookupMaxAttempts:    1,
		EnrichMaxConcurrency: 2,
		EnrichTimeout:        time.Second,
		LogLevel:             "error",
	}
}

func TestBuildFetcher(t *testing.T) {
	mr := miniredis.RunT(t)
	manager := cache.NewManager(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	tests := []struct {
		name     string
		attempts int
		refetch  bool
		cache    *cache.Manager
		check    func(lookup.Fetcher) bool
	}{
		{
			name:     "plain client",
			attempts: 1,
			check:    func(f lookup.Fetcher) bool { _, ok := f.(*lookup.Client); return ok },
		},
		{
			name:     "with retry",
			attempts: 3,
			check:    func(f lookup.Fetcher) bool { _, ok := f.(*lookup.RetryingFetcher); return ok },
		},
		{
			name:     "with cache",
			attempts: 3,
			cache:    manager,
			check:    func(f lookup.Fetcher) bool { _, ok := f.(*lookup.CachedFetcher); return ok },
		},
		{
			name:     "refetch with cache",
			attempts: 1,
			refetch:  true,
			cache:    manager,
			check:    func(f lookup.Fetcher) bool { _, ok := f.(*lookup.CachedFetcher); return ok },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig("http://links.local")
			cfg.LookupMaxAttempts = tt.attempts
			cfg.EnrichRefetch = tt.refetch

			fetcher, err := buildFetcher(cfg, tt.cache)
			if err != nil {
				t.Fatalf("buildFetcher() error = %v", err)
			}
			if !tt.check(fetcher) {
				t.Errorf("buildFetcher() returned %T", fetcher)
			}
		})
	}

	if _, err := buildFetcher(testConfig("ftp://links.local"), nil); err == nil {
		t.Error("Expected error for non-http link service url")
	}
}

func TestBuildFetcher_RefetchBypassesCachedLinks(t *testing.T) {
	links := testutil.NewMockLinkService()
	defer links.Close()
	links.SetLink(5, "old")

	mr := miniredis.RunT(t)
	manager := cache.NewManager(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	tests := []struct {
		name      string
		refetch   bool
		wantLink  string
		wantCalls int
	}{
		{name: "cached read without refetch", refetch: false, wantLink: "old", wantCalls: 1},
		{name: "refetch reaches service", refetch: true, wantLink: "new", wantCalls: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mr.FlushAll()
			links.SetLink(5, "old")
			before := links.RequestsFor(5)

			cfg := testConfig(links.URL())
			cfg.EnrichRefetch = tt.refetch
			fetcher, err := buildFetcher(cfg, manager)
			if err != nil {
				t.Fatalf("buildFetcher() error = %v", err)
			}

			if _, err := fetcher.Fetch(ctx, 5); err != nil {
				t.Fatalf("first Fetch() error = %v", err)
			}
			links.SetLink(5, "new")

			link, err := fetcher.Fetch(ctx, 5)
			if err != nil {
				t.Fatalf("second Fetch() error = %v", err)
			}
			if link != tt.wantLink {
				t.Errorf("second Fetch() = %q, want %q", link, tt.wantLink)
			}
			if got := links.RequestsFor(5) - before; got != tt.wantCalls {
				t.Errorf("link service calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestOpenStore_MemoryFallback(t *testing.T) {
	users, err := openStore(context.Background(), store.Config{})
	if err != nil {
		t.Fatalf("openStore() error = %v", err)
	}
	if _, ok := users.(*store.Memory); !ok {
		t.Errorf("openStore() returned %T, want *store.Memory", users)
	}
}

func TestNewApp_ServesAPI(t *testing.T) {
	links := testutil.NewMockLinkService()
	defer links.Close()

	mr := miniredis.RunT(t)
	cfg := testConfig(links.URL())
	cfg.RedisURL = "redis://" + mr.Addr()

	a, err := newApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer a.Close()

	tests := []struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		{path: "/health", wantStatus: http.StatusOK, wantBody: "OK"},
		{path: "/users", wantStatus: http.StatusOK, wantBody: "[]\n"},
		{path: "/users/1", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			a.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			resp := w.Result()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("GET %s status = %d, want %d", tt.path, resp.StatusCode, tt.wantStatus)
			}
			if tt.wantBody != "" {
				body, _ := io.ReadAll(resp.Body)
				if string(body) != tt.wantBody {
					t.Errorf("GET %s body = %q, want %q", tt.path, string(body), tt.wantBody)
				}
			}
		})
	}
}

func TestNewApp_RedisUnavailable(t *testing.T) {
	cfg := testConfig("http://links.local")
	cfg.RedisURL = "redis://127.0.0.1:1"

	if _, err := newApp(context.Background(), cfg); err == nil {
		t.Error("Expected error when Redis is unreachable")
	}
}
