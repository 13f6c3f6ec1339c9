//go:build integration

package service

import (
	"context"
	"testing"
	"time"

	"github.com/Sternrassler/userlink-enricher/internal/store"
	"github.com/Sternrassler/userlink-enricher/internal/testutil"
	"github.com/Sternrassler/userlink-enricher/pkg/cache"
	"github.com/Sternrassler/userlink-enricher/pkg/enrich"
	"github.com/Sternrassler/userlink-enricher/pkg/lookup"
	"github.com/Sternrassler/userlink-enricher/pkg/user"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { client.Close() })
	return client
}

// setupPostgres creates a PostgreSQL container and returns a store with schema.
func setupPostgres(t *testing.T) *store.Postgres {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("userlink"),
		tcpostgres.WithUsername("userlink"),
		tcpostgres.WithPassword("userlink"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("Failed to start Postgres container: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get Postgres connection string: %v", err)
	}

	pg, err := store.OpenPostgres(ctx, store.Config{DSN: dsn})
	if err != nil {
		t.Fatalf("OpenPostgres() error = %v", err)
	}
	t.Cleanup(func() { pg.Close() })

	if err := pg.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	return pg
}

func TestIntegration_ListUsersFullStack(t *testing.T) {
	links := testutil.NewMockLinkService()
	defer links.Close()
	links.SetLink(1, "L1")
	links.SetResponse(3, testutil.NewServerErrorResponse())

	pg := setupPostgres(t)
	ctx := context.Background()
	if err := pg.Insert(ctx, user.Record{ID: 1}, user.Record{ID: 2, ExternalLink: "x"}, user.Record{ID: 3}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	client, err := lookup.New(lookup.DefaultConfig(links.URL()))
	if err != nil {
		t.Fatalf("lookup.New() error = %v", err)
	}
	fetcher := lookup.WithCache(client, cache.NewManager(setupRedis(t)), time.Minute)

	enricher, err := enrich.NewEnricher(fetcher, enrich.Config{MaxConcurrency: 2, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewEnricher() error = %v", err)
	}
	svc := New(pg, enricher)

	result, err := svc.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers() error = %v", err)
	}
	if result.FailedCount() != 1 {
		t.Errorf("FailedCount() = %d, want 1", result.FailedCount())
	}

	rec, err := pg.FindByID(ctx, 1)
	if err != nil {
		t.Fatalf("FindByID(1) error = %v", err)
	}
	if rec.ExternalLink != "L1" {
		t.Errorf("persisted link = %q, want L1", rec.ExternalLink)
	}

	// id 1 is now stored; only the failed id 3 is looked up again
	before := links.RequestCount()
	if _, err := svc.ListUsers(ctx); err != nil {
		t.Fatalf("second ListUsers() error = %v", err)
	}
	if got := links.RequestCount() - before; got != 1 {
		t.Errorf("second listing made %d lookups, want 1", got)
	}
	if links.RequestsFor(2) != 0 {
		t.Errorf("record with link was looked up %d times", links.RequestsFor(2))
	}
}

func TestIntegration_CacheAvoidsRemoteCall(t *testing.T) {
	links := testutil.NewMockLinkService()
	defer links.Close()
	links.SetLink(7, "L7")

	client, err := lookup.New(lookup.DefaultConfig(links.URL()))
	if err != nil {
		t.Fatalf("lookup.New() error = %v", err)
	}
	fetcher := lookup.WithCache(client, cache.NewManager(setupRedis(t)), time.Minute)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		link, err := fetcher.Fetch(ctx, 7)
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if link != "L7" {
			t.Errorf("Fetch() = %q, want L7", link)
		}
	}

	if links.RequestsFor(7) != 1 {
		t.Errorf("link service called %d times, want 1", links.RequestsFor(7))
	}
}
