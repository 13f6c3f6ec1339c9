package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/userlink-enricher/internal/config"
	"github.com/Sternrassler/userlink-enricher/internal/httpapi"
	"github.com/Sternrassler/userlink-enricher/internal/service"
	"github.com/Sternrassler/userlink-enricher/internal/store"
	"github.com/Sternrassler/userlink-enricher/pkg/cache"
	"github.com/Sternrassler/userlink-enricher/pkg/enrich"
	"github.com/Sternrassler/userlink-enricher/pkg/logging"
	"github.com/Sternrassler/userlink-enricher/pkg/lookup"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

// app holds the wired components and the resources to release on shutdown.
type app struct {
	handler http.Handler
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("Failed to release resource")
		}
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.HTTPAddr).
			Str("link_service", cfg.LinkServiceURL).
			Int("max_concurrency", cfg.EnrichMaxConcurrency).
			Dur("batch_timeout", cfg.EnrichTimeout).
			Msg("Starting user link API")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newApp connects the store and cache and wires the service behind the API.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}

	users, err := openStore(ctx, cfg.Store())
	if err != nil {
		return nil, err
	}
	if pg, ok := users.(*store.Postgres); ok {
		a.closers = append(a.closers, pg.Close)
	}

	var cacheManager *cache.Manager
	if cfg.RedisURL != "" {
		redisClient, err := connectRedis(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, redisClient.Close)
		cacheManager = cache.NewManager(redisClient)
	}

	fetcher, err := buildFetcher(cfg, cacheManager)
	if err != nil {
		a.Close()
		return nil, err
	}

	enricher, err := enrich.NewEnricher(fetcher, cfg.Enrich())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create enricher: %w", err)
	}

	a.handler = httpapi.New(service.New(users, enricher)).Routes()
	return a, nil
}

// openStore opens PostgreSQL when a DSN is configured and falls back to an
// empty in-memory store otherwise.
func openStore(ctx context.Context, cfg store.Config) (service.Store, error) {
	if cfg.DSN == "" {
		log.Warn().Msg("DATABASE_URL not set, using in-memory store")
		return store.NewMemory(cfg), nil
	}

	pg, err := store.OpenPostgres(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		_ = pg.Close()
		return nil, err
	}
	log.Info().Int("batch_limit", cfg.BatchLimit).Msg("Connected to PostgreSQL")
	return pg, nil
}

func connectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	log.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
	return client, nil
}

// buildFetcher composes client, retry and cache. The cache sits outermost.
// With refetch enabled the cache is only written, never read.
func buildFetcher(cfg *config.Config, cacheManager *cache.Manager) (lookup.Fetcher, error) {
	client, err := lookup.New(cfg.Lookup())
	if err != nil {
		return nil, fmt.Errorf("create lookup client: %w", err)
	}

	var fetcher lookup.Fetcher = client
	if cfg.LookupMaxAttempts > 1 {
		fetcher = lookup.WithRetry(fetcher, cfg.Retry())
	}
	switch {
	case cacheManager == nil:
	case cfg.EnrichRefetch:
		fetcher = lookup.WithRefreshingCache(fetcher, cacheManager, cfg.LinkCacheTTL)
	default:
		fetcher = lookup.WithCache(fetcher, cacheManager, cfg.LinkCacheTTL)
	}
	return fetcher, nil
}
