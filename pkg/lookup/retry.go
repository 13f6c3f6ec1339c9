package lookup

import (
	"context"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	lookupRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "userlink_lookup_retries_total",
		Help: "Total number of lookup retry attempts by reason",
	}, []string{"reason"})

	lookupRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "userlink_lookup_retry_exhausted_total",
		Help: "Total number of lookups that exhausted their retry attempts by reason",
	}, []string{"reason"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	// 1 disables retries.
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    200 * time.Millisecond,
		MaxBackoff:        2 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	def := DefaultRetryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = def.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = def.MaxBackoff
	}
	if c.BackoffMultiplier < 1 {
		c.BackoffMultiplier = def.BackoffMultiplier
	}
	return c
}

// RetryingFetcher retries transient lookup failures of the wrapped Fetcher.
//
// Only unreachable and 5xx/429 failures are retried. Cancellation and
// deadlines stop the retry loop immediately.
type RetryingFetcher struct {
	next   Fetcher
	config RetryConfig
	logger zerolog.Logger
}

// WithRetry wraps next with the given retry policy.
func WithRetry(next Fetcher, cfg RetryConfig) *RetryingFetcher {
	return &RetryingFetcher{
		next:   next,
		config: cfg.withDefaults(),
		logger: log.With().Str("component", "lookup-retry").Logger(),
	}
}

// Fetch implements Fetcher.
func (r *RetryingFetcher) Fetch(ctx context.Context, id int64) (string, error) {
	var link string
	err := r.retryWithBackoff(ctx, id, func() error {
		var fetchErr error
		link, fetchErr = r.next.Fetch(ctx, id)
		return fetchErr
	})
	if err != nil {
		return "", err
	}
	return link, nil
}

// retryWithBackoff executes fn with exponential backoff retry logic.
// It respects context cancellation and adds jitter to prevent thundering herd.
func (r *RetryingFetcher) retryWithBackoff(ctx context.Context, id int64, fn func() error) error {
	var lastErr error
	backoff := r.config.InitialBackoff

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				r.logger.Info().
					Int64("user_id", id).
					Int("attempt", attempt).
					Msg("Lookup succeeded after retry")
			}
			return nil
		}

		lastErr = err
		if !shouldRetry(err) {
			return err
		}

		if attempt >= r.config.MaxAttempts {
			break
		}

		reason := string(ReasonOf(err))
		lookupRetriesTotal.WithLabelValues(reason).Inc()

		// Add jitter (±20% randomness)
		jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))

		r.logger.Debug().
			Int64("user_id", id).
			Str("reason", reason).
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Msg("Retrying lookup after backoff")

		timer := time.NewTimer(jitter)
		select {
		case <-ctx.Done():
			timer.Stop()
			ctxReason, _ := contextReason(ctx)
			return &Error{ID: id, Reason: ctxReason, Message: "during retry backoff", Err: lastErr}
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * r.config.BackoffMultiplier)
		if backoff > r.config.MaxBackoff {
			backoff = r.config.MaxBackoff
		}
	}

	if r.config.MaxAttempts > 1 {
		lookupRetryExhaustedTotal.WithLabelValues(string(ReasonOf(lastErr))).Inc()
		r.logger.Warn().
			Int64("user_id", id).
			Int("max_attempts", r.config.MaxAttempts).
			Msg("Lookup retry attempts exhausted")
	}

	return lastErr
}
