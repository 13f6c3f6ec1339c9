package enrich

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/userlink-enricher/pkg/lookup"
	"github.com/Sternrassler/userlink-enricher/pkg/user"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// ErrInvalidConcurrencyLimit is returned for a concurrency limit below 1.
	ErrInvalidConcurrencyLimit = errors.New("invalid concurrency limit")

	// ErrNilFetcher is returned when no link fetcher is configured.
	ErrNilFetcher = errors.New("link fetcher is required")

	// ErrDuplicateRecord is returned when a batch holds the same ID twice.
	ErrDuplicateRecord = errors.New("duplicate record in batch")
)

// abandonGrace is how long Enrich waits for workers after the batch deadline
// before it stops waiting for fetchers that ignore cancellation.
var abandonGrace = 250 * time.Millisecond

// LinkFetcher is the interface the link service client must implement.
type LinkFetcher interface {
	// Fetch returns the external link of user id, or an error classified by lookup.ReasonOf.
	Fetch(ctx context.Context, id int64) (string, error)
}

// Config holds enricher configuration.
type Config struct {
	// MaxConcurrency is the maximum number of parallel lookups.
	// 0 selects the default of 10.
	MaxConcurrency int

	// Timeout bounds one whole batch. 0 selects the default of 15s.
	Timeout time.Duration

	// Policy selects the records to look up.
	Policy Policy
}

// DefaultConfig returns the default enricher configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 10,
		Timeout:        15 * time.Second,
	}
}

// Enricher looks up missing links for batches of records.
type Enricher struct {
	fetcher LinkFetcher
	config  Config
	logger  zerolog.Logger
}

// NewEnricher creates a new enricher.
func NewEnricher(fetcher LinkFetcher, config Config) (*Enricher, error) {
	if fetcher == nil {
		return nil, ErrNilFetcher
	}
	if config.MaxConcurrency < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidConcurrencyLimit, config.MaxConcurrency)
	}
	if config.Timeout < 0 {
		return nil, fmt.Errorf("timeout must be >= 0 (got %s)", config.Timeout)
	}

	def := DefaultConfig()
	if config.MaxConcurrency == 0 {
		config.MaxConcurrency = def.MaxConcurrency
	}
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}

	return &Enricher{
		fetcher: fetcher,
		config:  config,
		logger:  log.With().Str("component", "enricher").Logger(),
	}, nil
}

// Config returns the effective configuration.
func (e *Enricher) Config() Config {
	return e.config
}

// Enrich enriches records using the configured concurrency limit and timeout.
func (e *Enricher) Enrich(ctx context.Context, records []user.Record) (*Report, error) {
	return e.EnrichWithLimit(ctx, records, e.config.MaxConcurrency, time.Now().Add(e.config.Timeout))
}

// EnrichWithLimit enriches records with at most limit concurrent lookups.
// A zero deadline leaves only ctx to bound the batch.
//
// Lookup failures never fail the call; they are recorded in the report.
// An error is returned only for an invalid limit or batch, before any lookup.
func (e *Enricher) EnrichWithLimit(ctx context.Context, records []user.Record, limit int, deadline time.Time) (*Report, error) {
	if limit < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidConcurrencyLimit, limit)
	}

	start := time.Now()
	defer func() {
		BatchDuration.Observe(time.Since(start).Seconds())
	}()

	report := newReport(len(records))
	candidates, err := e.partition(records, report)
	if err != nil {
		return nil, err
	}

	if len(candidates) == 0 {
		report.seal(nil)
		e.logDone(report, len(records), start)
		return report, nil
	}

	var runCtx context.Context
	var cancel context.CancelFunc
	if deadline.IsZero() {
		runCtx, cancel = context.WithCancel(ctx)
	} else {
		runCtx, cancel = context.WithDeadline(ctx, deadline)
	}
	defer cancel()

	workers := min(limit, len(candidates))

	e.logger.Info().
		Int("records", len(records)).
		Int("candidates", len(candidates)).
		Int("workers", workers).
		Msg("Starting batch enrichment")

	jobs := make(chan user.Record)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go e.worker(runCtx, jobs, report, &wg, i)
	}

dispatch:
	for _, rec := range candidates {
		select {
		case jobs <- rec:
		case <-runCtx.Done():
			break dispatch
		}
	}
	close(jobs)

	e.wait(runCtx, &wg)

	// Anything without an outcome was never dispatched or never finished.
	if runCtx.Err() != nil {
		markUnfinished(report, candidates, runCtx.Err())
	}

	report.seal(candidates)
	e.logDone(report, len(records), start)

	return report, nil
}

// markUnfinished records a timeout or cancellation failure for every
// candidate without an outcome and returns how many it recorded.
func markUnfinished(report *Report, candidates []user.Record, cause error) int {
	reason := lookup.ReasonTimeout
	if errors.Is(cause, context.Canceled) {
		reason = lookup.ReasonCancelled
	}

	marked := 0
	for _, rec := range candidates {
		// add refuses IDs a late worker already recorded
		if !report.add(failureOutcome(rec.ID, &lookup.Error{
			ID:      rec.ID,
			Reason:  reason,
			Message: "batch ended before lookup completed",
			Err:     cause,
		})) {
			continue
		}
		Outcomes.WithLabelValues(string(StatusFailure)).Inc()
		marked++
	}
	return marked
}

// partition validates the batch and routes records that need no lookup to
// Skipped. It returns the records to look up.
func (e *Enricher) partition(records []user.Record, report *Report) ([]user.Record, error) {
	seen := make(map[int64]struct{}, len(records))
	candidates := make([]user.Record, 0, len(records))

	for _, rec := range records {
		if _, dup := seen[rec.ID]; dup {
			return nil, fmt.Errorf("%w: id %d", ErrDuplicateRecord, rec.ID)
		}
		seen[rec.ID] = struct{}{}

		if !e.config.Policy.NeedsEnrichment(rec) {
			report.add(skippedOutcome(rec.ID))
			Outcomes.WithLabelValues(string(StatusSkipped)).Inc()
			continue
		}
		candidates = append(candidates, rec)
	}

	return candidates, nil
}

// wait blocks until all workers are done. Once the batch context is done it
// waits at most abandonGrace for fetchers that ignore cancellation.
func (e *Enricher) wait(ctx context.Context, wg *sync.WaitGroup) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-ctx.Done():
	}

	timer := time.NewTimer(abandonGrace)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		e.logger.Warn().
			Dur("grace", abandonGrace).
			Msg("Abandoning lookups that ignored cancellation")
	}
}

// worker processes records from the queue
func (e *Enricher) worker(ctx context.Context, jobs <-chan user.Record, report *Report, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	processed := 0

	for rec := range jobs {
		if ctx.Err() != nil {
			// left without outcome; marked after the pool drains
			continue
		}

		outcome := e.lookupOne(ctx, rec.ID)
		if !report.add(outcome) {
			e.logger.Debug().
				Int("worker_id", workerID).
				Int64("user_id", rec.ID).
				Msg("Dropping outcome after batch was sealed")
			continue
		}
		Outcomes.WithLabelValues(string(outcome.Status)).Inc()
		processed++
	}

	if processed > 0 {
		e.logger.Debug().
			Int("worker_id", workerID).
			Int("records_processed", processed).
			Msg("Worker completed")
	}
}

// lookupOne fetches the link for id and converts the result to an outcome.
func (e *Enricher) lookupOne(ctx context.Context, id int64) Outcome {
	InFlight.Inc()
	defer InFlight.Dec()

	link, err := e.fetcher.Fetch(ctx, id)
	if err != nil {
		e.logger.Warn().
			Err(err).
			Int64("user_id", id).
			Str("reason", string(lookup.ReasonOf(err))).
			Msg("Link lookup failed")
		return failureOutcome(id, err)
	}
	if link == "" {
		return failureOutcome(id, &lookup.Error{ID: id, Reason: lookup.ReasonBadResponse, Err: lookup.ErrEmptyLink})
	}
	return successOutcome(id, link)
}

func (e *Enricher) logDone(report *Report, records int, start time.Time) {
	e.logger.Info().
		Int("records", records).
		Int("updated", len(report.Updated())).
		Int("failed", report.FailedCount()).
		Int("skipped", report.SkippedCount()).
		Dur("duration", time.Since(start)).
		Msg("Batch enrichment complete")
}
