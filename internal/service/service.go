// Package service implements the user query operations on top of the
// store and the link enricher.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/userlink-enricher/pkg/enrich"
	"github.com/Sternrassler/userlink-enricher/pkg/logging"
	"github.com/Sternrassler/userlink-enricher/pkg/user"
	"github.com/rs/zerolog"
)

// Store loads and persists user records.
type Store interface {
	LoadBatch(ctx context.Context) ([]user.Record, error)
	// SaveUpdated returns the IDs whose link it actually wrote.
	SaveUpdated(ctx context.Context, records []user.Record) ([]int64, error)
	FindByID(ctx context.Context, id int64) (user.Record, error)
	Ping(ctx context.Context) error
}

// Enricher fills missing links for a batch of records.
type Enricher interface {
	Enrich(ctx context.Context, records []user.Record) (*enrich.Report, error)
}

// ListResult is one enriched listing.
type ListResult struct {
	// Users is the loaded batch in store order, carrying the new links.
	Users []user.Record

	// Report holds the per-record outcomes of the enrichment.
	Report *enrich.Report
}

// FailedCount returns the number of records whose lookup failed.
func (r *ListResult) FailedCount() int {
	if r.Report == nil {
		return 0
	}
	return r.Report.FailedCount()
}

// UserQueryService serves user listings and lookups.
type UserQueryService struct {
	store    Store
	enricher Enricher
	logger   zerolog.Logger
}

// New creates a user query service.
func New(store Store, enricher Enricher) *UserQueryService {
	return &UserQueryService{
		store:    store,
		enricher: enricher,
		logger:   logging.NewLogger("user-service"),
	}
}

// ListUsers loads a batch, enriches missing links and persists the new ones.
//
// Lookup failures do not fail the listing; affected records are returned
// unchanged and counted in the report. A persistence failure is returned.
// A fetched link the store refused to write is reported as stored.
func (s *UserQueryService) ListUsers(ctx context.Context) (*ListResult, error) {
	start := time.Now()

	records, err := s.store.LoadBatch(ctx)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}

	report, err := s.enricher.Enrich(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("enrich users: %w", err)
	}

	updated := report.Updated()
	var persisted []user.Record
	if len(updated) > 0 {
		applied, err := s.store.SaveUpdated(ctx, updated)
		if err != nil {
			s.logger.Error().
				Err(err).
				Int("updated", len(updated)).
				Msg("Failed to persist enriched links")
			return nil, fmt.Errorf("save enriched links: %w", err)
		}
		persisted = s.reconcile(ctx, updated, applied)
	}

	s.logger.Info().
		Int("users", len(records)).
		Int("updated", len(updated)).
		Int("persisted", len(persisted)).
		Int("failed", report.FailedCount()).
		Dur("duration", time.Since(start)).
		Msg("Listed users")

	return &ListResult{
		Users:  merge(records, persisted),
		Report: report,
	}, nil
}

// reconcile returns the records whose link the store holds after a save.
// Links the store refused are replaced by the stored record.
func (s *UserQueryService) reconcile(ctx context.Context, updated []user.Record, applied []int64) []user.Record {
	written := make(map[int64]bool, len(applied))
	for _, id := range applied {
		written[id] = true
	}

	out := make([]user.Record, 0, len(updated))
	for _, rec := range updated {
		if written[rec.ID] {
			out = append(out, rec)
			continue
		}
		stored, err := s.store.FindByID(ctx, rec.ID)
		if err != nil {
			s.logger.Warn().
				Err(err).
				Int64("user_id", rec.ID).
				Msg("Enriched link not persisted, keeping loaded record")
			continue
		}
		out = append(out, stored)
	}
	return out
}

// Health checks that the store is reachable.
func (s *UserQueryService) Health(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("store unavailable: %w", err)
	}
	return nil
}

// GetUser returns one stored user. The record is not enriched.
func (s *UserQueryService) GetUser(ctx context.Context, id int64) (user.Record, error) {
	rec, err := s.store.FindByID(ctx, id)
	if err != nil {
		return user.Record{}, fmt.Errorf("get user %d: %w", id, err)
	}
	return rec, nil
}

// merge returns records in their original order with the links of updated applied.
func merge(records, updated []user.Record) []user.Record {
	links := make(map[int64]string, len(updated))
	for _, rec := range updated {
		links[rec.ID] = rec.ExternalLink
	}

	out := make([]user.Record, len(records))
	for i, rec := range records {
		if link, ok := links[rec.ID]; ok {
			rec = rec.WithLink(link)
		}
		out[i] = rec
	}
	return out
}
