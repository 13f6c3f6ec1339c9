package enrich

import (
	"sort"
	"sync"

	"github.com/Sternrassler/userlink-enricher/pkg/lookup"
	"github.com/Sternrassler/userlink-enricher/pkg/user"
)

// Report aggregates the outcomes of one batch.
//
// Outcomes are deduplicated by record ID; the first one recorded wins.
// Once sealed, late outcomes are dropped.
type Report struct {
	mu       sync.Mutex
	outcomes map[int64]Outcome
	updated  []user.Record
	skipped  int
	sealed   bool
}

func newReport(size int) *Report {
	return &Report{
		outcomes: make(map[int64]Outcome, size),
	}
}

// add records o and reports whether it was accepted.
func (r *Report) add(o Outcome) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return false
	}
	if _, exists := r.outcomes[o.ID]; exists {
		return false
	}
	r.outcomes[o.ID] = o
	if o.Status == StatusSkipped {
		r.skipped++
	}
	return true
}

// seal stops accepting outcomes and builds the updated records from
// candidates. A success whose value equals the current link becomes a skip.
func (r *Report) seal(candidates []user.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sealed = true
	for _, rec := range candidates {
		o, ok := r.outcomes[rec.ID]
		if !ok || o.Status != StatusSuccess {
			continue
		}
		if o.Value == rec.ExternalLink {
			o.Status = StatusSkipped
			r.outcomes[rec.ID] = o
			r.skipped++
			continue
		}
		r.updated = append(r.updated, rec.WithLink(o.Value))
	}
	sort.Slice(r.updated, func(i, j int) bool { return r.updated[i].ID < r.updated[j].ID })
}

// Updated returns the records whose link was newly set, ordered by ID.
// These are exactly the records to persist.
func (r *Report) Updated() []user.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]user.Record, len(r.updated))
	copy(out, r.updated)
	return out
}

// Failed maps every failed record ID to its failure reason.
func (r *Report) Failed() map[int64]lookup.Reason {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int64]lookup.Reason)
	for id, o := range r.outcomes {
		if o.Status == StatusFailure {
			out[id] = o.Reason
		}
	}
	return out
}

// FailureErrors maps every failed record ID to the error behind it.
func (r *Report) FailureErrors() map[int64]error {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int64]error)
	for id, o := range r.outcomes {
		if o.Status == StatusFailure {
			out[id] = o.Err
		}
	}
	return out
}

// FailedCount returns the number of failed records.
func (r *Report) FailedCount() int {
	return len(r.Failed())
}

// SkippedCount returns the number of records that needed no update.
func (r *Report) SkippedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.skipped
}

// Total returns the number of records with an outcome.
func (r *Report) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.outcomes)
}

// Outcome returns the outcome recorded for id.
func (r *Report) Outcome(id int64) (Outcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.outcomes[id]
	return o, ok
}

// Outcomes returns all outcomes ordered by ID.
func (r *Report) Outcomes() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Outcome, 0, len(r.outcomes))
	for _, o := range r.outcomes {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
