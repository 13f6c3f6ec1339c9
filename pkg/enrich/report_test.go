package enrich

import (
	"errors"
	"sync"
	"testing"

	"github.com/Sternrassler/userlink-enricher/pkg/lookup"
	"github.com/Sternrassler/userlink-enricher/pkg/user"
)

func TestReport_DedupesByID(t *testing.T) {
	r := newReport(2)

	if !r.add(successOutcome(1, "L1")) {
		t.Fatal("first outcome should be accepted")
	}
	if r.add(failureOutcome(1, errors.New("late"))) {
		t.Error("second outcome for the same id should be rejected")
	}

	r.seal([]user.Record{{ID: 1}})

	if got := r.Updated(); len(got) != 1 || got[0].ExternalLink != "L1" {
		t.Errorf("Updated() = %+v, want [{1 L1}]", got)
	}
	if r.FailedCount() != 0 {
		t.Errorf("FailedCount() = %d, want 0", r.FailedCount())
	}
}

func TestReport_SealRejectsLateOutcomes(t *testing.T) {
	r := newReport(1)
	r.seal(nil)

	if r.add(successOutcome(9, "L9")) {
		t.Error("outcome after seal should be rejected")
	}
	if r.Total() != 0 {
		t.Errorf("Total() = %d, want 0", r.Total())
	}
}

func TestReport_UnchangedSuccessBecomesSkip(t *testing.T) {
	r := newReport(2)
	r.add(successOutcome(1, "same"))
	r.add(successOutcome(2, "new"))

	r.seal([]user.Record{{ID: 1, ExternalLink: "same"}, {ID: 2, ExternalLink: "old"}})

	updated := r.Updated()
	if len(updated) != 1 || updated[0].ID != 2 || updated[0].ExternalLink != "new" {
		t.Errorf("Updated() = %+v, want [{2 new}]", updated)
	}
	if r.SkippedCount() != 1 {
		t.Errorf("SkippedCount() = %d, want 1", r.SkippedCount())
	}
	if o, _ := r.Outcome(1); o.Status != StatusSkipped {
		t.Errorf("Outcome(1).Status = %s, want skipped", o.Status)
	}
}

func TestReport_FailedReasons(t *testing.T) {
	r := newReport(3)
	r.add(failureOutcome(1, &lookup.Error{ID: 1, Reason: lookup.ReasonTimeout}))
	r.add(failureOutcome(2, &lookup.Error{ID: 2, Reason: lookup.ReasonUnreachable}))
	r.add(skippedOutcome(3))
	r.seal(nil)

	failed := r.Failed()
	if len(failed) != 2 {
		t.Fatalf("Failed() = %v, want 2 entries", failed)
	}
	if failed[1] != lookup.ReasonTimeout || failed[2] != lookup.ReasonUnreachable {
		t.Errorf("Failed() = %v", failed)
	}

	// returned map is a copy
	failed[99] = lookup.ReasonCancelled
	if r.FailedCount() != 2 {
		t.Error("Failed() must return a copy")
	}
}

func TestReport_ConcurrentAdds(t *testing.T) {
	const n = 200
	r := newReport(n)
	candidates := make([]user.Record, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		candidates[i] = user.Record{ID: int64(i)}
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			r.add(successOutcome(id, "L"))
			r.add(successOutcome(id, "dup"))
		}(int64(i))
	}
	wg.Wait()
	r.seal(candidates)

	if r.Total() != n {
		t.Errorf("Total() = %d, want %d", r.Total(), n)
	}
	updated := r.Updated()
	if len(updated) != n {
		t.Fatalf("len(Updated()) = %d, want %d", len(updated), n)
	}
	for i, rec := range updated {
		if rec.ID != int64(i) {
			t.Fatalf("Updated() not ordered by ID at %d: %d", i, rec.ID)
		}
	}
}

func TestReport_FailureErrors(t *testing.T) {
	cause := &lookup.Error{ID: 7, Reason: lookup.ReasonBadResponse, StatusCode: 502}

	r := newReport(2)
	r.add(failureOutcome(7, cause))
	r.add(successOutcome(8, "L8"))
	r.seal([]user.Record{{ID: 7}, {ID: 8}})

	errs := r.FailureErrors()
	if len(errs) != 1 {
		t.Fatalf("FailureErrors() = %v, want 1 entry", errs)
	}

	var lookupErr *lookup.Error
	if !errors.As(errs[7], &lookupErr) || lookupErr.StatusCode != 502 {
		t.Errorf("FailureErrors()[7] = %v, want lookup error with status 502", errs[7])
	}
}
