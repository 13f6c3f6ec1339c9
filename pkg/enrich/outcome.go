package enrich

import "github.com/Sternrassler/userlink-enricher/pkg/lookup"

// Status is the result kind of one record in a batch.
type Status string

const (
	// StatusSuccess means a new link was fetched.
	StatusSuccess Status = "success"

	// StatusFailure means the lookup failed; the record keeps its link.
	StatusFailure Status = "failure"

	// StatusSkipped means no lookup was needed, or it returned the current link.
	StatusSkipped Status = "skipped"
)

// Outcome is the result for one record.
type Outcome struct {
	ID     int64
	Status Status

	// Value is the fetched link, set for StatusSuccess.
	Value string

	// Reason and Err are set for StatusFailure.
	Reason lookup.Reason
	Err    error
}

func successOutcome(id int64, value string) Outcome {
	return Outcome{ID: id, Status: StatusSuccess, Value: value}
}

func failureOutcome(id int64, err error) Outcome {
	return Outcome{ID: id, Status: StatusFailure, Reason: lookup.ReasonOf(err), Err: err}
}

func skippedOutcome(id int64) Outcome {
	return Outcome{ID: id, Status: StatusSkipped}
}
