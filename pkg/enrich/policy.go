package enrich

import "github.com/Sternrassler/userlink-enricher/pkg/user"

// Policy decides which records need a lookup.
type Policy struct {
	// Refetch also looks up records that already carry a link.
	Refetch bool
}

// NeedsEnrichment reports whether r should be looked up.
func (p Policy) NeedsEnrichment(r user.Record) bool {
	return p.Refetch || !r.HasLink()
}
