// Package enrich fills missing user links from the remote link service under
// a fixed concurrency limit.
//
// Example usage:
//
//	enricher, err := enrich.NewEnricher(linkClient, enrich.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	report, err := enricher.Enrich(ctx, records)
//	if err != nil {
//		return err // invalid configuration or batch
//	}
//	_, err = store.SaveUpdated(ctx, report.Updated())
//
// The enricher:
//   - Routes records that already carry a link to Skipped (no lookup)
//   - Spawns a worker pool of min(limit, candidates) workers (default 10)
//   - Shares one batch deadline between all in-flight lookups
//   - Records every failure in the report instead of aborting the batch
//   - Marks lookups unfinished at the deadline as timeout (cancelled when the caller cancels)
//
// Workers never modify records; updated copies are built once the pool has
// drained.
package enrich
