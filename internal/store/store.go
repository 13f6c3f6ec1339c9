// Package store persists user records.
//
// Two implementations are provided: Postgres, backed by lib/pq, and Memory
// for tests and local development. Both apply the same update rule: a link
// is only written over an empty one unless Overwrite is set.
package store

import "errors"

// ErrNotFound is returned when no user with the requested ID exists.
var ErrNotFound = errors.New("user not found")

// Config holds store configuration.
type Config struct {
	// DSN is the PostgreSQL connection string. Unused by Memory.
	DSN string

	// BatchLimit caps how many records LoadBatch returns. 0 means no limit.
	BatchLimit int

	// MaxOpenConns caps open database connections. 0 leaves the driver default.
	MaxOpenConns int

	// Overwrite allows SaveUpdated to replace an existing link.
	// Set it together with the enricher's refetch policy.
	Overwrite bool
}

// DefaultConfig returns the default store configuration for dsn.
func DefaultConfig(dsn string) Config {
	return Config{
		DSN:          dsn,
		BatchLimit:   1000,
		MaxOpenConns: 10,
	}
}
