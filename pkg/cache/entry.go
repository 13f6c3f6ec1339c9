package cache

import (
	"time"
)

// Entry is a cached link value.
type Entry struct {
	// Value is the cached link
	Value string `json:"value"`

	// FetchedAt is when the value was obtained from the link service
	FetchedAt time.Time `json:"fetched_at"`

	// Expires is when the entry becomes stale
	Expires time.Time `json:"expires"`
}

// NewEntry creates an entry for value that expires after ttl.
func NewEntry(value string, ttl time.Duration) *Entry {
	now := time.Now()
	return &Entry{
		Value:     value,
		FetchedAt: now,
		Expires:   now.Add(ttl),
	}
}

// IsExpired returns true if the cache entry has expired.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
