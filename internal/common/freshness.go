// Package common provides shared utilities for stockboard
package common

import "time"

// Default TTLs for cached upstream data. Quotes move continuously so they
// expire in seconds; fundamentals and calendar events change on filing
// cadence and can live for hours.
const (
	QuoteTTL        = 90 * time.Second
	FundamentalsTTL = 6 * time.Hour
	EventsTTL       = 6 * time.Hour
)

// IsFresh returns true if the given timestamp is within the TTL as of now.
// A zero timestamp is never fresh.
func IsFresh(now, updated time.Time, ttl time.Duration) bool {
	if updated.IsZero() {
		return false
	}
	return now.Sub(updated) < ttl
}
