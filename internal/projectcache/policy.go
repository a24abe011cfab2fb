package projectcache

import "time"

// Policy decides when a materialized table must be refetched.
type Policy struct {
	// MaxAge bounds how long an entry stays fresh. Zero never expires.
	MaxAge time.Duration
	// Clock returns the current time. Nil uses time.Now.
	Clock func() time.Time
}

// Now returns the policy clock's current time.
func (p Policy) Now() time.Time {
	if p.Clock == nil {
		return time.Now()
	}
	return p.Clock()
}

// Stale reports whether an entry fetched at fetchedAt needs a refetch.
func (p Policy) Stale(fetchedAt time.Time) bool {
	if p.MaxAge <= 0 {
		return false
	}
	if fetchedAt.IsZero() {
		return true
	}
	return p.Now().Sub(fetchedAt) > p.MaxAge
}
