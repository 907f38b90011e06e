package health

import (
	"context"
	"time"
)

// Status is the monitor's rolling view of a dependency's availability.
type Status string

const (
	StatusUnknown   Status = "unknown"
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// Record is what the monitor persists after every check. Zero
// LastSuccess/LastFailure means the corresponding outcome has not
// happened yet.
type Record struct {
	Status              Status
	LastCheck           time.Time
	LastSuccess         time.Time
	LastFailure         time.Time
	ConsecutiveFailures int
}

// Prober performs one bounded availability check of the external
// dependency.
type Prober interface {
	Probe(ctx context.Context) error
}

// StatusStore persists the rolling health record with a freshness TTL.
// Get returns nil (not an error) when no fresh record exists, which
// readers interpret as StatusUnknown: a stopped monitor must read as
// unknown, never as stale healthy.
type StatusStore interface {
	Set(ctx context.Context, record *Record, ttl time.Duration) error
	Get(ctx context.Context) (*Record, error)
}
