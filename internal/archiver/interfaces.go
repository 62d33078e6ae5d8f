package archiver

import (
	"context"
	"time"
)

// AvailabilityChecker looks up the most recent existing snapshot of a URL.
type AvailabilityChecker interface {
	Check(ctx context.Context, url string) (Result, error)
}

// SnapshotRequester asks the service to capture a new snapshot of a URL.
type SnapshotRequester interface {
	Request(ctx context.Context, url string) (Result, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Sleeper pauses the caller for d or until ctx ends.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Publisher pushes per-URL outcome events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
