// Package archiver defines the archival resolution workflow and the types shared across subsystems.
package archiver

import "time"

// Outcome labels the terminal state reached for a single URL.
type Outcome string

// Outcome values reported to logs, metrics and notifications.
const (
	OutcomeCached        Outcome = "cached"
	OutcomeExisting      Outcome = "existing"
	OutcomeFresh         Outcome = "fresh"
	OutcomeStaleFallback Outcome = "stale_fallback"
	OutcomeFailed        Outcome = "failed"
	// OutcomeInterrupted means the run was cancelled before the URL reached a verdict; no record
	// should be written for it.
	OutcomeInterrupted Outcome = "interrupted"
)

// Result is the outcome record kept for one input URL.
//
// URL is nil for a tombstone (attempted and failed). LastArchived is always set: it is the
// snapshot creation time on success and the time of the failed attempt otherwise.
type Result struct {
	URL                  *string
	LastArchived         time.Time
	FromExistingSnapshot bool
}

// Succeeded reports whether the result carries a snapshot URL.
func (r Result) Succeeded() bool {
	return r.URL != nil
}

// SnapshotURL returns the snapshot URL or "" for tombstones.
func (r Result) SnapshotURL() string {
	if r.URL == nil {
		return ""
	}
	return *r.URL
}

// Tombstone builds a failure record stamped at the given time.
func Tombstone(at time.Time) Result {
	return Result{LastArchived: at.UTC()}
}

// Snapshot builds a success record for the given snapshot URL.
func Snapshot(url string, archivedAt time.Time, existing bool) Result {
	u := url
	return Result{
		URL:                  &u,
		LastArchived:         archivedAt.UTC(),
		FromExistingSnapshot: existing,
	}
}

// Policy holds the time windows and waits that drive resolution and retry.
type Policy struct {
	// FreshnessWindow is the maximum age of a remote snapshot accepted without a new capture.
	FreshnessWindow time.Duration
	// ReuseWindow is the maximum age of a cached record that skips remote work entirely.
	ReuseWindow time.Duration
	// RateLimitWait is the fixed pause after the service reports it is rate limiting.
	RateLimitWait time.Duration
	// Cooldown is the pause after a freshly minted snapshot.
	Cooldown time.Duration
	// MaxRateLimitRetries caps rate-limit retries per URL; 0 retries forever.
	MaxRateLimitRetries int
}

// DefaultPolicy returns the windows used by the archiving service's own tooling.
func DefaultPolicy() Policy {
	return Policy{
		FreshnessWindow: 90 * 24 * time.Hour,
		ReuseWindow:     180 * 24 * time.Hour,
		RateLimitWait:   15 * time.Second,
		Cooldown:        5 * time.Second,
	}
}

// QueueItem is one input line handed from ingestion to the processing worker.
type QueueItem struct {
	URL  string
	Line int
}
