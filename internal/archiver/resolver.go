package archiver

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/wayback-archiver/internal/metrics"
)

// Resolver composes the availability check, the freshness policy and the snapshot request into
// a single resolution step.
type Resolver struct {
	checker   AvailabilityChecker
	requester SnapshotRequester
	clock     Clock
	freshness time.Duration
	logger    *zap.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(
	checker AvailabilityChecker,
	requester SnapshotRequester,
	clock Clock,
	policy Policy,
	logger *zap.Logger,
) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	freshness := policy.FreshnessWindow
	if freshness <= 0 {
		freshness = DefaultPolicy().FreshnessWindow
	}
	return &Resolver{
		checker:   checker,
		requester: requester,
		clock:     clock,
		freshness: freshness,
		logger:    logger,
	}
}

// Resolve returns a snapshot for url, reusing a fresh existing one when possible.
//
// A stale existing snapshot is only returned when the service permanently refuses a new
// capture. Rate limiting and unknown failures are returned to the caller unchanged.
func (r *Resolver) Resolve(ctx context.Context, url string) (Result, Outcome, error) {
	existing, checkErr := r.checker.Check(ctx, url)
	haveExisting := checkErr == nil && existing.Succeeded()
	switch {
	case haveExisting && r.isFresh(existing):
		r.logger.Debug("existing snapshot is fresh",
			zap.String("url", url),
			zap.String("snapshot", existing.SnapshotURL()),
			zap.Time("last_archived", existing.LastArchived),
		)
		return existing, OutcomeExisting, nil
	case haveExisting:
		r.logger.Debug("existing snapshot is stale", zap.String("url", url), zap.Time("last_archived", existing.LastArchived))
	case KindOf(checkErr) == KindNoExistingSnapshot:
		r.logger.Debug("no existing snapshot", zap.String("url", url))
	default:
		r.logger.Warn("availability check failed", zap.String("url", url), zap.Error(checkErr))
	}

	fresh, err := r.requester.Request(ctx, url)
	if err == nil {
		return fresh, OutcomeFresh, nil
	}
	if KindOf(err) == KindPermanentFailure && haveExisting {
		r.logger.Info("capture refused; falling back to stale snapshot",
			zap.String("url", url),
			zap.String("snapshot", existing.SnapshotURL()),
			zap.Error(err),
		)
		metrics.ObserveStaleFallback()
		return existing, OutcomeStaleFallback, nil
	}
	return Result{}, OutcomeFailed, err
}

func (r *Resolver) isFresh(res Result) bool {
	return r.clock.Now().Sub(res.LastArchived) < r.freshness
}
