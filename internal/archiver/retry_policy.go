package archiver

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/wayback-archiver/internal/metrics"
)

// resolution is the single-attempt step wrapped by RetryController.
type resolution interface {
	Resolve(ctx context.Context, url string) (Result, Outcome, error)
}

// RetryController turns resolution attempts into a record for every URL.
type RetryController struct {
	resolver resolution
	sleeper  Sleeper
	clock    Clock
	policy   Policy
	logger   *zap.Logger
}

// NewRetryController builds a controller around resolver.
func NewRetryController(
	resolver resolution,
	sleeper Sleeper,
	clock Clock,
	policy Policy,
	logger *zap.Logger,
) *RetryController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryController{
		resolver: resolver,
		sleeper:  sleeper,
		clock:    clock,
		policy:   policy,
		logger:   logger,
	}
}

// ResolveWithRetry never fails: unrecoverable errors become tombstones stamped with the
// current time.
//
// Rate limiting is retried after a fixed wait with no cap unless Policy.MaxRateLimitRetries is
// set. Cancelling ctx interrupts a wait and yields OutcomeInterrupted.
func (c *RetryController) ResolveWithRetry(ctx context.Context, url string) (Result, Outcome) {
	res, outcome, _ := c.Archive(ctx, url)
	return res, outcome
}

// Archive behaves like ResolveWithRetry and also returns the cause behind a tombstone. When
// ctx ends before a verdict is reached it returns OutcomeInterrupted with the context error
// instead of a tombstone.
func (c *RetryController) Archive(ctx context.Context, url string) (Result, Outcome, error) {
	waits := 0
	for {
		res, outcome, err := c.resolver.Resolve(ctx, url)
		if err == nil {
			if outcome == OutcomeFresh {
				c.cooldown(ctx, url)
			}
			return res, outcome, nil
		}
		if ctx.Err() != nil {
			return c.interrupted(ctx, url)
		}

		switch kind := KindOf(err); kind {
		case KindRateLimited:
			if c.policy.MaxRateLimitRetries > 0 && waits >= c.policy.MaxRateLimitRetries {
				c.logger.Warn("rate limit retries exhausted",
					zap.String("url", url),
					zap.Int("retries", waits),
				)
				return c.tombstone(url, err)
			}
			waits++
			c.logger.Info("rate limited; waiting",
				zap.String("url", url),
				zap.Duration("wait", c.policy.RateLimitWait),
				zap.Int("attempt", waits),
			)
			metrics.ObserveRateLimitWait(c.policy.RateLimitWait)
			if serr := c.sleeper.Sleep(ctx, c.policy.RateLimitWait); serr != nil {
				if ctx.Err() != nil {
					return c.interrupted(ctx, url)
				}
				return c.tombstone(url, serr)
			}
		case KindTransport,
			KindMalformedResponse,
			KindMalformedTimestamp,
			KindNoExistingSnapshot,
			KindPermanentFailure,
			KindUnknownFailure:
			return c.tombstone(url, err)
		default:
			return c.tombstone(url, err)
		}
	}
}

func (c *RetryController) cooldown(ctx context.Context, url string) {
	if c.policy.Cooldown <= 0 {
		return
	}
	if err := c.sleeper.Sleep(ctx, c.policy.Cooldown); err != nil {
		c.logger.Debug("cooldown interrupted", zap.String("url", url), zap.Error(err))
	}
}

func (c *RetryController) interrupted(ctx context.Context, url string) (Result, Outcome, error) {
	c.logger.Info("archiving interrupted", zap.String("url", url), zap.Error(ctx.Err()))
	return Result{}, OutcomeInterrupted, ctx.Err()
}

func (c *RetryController) tombstone(url string, cause error) (Result, Outcome, error) {
	c.logger.Warn("archiving failed",
		zap.String("url", url),
		zap.String("kind", KindOf(cause).String()),
		zap.Error(cause),
	)
	return Tombstone(c.clock.Now()), OutcomeFailed, cause
}
