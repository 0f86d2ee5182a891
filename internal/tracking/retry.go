package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/cheapfinder/backend/internal/model"
	"github.com/cheapfinder/backend/internal/ratelimit"
	"github.com/cheapfinder/backend/internal/scraper"
)

// RetryConfig holds retry configuration for a single price check task.
type RetryConfig struct {
	// Attempts is the total number of GetPrice calls, first try included.
	Attempts int
	// InitialDelay is the first backoff interval.
	InitialDelay time.Duration
	// MaxDelay caps a single backoff interval.
	MaxDelay time.Duration
	// MaxWait bounds the time spent retrying one task.
	MaxWait    time.Duration
	Multiplier float64
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:     3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		MaxWait:      2 * time.Minute,
		Multiplier:   2.0,
	}
}

func (c RetryConfig) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.InitialDelay
	b.MaxInterval = c.MaxDelay
	b.MaxElapsedTime = c.MaxWait
	if c.Multiplier > 0 {
		b.Multiplier = c.Multiplier
	}

	attempts := c.Attempts
	if attempts < 1 {
		attempts = 1
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
	policy.Reset()
	return policy
}

// fetchResult is the terminal state of the fetch stage of a task.
type fetchResult struct {
	raw      *model.RawPrice
	attempts int
	err      error
}

// fetch calls GetPrice through the domain limiter, retrying transient and
// blocked failures. Every attempt, retries included, waits for its own
// limiter slot. Limiter waits, requests and backoff sleeps together stay
// within Retry.MaxWait; a domain cooling down past that deadline fails the
// task at once.
func (o *Orchestrator) fetch(ctx context.Context, s scraper.Scraper, product model.Product, domain string, log *slog.Logger) fetchResult {
	var (
		res     fetchResult
		lastErr error
		started = time.Now()
		limiter = o.limits.For(domain)
	)

	taskCtx := ctx
	if o.config.Retry.MaxWait > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, o.config.Retry.MaxWait)
		defer cancel()
	}

	op := func() error {
		if until := limiter.BlockedUntil(); pastDeadline(taskCtx, until) {
			return backoff.Permanent(scraper.Blocked(s.ID(), "wait for limiter",
				fmt.Errorf("%s cooling down until %s, past the task deadline", domain, until.UTC().Format(time.RFC3339))))
		}

		res.attempts++
		waitStart := time.Now()
		if err := limiter.Acquire(taskCtx); err != nil {
			return backoff.Permanent(err)
		}
		o.metrics.ObserveLimiterWait(domain, time.Since(waitStart))

		start := time.Now()
		raw, err := s.GetPrice(taskCtx, product)
		if err == nil {
			o.metrics.ObserveScrape(s.ID(), string(model.OutcomeOK), time.Since(start))
			o.limits.Reward(domain)
			res.raw = raw
			return nil
		}

		kind := scraper.KindOf(err)
		o.metrics.ObserveScrape(s.ID(), string(kind.Outcome()), time.Since(start))

		if scraper.IsContextError(err) && taskCtx.Err() != nil {
			return backoff.Permanent(err)
		}
		lastErr = err
		if kind == scraper.KindBlocked {
			cooldown := o.limits.Penalize(domain)
			o.metrics.ObservePenalty(domain)
			log.Warn("Retailer blocked request, cooling down domain",
				slog.String("domain", domain),
				slog.Duration("cooldown", cooldown),
			)
		}
		if !kind.Retryable() {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		kind := scraper.KindOf(err)
		o.metrics.ObserveRetry(s.ID(), kind.String())
		log.Warn("Price check attempt failed",
			slog.Int("attempt", res.attempts),
			slog.Int("max_attempts", o.config.Retry.Attempts),
			slog.Duration("retry_in", wait),
			slog.String("error", err.Error()),
		)
	}

	err := backoff.RetryNotify(op, o.config.Retry.policy(taskCtx), notify)
	if err != nil && ctx.Err() == nil && taskCtx.Err() != nil {
		err = o.waitExceeded(s.ID(), limiter, started, lastErr, err)
	}
	res.err = err
	return res
}

// waitExceeded classifies a task that ran out of Retry.MaxWait. It counts as
// blocked when the domain was cooling down during the task or the last
// response was a block, and as a network error otherwise.
func (o *Orchestrator) waitExceeded(retailer string, limiter *ratelimit.Limiter, started time.Time, lastErr, err error) error {
	kind := scraper.KindTransient
	if scraper.KindOf(lastErr) == scraper.KindBlocked || limiter.BlockedUntil().After(started) {
		kind = scraper.KindBlocked
	}
	cause := err
	if lastErr != nil {
		cause = lastErr
	}
	return scraper.NewError(retailer, "get price", kind,
		fmt.Errorf("gave up after %s: %w", o.config.Retry.MaxWait, cause))
}

// pastDeadline reports whether t falls after ctx's deadline.
func pastDeadline(ctx context.Context, t time.Time) bool {
	deadline, ok := ctx.Deadline()
	return ok && t.After(deadline)
}

// isInterrupted reports whether err came from the run being cancelled or
// timing out rather than from the retailer.
func isInterrupted(ctx context.Context, err error) bool {
	return ctx.Err() != nil && scraper.IsContextError(err)
}
