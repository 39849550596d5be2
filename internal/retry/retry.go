// Package retry re-invokes fallible operations with a linear backoff, it is
// the only place that decides whether a failure is worth another attempt.
package retry

import (
	"context"
	"guapassist-backend/internal/scraperr"
	"log/slog"
	"time"
)

type Policy struct {
	MaxAttempts int           `json:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay"`
}

var (
	// DefaultPolicy is used for plain operations.
	DefaultPolicy = Policy{MaxAttempts: 3, BaseDelay: time.Second}
	// ParserPolicy is used for extractions, which are slower and hold a session.
	ParserPolicy = Policy{MaxAttempts: 2, BaseDelay: 2 * time.Second}
)

// Delay returns how long to wait after the given 1-based failed attempt.
func (p Policy) Delay(attempt int) time.Duration {
	return p.BaseDelay * time.Duration(attempt)
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Attempt describes one failed attempt, NextDelay is zero if there will be
// no further attempt.
type Attempt struct {
	Number    int
	Err       error
	NextDelay time.Duration
}

// Outcome is implemented by results that carry their own failure, ex. a
// response with a success flag. A non-nil Failure counts as a failed attempt.
type Outcome interface {
	Failure() error
}

// Invalidator drops the session of an account so the next attempt signs in
// again.
type Invalidator interface {
	InvalidateSession(ctx context.Context, username string)
}

type config struct {
	observer func(Attempt)
	sleep    func(ctx context.Context, d time.Duration) error
	stop     func(err error) bool
}

type Option func(c *config)

// WithObserver is called for every failed attempt.
func WithObserver(observer func(Attempt)) Option {
	return func(c *config) {
		c.observer = observer
	}
}

// WithSleep replaces the wait between attempts.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *config) {
		c.sleep = sleep
	}
}

// WithStop marks errors that must never be retried even though their kind
// usually would be.
func WithStop(stop func(err error) bool) Option {
	return func(c *config) {
		c.stop = stop
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newConfig(opts []Option) config {
	c := config{
		observer: func(Attempt) {},
		sleep:    sleep,
		stop:     func(error) bool { return false },
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithRetry retries op while it fails with transient errors.
func WithRetry[T any](
	ctx context.Context,
	policy Policy,
	op func(ctx context.Context) (T, error),
	opts ...Option,
) (T, error) {
	return run(ctx, policy, "", nil, false, op, newConfig(opts))
}

// WithParserRetry retries an extraction. Besides transient errors it also
// retries authentication failures, invalidating the session of username
// before each such retry.
func WithParserRetry[T any](
	ctx context.Context,
	policy Policy,
	username string,
	invalidator Invalidator,
	op func(ctx context.Context) (T, error),
	opts ...Option,
) (T, error) {
	return run(ctx, policy, username, invalidator, true, op, newConfig(opts))
}

func run[T any](
	ctx context.Context,
	policy Policy,
	username string,
	invalidator Invalidator,
	parser bool,
	op func(ctx context.Context) (T, error),
	c config,
) (T, error) {
	maxAttempts := policy.attempts()
	for attempt := 1; ; attempt++ {
		res, err := op(ctx)
		if err == nil && parser {
			if outcome, ok := any(res).(Outcome); ok {
				err = outcome.Failure()
			}
		}
		if err == nil {
			return res, nil
		}

		auth := parser && scraperr.IsAuth(err)
		retryable := (scraperr.IsRetryable(err) || auth) && !c.stop(err)
		last := attempt >= maxAttempts

		var next time.Duration
		if retryable && !last {
			next = policy.Delay(attempt)
		}
		c.observer(Attempt{Number: attempt, Err: err, NextDelay: next})

		if !retryable || last {
			if retryable {
				slog.WarnContext(ctx, "retry: attempts exhausted", "attempts", attempt, "err", err)
			}
			return res, err
		}

		slog.WarnContext(
			ctx, "retry: attempt failed",
			"attempt", attempt,
			"next_delay", next,
			"kind", scraperr.KindOf(err).String(),
			"err", err,
		)
		if auth && invalidator != nil {
			invalidator.InvalidateSession(ctx, username)
		}
		if err := c.sleep(ctx, next); err != nil {
			return res, err
		}
	}
}
