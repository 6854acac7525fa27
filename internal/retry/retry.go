// Package retry implements the fixed-interval polling loop shared by every
// wait in the bootstrap path. A Policy with MaxAttempts == 0 polls until the
// condition holds or the context is cancelled.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrExhausted is returned (wrapped) when a bounded policy runs out of attempts.
var ErrExhausted = errors.New("retry attempts exhausted")

var errNotMet = errors.New("condition not met")

// Policy configures Until.
type Policy struct {
	// Interval is the pause between attempts.
	Interval time.Duration
	// MaxAttempts caps the number of attempts. Zero means unbounded.
	MaxAttempts int
	// OnRetry, if set, runs after every failed attempt that will be retried.
	OnRetry func(attempt int, err error)
}

// Condition reports whether the awaited state has been reached. attempt is
// 1-based. A non-nil error counts as "not yet" unless wrapped with Permanent.
type Condition func(ctx context.Context, attempt int) (bool, error)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as non-retryable; Until returns it unwrapped immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Until evaluates cond until it returns true, the attempt budget is spent,
// cond returns a Permanent error, or ctx is done. Cancellation is only
// observed between attempts.
func Until(ctx context.Context, p Policy, cond Condition) error {
	if p.Interval <= 0 {
		return fmt.Errorf("retry: interval must be positive, got %s", p.Interval)
	}
	if p.MaxAttempts < 0 {
		return fmt.Errorf("retry: max attempts must not be negative, got %d", p.MaxAttempts)
	}

	var b backoff.BackOff = backoff.NewConstantBackOff(p.Interval)
	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
	}
	b = backoff.WithContext(b, ctx)

	attempt := 0
	stopped := false
	op := func() error {
		attempt++
		ok, err := cond(ctx, attempt)
		if err != nil {
			var perm *permanentError
			if errors.As(err, &perm) {
				stopped = true
				return backoff.Permanent(perm.err)
			}
			return err
		}
		if !ok {
			return errNotMet
		}
		return nil
	}
	notify := func(err error, _ time.Duration) {
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
	}

	err := backoff.RetryNotify(op, b, notify)
	switch {
	case err == nil:
		return nil
	case stopped:
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt, err)
	}
}
