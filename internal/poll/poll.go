// Package poll drives an operation repeatedly until its result satisfies a
// terminal condition.
package poll

import (
	"context"
	"errors"
	"time"
)

// ErrExhausted is returned when a max-attempts or deadline bound is reached
// while the predicate still asks to continue.
var ErrExhausted = errors.New("poll: attempts exhausted before terminal result")

type options struct {
	maxAttempts int
	deadline    time.Duration
	retryable   func(error) bool
	sleep       func(context.Context, time.Duration) error
	now         func() time.Time
}

// Option bounds or adjusts a poll.
type Option func(*options)

// WithMaxAttempts stops after n invocations. Zero or negative means unbounded.
func WithMaxAttempts(n int) Option {
	return func(o *options) { o.maxAttempts = n }
}

// WithDeadline bounds the total wall-clock time spent polling.
func WithDeadline(d time.Duration) Option {
	return func(o *options) { o.deadline = d }
}

// WithRetryable marks operation errors that count as "keep polling" instead
// of aborting the poll.
func WithRetryable(fn func(error) bool) Option {
	return func(o *options) { o.retryable = fn }
}

func withClock(sleep func(context.Context, time.Duration) error, now func() time.Time) Option {
	return func(o *options) {
		o.sleep = sleep
		o.now = now
	}
}

// Until invokes op once and keeps re-invoking it, waiting interval between
// calls, while cont reports true for the latest result. The first result for
// which cont is false is returned without a trailing wait.
//
// A cancelled ctx interrupts the wait and prevents the next invocation; the
// last observed result is returned alongside ctx.Err().
func Until[T any](ctx context.Context, op func(context.Context) (T, error), cont func(T) bool, interval time.Duration, opts ...Option) (T, error) {
	o := options{sleep: sleepCtx, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	start := o.now()
	var last T
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return last, err
		}

		result, err := op(ctx)
		keepGoing := false
		switch {
		case err == nil:
			last = result
			keepGoing = cont(result)
		case ctx.Err() != nil:
			return last, ctx.Err()
		case o.retryable != nil && o.retryable(err):
			keepGoing = true
		default:
			return last, err
		}
		if !keepGoing {
			return last, nil
		}

		if o.maxAttempts > 0 && attempt >= o.maxAttempts {
			return last, ErrExhausted
		}
		if o.deadline > 0 && o.now().Sub(start)+interval > o.deadline {
			return last, ErrExhausted
		}
		if err := o.sleep(ctx, interval); err != nil {
			return last, err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
