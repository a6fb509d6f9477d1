package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) clock() time.Time { return c.now }

func sequence(values ...int) (func(context.Context) (int, error), *int) {
	calls := 0
	return func(context.Context) (int, error) {
		v := values[calls]
		calls++
		return v, nil
	}, &calls
}

func TestUntilStopsOnFirstNonContinuingResult(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	op, calls := sequence(1, 2, 3, 4)

	got, err := Until(context.Background(), op, func(v int) bool { return v < 3 }, 5*time.Second, withClock(clock.sleep, clock.clock))
	require.NoError(t, err)
	assert.Equal(t, 3, got)
	assert.Equal(t, 3, *calls)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, clock.sleeps, "waits only between invocations")
}

func TestUntilReturnsImmediatelyWhenFirstResultIsTerminal(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	op, calls := sequence(9)

	got, err := Until(context.Background(), op, func(v int) bool { return false }, time.Second, withClock(clock.sleep, clock.clock))
	require.NoError(t, err)
	assert.Equal(t, 9, got)
	assert.Equal(t, 1, *calls)
	assert.Empty(t, clock.sleeps)
}

func TestUntilMaxAttempts(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	op, calls := sequence(1, 1, 1, 1, 1)

	got, err := Until(context.Background(), op, func(int) bool { return true }, time.Second, WithMaxAttempts(3), withClock(clock.sleep, clock.clock))
	require.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 1, got)
	assert.Equal(t, 3, *calls)
	assert.Len(t, clock.sleeps, 2)
}

func TestUntilDeadline(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	op, calls := sequence(1, 1, 1, 1, 1)

	_, err := Until(context.Background(), op, func(int) bool { return true }, 4*time.Second, WithDeadline(10*time.Second), withClock(clock.sleep, clock.clock))
	require.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 3, *calls, "third wait would overrun the deadline")
}

func TestUntilRetryableErrorsKeepPolling(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	transient := errors.New("temporarily unavailable")
	calls := 0
	op := func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", transient
		}
		return "done", nil
	}

	got, err := Until(context.Background(), op, func(s string) bool { return s != "done" }, time.Second,
		WithRetryable(func(err error) bool { return errors.Is(err, transient) }), withClock(clock.sleep, clock.clock))
	require.NoError(t, err)
	assert.Equal(t, "done", got)
	assert.Equal(t, 3, calls)
}

func TestUntilNonRetryableErrorAborts(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	op := func(context.Context) (int, error) {
		calls++
		return 0, boom
	}
	_, err := Until(context.Background(), op, func(int) bool { return true }, time.Millisecond)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestUntilCancellationInterruptsWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	op := func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			go func() {
				time.Sleep(20 * time.Millisecond)
				cancel()
			}()
		}
		return calls, nil
	}

	start := time.Now()
	got, err := Until(ctx, op, func(int) bool { return true }, time.Hour)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, got)
	assert.Equal(t, 1, calls, "no invocation after cancellation")
	assert.Less(t, time.Since(start), time.Minute)
}

func TestUntilDoesNotInvokeOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := Until(ctx, func(context.Context) (int, error) {
		calls++
		return 0, nil
	}, func(int) bool { return false }, time.Second)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}
