package retrier

import (
	"context"
	"errors"
	"time"
)

const (
	defaultAttempts = 3
	defaultDelay    = 100 * time.Millisecond
)

// Retrier re-runs a failing call a bounded number of times with a fixed delay.
type Retrier struct {
	attempts  int
	delay     time.Duration
	retryable func(error) bool
}

// Option defines a function to configure the Retrier.
type Option func(*Retrier)

// WithAttempts sets the total number of attempts, including the first one.
func WithAttempts(n int) Option {
	return func(r *Retrier) {
		if n > 0 {
			r.attempts = n
		}
	}
}

// WithDelay sets the pause between attempts.
func WithDelay(d time.Duration) Option {
	return func(r *Retrier) {
		r.delay = d
	}
}

// WithRetryable overrides which errors are worth another attempt.
func WithRetryable(fn func(error) bool) Option {
	return func(r *Retrier) {
		r.retryable = fn
	}
}

// New creates a new Retrier with default values and optional overrides.
func New(opts ...Option) *Retrier {
	r := &Retrier{
		attempts:  defaultAttempts,
		delay:     defaultDelay,
		retryable: func(err error) bool { return !IsPermanent(err) },
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Attempt is reported to Do's callback so callers can log it.
type Attempt struct {
	Number int
	Err    error
}

// Do executes fn until it succeeds, returns a non-retryable error, the attempts
// run out or ctx is done. The last error is returned, along with the number of
// attempts made.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	var err error

	attempt := 0
	for attempt < r.attempts {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return attempt, err
			case <-time.After(r.delay):
			}
		}

		attempt++
		err = fn(ctx)
		if err == nil {
			return attempt, nil
		}
		if ctx.Err() != nil || !r.retryable(err) {
			return attempt, err
		}
	}

	return attempt, err
}

// DoWithData executes the given function with retries and returns a value.
func DoWithData[T any](ctx context.Context, r *Retrier, fn func(ctx context.Context) (T, error)) (T, int, error) {
	var result T
	attempts, err := r.Do(ctx, func(ctx context.Context) error {
		var e error
		result, e = fn(ctx)
		return e
	})
	return result, attempts, err
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
