// Package retry turns the launcher's wait-and-try-again loops into explicit
// policies with an observable attempt count.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// SleepFunc blocks for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy describes how an operation is retried. A zero MaxAttempts retries
// forever.
type Policy struct {
	Delay       time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	MaxAttempts int

	sleep SleepFunc
}

// Fixed returns an unbounded policy waiting delay between attempts
func Fixed(delay time.Duration) Policy {
	return Policy{Delay: delay}
}

// WithMaxAttempts caps the number of attempts
func (p Policy) WithMaxAttempts(n int) Policy {
	p.MaxAttempts = n
	return p
}

// WithSleep replaces the wait between attempts
func (p Policy) WithSleep(fn SleepFunc) Policy {
	p.sleep = fn
	return p
}

// Unbounded reports whether the policy never gives up
func (p Policy) Unbounded() bool {
	return p.MaxAttempts <= 0
}

// Wait returns the delay applied after the given failed attempt (1-based)
func (p Policy) Wait(attempt int) time.Duration {
	d := p.Delay
	if p.Multiplier > 1 {
		for i := 1; i < attempt; i++ {
			d = time.Duration(float64(d) * p.Multiplier)
			if p.MaxDelay > 0 && d >= p.MaxDelay {
				return p.MaxDelay
			}
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Do runs op until it succeeds, fails permanently, exhausts the policy or ctx
// is done. It returns the number of attempts made.
func (p Policy) Do(ctx context.Context, log logrus.FieldLogger, op func(ctx context.Context) error) (int, error) {
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return attempt, nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return attempt, perm.err
		}

		if !p.Unbounded() && attempt >= p.MaxAttempts {
			return attempt, &ExhaustedError{Attempts: attempt, Err: err}
		}

		wait := p.Wait(attempt)
		log.WithError(err).WithFields(logrus.Fields{
			"attempt":  attempt,
			"retry_in": wait.String(),
		}).Warn("Attempt failed, retrying")

		if err := sleep(ctx, wait); err != nil {
			return attempt, fmt.Errorf("retry aborted after %d attempts: %w", attempt, err)
		}
	}
}

// ExhaustedError is returned when a capped policy runs out of attempts
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Permanent marks err so that Do stops retrying and returns it unwrapped
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func sleepContext(ctx context.Context, d time.Duration) error {
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
