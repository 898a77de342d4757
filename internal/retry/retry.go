package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy is a bounded attempt count with exponential backoff. Every external
// call site in the entry and exit paths goes through one of these; nothing
// retries unbounded.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

// DataSource is the budget for price/security/overview fetches. Fresh tokens
// take a while to get indexed, so the schedule starts slow and stays patient.
func DataSource() Policy {
	return Policy{MaxAttempts: 8, InitialDelay: 5 * time.Second, Multiplier: 1.5, MaxDelay: time.Minute}
}

// Execution is the budget for swap submissions on the entry and tier-exit
// paths. A failed tier sell is re-attempted from fresh state next cycle, so
// the in-cycle budget stays small.
func Execution() Policy {
	return Policy{MaxAttempts: 3, InitialDelay: 2 * time.Second, Multiplier: 2, MaxDelay: 30 * time.Second}
}

// StopLoss is the looser budget for stop-loss liquidations. Abandoning a
// stop-loss is worse than retrying it.
func StopLoss() Policy {
	return Policy{MaxAttempts: 10, InitialDelay: time.Second, Multiplier: 1.5, MaxDelay: 15 * time.Second}
}

// Permanent wraps an error that must not be retried.
type Permanent struct {
	Err error
}

func (p *Permanent) Error() string { return p.Err.Error() }
func (p *Permanent) Unwrap() error { return p.Err }

// Stop marks err as non-retryable; Do returns it immediately.
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return &Permanent{Err: err}
}

// Do runs fn until it succeeds, the policy is exhausted, fn returns a
// Permanent error, or ctx is cancelled. It returns the last error on
// exhaustion so callers can distinguish "rejected" from "could not determine".
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	delay := p.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		var perm *Permanent
		if errors.As(lastErr, &perm) {
			return perm.Err
		}
		if attempt == p.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * p.Multiplier)
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	return fmt.Errorf("after %d attempts: %w", p.MaxAttempts, lastErr)
}
