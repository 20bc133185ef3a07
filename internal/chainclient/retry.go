// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chainclient

import (
	"context"
	"time"

	"github.com/hedgeledger/chainindexer/internal/chainerr"
	"github.com/hedgeledger/chainindexer/internal/logging"
)

// RetryPolicy implements §4.1's failure policy: exponential back-off
// starting at 250ms, doubling, capped at 30s, at most 8 attempts.
// ErrPermanent (and anything not wrapping ErrTransient) propagates
// immediately without retrying.
type RetryPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
	log          logging.Logger
}

// NewRetryPolicy returns the spec-default policy.
func NewRetryPolicy(log logging.Logger) *RetryPolicy {
	return &RetryPolicy{
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		MaxAttempts:  8,
		log:          log,
	}
}

// Do runs fn, retrying on chainerr.IsTransient errors with exponential
// back-off until MaxAttempts is exhausted or ctx is cancelled.
func (p *RetryPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	delay := p.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !chainerr.IsTransient(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}
		p.log.Warn("transient RPC failure, retrying", "op", op, "attempt", attempt, "delay", delay, "error", lastErr)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return lastErr
}
