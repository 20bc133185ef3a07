// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package chainerr models the error taxonomy from the design notes:
// transient vs. permanent failure is a property of the error value,
// never of a try/catch coercion at each call site. Every RPC, decoder,
// and checkpoint failure is classified once, at the boundary where it
// originates, via one of the sentinel wrappers below.
package chainerr

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Use errors.Is against these, never string matching.
var (
	// ErrTransient marks a failure expected to succeed on retry: RPC
	// timeouts, rate limiting, DB deadlocks, 5xx from price APIs.
	ErrTransient = errors.New("transient error")

	// ErrPermanent marks a failure that will never succeed on retry:
	// malformed input, a request for a block that will never exist.
	ErrPermanent = errors.New("permanent error")

	// ErrNonMonotonic marks a checkpoint regression attempt. This is a
	// bug class: the offending indexer must stop, not retry.
	ErrNonMonotonic = errors.New("checkpoint regression")

	// ErrNoPrice marks the terminal miss at the end of the price
	// oracle's resolution chain (§4.7 step 6).
	ErrNoPrice = errors.New("no price available")

	// ErrRangeTooWide tags an ErrTransient whose specific cause is an
	// RPC provider refusing a getLogs call for covering too many
	// blocks/results; the indexer responds by halving batchBlocks.
	ErrRangeTooWide = errors.New("log range too wide")
)

// Transient wraps err so errors.Is(wrapped, ErrTransient) succeeds while
// preserving the original error for logging/inspection via errors.Unwrap.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &classified{kind: ErrTransient, cause: err}
}

// Permanent wraps err so errors.Is(wrapped, ErrPermanent) succeeds.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &classified{kind: ErrPermanent, cause: err}
}

// RangeTooWide wraps err as both ErrTransient and ErrRangeTooWide so
// callers can test for either.
func RangeTooWide(err error) error {
	if err == nil {
		return nil
	}
	return &classified{kind: ErrTransient, cause: err, also: ErrRangeTooWide}
}

type classified struct {
	kind  error
	also  error
	cause error
}

func (c *classified) Error() string {
	if c.cause == nil {
		return c.kind.Error()
	}
	return fmt.Sprintf("%s: %s", c.kind.Error(), c.cause.Error())
}

func (c *classified) Unwrap() []error {
	if c.also != nil {
		return []error{c.kind, c.also, c.cause}
	}
	return []error{c.kind, c.cause}
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool { return errors.Is(err, ErrTransient) }

// IsPermanent reports whether err will never succeed on retry.
func IsPermanent(err error) bool { return errors.Is(err, ErrPermanent) }

// IsRangeTooWide reports whether err is the "result set too large / too
// many blocks" flavor of transient failure that should shrink batchBlocks.
func IsRangeTooWide(err error) bool { return errors.Is(err, ErrRangeTooWide) }
