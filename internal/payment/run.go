// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package payment

import (
	"context"
	"sync"

	"github.com/hedgeledger/chainindexer/internal/store"
)

// Run fans every source channel (an Indexer's or Pool's Broadcast, or
// the native scanner's output wrapped the same way) into ConsumeBatch,
// until ctx is cancelled or every source has closed or failed; the
// first ConsumeBatch error is returned. Each source is drained
// by its own goroutine so a slow consumer of one contract's events
// never blocks another's.
func (m *Matcher) Run(ctx context.Context, sources ...<-chan []store.RawEvent) error {
	errs := make(chan error, len(sources))
	var wg sync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		go func(src <-chan []store.RawEvent) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case batch, ok := <-src:
					if !ok {
						return
					}
					if err := m.ConsumeBatch(ctx, batch); err != nil {
						select {
						case errs <- err:
						default:
						}
						return
					}
				}
			}
		}(src)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// SweepExpired runs one pass of §4.6's periodic 60s expiry sweep,
// transitioning timed-out PENDING requests to EXPIRED. Intended to be
// called by the C9 scheduler on its own timer.
func (m *Matcher) SweepExpired(ctx context.Context) (int64, error) {
	return m.store.SweepExpired(ctx)
}
