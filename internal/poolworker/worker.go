// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package poolworker

import (
	"context"
	"math/big"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/hedgeledger/chainindexer/internal/store"
)

// worker drives one sub-range of a Pool's partitioned workload,
// processing it in batchBlocks-sized chunks and yielding the back half
// of its remaining range to a thief on steal (§4.4).
type worker struct {
	id     int
	pool   *Pool
	mu     sync.Mutex
	remain Range
}

// remaining returns the worker's current unprocessed range.
func (w *worker) remaining() Range {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.remain
}

// takeFront claims up to batchBlocks blocks off the front of the
// worker's remaining range, shrinking it, and reports whether there
// was anything to take.
func (w *worker) takeFront(batchBlocks uint64) (Range, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.remain.empty() {
		return Range{}, false
	}
	size := w.remain.Len()
	if size > batchBlocks {
		size = batchBlocks
	}
	chunk := Range{From: w.remain.From, To: w.remain.From + size - 1}
	w.remain.From = chunk.To + 1
	return chunk, true
}

// stealHalf removes the back half of the worker's remaining range and
// returns it to the caller; used by a thief under the pool's stealMu.
func (w *worker) stealHalf() (Range, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	size := w.remain.Len()
	if size < minStealableBlocks {
		return Range{}, false
	}
	half := size / 2
	stolen := Range{From: w.remain.To - half + 1, To: w.remain.To}
	w.remain.To = stolen.From - 1
	return stolen, true
}

// give merges an externally-sourced range onto the back of the
// worker's own remaining range, used when it steals from a pool-mate.
func (w *worker) give(r Range) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.remain.empty() {
		w.remain = r
		return
	}
	w.remain.To = r.To
}

// run processes the worker's assigned range to exhaustion, stealing
// from pool-mates when it runs dry, until there is nothing left to
// steal in the whole pool.
func (w *worker) run(ctx context.Context) error {
	for {
		chunk, ok := w.takeFront(w.pool.batchBlocks)
		if !ok {
			stolen, stealErr := w.pool.attemptSteal(w.id)
			if stealErr != nil {
				return stealErr
			}
			if !stolen {
				return nil // no work left anywhere in the pool
			}
			continue
		}
		if err := w.process(ctx, chunk); err != nil {
			return err
		}
	}
}

// process fetches, decodes, and durably inserts every event in
// [chunk.From, chunk.To], without touching the pool's shared
// checkpoint — only the pool commits that, once, at the very end
// (§4.4's "no special recovery state" crash semantics).
func (w *worker) process(ctx context.Context, chunk Range) error {
	logs, err := w.pool.client.GetLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(chunk.From),
		ToBlock:   new(big.Int).SetUint64(chunk.To),
		Addresses: []common.Address{w.pool.contract},
	})
	if err != nil {
		return err
	}
	if len(logs) == 0 {
		return nil
	}

	blockTimestamps := make(map[uint64]time.Time, len(logs))
	events := make([]store.RawEvent, 0, len(logs))
	for _, l := range logs {
		if len(l.Topics) == 0 || !w.pool.registry.MightHandle(l.Topics[0]) {
			continue
		}
		d, ok := w.pool.registry.Lookup(l.Address, l.Topics[0])
		if !ok {
			continue
		}
		rec, decErr := d(l)
		if decErr != nil {
			w.pool.log.Warn("dropping log with decode error", "worker", w.id, "tx", l.TxHash.Hex(), "err", decErr)
			continue
		}
		ts, cached := blockTimestamps[l.BlockNumber]
		if !cached {
			block, blkErr := w.pool.client.GetBlock(ctx, l.BlockNumber, false)
			if blkErr != nil {
				return blkErr
			}
			ts = blockTimestampOf(block)
			blockTimestamps[l.BlockNumber] = ts
		}
		events = append(events, store.RawEvent{
			ChainID:         w.pool.chainID,
			BlockNumber:     l.BlockNumber,
			BlockTimestamp:  ts,
			TxHash:          l.TxHash,
			LogIndex:        l.Index,
			ContractAddress: l.Address,
			Topic0:          l.Topics[0],
			DecoderKey:      rec.DecoderKey,
			Payload:         rec.Fields,
		})
	}
	if len(events) == 0 {
		return nil
	}

	inserted, err := w.pool.store.InsertEvents(ctx, events)
	if err != nil {
		return err
	}
	if len(inserted) > 0 {
		select {
		case w.pool.broadcast <- inserted:
		default:
			w.pool.log.Warn("broadcast channel full, dropping batch", "worker", w.id, "count", len(inserted))
		}
	}
	return nil
}

func blockTimestampOf(b *types.Block) time.Time {
	return time.Unix(int64(b.Time()), 0).UTC()
}
