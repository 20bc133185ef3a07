// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package indexer implements the per-subscription main loop (C3, §4.3):
// read checkpoint, compute the confirmed head, fetch a batch of logs,
// decode, commit event rows and the checkpoint advance atomically, and
// broadcast newly inserted rows to downstream consumers (principally
// C6's Payment Matcher).
package indexer

import (
	"context"
	"math/big"
	"strconv"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/hedgeledger/chainindexer/internal/chainclient"
	"github.com/hedgeledger/chainindexer/internal/chainerr"
	"github.com/hedgeledger/chainindexer/internal/clock"
	"github.com/hedgeledger/chainindexer/internal/decode"
	"github.com/hedgeledger/chainindexer/internal/logging"
	"github.com/hedgeledger/chainindexer/internal/metrics"
	"github.com/hedgeledger/chainindexer/internal/store"
)

// broadcastBufferSize bounds the per-indexer broadcast channel (§4.3
// step 8); it is intentionally lossy under backpressure — a slow
// consumer misses events rather than stalling ingestion, since every
// consumer is expected to be idempotent and able to replay from the
// durable store.
const broadcastBufferSize = 4096

// Persister is the narrow slice of *store.Store the indexer depends
// on, so tests can substitute a fake instead of a live Postgres
// connection pool.
type Persister interface {
	ReadCheckpoint(ctx context.Context, chainID uint64, contract common.Address, shardKey string) (uint64, bool, error)
	CommitEventBatch(ctx context.Context, chainID uint64, contract common.Address, shardKey string, events []store.RawEvent, newCheckpoint uint64) ([]store.RawEvent, error)
}

// Tuning controls batch sizing, confirmation depth and idle pacing for
// one Indexer; it has no request-concurrency setting.
type Tuning struct {
	BatchBlocksDefault uint64
	BatchBlocksMax     uint64
	BatchBlocksFloor   uint64
	ConfirmationDepth  uint64
	AvgBlockTime       time.Duration
}

// Indexer drives one ContractSubscription's block range forward.
type Indexer struct {
	chainID   uint64
	client    chainclient.Client
	store     Persister
	sub       store.ContractSubscription
	registry  *decode.Registry
	shardKey  string
	tuning    Tuning
	batch     uint64
	clock     clock.Clock
	log       logging.Logger
	broadcast chan []store.RawEvent
}

// New constructs an Indexer for sub, rooted at the given shardKey
// (empty for a whole-subscription cursor, a pool id for C4's
// per-pool-sharded checkpoints).
func New(chainID uint64, client chainclient.Client, st Persister, sub store.ContractSubscription, registry *decode.Registry, shardKey string, tuning Tuning, log logging.Logger) *Indexer {
	if tuning.BatchBlocksDefault == 0 {
		tuning.BatchBlocksDefault = 1000
	}
	if tuning.BatchBlocksFloor == 0 {
		tuning.BatchBlocksFloor = 16
	}
	if tuning.BatchBlocksMax == 0 {
		tuning.BatchBlocksMax = 5000
	}
	if tuning.AvgBlockTime == 0 {
		tuning.AvgBlockTime = 2 * time.Second
	}
	return &Indexer{
		chainID:   chainID,
		client:    client,
		store:     st,
		sub:       sub,
		registry:  registry,
		shardKey:  shardKey,
		tuning:    tuning,
		batch:     tuning.BatchBlocksDefault,
		clock:     clock.Real{},
		log:       log.With("chain", chainID, "contract", sub.Address.Hex(), "shard", shardKey),
		broadcast: make(chan []store.RawEvent, broadcastBufferSize),
	}
}

// Broadcast returns the channel newly-inserted rows are published on
// (§4.3 step 8). Consumers must keep up or accept drops.
func (ix *Indexer) Broadcast() <-chan []store.RawEvent { return ix.broadcast }

// SetClock overrides the clock used for idle-wait sleeps; tests use
// clock.Mock to avoid racing real timers.
func (ix *Indexer) SetClock(c clock.Clock) { ix.clock = c }

// Run drives the main loop until ctx is cancelled. It always completes
// its current iteration before returning, so the store is never left
// mid-transaction on shutdown (§4.3 "Shutdown").
func (ix *Indexer) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		advanced, err := ix.runOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			ix.log.Warn("indexer iteration failed", "err", err)
			if sleepErr := ix.clock.Sleep(ctx, ix.tuning.AvgBlockTime); sleepErr != nil {
				return nil
			}
			continue
		}
		if !advanced {
			if sleepErr := ix.clock.Sleep(ctx, ix.tuning.AvgBlockTime*5); sleepErr != nil {
				return nil
			}
		}
	}
}

// CatchUp runs runOnce repeatedly until the confirmed head is
// exhausted (advanced==false) or ctx is cancelled, for the `backfill`
// CLI command: unlike Run, it returns once caught up instead of
// idling forever.
func (ix *Indexer) CatchUp(ctx context.Context) error {
	for {
		before := ix.batch
		advanced, err := ix.runOnce(ctx)
		if err != nil {
			return err
		}
		if !advanced {
			if ix.batch < before {
				continue // batch shrank after ErrRangeTooWide; retry the range
			}
			return nil
		}
	}
}

// runOnce executes one iteration of the §4.3 main loop and reports
// whether it advanced the checkpoint (false means caller should idle).
func (ix *Indexer) runOnce(ctx context.Context) (bool, error) {
	lastDone, found, err := ix.store.ReadCheckpoint(ctx, ix.chainID, ix.sub.Address, ix.shardKey)
	if err != nil {
		return false, err
	}
	if !found {
		if ix.sub.StartBlock == 0 {
			lastDone = 0
		} else {
			lastDone = ix.sub.StartBlock - 1
		}
	}

	head, err := ix.client.Head(ctx)
	if err != nil {
		return false, err
	}
	confirmedHead := uint64(0)
	if head > ix.tuning.ConfirmationDepth {
		confirmedHead = head - ix.tuning.ConfirmationDepth
	}
	if confirmedHead <= lastDone {
		return false, nil
	}

	to := lastDone + ix.batch
	if to > confirmedHead {
		to = confirmedHead
	}

	logs, err := ix.client.GetLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(lastDone + 1),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{ix.sub.Address},
		Topics:    topicFilter(ix.sub.Topics),
	})
	if err != nil {
		if chainerr.IsRangeTooWide(err) {
			ix.shrinkBatch()
			return false, nil
		}
		return false, err
	}

	blockTimestamps := make(map[uint64]time.Time, len(logs))
	events := make([]store.RawEvent, 0, len(logs))
	for _, l := range logs {
		if len(l.Topics) == 0 {
			continue
		}
		topic0 := l.Topics[0]
		rec, decErr := ix.decodeLog(l)
		if decErr != nil {
			ix.log.Warn("dropping log with decode error", "tx", l.TxHash.Hex(), "logIndex", l.Index, "err", decErr)
			metrics.DecodeErrorsTotal.WithLabelValues(strconv.FormatUint(ix.chainID, 10), ix.sub.Address.Hex()).Inc()
			continue
		}
		if rec == nil {
			continue // registry has nothing for this topic0/address
		}
		ts, ok := blockTimestamps[l.BlockNumber]
		if !ok {
			var blkErr error
			ts, blkErr = ix.blockTimestamp(ctx, l.BlockNumber)
			if blkErr != nil {
				return false, blkErr
			}
			blockTimestamps[l.BlockNumber] = ts
		}
		events = append(events, store.RawEvent{
			ChainID:         ix.chainID,
			BlockNumber:     l.BlockNumber,
			BlockTimestamp:  ts,
			TxHash:          l.TxHash,
			LogIndex:        l.Index,
			ContractAddress: l.Address,
			Topic0:          topic0,
			DecoderKey:      rec.DecoderKey,
			Payload:         rec.Fields,
		})
	}

	inserted, err := ix.store.CommitEventBatch(ctx, ix.chainID, ix.sub.Address, ix.shardKey, events, to)
	if err != nil {
		return false, err
	}

	ix.growBatch()
	if len(inserted) > 0 {
		select {
		case ix.broadcast <- inserted:
		default:
			ix.log.Warn("broadcast channel full, dropping batch", "count", len(inserted))
		}
	}
	return true, nil
}

func (ix *Indexer) decodeLog(l types.Log) (*decode.Record, error) {
	if len(l.Topics) == 0 {
		return nil, nil
	}
	topic0 := l.Topics[0]
	if !ix.registry.MightHandle(topic0) {
		return nil, nil
	}
	d, ok := ix.registry.Lookup(l.Address, topic0)
	if !ok {
		return nil, nil
	}
	rec, err := d(l)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (ix *Indexer) blockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error) {
	block, err := ix.client.GetBlock(ctx, blockNumber, false)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(block.Time()), 0).UTC(), nil
}

func (ix *Indexer) shrinkBatch() {
	ix.batch /= 2
	if ix.batch < ix.tuning.BatchBlocksFloor {
		ix.batch = ix.tuning.BatchBlocksFloor
	}
}

func (ix *Indexer) growBatch() {
	grown := ix.batch * 5 / 4
	if grown > ix.tuning.BatchBlocksMax {
		grown = ix.tuning.BatchBlocksMax
	}
	if grown > ix.batch {
		ix.batch = grown
	}
}

// topicFilter builds the getLogs topic-position-0 filter from a
// subscription's configured topic0 set; an empty set means "any
// topic0 from this contract", left to the registry's own dispatch.
func topicFilter(topics []common.Hash) [][]common.Hash {
	if len(topics) == 0 {
		return nil
	}
	return [][]common.Hash{topics}
}
