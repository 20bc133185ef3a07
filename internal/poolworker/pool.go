// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package poolworker

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hedgeledger/chainindexer/internal/chainclient"
	"github.com/hedgeledger/chainindexer/internal/clock"
	"github.com/hedgeledger/chainindexer/internal/decode"
	"github.com/hedgeledger/chainindexer/internal/logging"
	"github.com/hedgeledger/chainindexer/internal/store"
)

// minStealableBlocks is the smallest remaining range a donor will give
// up half of; below this a steal isn't worth the coordination cost.
const minStealableBlocks = 8

// Persister is the narrow slice of *store.Store a Pool needs: workers
// insert rows incrementally as they go, and the pool commits the
// shared checkpoint exactly once, after every worker has exited
// (§4.4's "no special recovery state" crash semantics).
type Persister interface {
	ReadCheckpoint(ctx context.Context, chainID uint64, contract common.Address, shardKey string) (uint64, bool, error)
	InsertEvents(ctx context.Context, events []store.RawEvent) ([]store.RawEvent, error)
	AdvanceCheckpoint(ctx context.Context, chainID uint64, contract common.Address, shardKey string, newBlock uint64) error
}

// Pool is one work-stealing shard (C4, §4.4): workersPerPool workers
// race to drain a partitioned block range, stealing from the pool-mate
// with the largest remaining interval when they run dry, never
// crossing into another pool's range.
type Pool struct {
	poolID      uint32
	chainID     uint64
	contract    common.Address
	client      chainclient.Client
	store       Persister
	registry    *decode.Registry
	batchBlocks uint64
	broadcast   chan []store.RawEvent
	log         logging.Logger

	stealMu sync.Mutex // serializes thieves so two can't steal from the same donor concurrently
	workers []*worker

	confirmationDepth uint64
	idleWait          time.Duration
	clock             clock.Clock
}

// shardKey is the checkpoint key a Pool's workers share — distinct
// from any whole-subscription Indexer cursor on the same contract.
func shardKey(poolID uint32) string {
	return "pool-" + uint32ToDecimal(poolID)
}

func uint32ToDecimal(n uint32) string {
	if n == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// New constructs a Pool with workersPerPool workers, sized for the
// given contract subscription within chainID.
func New(poolID uint32, chainID uint64, contract common.Address, client chainclient.Client, st Persister, registry *decode.Registry, workersPerPool int, batchBlocks uint64, confirmationDepth uint64, log logging.Logger) *Pool {
	if workersPerPool < 1 {
		workersPerPool = 1
	}
	if batchBlocks == 0 {
		batchBlocks = 500
	}
	p := &Pool{
		poolID:            poolID,
		chainID:           chainID,
		contract:          contract,
		client:            client,
		store:             st,
		registry:          registry,
		batchBlocks:       batchBlocks,
		confirmationDepth: confirmationDepth,
		idleWait:          10 * time.Second,
		clock:             clock.Real{},
		broadcast:         make(chan []store.RawEvent, broadcastBufferSize),
		log:               log.With("chain", chainID, "contract", contract.Hex(), "pool", poolID),
	}
	p.workers = make([]*worker, workersPerPool)
	for i := range p.workers {
		p.workers[i] = &worker{id: i, pool: p}
	}
	return p
}

// Broadcast returns the channel newly-inserted rows are published on,
// same shape and backpressure semantics as Indexer.Broadcast.
func (p *Pool) Broadcast() <-chan []store.RawEvent { return p.broadcast }

// SetClock overrides the clock used for idle-wait sleeps; tests use
// clock.Mock to avoid racing real timers.
func (p *Pool) SetClock(c clock.Clock) { p.clock = c }

// Run drives RunOnce until ctx is cancelled, idling between iterations
// that found no new confirmed blocks.
func (p *Pool) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		head, err := p.client.Head(ctx)
		if err != nil {
			p.log.Warn("head lookup failed", "err", err)
			if sleepErr := p.clock.Sleep(ctx, p.idleWait); sleepErr != nil {
				return nil
			}
			continue
		}
		confirmedHead := uint64(0)
		if head > p.confirmationDepth {
			confirmedHead = head - p.confirmationDepth
		}
		advanced, err := p.RunOnce(ctx, confirmedHead)
		if err != nil {
			p.log.Warn("pool iteration failed", "err", err)
		}
		if err != nil || !advanced {
			if sleepErr := p.clock.Sleep(ctx, p.idleWait); sleepErr != nil {
				return nil
			}
		}
	}
}

// CatchUp runs RunOnce repeatedly against the chain's current
// confirmed head until no further progress is made or ctx is
// cancelled, for the `backfill` CLI command.
func (p *Pool) CatchUp(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		head, err := p.client.Head(ctx)
		if err != nil {
			return err
		}
		confirmedHead := uint64(0)
		if head > p.confirmationDepth {
			confirmedHead = head - p.confirmationDepth
		}
		advanced, err := p.RunOnce(ctx, confirmedHead)
		if err != nil {
			return err
		}
		if !advanced {
			return nil
		}
	}
}

// broadcastBufferSize matches the Indexer's channel depth; a pool is
// just another producer on the same kind of downstream fan-in.
const broadcastBufferSize = 4096

// RunOnce partitions the pool's unprocessed interval across its
// workers, drives them to completion (including any work-stealing),
// and advances the shared checkpoint once at the end. It reports
// whether any blocks were processed.
func (p *Pool) RunOnce(ctx context.Context, confirmedHead uint64) (bool, error) {
	lastDone, found, err := p.store.ReadCheckpoint(ctx, p.chainID, p.contract, shardKey(p.poolID))
	if err != nil {
		return false, err
	}
	if !found {
		lastDone = 0
	}
	if confirmedHead <= lastDone {
		return false, nil
	}

	ranges := Partition(lastDone+1, confirmedHead, len(p.workers))
	for i, w := range p.workers {
		w.mu.Lock()
		w.remain = ranges[i]
		w.mu.Unlock()
	}

	var wg sync.WaitGroup
	errs := make([]error, len(p.workers))
	for i, w := range p.workers {
		wg.Add(1)
		go func(i int, w *worker) {
			defer wg.Done()
			errs[i] = w.run(ctx)
		}(i, w)
	}
	wg.Wait()

	for _, e := range errs {
		if e != nil {
			return false, e
		}
	}

	if err := p.store.AdvanceCheckpoint(ctx, p.chainID, p.contract, shardKey(p.poolID), confirmedHead); err != nil {
		return false, err
	}
	return true, nil
}

// attemptSteal is called by a worker that has run dry. It finds the
// pool-mate with the largest remaining range (ties broken by the
// highest worker id, §4.4), takes half of it under stealMu so two
// thieves never target the same donor concurrently, and hands it to
// the calling worker. Returns false if nothing in the pool is worth
// stealing.
func (p *Pool) attemptSteal(thiefID int) (bool, error) {
	p.stealMu.Lock()
	defer p.stealMu.Unlock()

	var donor *worker
	var donorLen uint64
	for _, w := range p.workers {
		if w.id == thiefID {
			continue
		}
		l := w.remaining().Len()
		if l > donorLen || (l == donorLen && l > 0 && w.id > donorID(donor)) {
			donor = w
			donorLen = l
		}
	}
	if donor == nil || donorLen < minStealableBlocks {
		return false, nil
	}

	stolen, ok := donor.stealHalf()
	if !ok {
		return false, nil
	}
	p.workers[thiefID].give(stolen)
	return true, nil
}

func donorID(w *worker) int {
	if w == nil {
		return -1
	}
	return w.id
}
