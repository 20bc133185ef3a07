// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package poolworker

import (
	"context"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/hedgeledger/chainindexer/internal/chainclient"
	"github.com/hedgeledger/chainindexer/internal/decode"
	"github.com/hedgeledger/chainindexer/internal/logging"
	"github.com/hedgeledger/chainindexer/internal/store"
)

// fakePoolPersister is an in-memory Persister double, mirroring the
// indexer package's fakePersister (see internal/indexer's DESIGN.md
// entry for why the pack carries no DB-mocking library).
type fakePoolPersister struct {
	mu          sync.Mutex
	checkpoints map[string]uint64
	inserted    []store.RawEvent
}

func newFakePoolPersister() *fakePoolPersister {
	return &fakePoolPersister{checkpoints: make(map[string]uint64)}
}

func (f *fakePoolPersister) ReadCheckpoint(_ context.Context, chainID uint64, contract common.Address, shardKey string) (uint64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.checkpoints[shardKey]
	return v, ok, nil
}

func (f *fakePoolPersister) InsertEvents(_ context.Context, events []store.RawEvent) ([]store.RawEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, events...)
	return events, nil
}

func (f *fakePoolPersister) AdvanceCheckpoint(_ context.Context, chainID uint64, contract common.Address, shardKey string, newBlock uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkpoints[shardKey] = newBlock
	return nil
}

func testPoolLogger() logging.Logger { return logging.NoOp() }

func TestRunOnceDrainsFullRangeAndAdvancesCheckpointOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	contract := common.HexToAddress("0xbeef")
	client := chainclient.NewMockClient(ctrl)
	client.EXPECT().GetLogs(gomock.Any(), gomock.Any()).Return([]types.Log{}, nil).AnyTimes()

	registry := decode.NewRegistry(4)
	persister := newFakePoolPersister()

	pool := New(1, 7, contract, client, persister, registry, 2, 4, 0, testPoolLogger())
	advanced, err := pool.RunOnce(context.Background(), 20)
	require.NoError(t, err)
	require.True(t, advanced)

	got, ok, err := persister.ReadCheckpoint(context.Background(), 7, contract, shardKey(1))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(20), got)
}

func TestRunOnceIsNoopWhenNothingConfirmed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	contract := common.HexToAddress("0xbeef")
	client := chainclient.NewMockClient(ctrl)
	registry := decode.NewRegistry(4)
	persister := newFakePoolPersister()
	persister.checkpoints[shardKey(1)] = 20

	pool := New(1, 7, contract, client, persister, registry, 2, 4, 0, testPoolLogger())
	advanced, err := pool.RunOnce(context.Background(), 20)
	require.NoError(t, err)
	require.False(t, advanced)
}

func TestAttemptStealGivesHalfOfLargestDonor(t *testing.T) {
	pool := &Pool{workers: make([]*worker, 3)}
	for i := range pool.workers {
		pool.workers[i] = &worker{id: i, pool: pool}
	}
	pool.workers[0].remain = Range{From: 1, To: 0}     // exhausted, this is the thief
	pool.workers[1].remain = Range{From: 100, To: 107} // 8 blocks left, the largest donor
	pool.workers[2].remain = Range{From: 200, To: 203} // 4 blocks left, below steal threshold

	stole, err := pool.attemptSteal(0)
	require.NoError(t, err)
	require.True(t, stole)

	require.Equal(t, Range{From: 100, To: 103}, pool.workers[1].remaining())
	require.Equal(t, Range{From: 104, To: 107}, pool.workers[0].remaining())
}

func TestAttemptStealTieBreakPicksHighestWorkerID(t *testing.T) {
	pool := &Pool{workers: make([]*worker, 3)}
	for i := range pool.workers {
		pool.workers[i] = &worker{id: i, pool: pool}
	}
	pool.workers[0].remain = Range{From: 1, To: 0} // empty, the thief
	pool.workers[1].remain = Range{From: 100, To: 107}
	pool.workers[2].remain = Range{From: 200, To: 207} // same length as worker 1, higher id wins

	stole, err := pool.attemptSteal(0)
	require.NoError(t, err)
	require.True(t, stole)

	// worker 1 untouched, worker 2 (the tie-break winner) gave up its back half
	require.Equal(t, Range{From: 100, To: 107}, pool.workers[1].remaining())
	require.Equal(t, Range{From: 200, To: 203}, pool.workers[2].remaining())
	require.Equal(t, Range{From: 204, To: 207}, pool.workers[0].remaining())
}

func TestAttemptStealReturnsFalseWhenEverythingBelowThreshold(t *testing.T) {
	pool := &Pool{workers: make([]*worker, 2)}
	for i := range pool.workers {
		pool.workers[i] = &worker{id: i, pool: pool}
	}
	pool.workers[0].remain = Range{From: 1, To: 0} // empty
	pool.workers[1].remain = Range{From: 100, To: 102} // 3 blocks, below minStealableBlocks

	stole, err := pool.attemptSteal(0)
	require.NoError(t, err)
	require.False(t, stole)
}
