// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package poolworker

import (
	"context"
	"math/big"
	"reflect"
	"sort"
	"testing"

	"github.com/davecgh/go-spew/spew"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/hedgeledger/chainindexer/internal/chainclient"
	"github.com/hedgeledger/chainindexer/internal/decode"
)

// fakeLogSource hands back exactly one synthetic log per block in the
// queried [FromBlock, ToBlock] range, regardless of how that range was
// carved up by partitioning or stealing — the fixture a work-stealing
// commutativity test needs, since the real chain has no concept of
// which worker asked.
func fakeLogSource(contract common.Address) func(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return func(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
		from, to := q.FromBlock.Uint64(), q.ToBlock.Uint64()
		logs := make([]types.Log, 0, to-from+1)
		for b := from; b <= to; b++ {
			logs = append(logs, types.Log{
				Address:     contract,
				Topics:      []common.Hash{testTopic0},
				BlockNumber: b,
				TxHash:      common.BigToHash(new(big.Int).SetUint64(b)),
				Index:       0,
			})
		}
		return logs, nil
	}
}

var testTopic0 = common.HexToHash("0xfeed")

// TestWorkStealingCommutativity is the cross-cutting property that the
// final committed event set and checkpoint of a pool's RunOnce do not
// depend on how many workers raced to drain it, or how stealing
// happened to interleave — only on the block range itself (§4.4).
func TestWorkStealingCommutativity(t *testing.T) {
	contract := common.HexToAddress("0xc0ffee")
	const chainID = 9
	const confirmedHead = 97

	run := func(workerCount int) []string {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		client := chainclient.NewMockClient(ctrl)
		client.EXPECT().GetLogs(gomock.Any(), gomock.Any()).DoAndReturn(fakeLogSource(contract)).AnyTimes()
		client.EXPECT().GetBlock(gomock.Any(), gomock.Any(), false).DoAndReturn(
			func(_ context.Context, n uint64, _ bool) (*types.Block, error) {
				return types.NewBlockWithHeader(&types.Header{Number: new(big.Int).SetUint64(n), Time: n}), nil
			}).AnyTimes()

		registry := decode.NewRegistry(4)
		registry.Register(contract, testTopic0, func(l types.Log) (decode.Record, error) {
			return decode.Record{DecoderKey: "test", Fields: []byte("{}")}, nil
		})
		persister := newFakePoolPersister()

		// Small batches relative to the range force multiple steals
		// per worker, so worker counts actually diverge in how they
		// partition and interleave, not just in a single pass each.
		pool := New(1, chainID, contract, client, persister, registry, workerCount, 5, 0, testPoolLogger())
		advanced, err := pool.RunOnce(context.Background(), confirmedHead)
		require.NoError(t, err)
		require.True(t, advanced)

		got, ok, err := persister.ReadCheckpoint(context.Background(), chainID, contract, shardKey(1))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, uint64(confirmedHead), got)

		ids := make([]string, 0, len(persister.inserted))
		for _, ev := range persister.inserted {
			ids = append(ids, ev.TxHash.Hex())
		}
		sort.Strings(ids)
		return ids
	}

	oneWorker := run(1)
	manyWorkers := run(7)

	require.NotEmpty(t, oneWorker)
	if !reflect.DeepEqual(oneWorker, manyWorkers) {
		t.Fatalf("committed event set diverged by worker count:\n1 worker:  %s\n7 workers: %s",
			spew.Sdump(oneWorker), spew.Sdump(manyWorkers))
	}
}
