// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package valuation

import (
	"context"
	"fmt"
	"testing"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/hedgeledger/chainindexer/internal/chainclient"
	"github.com/hedgeledger/chainindexer/internal/chainerr"
	"github.com/hedgeledger/chainindexer/internal/logging"
	"github.com/hedgeledger/chainindexer/internal/store"
)

var (
	vChain   uint64 = 53935
	vLpToken        = common.HexToAddress("0x8888888888888888888888888888888888888888")
	vToken0         = common.HexToAddress("0x9999999999999999999999999999999999999999")
	vToken1         = common.HexToAddress("0xAaAaAAAAaAAAAaaAAaaaAAAAAAaAAAAaaaAAaaAA")
	vMasterV1       = common.HexToAddress("0xBbBbBBBBBBBBBBBbBBbbbBbBbbBBbBbBBbbbBBbB")
	vMasterV2       = common.HexToAddress("0xCcccCCCCcCCCcCcCcCccCcCccCcCCCcCcccccCCc")
)

type fakeValuationStore struct {
	descriptors  []store.PoolDescriptor
	lpState      *store.LpPoolState
	stakes       []store.Stake
	insertedLp   []store.LpPoolState
	insertedSnap []store.WalletSnapshot
}

func (f *fakeValuationStore) ScanStakesForPool(_ context.Context, chainID uint64, poolID uint32) ([]store.Stake, error) {
	var out []store.Stake
	for _, s := range f.stakes {
		if s.ChainID == chainID && s.PoolID == poolID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeValuationStore) PoolDescriptorsByPoolID(_ context.Context, chainID uint64, poolID uint32) ([]store.PoolDescriptor, error) {
	var out []store.PoolDescriptor
	for _, d := range f.descriptors {
		if d.ChainID == chainID && d.PoolID == poolID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeValuationStore) PoolDescriptors(_ context.Context, chainID uint64) ([]store.PoolDescriptor, error) {
	var out []store.PoolDescriptor
	for _, d := range f.descriptors {
		if d.ChainID == chainID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeValuationStore) LatestLpPoolState(_ context.Context, chainID uint64, poolID uint32) (*store.LpPoolState, bool, error) {
	if f.lpState == nil {
		return nil, false, nil
	}
	return f.lpState, true, nil
}

func (f *fakeValuationStore) InsertLpPoolState(_ context.Context, st store.LpPoolState) error {
	f.insertedLp = append(f.insertedLp, st)
	return nil
}

func (f *fakeValuationStore) InsertWalletSnapshot(_ context.Context, ws store.WalletSnapshot) error {
	f.insertedSnap = append(f.insertedSnap, ws)
	return nil
}

type fakePriceSource struct {
	prices map[common.Address]*uint256.Int
}

func (f *fakePriceSource) PriceUSD(_ context.Context, _ uint64, token common.Address, _ *time.Time) (*uint256.Int, store.PriceSourceTag, error) {
	p, ok := f.prices[token]
	if !ok {
		return nil, "", chainerr.ErrNoPrice
	}
	return p, store.PriceSourceCoingecko, nil
}

// word32 right-aligns v's big-endian bytes in a fresh 32-byte word.
func word32(v *uint256.Int) []byte {
	b := v.Bytes()
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

var (
	selGetReserves = selector("getReserves()")
	selTotalSupply = selector("totalSupply()")
	selBalanceOf   = selector("balanceOf(address)")
)

func selector(sig string) [4]byte {
	var s [4]byte
	copy(s[:], crypto.Keccak256([]byte(sig))[:4])
	return s
}

// dispatchCall routes a mocked Call based on the 4-byte method
// selector, mirroring how the real LP contract would answer each of
// getReserves/totalSupply/balanceOf differently.
func dispatchCall(msg interface{}, reservesOut, totalSupplyOut, balanceOut []byte) ([]byte, error) {
	cm, ok := msg.(ethereum.CallMsg)
	if !ok {
		return nil, fmt.Errorf("unexpected call message type %T", msg)
	}
	if len(cm.Data) < 4 {
		return nil, fmt.Errorf("short call data")
	}
	var sel [4]byte
	copy(sel[:], cm.Data[:4])
	switch sel {
	case selGetReserves:
		return reservesOut, nil
	case selTotalSupply:
		return totalSupplyOut, nil
	case selBalanceOf:
		return balanceOut, nil
	}
	return nil, fmt.Errorf("unexpected selector %x", sel)
}

func TestTVLHappyPathBothTokensPriced(t *testing.T) {
	totalLpForStakes := new(uint256.Int).Mul(uint256.NewInt(100), weiScale)
	st := &fakeValuationStore{
		descriptors: []store.PoolDescriptor{
			{ChainID: vChain, PoolID: 3, LpToken: vLpToken, Token0: vToken0, Token1: vToken1, MasterContract: vMasterV1, Version: store.PoolVersionV1},
		},
		stakes: []store.Stake{
			{ChainID: vChain, PoolID: 3, WalletAddress: common.HexToAddress("0x1"), LpAmount: totalLpForStakes},
		},
	}
	ps := &fakePriceSource{prices: map[common.Address]*uint256.Int{
		vToken0: uint256.NewInt(2_000_000), // $2.00
		vToken1: uint256.NewInt(1_000_000), // $1.00
	}}

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	client := chainclient.NewMockClient(ctrl)

	reserve0 := new(uint256.Int).Mul(uint256.NewInt(1000), weiScale)
	reserve1 := new(uint256.Int).Mul(uint256.NewInt(2000), weiScale)
	totalLp := new(uint256.Int).Mul(uint256.NewInt(100), weiScale)

	reservesOut := append(append([]byte{}, word32(reserve0)...), word32(reserve1)...)
	totalSupplyOut := word32(totalLp)
	balanceOut := word32(totalLp) // whole supply deposited in the one V1 master contract

	client.EXPECT().Call(gomock.Any(), gomock.Any(), gomock.Nil()).DoAndReturn(
		func(_ context.Context, msg interface{}, _ interface{}) ([]byte, error) {
			return dispatchCall(msg, reservesOut, totalSupplyOut, balanceOut)
		},
	).AnyTimes()

	e := New(st, ps, map[uint64]chainclient.Client{vChain: client}, logging.NoOp())

	result, err := e.TVL(context.Background(), vChain, 3)
	require.NoError(t, err)
	require.True(t, result.Priced)
	// poolValue = 1000*2 + 2000*1 = 4000 USD
	require.True(t, result.TvlUSD.Eq(uint256.NewInt(4_000_000_000)))
	require.InDelta(t, 1.0, result.V1Share, 0.0001)
	require.Len(t, st.insertedLp, 1)
}

func TestTVLReturnsUnpricedWhenToken1HasNoPrice(t *testing.T) {
	st := &fakeValuationStore{
		descriptors: []store.PoolDescriptor{
			{ChainID: vChain, PoolID: 5, LpToken: vLpToken, Token0: vToken0, Token1: vToken1, MasterContract: vMasterV1, Version: store.PoolVersionV1},
		},
	}
	ps := &fakePriceSource{prices: map[common.Address]*uint256.Int{
		vToken0: uint256.NewInt(2_000_000),
	}}

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	client := chainclient.NewMockClient(ctrl)
	reserve0 := new(uint256.Int).Mul(uint256.NewInt(1000), weiScale)
	reserve1 := new(uint256.Int).Mul(uint256.NewInt(2000), weiScale)
	totalLp := new(uint256.Int).Mul(uint256.NewInt(100), weiScale)
	reservesOut := append(append([]byte{}, word32(reserve0)...), word32(reserve1)...)
	totalSupplyOut := word32(totalLp)

	client.EXPECT().Call(gomock.Any(), gomock.Any(), gomock.Nil()).DoAndReturn(
		func(_ context.Context, msg interface{}, _ interface{}) ([]byte, error) {
			return dispatchCall(msg, reservesOut, totalSupplyOut, nil)
		},
	).AnyTimes()

	e := New(st, ps, map[uint64]chainclient.Client{vChain: client}, logging.NoOp())

	result, err := e.TVL(context.Background(), vChain, 5)
	require.NoError(t, err)
	require.False(t, result.Priced)
	require.Equal(t, "missing price token1", result.Reason)
	require.True(t, result.TvlUSD.IsZero())
}

func TestTVLUnknownPoolReturnsError(t *testing.T) {
	st := &fakeValuationStore{}
	ps := &fakePriceSource{prices: map[common.Address]*uint256.Int{}}
	e := New(st, ps, nil, logging.NoOp())

	_, err := e.TVL(context.Background(), vChain, 999)
	require.Error(t, err)
}

func TestTVLReusesCachedReservesWithinTTL(t *testing.T) {
	fullTotalLp := new(uint256.Int).Mul(uint256.NewInt(100), weiScale)
	st := &fakeValuationStore{
		descriptors: []store.PoolDescriptor{
			{ChainID: vChain, PoolID: 7, LpToken: vLpToken, Token0: vToken0, Token1: vToken1, MasterContract: vMasterV1, Version: store.PoolVersionV1},
		},
		lpState: &store.LpPoolState{
			ChainID: vChain, PoolID: 7, AsOf: time.Now().Add(-10 * time.Second),
			TotalLp:  fullTotalLp,
			Reserve0: new(uint256.Int).Mul(uint256.NewInt(1000), weiScale),
			Reserve1: new(uint256.Int).Mul(uint256.NewInt(2000), weiScale),
		},
		stakes: []store.Stake{
			{ChainID: vChain, PoolID: 7, WalletAddress: common.HexToAddress("0x1"), LpAmount: fullTotalLp},
		},
	}
	ps := &fakePriceSource{prices: map[common.Address]*uint256.Int{
		vToken0: uint256.NewInt(2_000_000),
		vToken1: uint256.NewInt(1_000_000),
	}}

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	client := chainclient.NewMockClient(ctrl)
	totalLp := new(uint256.Int).Mul(uint256.NewInt(100), weiScale)
	balanceOut := word32(totalLp)
	// Only balanceOf should be called (for the version split); getReserves/totalSupply must not be.
	client.EXPECT().Call(gomock.Any(), gomock.Any(), gomock.Nil()).DoAndReturn(
		func(_ context.Context, msg interface{}, _ interface{}) ([]byte, error) {
			return dispatchCall(msg, nil, nil, balanceOut)
		},
	).AnyTimes()

	e := New(st, ps, map[uint64]chainclient.Client{vChain: client}, logging.NoOp())

	result, err := e.TVL(context.Background(), vChain, 7)
	require.NoError(t, err)
	require.True(t, result.Priced)
	require.True(t, result.TvlUSD.Eq(uint256.NewInt(4_000_000_000)))
}

func TestTVLScalesByStakedFractionNotFullReserveValue(t *testing.T) {
	totalLp := new(uint256.Int).Mul(uint256.NewInt(100), weiScale)
	// Only a quarter of the LP supply is staked; tvlUSD must reflect
	// that quarter, not the pool's full $4000 reserve value.
	staked := new(uint256.Int).Mul(uint256.NewInt(25), weiScale)
	st := &fakeValuationStore{
		descriptors: []store.PoolDescriptor{
			{ChainID: vChain, PoolID: 9, LpToken: vLpToken, Token0: vToken0, Token1: vToken1, MasterContract: vMasterV1, Version: store.PoolVersionV1},
		},
		stakes: []store.Stake{
			{ChainID: vChain, PoolID: 9, WalletAddress: common.HexToAddress("0x1"), LpAmount: staked},
		},
	}
	ps := &fakePriceSource{prices: map[common.Address]*uint256.Int{
		vToken0: uint256.NewInt(2_000_000),
		vToken1: uint256.NewInt(1_000_000),
	}}

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	client := chainclient.NewMockClient(ctrl)

	reserve0 := new(uint256.Int).Mul(uint256.NewInt(1000), weiScale)
	reserve1 := new(uint256.Int).Mul(uint256.NewInt(2000), weiScale)
	reservesOut := append(append([]byte{}, word32(reserve0)...), word32(reserve1)...)
	totalSupplyOut := word32(totalLp)
	balanceOut := word32(totalLp)

	client.EXPECT().Call(gomock.Any(), gomock.Any(), gomock.Nil()).DoAndReturn(
		func(_ context.Context, msg interface{}, _ interface{}) ([]byte, error) {
			return dispatchCall(msg, reservesOut, totalSupplyOut, balanceOut)
		},
	).AnyTimes()

	e := New(st, ps, map[uint64]chainclient.Client{vChain: client}, logging.NoOp())

	result, err := e.TVL(context.Background(), vChain, 9)
	require.NoError(t, err)
	require.True(t, result.Priced)
	// full poolValue would be 4000 USD; only a quarter is staked.
	require.True(t, result.TvlUSD.Eq(uint256.NewInt(1_000_000_000)))
}

func TestTVLWithNoStakesIsZero(t *testing.T) {
	st := &fakeValuationStore{
		descriptors: []store.PoolDescriptor{
			{ChainID: vChain, PoolID: 11, LpToken: vLpToken, Token0: vToken0, Token1: vToken1, MasterContract: vMasterV1, Version: store.PoolVersionV1},
		},
	}
	ps := &fakePriceSource{prices: map[common.Address]*uint256.Int{
		vToken0: uint256.NewInt(2_000_000),
		vToken1: uint256.NewInt(1_000_000),
	}}

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	client := chainclient.NewMockClient(ctrl)

	reserve0 := new(uint256.Int).Mul(uint256.NewInt(1000), weiScale)
	reserve1 := new(uint256.Int).Mul(uint256.NewInt(2000), weiScale)
	totalLp := new(uint256.Int).Mul(uint256.NewInt(100), weiScale)
	reservesOut := append(append([]byte{}, word32(reserve0)...), word32(reserve1)...)
	totalSupplyOut := word32(totalLp)
	balanceOut := word32(totalLp)

	client.EXPECT().Call(gomock.Any(), gomock.Any(), gomock.Nil()).DoAndReturn(
		func(_ context.Context, msg interface{}, _ interface{}) ([]byte, error) {
			return dispatchCall(msg, reservesOut, totalSupplyOut, balanceOut)
		},
	).AnyTimes()

	e := New(st, ps, map[uint64]chainclient.Client{vChain: client}, logging.NoOp())

	result, err := e.TVL(context.Background(), vChain, 11)
	require.NoError(t, err)
	require.True(t, result.Priced)
	require.True(t, result.TvlUSD.IsZero())
}

func TestCaptureWalletSnapshotRecordsNativeAndKeyTokenBalances(t *testing.T) {
	st := &fakeValuationStore{
		descriptors: []store.PoolDescriptor{
			{ChainID: vChain, PoolID: 3, LpToken: vLpToken, Token0: vToken0, Token1: vToken1, MasterContract: vMasterV1, Version: store.PoolVersionV1},
		},
	}
	ps := &fakePriceSource{}

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	client := chainclient.NewMockClient(ctrl)
	wallet := common.HexToAddress("0xDdDDdDdddDdDdDdDdDdDDdDDdDddddddDdDDdDDd")
	client.EXPECT().Balance(gomock.Any(), wallet).Return(new(uint256.Int).Mul(uint256.NewInt(5), weiScale).ToBig(), nil)
	client.EXPECT().Call(gomock.Any(), gomock.Any(), gomock.Nil()).Return(word32(uint256.NewInt(42)), nil).AnyTimes()

	e := New(st, ps, map[uint64]chainclient.Client{vChain: client}, logging.NoOp())
	err := e.CaptureWalletSnapshot(context.Background(), vChain, wallet)
	require.NoError(t, err)
	require.Len(t, st.insertedSnap, 1)
	require.Equal(t, wallet, st.insertedSnap[0].Wallet)
}
