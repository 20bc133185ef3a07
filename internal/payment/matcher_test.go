// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package payment

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/hedgeledger/chainindexer/internal/logging"
	"github.com/hedgeledger/chainindexer/internal/store"
)

func u(s string) *uint256.Int {
	v, ok := new(uint256.Int).SetString(s, 10)
	if !ok {
		panic("bad uint256 literal: " + s)
	}
	return v
}

func TestSelectMatchPrefersUniqueExactOverRequestedExact(t *testing.T) {
	wallet := common.HexToAddress("0xAAAA")
	pending := []store.PaymentRequest{
		{ID: 1, ExpectedAmount: u("1000"), UniqueAmount: u("1000")},  // would also match REQUESTED_EXACT
		{ID: 2, ExpectedAmount: u("1000"), UniqueAmount: u("1000001")}, // distractor
	}
	req, strategy, ok := selectMatch(pending, wallet, u("1000"), uint256.NewInt(0))
	require.True(t, ok)
	require.Equal(t, int64(1), req.ID)
	require.Equal(t, store.StrategyUniqueExact, strategy)
}

func TestSelectMatchFallsBackToRequestedExact(t *testing.T) {
	wallet := common.HexToAddress("0xAAAA")
	pending := []store.PaymentRequest{
		{ID: 1, ExpectedAmount: u("500"), UniqueAmount: u("999")},
	}
	req, strategy, ok := selectMatch(pending, wallet, u("500"), uint256.NewInt(0))
	require.True(t, ok)
	require.Equal(t, int64(1), req.ID)
	require.Equal(t, store.StrategyRequestedExact, strategy)
}

func TestSelectMatchUniqueToleranceIsOneWeiBandOnly(t *testing.T) {
	wallet := common.HexToAddress("0xAAAA")
	pending := []store.PaymentRequest{
		{ID: 1, ExpectedAmount: u("500"), UniqueAmount: u("1000")},
	}
	// 2 wei off is outside the 1-wei tolerance band and shouldn't match.
	_, _, ok := selectMatch(pending, wallet, u("998"), uint256.NewInt(0))
	require.False(t, ok)

	req, strategy, ok := selectMatch(pending, wallet, u("999"), uint256.NewInt(0))
	require.True(t, ok)
	require.Equal(t, int64(1), req.ID)
	require.Equal(t, store.StrategyUniqueTolerance, strategy)
}

func TestSelectMatchWalletAmountRequiresBoundWallet(t *testing.T) {
	wallet := common.HexToAddress("0xAAAA")
	other := common.HexToAddress("0xBBBB")
	pending := []store.PaymentRequest{
		{ID: 1, ExpectedAmount: u("1000"), UniqueAmount: u("2000"), FromWallet: &other},
	}
	tolerance := u("10")
	// Wrong sender: no strategy should fire even though the amount is close.
	_, _, ok := selectMatch(pending, wallet, u("1005"), tolerance)
	require.False(t, ok)

	req, strategy, ok := selectMatch(pending, other, u("1005"), tolerance)
	require.True(t, ok)
	require.Equal(t, int64(1), req.ID)
	require.Equal(t, store.StrategyWalletAmount, strategy)
}

func TestSelectMatchReturnsFalseWhenNothingFits(t *testing.T) {
	wallet := common.HexToAddress("0xAAAA")
	pending := []store.PaymentRequest{
		{ID: 1, ExpectedAmount: u("1000"), UniqueAmount: u("2000")},
	}
	_, _, ok := selectMatch(pending, wallet, u("9999999"), uint256.NewInt(0))
	require.False(t, ok)
}

func TestConsumeBatchIgnoresNonTransferEvents(t *testing.T) {
	fs := newFakeStore()
	m := New(fs, []common.Address{common.HexToAddress("0xCACA")}, 18, logging.NoOp())
	err := m.ConsumeBatch(context.Background(), []store.RawEvent{
		{DecoderKey: "cjewel_mint_v1", TxHash: common.HexToHash("0xdead")},
	})
	require.NoError(t, err)
	require.Empty(t, fs.matches)
}

func TestConsumeBatchIgnoresTransfersNotToCustodialWallet(t *testing.T) {
	fs := newFakeStore(store.PaymentRequest{
		ID: 1, Status: store.PaymentStatusPending,
		ExpectedAmount: u("1000"), UniqueAmount: u("1000"),
		ExpiresAt: time.Now().Add(time.Hour),
	})
	m := New(fs, []common.Address{common.HexToAddress("0xCACA")}, 18, logging.NoOp())
	other := common.HexToAddress("0xFEED")
	err := m.ConsumeBatch(context.Background(), []store.RawEvent{
		transferEvent(common.HexToAddress("0xAAAA"), other, u("1000"), common.HexToHash("0xTX9")),
	})
	require.NoError(t, err)
	require.Empty(t, fs.matches)
}

func TestConsumeBatchSkipsTxAlreadyMatched(t *testing.T) {
	custodial := common.HexToAddress("0xCACA")
	fs := newFakeStore(store.PaymentRequest{
		ID: 1, Status: store.PaymentStatusPending,
		ExpectedAmount: u("1000"), UniqueAmount: u("1000"),
		ExpiresAt: time.Now().Add(time.Hour),
	})
	txHash := common.HexToHash("0xTX1")
	fs.matchedTxs[txHash] = true

	m := New(fs, []common.Address{custodial}, 18, logging.NoOp())
	err := m.ConsumeBatch(context.Background(), []store.RawEvent{
		transferEvent(common.HexToAddress("0xAAAA"), custodial, u("1000"), txHash),
	})
	require.NoError(t, err)
	require.Empty(t, fs.matches)
}
