// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package decode

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/hedgeledger/chainindexer/internal/store"
)

func padAddress(a common.Address) common.Hash {
	return common.BytesToHash(a.Bytes())
}

func dataUint256s(values ...*big.Int) []byte {
	out := make([]byte, 0, 32*len(values))
	for _, v := range values {
		word := make([]byte, 32)
		v.FillBytes(word)
		out = append(out, word...)
	}
	return out
}

func TestDecodeERC20Transfer(t *testing.T) {
	from := common.HexToAddress("0x1111111111111111111111111111111111111111")
	to := common.HexToAddress("0x2222222222222222222222222222222222222222")
	token := common.HexToAddress("0x3333333333333333333333333333333333333333")

	log := types.Log{
		Address: token,
		Topics:  []common.Hash{ERC20TransferTopic0, padAddress(from), padAddress(to)},
		Data:    dataUint256s(big.NewInt(1_000_000)),
	}

	rec, err := DecodeERC20Transfer(log)
	require.NoError(t, err)
	require.Equal(t, KindERC20Transfer, rec.Kind)

	var fields ERC20TransferFields
	require.NoError(t, unmarshal(rec.Fields, &fields))
	require.Equal(t, from, fields.From)
	require.Equal(t, to, fields.To)
	require.Equal(t, "1000000", fields.Amount)
}

func TestDecodeERC20TransferMalformedData(t *testing.T) {
	log := types.Log{
		Topics: []common.Hash{ERC20TransferTopic0, common.Hash{}, common.Hash{}},
		Data:   []byte{0x01},
	}
	_, err := DecodeERC20Transfer(log)
	require.Error(t, err)
}

func TestDecodeCJewelMintAndBurn(t *testing.T) {
	zero := common.Address{}
	wallet := common.HexToAddress("0x4444444444444444444444444444444444444444")

	mintLog := types.Log{
		Topics: []common.Hash{ERC20TransferTopic0, padAddress(zero), padAddress(wallet)},
		Data:   dataUint256s(big.NewInt(500)),
	}
	rec, err := DecodeCJewelMintOrBurn(mintLog)
	require.NoError(t, err)
	require.Equal(t, KindCJewelMint, rec.Kind)

	burnLog := types.Log{
		Topics: []common.Hash{ERC20TransferTopic0, padAddress(wallet), padAddress(zero)},
		Data:   dataUint256s(big.NewInt(500)),
	}
	rec, err = DecodeCJewelMintOrBurn(burnLog)
	require.NoError(t, err)
	require.Equal(t, KindCJewelBurn, rec.Kind)
}

func TestDecodeStakeEventTagsVersion(t *testing.T) {
	wallet := common.HexToAddress("0x5555555555555555555555555555555555555555")
	log := types.Log{
		Topics: []common.Hash{StakeDepositTopic0, padAddress(wallet)},
		Data:   dataUint256s(big.NewInt(3), big.NewInt(1_000)),
	}

	dec := NewMasterGardenerV2Deposit()
	rec, err := dec(log)
	require.NoError(t, err)
	require.Equal(t, KindStakeDeposit, rec.Kind)

	var fields StakeEventFields
	require.NoError(t, unmarshal(rec.Fields, &fields))
	require.Equal(t, store.PoolVersionV2, fields.Version)
	require.Equal(t, uint32(3), fields.PoolID)
	require.Equal(t, "1000", fields.Amount)
}

func TestRegistryWildcardFallback(t *testing.T) {
	r := NewRegistry(16)
	r.Register(common.Address{}, ERC20TransferTopic0, DecodeERC20Transfer)

	require.True(t, r.MightHandle(ERC20TransferTopic0))
	d, ok := r.Lookup(common.HexToAddress("0xabc"), ERC20TransferTopic0)
	require.True(t, ok)
	require.NotNil(t, d)

	_, ok = r.Lookup(common.HexToAddress("0xabc"), StakeDepositTopic0)
	require.False(t, ok)
}

func TestRegistryAddressSpecificTakesPriority(t *testing.T) {
	r := NewRegistry(16)
	specificCalled := false
	wildcardCalled := false
	addr := common.HexToAddress("0xdead")

	r.Register(common.Address{}, ERC20TransferTopic0, func(log types.Log) (Record, error) {
		wildcardCalled = true
		return Record{}, nil
	})
	r.Register(addr, ERC20TransferTopic0, func(log types.Log) (Record, error) {
		specificCalled = true
		return Record{}, nil
	})

	d, ok := r.Lookup(addr, ERC20TransferTopic0)
	require.True(t, ok)
	_, _ = d(types.Log{})
	require.True(t, specificCalled)
	require.False(t, wildcardCalled)
}
