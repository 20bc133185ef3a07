// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package price

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/hedgeledger/chainindexer/internal/store"
)

var (
	jewel = common.HexToAddress("0x1111111111111111111111111111111111111111")
	usdc  = common.HexToAddress("0x2222222222222222222222222222222222222222")
	wjewel = common.HexToAddress("0x3333333333333333333333333333333333333333")
	pairA = common.HexToAddress("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	pairB = common.HexToAddress("0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB")
	pairC = common.HexToAddress("0xCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC")
)

func priced1USDC(token common.Address) func(common.Address) (*uint256.Int, bool) {
	return func(c common.Address) (*uint256.Int, bool) {
		if c == token {
			return uint256.NewInt(1_000_000), true // $1.00
		}
		return nil, false
	}
}

func TestResolveDexDerivedDirectPair(t *testing.T) {
	pools := []store.PoolDescriptor{{LpToken: pairA, Token0: jewel, Token1: usdc}}
	reserves := map[common.Address]pairReserves{
		pairA: {token0: jewel, token1: usdc, reserve0: uint256.NewInt(1000), reserve1: uint256.NewInt(500)},
	}
	// reserve0 (jewel) = 1000, reserve1 (usdc, priced at $1) = 500
	// jewelPrice = 1 * 500 / 1000 = 0.5
	price, ok := resolveDexDerived(pools, reserves, jewel, priced1USDC(usdc))
	require.True(t, ok)
	require.True(t, price.Eq(uint256.NewInt(500_000))) // $0.50 at 6 decimals
}

func TestResolveDexDerivedPrefersHighestLiquidityAmongDirectPairs(t *testing.T) {
	pools := []store.PoolDescriptor{
		{LpToken: pairA, Token0: jewel, Token1: usdc},
		{LpToken: pairB, Token0: jewel, Token1: usdc},
	}
	reserves := map[common.Address]pairReserves{
		// Low-liquidity pair implying a very different ($10) price.
		pairA: {token0: jewel, token1: usdc, reserve0: uint256.NewInt(10), reserve1: uint256.NewInt(100)},
		// High-liquidity pair (larger usdc-side reserve) should win.
		pairB: {token0: jewel, token1: usdc, reserve0: uint256.NewInt(1_000_000), reserve1: uint256.NewInt(500_000)},
	}
	price, ok := resolveDexDerived(pools, reserves, jewel, priced1USDC(usdc))
	require.True(t, ok)
	require.True(t, price.Eq(uint256.NewInt(500_000)))
}

func TestResolveDexDerivedMultiHopBFS(t *testing.T) {
	// jewel <-> wjewel <-> usdc, no direct jewel/usdc pair.
	pools := []store.PoolDescriptor{
		{LpToken: pairA, Token0: jewel, Token1: wjewel},
		{LpToken: pairB, Token0: wjewel, Token1: usdc},
	}
	reserves := map[common.Address]pairReserves{
		pairA: {token0: jewel, token1: wjewel, reserve0: uint256.NewInt(100), reserve1: uint256.NewInt(100)}, // 1:1
		pairB: {token0: wjewel, token1: usdc, reserve0: uint256.NewInt(200), reserve1: uint256.NewInt(100)},  // wjewel = $0.50
	}
	price, ok := resolveDexDerived(pools, reserves, jewel, priced1USDC(usdc))
	require.True(t, ok)
	require.True(t, price.Eq(uint256.NewInt(500_000))) // jewel also $0.50 via 1:1 leg
}

func TestResolveDexDerivedNoPathReturnsFalse(t *testing.T) {
	pools := []store.PoolDescriptor{
		{LpToken: pairC, Token0: jewel, Token1: wjewel},
	}
	reserves := map[common.Address]pairReserves{
		pairC: {token0: jewel, token1: wjewel, reserve0: uint256.NewInt(10), reserve1: uint256.NewInt(10)},
	}
	// Nothing in the graph is priced.
	_, ok := resolveDexDerived(pools, reserves, jewel, func(common.Address) (*uint256.Int, bool) { return nil, false })
	require.False(t, ok)
}

func TestResolveDexDerivedUnknownTokenReturnsFalse(t *testing.T) {
	pools := []store.PoolDescriptor{{LpToken: pairA, Token0: jewel, Token1: usdc}}
	reserves := map[common.Address]pairReserves{
		pairA: {token0: jewel, token1: usdc, reserve0: uint256.NewInt(100), reserve1: uint256.NewInt(100)},
	}
	other := common.HexToAddress("0xDEADDEADDEADDEADDEADDEADDEADDEADDEADDEAD")
	_, ok := resolveDexDerived(pools, reserves, other, priced1USDC(usdc))
	require.False(t, ok)
}
