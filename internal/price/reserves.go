// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package price

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/hedgeledger/chainindexer/internal/chainclient"
)

// Standard Uniswap-V2-shaped LP contract selectors, computed the same
// way every decoder's topic0 is (§4.5's `crypto.Keccak256Hash`
// idiom), since this repo's go.mod carries no separate ABI-binding
// generator for the handful of read-only calls valuation needs.
var (
	selectorGetReserves = methodSelector("getReserves()")
	selectorTotalSupply = methodSelector("totalSupply()")
	selectorBalanceOf   = methodSelector("balanceOf(address)")
)

func methodSelector(sig string) [4]byte {
	var sel [4]byte
	copy(sel[:], crypto.Keccak256([]byte(sig))[:4])
	return sel
}

// FetchReserves calls getReserves() on a Uniswap-V2-shaped LP pair
// contract, returning (reserve0, reserve1). Matches the packed
// (uint112, uint112, uint32) return layout: each reserve occupies the
// low 14 bytes of its own right-aligned 32-byte word.
func FetchReserves(ctx context.Context, client chainclient.Client, pair common.Address) (reserve0, reserve1 *uint256.Int, err error) {
	out, err := client.Call(ctx, ethereum.CallMsg{To: &pair, Data: selectorGetReserves[:]}, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("getReserves(%s): %w", pair.Hex(), err)
	}
	if len(out) < 64 {
		return nil, nil, fmt.Errorf("getReserves(%s): short return data (%d bytes)", pair.Hex(), len(out))
	}
	r0 := new(big.Int).SetBytes(out[0:32])
	r1 := new(big.Int).SetBytes(out[32:64])
	reserve0, overflow0 := uint256.FromBig(r0)
	reserve1, overflow1 := uint256.FromBig(r1)
	if overflow0 || overflow1 {
		return nil, nil, fmt.Errorf("getReserves(%s): reserve overflows uint256", pair.Hex())
	}
	return reserve0, reserve1, nil
}

// FetchTotalSupply calls totalSupply() on the LP token contract.
func FetchTotalSupply(ctx context.Context, client chainclient.Client, lpToken common.Address) (*uint256.Int, error) {
	out, err := client.Call(ctx, ethereum.CallMsg{To: &lpToken, Data: selectorTotalSupply[:]}, nil)
	if err != nil {
		return nil, fmt.Errorf("totalSupply(%s): %w", lpToken.Hex(), err)
	}
	if len(out) < 32 {
		return nil, fmt.Errorf("totalSupply(%s): short return data (%d bytes)", lpToken.Hex(), len(out))
	}
	total, overflow := uint256.FromBig(new(big.Int).SetBytes(out[0:32]))
	if overflow {
		return nil, fmt.Errorf("totalSupply(%s): overflows uint256", lpToken.Hex())
	}
	return total, nil
}

// FetchBalanceOf calls balanceOf(holder) on an ERC-20-shaped token
// contract — used by C8's per-version LP-deposit split (how much of an
// LP token a given Master Gardener version currently holds) and by the
// daily wallet-snapshot job's key-token balance capture.
func FetchBalanceOf(ctx context.Context, client chainclient.Client, token, holder common.Address) (*uint256.Int, error) {
	data := make([]byte, 4+32)
	copy(data[0:4], selectorBalanceOf[:])
	copy(data[4+12:4+32], holder.Bytes())

	out, err := client.Call(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("balanceOf(%s, %s): %w", token.Hex(), holder.Hex(), err)
	}
	if len(out) < 32 {
		return nil, fmt.Errorf("balanceOf(%s, %s): short return data (%d bytes)", token.Hex(), holder.Hex(), len(out))
	}
	bal, overflow := uint256.FromBig(new(big.Int).SetBytes(out[0:32]))
	if overflow {
		return nil, fmt.Errorf("balanceOf(%s, %s): overflows uint256", token.Hex(), holder.Hex())
	}
	return bal, nil
}
