// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package valuation implements the Valuation Engine (C8, §4.8): derives
// a pool's TVL from staked LP shares, on-chain reserves, and priced
// tokens, and captures the daily wallet-snapshot job's balance rows.
package valuation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/hedgeledger/chainindexer/internal/chainclient"
	"github.com/hedgeledger/chainindexer/internal/chainerr"
	"github.com/hedgeledger/chainindexer/internal/logging"
	"github.com/hedgeledger/chainindexer/internal/price"
	"github.com/hedgeledger/chainindexer/internal/store"
)

// reserveCacheTTL is §4.8's "cached for 60s" requirement for
// totalLp/reserve0/reserve1; rather than a second in-memory cache
// alongside the price oracle's, the already-durable LpPoolState row is
// reused as the cache, checked by its AsOf timestamp.
const reserveCacheTTL = 60 * time.Second

// Persister is the slice of *store.Store the engine needs.
type Persister interface {
	PoolDescriptorsByPoolID(ctx context.Context, chainID uint64, poolID uint32) ([]store.PoolDescriptor, error)
	PoolDescriptors(ctx context.Context, chainID uint64) ([]store.PoolDescriptor, error)
	LatestLpPoolState(ctx context.Context, chainID uint64, poolID uint32) (*store.LpPoolState, bool, error)
	InsertLpPoolState(ctx context.Context, st store.LpPoolState) error
	InsertWalletSnapshot(ctx context.Context, ws store.WalletSnapshot) error
	ScanStakesForPool(ctx context.Context, chainID uint64, poolID uint32) ([]store.Stake, error)
}

// PriceSource is the narrow slice of *price.Oracle the engine needs,
// so tests substitute a fake instead of wiring a live Oracle (the same
// DB-mocking-gap pattern used throughout this repo).
type PriceSource interface {
	PriceUSD(ctx context.Context, chainID uint64, token common.Address, atTime *time.Time) (*uint256.Int, store.PriceSourceTag, error)
}

// Engine computes TVL (§4.8) and captures wallet snapshots (§4.9).
type Engine struct {
	store   Persister
	prices  PriceSource
	clients map[uint64]chainclient.Client
	log     logging.Logger
}

func New(st Persister, prices PriceSource, clients map[uint64]chainclient.Client, log logging.Logger) *Engine {
	return &Engine{store: st, prices: prices, clients: clients, log: log}
}

// TVLResult is the shape returned by GET /pools/{chainId}/{poolId}/tvl.
type TVLResult struct {
	TvlUSD  *uint256.Int
	V1Share float64
	V2Share float64
	AsOf    time.Time
	Priced  bool
	Reason  string
}

const weiPerToken = 1_000_000_000_000_000_000 // assumes 18-decimal ERC-20s, the repo-wide convention

var weiScale = uint256.NewInt(weiPerToken)

// TVL implements §4.8's formula for a logical (chainId, poolId):
// poolTvl = Σ_users (stakedLpForUser/totalLp) × poolValue, i.e. the
// pool's full reserve value scaled down by the fraction of the LP
// token actually staked, not the pool's entire liquidity. Staked LP is
// read from the Stake table (materialized by C3/C4's Master-Gardener
// Deposit/Withdraw consumer), summed with store.ScanStakesForPool
// across every wallet for the pool, since the Stake table doesn't
// carry a version column (ApplyStakeDeltaTx already sums V1 and V2
// deposits into one row per wallet, satisfying §4.8's "summed"
// requirement without any extra grouping logic here). v1Share/v2Share
// separately split the (unscaled) pool value by how much of the LP
// token each Master Gardener version's contract currently holds
// (queried via balanceOf) — an independent ratio, not a tvlUSD input.
func (e *Engine) TVL(ctx context.Context, chainID uint64, poolID uint32) (TVLResult, error) {
	descriptors, err := e.store.PoolDescriptorsByPoolID(ctx, chainID, poolID)
	if err != nil {
		return TVLResult{}, fmt.Errorf("valuation: loading pool descriptors: %w", err)
	}
	if len(descriptors) == 0 {
		return TVLResult{}, fmt.Errorf("valuation: pool %d not configured on chain %d", poolID, chainID)
	}
	primary := descriptors[0]

	client, ok := e.clients[chainID]
	if !ok {
		return TVLResult{}, fmt.Errorf("valuation: no chain client configured for chain %d", chainID)
	}

	totalLp, reserve0, reserve1, asOf, err := e.reserves(ctx, client, chainID, poolID, primary.LpToken)
	if err != nil {
		return TVLResult{}, err
	}
	if totalLp.IsZero() {
		return TVLResult{TvlUSD: uint256.NewInt(0), AsOf: asOf, Priced: true}, nil
	}

	price0, _, err0 := e.prices.PriceUSD(ctx, chainID, primary.Token0, nil)
	if err0 != nil {
		if errors.Is(err0, chainerr.ErrNoPrice) {
			return TVLResult{TvlUSD: uint256.NewInt(0), AsOf: asOf, Priced: false, Reason: "missing price token0"}, nil
		}
		return TVLResult{}, fmt.Errorf("valuation: pricing token0: %w", err0)
	}
	price1, _, err1 := e.prices.PriceUSD(ctx, chainID, primary.Token1, nil)
	if err1 != nil {
		if errors.Is(err1, chainerr.ErrNoPrice) {
			return TVLResult{TvlUSD: uint256.NewInt(0), AsOf: asOf, Priced: false, Reason: "missing price token1"}, nil
		}
		return TVLResult{}, fmt.Errorf("valuation: pricing token1: %w", err1)
	}

	poolValue := usdValue(reserve0, price0)
	poolValue.Add(poolValue, usdValue(reserve1, price1))

	e.persistSnapshot(ctx, chainID, poolID, asOf, totalLp, reserve0, reserve1, price0, price1)

	stakedValue, err := e.stakedPoolValue(ctx, chainID, poolID, totalLp, poolValue)
	if err != nil {
		return TVLResult{}, fmt.Errorf("valuation: summing staked lp: %w", err)
	}

	shares, err := e.versionShares(ctx, client, descriptors, primary.LpToken, totalLp, poolValue)
	if err != nil {
		e.log.Warn("valuation: version-share lookup failed, reporting tvl without a v1/v2 split", "chain", chainID, "pool", poolID, "err", err)
		return TVLResult{TvlUSD: stakedValue, AsOf: asOf, Priced: true}, nil
	}

	return TVLResult{TvlUSD: stakedValue, V1Share: shares[store.PoolVersionV1], V2Share: shares[store.PoolVersionV2], AsOf: asOf, Priced: true}, nil
}

// stakedPoolValue scales poolValue down to the fraction of totalLp
// that is actually staked across every wallet, per §4.8's formula —
// the pool's full reserve value isn't locked value, only the staked
// share of it is.
func (e *Engine) stakedPoolValue(ctx context.Context, chainID uint64, poolID uint32, totalLp, poolValue *uint256.Int) (*uint256.Int, error) {
	stakes, err := e.store.ScanStakesForPool(ctx, chainID, poolID)
	if err != nil {
		return nil, err
	}
	stakedLp := new(uint256.Int)
	for _, s := range stakes {
		if s.LpAmount != nil {
			stakedLp.Add(stakedLp, s.LpAmount)
		}
	}
	if stakedLp.IsZero() {
		return uint256.NewInt(0), nil
	}
	if stakedLp.Gt(totalLp) {
		// Staked LP briefly exceeding totalLp can happen if a reserve
		// refetch races a deposit; clamp rather than report more than
		// 100% staked.
		stakedLp = totalLp
	}
	v := new(uint256.Int).Mul(poolValue, stakedLp)
	return v.Div(v, totalLp), nil
}

// reserves returns totalLp/reserve0/reserve1, reusing the most recent
// LpPoolState row if it's within reserveCacheTTL, otherwise refetching
// on-chain and persisting a fresh (unpriced-yet) snapshot row.
func (e *Engine) reserves(ctx context.Context, client chainclient.Client, chainID uint64, poolID uint32, lpToken common.Address) (totalLp, reserve0, reserve1 *uint256.Int, asOf time.Time, err error) {
	if cached, ok, cerr := e.store.LatestLpPoolState(ctx, chainID, poolID); cerr == nil && ok {
		if time.Since(cached.AsOf) < reserveCacheTTL {
			return cached.TotalLp, cached.Reserve0, cached.Reserve1, cached.AsOf, nil
		}
	}

	reserve0, reserve1, err = price.FetchReserves(ctx, client, lpToken)
	if err != nil {
		return nil, nil, nil, time.Time{}, fmt.Errorf("valuation: fetching reserves: %w", err)
	}
	totalLp, err = price.FetchTotalSupply(ctx, client, lpToken)
	if err != nil {
		return nil, nil, nil, time.Time{}, fmt.Errorf("valuation: fetching total supply: %w", err)
	}
	return totalLp, reserve0, reserve1, time.Now(), nil
}

func (e *Engine) persistSnapshot(ctx context.Context, chainID uint64, poolID uint32, asOf time.Time, totalLp, reserve0, reserve1, price0, price1 *uint256.Int) {
	if err := e.store.InsertLpPoolState(ctx, store.LpPoolState{
		ChainID: chainID, PoolID: poolID, AsOf: asOf,
		TotalLp: totalLp, Reserve0: reserve0, Reserve1: reserve1,
		Token0PriceUSD: price0, Token1PriceUSD: price1,
	}); err != nil {
		e.log.Warn("valuation: failed to persist lp pool state snapshot", "chain", chainID, "pool", poolID, "err", err)
	}
}

// versionShares computes, for each version present among descriptors,
// what fraction of poolValue is attributable to the LP tokens
// currently deposited in that version's master contract.
func (e *Engine) versionShares(ctx context.Context, client chainclient.Client, descriptors []store.PoolDescriptor, lpToken common.Address, totalLp, poolValue *uint256.Int) (map[store.PoolVersion]float64, error) {
	shares := make(map[store.PoolVersion]float64, len(descriptors))
	if totalLp.IsZero() {
		return shares, nil
	}
	for _, d := range descriptors {
		deposited, err := price.FetchBalanceOf(ctx, client, lpToken, d.MasterContract)
		if err != nil {
			return nil, err
		}
		if poolValue.IsZero() {
			shares[d.Version] = 0
			continue
		}
		// share = deposited / totalLp, expressed directly as a fraction
		// of poolValue (equivalently (deposited*poolValue/totalLp)/poolValue)
		// without the intermediate per-version USD value.
		num := new(uint256.Int).Mul(deposited, uint256.NewInt(1_000_000))
		num.Div(num, totalLp)
		shares[d.Version] = float64(num.Uint64()) / 1_000_000
	}
	return shares, nil
}

// usdValue converts a wei-scale reserve amount and a 6-decimal-fixed
// USD-per-token price into a 6-decimal-fixed USD value, assuming the
// standard 18-decimal ERC-20 convention used throughout this repo.
func usdValue(reserveWei, priceUSD6 *uint256.Int) *uint256.Int {
	v := new(uint256.Int).Mul(reserveWei, priceUSD6)
	return v.Div(v, weiScale)
}

// CaptureWalletSnapshot implements §4.9's daily wallet-snapshot job: one
// native balance plus every "key" ERC-20 (every token referenced by a
// configured pool on the chain) balance for wallet.
func (e *Engine) CaptureWalletSnapshot(ctx context.Context, chainID uint64, wallet common.Address) error {
	client, ok := e.clients[chainID]
	if !ok {
		return fmt.Errorf("valuation: no chain client configured for chain %d", chainID)
	}

	native, err := client.Balance(ctx, wallet)
	if err != nil {
		return fmt.Errorf("valuation: fetching native balance: %w", err)
	}
	nativeU256, overflow := uint256.FromBig(native)
	if overflow {
		return fmt.Errorf("valuation: native balance overflows uint256")
	}

	pools, err := e.store.PoolDescriptors(ctx, chainID)
	if err != nil {
		return fmt.Errorf("valuation: loading pool descriptors: %w", err)
	}
	tokens := keyTokens(pools)

	balances := make(map[string]string, len(tokens))
	for _, tok := range tokens {
		bal, err := price.FetchBalanceOf(ctx, client, tok, wallet)
		if err != nil {
			e.log.Warn("valuation: skipping token in wallet snapshot", "wallet", wallet.Hex(), "token", tok.Hex(), "err", err)
			continue
		}
		balances[tok.Hex()] = bal.Dec()
	}
	payload, err := json.Marshal(balances)
	if err != nil {
		return fmt.Errorf("valuation: marshaling erc20 balances: %w", err)
	}

	return e.store.InsertWalletSnapshot(ctx, store.WalletSnapshot{
		ChainID: chainID, Wallet: wallet, AsOf: time.Now(),
		NativeBalance: nativeU256, ERC20Balances: payload,
	})
}

// keyTokens de-duplicates every token0/token1 address across pools.
func keyTokens(pools []store.PoolDescriptor) []common.Address {
	seen := make(map[common.Address]bool)
	var out []common.Address
	for _, p := range pools {
		for _, t := range [2]common.Address{p.Token0, p.Token1} {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}
