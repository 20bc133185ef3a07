// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package price implements the Price Oracle (C7, §4.7): a layered
// resolution chain (in-memory cache, two off-chain APIs, on-chain DEX
// derivation, a deprecation fallback) each answer tagged with its
// source for downstream provenance.
package price

import (
	"context"
	"fmt"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"golang.org/x/sync/singleflight"

	"github.com/hedgeledger/chainindexer/internal/chainclient"
	"github.com/hedgeledger/chainindexer/internal/chainerr"
	"github.com/hedgeledger/chainindexer/internal/logging"
	"github.com/hedgeledger/chainindexer/internal/store"
)

// Persister is the slice of *store.Store the oracle needs: reading the
// last priced observation (to seed the DEX-derived numeraire lookup
// and persist history) and listing a chain's LP pairs for the
// DEX-derived graph.
type Persister interface {
	LatestTokenPrice(ctx context.Context, chainID uint64, token common.Address) (*store.TokenPrice, bool, error)
	InsertTokenPrice(ctx context.Context, p store.TokenPrice) error
	PoolDescriptors(ctx context.Context, chainID uint64) ([]store.PoolDescriptor, error)
}

// cacheBytes sizes the fastcache arena; a few thousand (chain, token)
// pairs at a few hundred bytes each comfortably fits in low tens of MB.
const cacheBytes = 32 * 1024 * 1024

// Oracle answers priceUSD(chainId, token, atTime?) per §4.7's six-step
// resolution chain.
type Oracle struct {
	store   Persister
	clients map[uint64]chainclient.Client

	defiLlama httpSource
	coingecko httpSource

	deprecated mapset.Set[common.Address]

	cache  *priceCache
	single singleflight.Group

	log logging.Logger
}

// New constructs an Oracle. clients maps chainID to the Chain Client
// used for DEX-derived reserve lookups; deprecatedTokens flags tokens
// that should resolve to 0 rather than ErrNoPrice (§4.7 step 5).
func New(st Persister, clients map[uint64]chainclient.Client, defiLlamaURL, coingeckoURL, coingeckoKey string, deprecatedTokens []common.Address, log logging.Logger) *Oracle {
	return &Oracle{
		store:      st,
		clients:    clients,
		defiLlama:  newDefiLlamaSource(defiLlamaURL, log),
		coingecko:  newCoingeckoSource(coingeckoURL, coingeckoKey, log),
		deprecated: mapset.NewSet(deprecatedTokens...),
		cache:      newPriceCache(cacheBytes),
		log:        log,
	}
}

// PriceUSD resolves a token's USD price (6 fractional digits) via
// §4.7's resolution chain, coalescing concurrent callers asking for
// the same (chainID, token, atTime) via singleflight.
func (o *Oracle) PriceUSD(ctx context.Context, chainID uint64, token common.Address, atTime *time.Time) (*uint256.Int, store.PriceSourceTag, error) {
	if price, source, ok := o.cache.get(chainID, token, atTime); ok {
		return price, source, nil
	}

	key := string(cacheKey(chainID, token, atTime))
	v, err, _ := o.single.Do(key, func() (interface{}, error) {
		return o.resolve(ctx, chainID, token, atTime)
	})
	if err != nil {
		return nil, "", err
	}
	r := v.(resolved)
	return r.price, r.source, nil
}

type resolved struct {
	price  *uint256.Int
	source store.PriceSourceTag
}

func (o *Oracle) resolve(ctx context.Context, chainID uint64, token common.Address, atTime *time.Time) (resolved, error) {
	if price, source, ok := o.cache.get(chainID, token, atTime); ok {
		return resolved{price, source}, nil
	}

	for _, src := range []httpSource{o.defiLlama, o.coingecko} {
		price, ok, err := src.fetch(ctx, chainID, token)
		if err != nil {
			o.log.Warn("price oracle: source lookup failed", "source", src.tag(), "chain", chainID, "token", token.Hex(), "err", err)
			continue
		}
		if ok {
			o.recordPrice(ctx, chainID, token, atTime, price, src.tag(), 1.0)
			return resolved{price, src.tag()}, nil
		}
	}

	if price, source, err := o.resolveDexDerived(ctx, chainID, token); err != nil {
		o.log.Warn("price oracle: DEX-derived lookup failed", "chain", chainID, "token", token.Hex(), "err", err)
	} else if price != nil {
		o.recordPrice(ctx, chainID, token, atTime, price, source, 0.5)
		return resolved{price, source}, nil
	}

	if o.deprecated.Contains(token) {
		zero := uint256.NewInt(0)
		o.cache.set(chainID, token, atTime, zero, store.PriceSourceDeprecated)
		return resolved{zero, store.PriceSourceDeprecated}, nil
	}

	return resolved{}, chainerr.ErrNoPrice
}

// recordPrice persists a freshly resolved price and warms the cache;
// a persistence failure is logged, not propagated, since the resolved
// price is still valid to hand back to the caller this round.
func (o *Oracle) recordPrice(ctx context.Context, chainID uint64, token common.Address, atTime *time.Time, price *uint256.Int, source store.PriceSourceTag, confidence float64) {
	if err := o.store.InsertTokenPrice(ctx, store.TokenPrice{
		ChainID: chainID, TokenAddr: token, AsOf: now(atTime), PriceUSD: price, Source: source, Confidence: confidence,
	}); err != nil {
		o.log.Warn("price oracle: failed to persist resolved price", "chain", chainID, "token", token.Hex(), "source", source, "err", err)
	}
	o.cache.set(chainID, token, atTime, price, source)
}

func now(atTime *time.Time) time.Time {
	if atTime != nil {
		return *atTime
	}
	return time.Now()
}

// resolveDexDerived implements §4.7 step 4 against the chain's
// currently configured LP pairs, using the DB's most recent priced
// rows as the set of candidate numeraires.
func (o *Oracle) resolveDexDerived(ctx context.Context, chainID uint64, token common.Address) (*uint256.Int, store.PriceSourceTag, error) {
	client, ok := o.clients[chainID]
	if !ok {
		return nil, "", fmt.Errorf("price oracle: no chain client configured for chain %d", chainID)
	}
	pools, err := o.store.PoolDescriptors(ctx, chainID)
	if err != nil {
		return nil, "", err
	}
	if len(pools) == 0 {
		return nil, "", nil
	}

	reserves := make(map[common.Address]pairReserves, len(pools))
	for _, p := range pools {
		r0, r1, err := FetchReserves(ctx, client, p.LpToken)
		if err != nil {
			o.log.Warn("price oracle: getReserves failed, skipping pair", "pair", p.LpToken.Hex(), "err", err)
			continue
		}
		reserves[p.LpToken] = pairReserves{token0: p.Token0, token1: p.Token1, reserve0: r0, reserve1: r1}
	}

	priced := func(candidate common.Address) (*uint256.Int, bool) {
		if candidate == token {
			return nil, false
		}
		if p, source, ok := o.cache.get(chainID, candidate, nil); ok {
			_ = source
			return p, true
		}
		row, ok, err := o.store.LatestTokenPrice(ctx, chainID, candidate)
		if err != nil || !ok {
			return nil, false
		}
		return row.PriceUSD, true
	}

	price, ok := resolveDexDerived(pools, reserves, token, priced)
	if !ok {
		return nil, "", nil
	}
	return price, store.PriceSourceDexDerived, nil
}
