// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package price

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/hedgeledger/chainindexer/internal/store"
)

var cacheToken = common.HexToAddress("0x4444444444444444444444444444444444444444")

func TestPriceCacheMissReturnsFalse(t *testing.T) {
	pc := newPriceCache(1024 * 1024)
	_, _, ok := pc.get(1, cacheToken, nil)
	require.False(t, ok)
}

func TestPriceCacheLiveRoundTrip(t *testing.T) {
	pc := newPriceCache(1024 * 1024)
	pc.set(1, cacheToken, nil, uint256.NewInt(1_500_000), store.PriceSourceCoingecko)

	price, source, ok := pc.get(1, cacheToken, nil)
	require.True(t, ok)
	require.Equal(t, store.PriceSourceCoingecko, source)
	require.True(t, price.Eq(uint256.NewInt(1_500_000)))
}

func TestPriceCacheLiveEntryExpiresAfterTTL(t *testing.T) {
	pc := newPriceCache(1024 * 1024)

	// Plant an entry directly with a CachedAt older than liveTTL,
	// bypassing set's time.Now() stamping.
	stale := cacheEntry{
		PriceUSD: "1000000",
		Source:   store.PriceSourceDefiLlama,
		CachedAt: time.Now().Add(-liveTTL - time.Second).Unix(),
	}
	b, err := json.Marshal(stale)
	require.NoError(t, err)
	pc.c.Set(cacheKey(1, cacheToken, nil), b)

	_, _, ok := pc.get(1, cacheToken, nil)
	require.False(t, ok)
}

func TestPriceCacheHistoricalEntryNeverExpires(t *testing.T) {
	pc := newPriceCache(1024 * 1024)
	atTime := time.Now().Add(-72 * time.Hour)
	pc.set(1, cacheToken, &atTime, uint256.NewInt(2_000_000), store.PriceSourceDexDerived)

	price, source, ok := pc.get(1, cacheToken, &atTime)
	require.True(t, ok)
	require.Equal(t, store.PriceSourceDexDerived, source)
	require.True(t, price.Eq(uint256.NewInt(2_000_000)))
}

func TestPriceCacheKeyDistinguishesLiveFromHistorical(t *testing.T) {
	pc := newPriceCache(1024 * 1024)
	pc.set(1, cacheToken, nil, uint256.NewInt(1_000_000), store.PriceSourceCoingecko)

	atTime := time.Now().Add(-time.Hour)
	_, _, ok := pc.get(1, cacheToken, &atTime)
	require.False(t, ok, "a historical lookup must not hit the live cache entry")
}

func TestPriceCacheKeyDistinguishesChains(t *testing.T) {
	pc := newPriceCache(1024 * 1024)
	pc.set(1, cacheToken, nil, uint256.NewInt(1_000_000), store.PriceSourceCoingecko)

	_, _, ok := pc.get(2, cacheToken, nil)
	require.False(t, ok)
}
