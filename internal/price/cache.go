// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package price

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/hedgeledger/chainindexer/internal/store"
)

// liveTTL is §4.7 step 1's in-memory cache TTL for a "live" (no
// explicit atTime) lookup; historical snapshots never expire once
// cached, since a past block's price can't change.
const liveTTL = 5 * time.Minute

// cacheEntry is the JSON shape stored in fastcache; fastcache itself
// only stores raw bytes, so the expiry and provenance travel with the
// value rather than as separate cache metadata.
type cacheEntry struct {
	PriceUSD  string             `json:"p"`
	Source    store.PriceSourceTag `json:"s"`
	CachedAt  int64              `json:"t"` // unix seconds; zero means "historical, no expiry"
}

// priceCache wraps fastcache with the TTL semantics §4.7 step 1 needs;
// fastcache itself is a plain byte-oriented LRU-ish cache with no
// built-in expiry, so cachedAt travels inside the stored value.
type priceCache struct {
	c *fastcache.Cache
}

func newPriceCache(maxBytes int) *priceCache {
	return &priceCache{c: fastcache.New(maxBytes)}
}

func cacheKey(chainID uint64, token common.Address, atTime *time.Time) []byte {
	if atTime == nil {
		return []byte(fmt.Sprintf("%d:%s:live", chainID, token.Hex()))
	}
	return []byte(fmt.Sprintf("%d:%s:%d", chainID, token.Hex(), atTime.Unix()))
}

func (pc *priceCache) get(chainID uint64, token common.Address, atTime *time.Time) (*uint256.Int, store.PriceSourceTag, bool) {
	raw := pc.c.Get(nil, cacheKey(chainID, token, atTime))
	if raw == nil {
		return nil, "", false
	}
	var e cacheEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, "", false
	}
	if e.CachedAt != 0 && time.Since(time.Unix(e.CachedAt, 0)) > liveTTL {
		return nil, "", false
	}
	price, ok := new(uint256.Int).SetString(e.PriceUSD, 10)
	if !ok {
		return nil, "", false
	}
	return price, e.Source, true
}

func (pc *priceCache) set(chainID uint64, token common.Address, atTime *time.Time, priceUSD *uint256.Int, source store.PriceSourceTag) {
	cachedAt := time.Now().Unix()
	if atTime != nil {
		// Historical snapshots are immutable: cache forever.
		cachedAt = 0
	}
	e := cacheEntry{PriceUSD: priceUSD.Dec(), Source: source, CachedAt: cachedAt}
	b, err := json.Marshal(e)
	if err != nil {
		return
	}
	pc.c.Set(cacheKey(chainID, token, atTime), b)
}
