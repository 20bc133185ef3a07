// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package price

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/hedgeledger/chainindexer/internal/logging"
	"github.com/hedgeledger/chainindexer/internal/store"
)

// httpSource is the shape both off-chain price APIs satisfy (§4.7
// steps 2-3); kept narrow so the Oracle doesn't care which provider it
// is talking to.
type httpSource interface {
	tag() store.PriceSourceTag
	fetch(ctx context.Context, chainID uint64, token common.Address) (*uint256.Int, bool, error)
}

// defiLlamaSource queries coins.llama.fi's "current prices" endpoint
// shape: {coins: {"<chain>:<address>": {price: float64}}}.
type defiLlamaSource struct {
	baseURL string
	client  *http.Client
	log     logging.Logger
}

func newDefiLlamaSource(baseURL string, log logging.Logger) *defiLlamaSource {
	return &defiLlamaSource{baseURL: baseURL, client: &http.Client{Timeout: 5 * time.Second}, log: log}
}

func (s *defiLlamaSource) tag() store.PriceSourceTag { return store.PriceSourceDefiLlama }

func (s *defiLlamaSource) fetch(ctx context.Context, chainID uint64, token common.Address) (*uint256.Int, bool, error) {
	if s.baseURL == "" {
		return nil, false, nil
	}
	key := fmt.Sprintf("%d:%s", chainID, token.Hex())
	url := fmt.Sprintf("%s/prices/current/%s", s.baseURL, key)

	var body struct {
		Coins map[string]struct {
			Price float64 `json:"price"`
		} `json:"coins"`
	}
	if err := fetchJSON(ctx, s.client, url, &body); err != nil {
		return nil, false, err
	}
	coin, ok := body.Coins[key]
	if !ok {
		return nil, false, nil
	}
	return floatToUSD6(coin.Price), true, nil
}

// coingeckoSource queries the simple-token-price endpoint shape:
// {"<address>": {"usd": float64}}.
type coingeckoSource struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     logging.Logger
}

func newCoingeckoSource(baseURL, apiKey string, log logging.Logger) *coingeckoSource {
	return &coingeckoSource{baseURL: baseURL, apiKey: apiKey, client: &http.Client{Timeout: 5 * time.Second}, log: log}
}

func (s *coingeckoSource) tag() store.PriceSourceTag { return store.PriceSourceCoingecko }

func (s *coingeckoSource) fetch(ctx context.Context, chainID uint64, token common.Address) (*uint256.Int, bool, error) {
	if s.baseURL == "" {
		return nil, false, nil
	}
	addr := token.Hex()
	url := fmt.Sprintf("%s/simple/token_price?contract_addresses=%s&vs_currencies=usd", s.baseURL, addr)
	if s.apiKey != "" {
		url += "&x_cg_pro_api_key=" + s.apiKey
	}

	var body map[string]struct {
		USD float64 `json:"usd"`
	}
	if err := fetchJSON(ctx, s.client, url, &body); err != nil {
		return nil, false, err
	}
	entry, ok := body[addr]
	if !ok {
		// Coingecko lower-cases addresses in its response keys.
		entry, ok = body[strings.ToLower(addr)]
		if !ok {
			return nil, false, nil
		}
	}
	return floatToUSD6(entry.USD), true, nil
}

func fetchJSON(ctx context.Context, client *http.Client, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("price source request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("price source %s: unexpected status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// floatToUSD6 converts a float64 USD price into the 6-fractional-digit
// uint256 fixed-point representation every other price row in this
// repo uses.
func floatToUSD6(f float64) *uint256.Int {
	scaled := int64(f*1_000_000 + 0.5)
	if scaled < 0 {
		scaled = 0
	}
	return uint256.NewInt(uint64(scaled))
}
