// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config loads the process configuration described in spec §6
// from the environment (with CLI flag overrides), using viper the way
// the teacher binds flags and environment together.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ChainConfig is the per-chain slice of the static ChainDescriptor plus
// the RPC/confirmation configuration needed to run indexers against it.
type ChainConfig struct {
	ChainID             uint64
	Name                string
	RPCURLs             []string
	NativeDecimals      uint8
	AvgBlockTimeSeconds float64
	ConfirmationDepth   uint64
	WrappedNativeAddr   string
	CustodialWallets    []string
}

// Config is the fully resolved process configuration.
type Config struct {
	DatabaseURL         string
	FallbackDatabaseURL string
	ProductionMode      bool

	HTTPListenAddr    string
	MetricsListenAddr string

	LogLevel   string
	LogFile    string

	WorkersPerPool       int
	BatchBlocksDefault   uint64
	BatchBlocksMax       uint64
	BatchBlocksFloor     uint64
	CheckpointFreshnessThresholdBlocks uint64

	PriceAPIDefiLlamaURL   string
	PriceAPICoingeckoURL   string
	PriceAPICoingeckoKey   string

	AdminToken string

	Chains map[uint64]ChainConfig
}

// Load reads configuration from the environment, applying flags as
// overrides. chainIDs lists the chains the operator wants configured;
// each must have a corresponding CHAIN_<id>_RPC_URLS entry.
func Load(flags *pflag.FlagSet, chainIDs []uint64) (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("production_mode", false)
	v.SetDefault("http_listen_addr", ":8080")
	v.SetDefault("metrics_listen_addr", ":9090")
	v.SetDefault("log_level", "info")
	v.SetDefault("workers_per_pool", 5)
	v.SetDefault("batch_blocks_default", 1000)
	v.SetDefault("batch_blocks_max", 5000)
	v.SetDefault("batch_blocks_floor", 16)
	v.SetDefault("checkpoint_freshness_threshold_blocks", 500)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("binding flags: %w", err)
		}
	}

	cfg := &Config{
		DatabaseURL:                         v.GetString("database_url"),
		FallbackDatabaseURL:                 v.GetString("fallback_database_url"),
		ProductionMode:                      v.GetBool("production_mode"),
		HTTPListenAddr:                      v.GetString("http_listen_addr"),
		MetricsListenAddr:                   v.GetString("metrics_listen_addr"),
		LogLevel:                            v.GetString("log_level"),
		LogFile:                             v.GetString("log_file_path"),
		WorkersPerPool:                      v.GetInt("workers_per_pool"),
		BatchBlocksDefault:                  cast.ToUint64(v.Get("batch_blocks_default")),
		BatchBlocksMax:                      cast.ToUint64(v.Get("batch_blocks_max")),
		BatchBlocksFloor:                    cast.ToUint64(v.Get("batch_blocks_floor")),
		CheckpointFreshnessThresholdBlocks:  cast.ToUint64(v.Get("checkpoint_freshness_threshold_blocks")),
		PriceAPIDefiLlamaURL:                v.GetString("price_api_defillama_url"),
		PriceAPICoingeckoURL:                v.GetString("price_api_coingecko_url"),
		PriceAPICoingeckoKey:                v.GetString("price_api_coingecko_key"),
		AdminToken:                          v.GetString("admin_token"),
		Chains:                              make(map[uint64]ChainConfig),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	for _, id := range chainIDs {
		key := fmt.Sprintf("chain_%d_rpc_urls", id)
		raw := v.GetString(key)
		if raw == "" {
			return nil, fmt.Errorf("%s is required for configured chain %d", strings.ToUpper(key), id)
		}
		urls := splitAndTrim(raw)

		confKey := fmt.Sprintf("confirmation_depth_%d", id)
		depth := v.GetUint64(confKey)
		if depth == 0 {
			depth = 12
		}

		custodialKey := "custodial_wallet_addresses"
		custodial := splitAndTrim(v.GetString(custodialKey))

		wrappedKey := fmt.Sprintf("chain_%d_wrapped_native", id)
		wrapped := v.GetString(wrappedKey)

		cfg.Chains[id] = ChainConfig{
			ChainID:           id,
			RPCURLs:           urls,
			ConfirmationDepth: depth,
			CustodialWallets:  custodial,
			WrappedNativeAddr: wrapped,
		}
	}

	return cfg, nil
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseChainIDList parses a comma-separated chain-id list, e.g. from a
// CHAIN_IDS=1,53935,43114 environment variable or --chains flag.
func ParseChainIDList(raw string) ([]uint64, error) {
	var ids []uint64
	for _, p := range splitAndTrim(raw) {
		id, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chain id %q: %w", p, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
