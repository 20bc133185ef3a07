package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/indexer")
	t.Setenv("CHAIN_53935_RPC_URLS", "https://rpc1.example, https://rpc2.example")
	t.Setenv("CONFIRMATION_DEPTH_53935", "40")
	t.Setenv("CUSTODIAL_WALLET_ADDRESSES", "0xAAA,0xBBB")

	cfg, err := Load(nil, []uint64{53935})
	require.NoError(t, err)
	require.Equal(t, "postgres://localhost/indexer", cfg.DatabaseURL)
	require.False(t, cfg.ProductionMode)

	dfk, ok := cfg.Chains[53935]
	require.True(t, ok)
	require.Equal(t, []string{"https://rpc1.example", "https://rpc2.example"}, dfk.RPCURLs)
	require.Equal(t, uint64(40), dfk.ConfirmationDepth)
	require.Equal(t, []string{"0xAAA", "0xBBB"}, dfk.CustodialWallets)
}

func TestLoadMissingDatabaseURL(t *testing.T) {
	os.Unsetenv("DATABASE_URL")
	_, err := Load(nil, nil)
	require.Error(t, err)
}

func TestLoadMissingChainRPC(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/indexer")
	_, err := Load(nil, []uint64{1})
	require.Error(t, err)
}
