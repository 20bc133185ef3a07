// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"

	"github.com/hedgeledger/chainindexer/internal/chainclient"
	"github.com/hedgeledger/chainindexer/internal/config"
	"github.com/hedgeledger/chainindexer/internal/decode"
	"github.com/hedgeledger/chainindexer/internal/indexer"
	"github.com/hedgeledger/chainindexer/internal/logging"
	"github.com/hedgeledger/chainindexer/internal/poolworker"
	"github.com/hedgeledger/chainindexer/internal/store"
)

var backfillCommand = &cli.Command{
	Name:  "backfill",
	Usage: "catch up every configured contract subscription to the current confirmed head, then exit",
	Flags: []cli.Flag{chainsFlag},
	Action: func(c *cli.Context) error {
		return runBackfill(c.Context, c.String("chains"))
	},
}

func runBackfill(ctx context.Context, rawChainIDs string) error {
	chainIDs, err := config.ParseChainIDList(rawChainIDs)
	if err != nil {
		return err
	}
	cfg, err := config.Load(nil, chainIDs)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if _, err := logging.Init(logging.Config{Level: cfg.LogLevel}); err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	log := logging.New("component", "indexerd-backfill")

	st, err := store.Open(ctx, cfg.DatabaseURL, cfg.FallbackDatabaseURL)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	for _, chainID := range chainIDs {
		chainCfg := cfg.Chains[chainID]
		client, err := chainclient.Dial(ctx, chainID, chainCfg.RPCURLs, log)
		if err != nil {
			return fmt.Errorf("dialing chain %d: %w", chainID, err)
		}
		defer client.Close()

		subs, err := st.ContractSubscriptions(ctx, chainID)
		if err != nil {
			return fmt.Errorf("loading subscriptions for chain %d: %w", chainID, err)
		}
		registry := decode.NewRegistry(maxDecodersPerChain)
		if err := decode.RegisterAll(registry, subs); err != nil {
			return fmt.Errorf("registering decoders for chain %d: %w", chainID, err)
		}

		pools, err := st.PoolDescriptors(ctx, chainID)
		if err != nil {
			return fmt.Errorf("loading pool descriptors for chain %d: %w", chainID, err)
		}
		poolByMaster := make(map[common.Address]store.PoolDescriptor, len(pools))
		for _, p := range pools {
			poolByMaster[p.MasterContract] = p
		}

		for _, sub := range subs {
			if !sub.Enabled {
				continue
			}
			if pd, ok := poolByMaster[sub.Address]; ok {
				pool := poolworker.New(pd.PoolID, chainID, sub.Address, client, st, registry,
					cfg.WorkersPerPool, cfg.BatchBlocksDefault, chainCfg.ConfirmationDepth, log)
				log.Info("backfilling pool", "chain", chainID, "pool", pd.PoolID, "version", pd.Version)
				if err := pool.CatchUp(ctx); err != nil {
					return fmt.Errorf("backfilling pool %d on chain %d: %w", pd.PoolID, chainID, err)
				}
				continue
			}
			tuning := indexer.Tuning{
				BatchBlocksDefault: cfg.BatchBlocksDefault,
				BatchBlocksMax:     cfg.BatchBlocksMax,
				BatchBlocksFloor:   cfg.BatchBlocksFloor,
				ConfirmationDepth:  chainCfg.ConfirmationDepth,
			}
			ix := indexer.New(chainID, client, st, sub, registry, "", tuning, log)
			log.Info("backfilling contract", "chain", chainID, "contract", sub.Address.Hex())
			if err := ix.CatchUp(ctx); err != nil {
				return fmt.Errorf("backfilling %s on chain %d: %w", sub.Address.Hex(), chainID, err)
			}
		}
	}

	log.Info("backfill complete")
	return nil
}
