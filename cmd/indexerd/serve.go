// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/hedgeledger/chainindexer/internal/api"
	"github.com/hedgeledger/chainindexer/internal/chainclient"
	"github.com/hedgeledger/chainindexer/internal/config"
	"github.com/hedgeledger/chainindexer/internal/decode"
	"github.com/hedgeledger/chainindexer/internal/indexer"
	"github.com/hedgeledger/chainindexer/internal/logging"
	"github.com/hedgeledger/chainindexer/internal/payment"
	"github.com/hedgeledger/chainindexer/internal/poolworker"
	"github.com/hedgeledger/chainindexer/internal/price"
	"github.com/hedgeledger/chainindexer/internal/scheduler"
	"github.com/hedgeledger/chainindexer/internal/store"
	"github.com/hedgeledger/chainindexer/internal/valuation"
)

// maxDecodersPerChain bounds the per-chain bloom filter backing each
// decode.Registry (internal/decode.NewRegistry); a chain is never
// expected to carry more than a few hundred distinct topic0s.
const maxDecodersPerChain = 512

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "run ingestion, payment matching, the scheduler, and the query API",
	Flags: []cli.Flag{chainsFlag},
	Action: func(c *cli.Context) error {
		return runServe(c.Context, c.String("chains"))
	},
}

func runServe(ctx context.Context, rawChainIDs string) error {
	chainIDs, err := config.ParseChainIDList(rawChainIDs)
	if err != nil {
		return err
	}
	cfg, err := config.Load(nil, chainIDs)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if _, err := logging.Init(logging.Config{Level: cfg.LogLevel, FilePath: cfg.LogFile}); err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	log := logging.New("component", "indexerd")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.DatabaseURL, cfg.FallbackDatabaseURL)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	clients := make(map[uint64]chainclient.Client, len(chainIDs))
	priceClients := make(map[uint64]chainclient.Client, len(chainIDs))
	chainHeaders := make(map[uint64]scheduler.ChainHeader, len(chainIDs))
	defer func() {
		for _, cl := range clients {
			cl.Close()
		}
	}()

	matcher := payment.New(st, allCustodialWallets(cfg), 18, log.With("component", "payment"))
	oracle := price.New(st, priceClients, cfg.PriceAPIDefiLlamaURL, cfg.PriceAPICoingeckoURL, cfg.PriceAPICoingeckoKey, nil, log.With("component", "price"))
	valuer := valuation.New(st, oracle, priceClients, log.With("component", "valuation"))

	sched := scheduler.New(cfg.ProductionMode, cfg.CheckpointFreshnessThresholdBlocks, st, oracle, valuer, matcher, chainHeaders, trackedWallets(cfg), log.With("component", "scheduler"))

	var broadcasts []<-chan []store.RawEvent
	for _, chainID := range chainIDs {
		chainCfg := cfg.Chains[chainID]
		client, err := chainclient.Dial(ctx, chainID, chainCfg.RPCURLs, log)
		if err != nil {
			return fmt.Errorf("dialing chain %d: %w", chainID, err)
		}
		clients[chainID] = client
		priceClients[chainID] = client
		chainHeaders[chainID] = client

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
					cfg.WorkersPerPool, cfg.BatchBlocksDefault, chainCfg.ConfirmationDepth,
					log.With("component", "poolworker"))
				name := fmt.Sprintf("pool-%s-%d-%d", pd.Version, chainID, pd.PoolID)
				sched.RegisterIndexer(name, pool)
				broadcasts = append(broadcasts, pool.Broadcast())
				continue
			}
			tuning := indexer.Tuning{
				BatchBlocksDefault: cfg.BatchBlocksDefault,
				BatchBlocksMax:     cfg.BatchBlocksMax,
				BatchBlocksFloor:   cfg.BatchBlocksFloor,
				ConfirmationDepth:  chainCfg.ConfirmationDepth,
			}
			ix := indexer.New(chainID, client, st, sub, registry, "", tuning, log.With("component", "indexer"))
			name := fmt.Sprintf("indexer-%d-%s", chainID, sub.Address.Hex())
			sched.RegisterIndexer(name, ix)
			broadcasts = append(broadcasts, ix.Broadcast())
		}
	}

	apiServer := api.New(st, sched, valuer, cfg.AdminToken, log.With("component", "api"))
	httpServer := &http.Server{Addr: cfg.HTTPListenAddr, Handler: apiServer}

	var wg errgroup.Group
	wg.Go(func() error {
		if err := matcher.Run(ctx, broadcasts...); err != nil {
			return fmt.Errorf("payment matcher: %w", err)
		}
		return nil
	})
	wg.Go(func() error {
		sched.Run(ctx)
		return nil
	})
	wg.Go(func() error {
		log.Info("query API listening", "addr", cfg.HTTPListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("query API: %w", err)
		}
		return nil
	})

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	return wg.Wait()
}

func allCustodialWallets(cfg *config.Config) []common.Address {
	seen := make(map[common.Address]struct{})
	var out []common.Address
	for _, ch := range cfg.Chains {
		for _, w := range ch.CustodialWallets {
			addr := common.HexToAddress(w)
			if _, ok := seen[addr]; ok {
				continue
			}
			seen[addr] = struct{}{}
			out = append(out, addr)
		}
	}
	return out
}

func trackedWallets(cfg *config.Config) map[uint64][]common.Address {
	out := make(map[uint64][]common.Address, len(cfg.Chains))
	for chainID, ch := range cfg.Chains {
		addrs := make([]common.Address, 0, len(ch.CustodialWallets))
		for _, w := range ch.CustodialWallets {
			addrs = append(addrs, common.HexToAddress(w))
		}
		out[chainID] = addrs
	}
	return out
}
