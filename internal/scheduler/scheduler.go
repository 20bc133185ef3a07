// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package scheduler implements the Scheduler (C9, §4.9): it is the
// only actor that starts or stops indexer tasks (§5 "Scheduling
// model"), and it drives the five periodic jobs in §4.9's table.
// Every job loop is built on internal/clock the same way the indexer's
// and pool worker's main loops are, so tests drive them with
// clock.Mock instead of racing real timers.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/hedgeledger/chainindexer/internal/chainerr"
	"github.com/hedgeledger/chainindexer/internal/clock"
	"github.com/hedgeledger/chainindexer/internal/logging"
	"github.com/hedgeledger/chainindexer/internal/metrics"
	"github.com/hedgeledger/chainindexer/internal/store"
)

const (
	livenessInterval       = 30 * time.Second
	priceRefreshInterval   = 5 * time.Minute
	paymentSweepInterval   = 60 * time.Second
	freshnessAlertInterval = 5 * time.Minute

	alertKindCheckpointStale = "checkpoint_stale"
)

// IndexerTask is satisfied by *indexer.Indexer and *poolworker.Pool —
// every long-running ingestion task the Scheduler supervises. Both
// already expose Run(ctx) error as their main-loop entry point, so the
// Scheduler depends on nothing more than that.
type IndexerTask interface {
	Run(ctx context.Context) error
}

// ValuationEngine is the slice of *valuation.Engine the daily
// wallet-snapshot job needs.
type ValuationEngine interface {
	CaptureWalletSnapshot(ctx context.Context, chainID uint64, wallet common.Address) error
}

// PriceWarmer is the slice of *price.Oracle the price-refresh job
// needs.
type PriceWarmer interface {
	PriceUSD(ctx context.Context, chainID uint64, token common.Address, atTime *time.Time) (*uint256.Int, store.PriceSourceTag, error)
}

// Matcher is the slice of *payment.Matcher the expiry-sweep job needs.
type Matcher interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// ChainHeader is the slice of chainclient.Client the freshness-check
// job needs, one per configured chain.
type ChainHeader interface {
	Head(ctx context.Context) (uint64, error)
}

// Persister is the slice of *store.Store the Scheduler needs for
// price warm-up targeting and checkpoint-freshness alerting.
type Persister interface {
	PoolDescriptors(ctx context.Context, chainID uint64) ([]store.PoolDescriptor, error)
	AllCheckpoints(ctx context.Context) ([]store.Checkpoint, error)
	RaiseAlert(ctx context.Context, kind string, chainID uint64, detail string) error
	ResolveAlerts(ctx context.Context, kind string, chainID uint64) error
}

// managedIndexer tracks one registered task's lifecycle state.
type managedIndexer struct {
	name string
	task IndexerTask

	mu      sync.Mutex
	enabled bool
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	lastErr error
	starts  int
}

// IndexerStatus is one row of GET /status/indexers (§6).
type IndexerStatus struct {
	Name    string
	Enabled bool
	Running bool
	Starts  int
	LastErr string
}

// Scheduler owns every registered indexer's start/stop/reset lifecycle
// and drives C9's five periodic jobs.
type Scheduler struct {
	mu       sync.Mutex
	indexers map[string]*managedIndexer
	order    []string

	productionMode           bool
	freshnessThresholdBlocks uint64

	store   Persister
	prices  PriceWarmer
	valuer  ValuationEngine
	matcher Matcher
	clients map[uint64]ChainHeader
	wallets map[uint64][]common.Address

	clock clock.Clock
	log   logging.Logger
}

// New constructs a Scheduler. wallets maps each chain to the tracked
// wallet addresses the daily snapshot job should capture (typically
// the chain's configured custodial wallets).
func New(
	productionMode bool,
	freshnessThresholdBlocks uint64,
	st Persister,
	prices PriceWarmer,
	valuer ValuationEngine,
	matcher Matcher,
	clients map[uint64]ChainHeader,
	wallets map[uint64][]common.Address,
	log logging.Logger,
) *Scheduler {
	return &Scheduler{
		indexers:                 make(map[string]*managedIndexer),
		productionMode:           productionMode,
		freshnessThresholdBlocks: freshnessThresholdBlocks,
		store:                    st,
		prices:                   prices,
		valuer:                   valuer,
		matcher:                  matcher,
		clients:                  clients,
		wallets:                  wallets,
		clock:                    clock.Real{},
		log:                      log,
	}
}

// SetClock overrides the clock driving every job loop; tests use
// clock.Mock so interval waits resolve instantly.
func (s *Scheduler) SetClock(c clock.Clock) { s.clock = c }

// RegisterIndexer adds a supervised task under name (conventionally
// "<chainId>:<contract>:<shard>"). It starts disabled unless
// ProductionMode was set at construction (§4.9 "Environment gating");
// an operator then enables it via StartIndexer.
func (s *Scheduler) RegisterIndexer(name string, task IndexerTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.indexers[name]; !exists {
		s.order = append(s.order, name)
	}
	s.indexers[name] = &managedIndexer{name: name, task: task, enabled: s.productionMode}
}

// Run starts every already-enabled indexer plus the five background
// jobs, and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	for _, name := range s.order {
		mi := s.indexers[name]
		mi.mu.Lock()
		enabled := mi.enabled
		mi.mu.Unlock()
		if enabled {
			s.startLocked(ctx, mi)
		}
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	periodic := []struct {
		name     string
		interval time.Duration
		fn       func(context.Context) error
	}{
		{"indexer-liveness", livenessInterval, s.runLivenessCheck},
		{"price-refresh", priceRefreshInterval, s.runPriceRefresh},
		{"payment-sweep", paymentSweepInterval, s.runPaymentSweep},
		{"checkpoint-freshness", freshnessAlertInterval, s.runFreshnessCheck},
	}
	for _, j := range periodic {
		wg.Add(1)
		go func(name string, interval time.Duration, fn func(context.Context) error) {
			defer wg.Done()
			s.runPeriodic(ctx, name, interval, fn)
		}(j.name, j.interval, j.fn)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.runDaily(ctx, "wallet-snapshot", s.runWalletSnapshot)
	}()

	<-ctx.Done()
	wg.Wait()
}

// runPeriodic runs fn immediately, then every interval, until ctx is
// cancelled or the clock's Sleep returns an error.
func (s *Scheduler) runPeriodic(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) {
	for {
		if err := fn(ctx); err != nil {
			s.log.Warn("scheduler job failed", "job", name, "err", err)
		}
		if err := s.clock.Sleep(ctx, interval); err != nil {
			return
		}
	}
}

// runDaily waits for the next UTC midnight, then runs fn every 24h.
func (s *Scheduler) runDaily(ctx context.Context, name string, fn func(context.Context) error) {
	if err := s.clock.Sleep(ctx, untilNextUTCMidnight(s.clock.Now())); err != nil {
		return
	}
	s.runPeriodic(ctx, name, 24*time.Hour, fn)
}

func untilNextUTCMidnight(now time.Time) time.Duration {
	n := now.UTC()
	next := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
	return next.Sub(n)
}

// startLocked starts mi's task in a fresh goroutine if it isn't
// already running. Caller need not hold s.mu, but must not call this
// concurrently for the same mi from outside the Scheduler's own
// lifecycle methods.
func (s *Scheduler) startLocked(ctx context.Context, mi *managedIndexer) {
	mi.mu.Lock()
	if mi.running {
		mi.mu.Unlock()
		return
	}
	taskCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	mi.cancel = cancel
	mi.done = done
	mi.running = true
	mi.starts++
	mi.mu.Unlock()

	go func() {
		defer close(done)
		err := mi.task.Run(taskCtx)
		mi.mu.Lock()
		mi.running = false
		mi.lastErr = err
		mi.mu.Unlock()
	}()
}

// runLivenessCheck restarts any enabled indexer whose task goroutine
// has exited (§4.9 "Restart any crashed indexer task").
func (s *Scheduler) runLivenessCheck(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range s.order {
		mi := s.indexers[name]
		mi.mu.Lock()
		crashed := mi.enabled && !mi.running
		mi.mu.Unlock()
		if crashed {
			s.log.Warn("scheduler: restarting crashed indexer", "name", name)
			s.startLocked(ctx, mi)
		}
	}
	return nil
}

// StartIndexer enables and starts name (§6 POST
// /admin/indexers/{name}/start).
func (s *Scheduler) StartIndexer(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mi, ok := s.indexers[name]
	if !ok {
		return fmt.Errorf("scheduler: unknown indexer %q", name)
	}
	mi.mu.Lock()
	mi.enabled = true
	mi.mu.Unlock()
	s.startLocked(ctx, mi)
	return nil
}

// StopIndexer disables name and cancels its running task, if any
// (§6 POST /admin/indexers/{name}/stop).
func (s *Scheduler) StopIndexer(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mi, ok := s.indexers[name]
	if !ok {
		return fmt.Errorf("scheduler: unknown indexer %q", name)
	}
	mi.mu.Lock()
	mi.enabled = false
	if mi.cancel != nil {
		mi.cancel()
	}
	mi.mu.Unlock()
	return nil
}

// ResetIndexer stops name, waits for its task goroutine to exit, then
// re-enables and restarts it (§6 POST /admin/indexers/{name}/reset).
func (s *Scheduler) ResetIndexer(ctx context.Context, name string) error {
	s.mu.Lock()
	mi, ok := s.indexers[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("scheduler: unknown indexer %q", name)
	}
	mi.mu.Lock()
	cancel, done := mi.cancel, mi.done
	mi.mu.Unlock()
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	mi.mu.Lock()
	mi.enabled = true
	mi.mu.Unlock()
	s.startLocked(ctx, mi)
	return nil
}

// IndexerStatus lists every registered indexer's current state, for
// GET /status/indexers.
func (s *Scheduler) IndexerStatus() []IndexerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]IndexerStatus, 0, len(s.order))
	for _, name := range s.order {
		mi := s.indexers[name]
		mi.mu.Lock()
		st := IndexerStatus{Name: name, Enabled: mi.enabled, Running: mi.running, Starts: mi.starts}
		if mi.lastErr != nil {
			st.LastErr = mi.lastErr.Error()
		}
		mi.mu.Unlock()
		out = append(out, st)
	}
	return out
}

// runPriceRefresh warms the price cache for every token referenced by
// an active pool on every configured chain (§4.9 "Price cache
// refresh").
func (s *Scheduler) runPriceRefresh(ctx context.Context) error {
	for chainID := range s.clients {
		pools, err := s.store.PoolDescriptors(ctx, chainID)
		if err != nil {
			s.log.Warn("scheduler: price refresh could not load pools", "chain", chainID, "err", err)
			continue
		}
		for tok := range trackedTokens(pools).Iter() {
			if _, _, err := s.prices.PriceUSD(ctx, chainID, tok, nil); err != nil && !errors.Is(err, chainerr.ErrNoPrice) {
				s.log.Warn("scheduler: price refresh failed", "chain", chainID, "token", tok.Hex(), "err", err)
			}
		}
	}
	return nil
}

// trackedTokens de-duplicates every token0/token1 address across
// pools, grounded on the same set-based dedup idiom C6 uses for
// custodial wallet membership.
func trackedTokens(pools []store.PoolDescriptor) mapset.Set[common.Address] {
	set := mapset.NewThreadUnsafeSet[common.Address]()
	for _, p := range pools {
		set.Add(p.Token0)
		set.Add(p.Token1)
	}
	return set
}

// runPaymentSweep expires stale payment requests (§4.9 "Payment
// expiry sweep", delegated to §4.6's Matcher.SweepExpired).
func (s *Scheduler) runPaymentSweep(ctx context.Context) error {
	n, err := s.matcher.SweepExpired(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: payment sweep: %w", err)
	}
	if n > 0 {
		s.log.Info("scheduler: swept expired payment requests", "count", n)
	}
	return nil
}

// runWalletSnapshot captures every tracked wallet's balances (§4.9
// "Daily wallet snapshot").
func (s *Scheduler) runWalletSnapshot(ctx context.Context) error {
	for chainID, wallets := range s.wallets {
		for _, w := range wallets {
			if err := s.valuer.CaptureWalletSnapshot(ctx, chainID, w); err != nil {
				s.log.Warn("scheduler: wallet snapshot failed", "chain", chainID, "wallet", w.Hex(), "err", err)
			}
		}
	}
	return nil
}

// runFreshnessCheck compares each checkpoint's lag against the
// configured threshold, raising or resolving an OperatorAlert
// accordingly (§4.9 "Checkpoint freshness alert").
func (s *Scheduler) runFreshnessCheck(ctx context.Context) error {
	checkpoints, err := s.store.AllCheckpoints(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: freshness check: loading checkpoints: %w", err)
	}

	heads := make(map[uint64]uint64)
	for _, cp := range checkpoints {
		head, ok := heads[cp.ChainID]
		if !ok {
			client, ok := s.clients[cp.ChainID]
			if !ok {
				continue
			}
			h, err := client.Head(ctx)
			if err != nil {
				s.log.Warn("scheduler: freshness check head lookup failed", "chain", cp.ChainID, "err", err)
				continue
			}
			head = h
			heads[cp.ChainID] = head
		}

		lag := int64(head) - int64(cp.LastProcessedBlock)
		metrics.IndexerLagBlocks.WithLabelValues(
			strconv.FormatUint(cp.ChainID, 10), cp.ContractAddress.Hex(), cp.ShardKey,
		).Set(float64(lag))

		if lag > int64(s.freshnessThresholdBlocks) {
			detail := fmt.Sprintf("contract=%s shard=%s head=%d lastDone=%d lag=%d",
				cp.ContractAddress.Hex(), cp.ShardKey, head, cp.LastProcessedBlock, lag)
			if err := s.store.RaiseAlert(ctx, alertKindCheckpointStale, cp.ChainID, detail); err != nil {
				s.log.Warn("scheduler: raising freshness alert failed", "chain", cp.ChainID, "err", err)
			}
			continue
		}
		if err := s.store.ResolveAlerts(ctx, alertKindCheckpointStale, cp.ChainID); err != nil {
			s.log.Warn("scheduler: resolving freshness alert failed", "chain", cp.ChainID, "err", err)
		}
	}
	return nil
}
