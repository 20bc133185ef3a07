// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package payment implements the Payment Matcher state machine (C6,
// §4.6): observed ERC-20/native transfers to a custodial wallet are
// matched against PENDING PaymentRequest rows by a fixed strategy
// chain, transitioning the winning request to MATCHED.
package payment

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/hedgeledger/chainindexer/internal/decode"
	"github.com/hedgeledger/chainindexer/internal/logging"
	"github.com/hedgeledger/chainindexer/internal/metrics"
	"github.com/hedgeledger/chainindexer/internal/store"
)

// Persister is the narrow slice of *store.Store the Matcher depends
// on, so tests substitute an in-memory fake instead of a live
// Postgres pool (the same DB-mocking-gap pattern as internal/indexer
// and internal/poolworker).
type Persister interface {
	IsTxAlreadyMatched(ctx context.Context, txHash common.Hash) (bool, error)
	PendingRequests(ctx context.Context) ([]store.PaymentRequest, error)
	UniqueAmountInUse(ctx context.Context, kind store.PaymentRequestKind, amount *uint256.Int) (bool, error)
	MatchPayment(ctx context.Context, requestID int64, txHash common.Hash, blockNumber uint64, from common.Address, amount *uint256.Int, strategy store.MatchStrategy) error
	SweepExpired(ctx context.Context) (int64, error)
}

// uniqueToleranceWei is §4.6 strategy (c)'s fixed 1 wei band.
var uniqueToleranceWei = uint256.NewInt(1)

// Matched is emitted on the Matcher's out-bound channel after a
// successful match (§4.6 step 5), for downstream services to drive
// MATCHED -> CONSUMED/FAILED.
type Matched struct {
	RequestID   int64
	TxHash      common.Hash
	BlockNumber uint64
	From        common.Address
	Amount      *uint256.Int
	Strategy    store.MatchStrategy
}

// Matcher consumes decoded transfer events and resolves them against
// pending payment requests.
type Matcher struct {
	store           Persister
	custodial       map[common.Address]struct{}
	walletDecimals  uint8
	walletTolerance *uint256.Int // §4.6 strategy (d)'s 0.1-display-unit band, in wei
	out             chan Matched
	log             logging.Logger
}

// New constructs a Matcher watching transfers into any of
// custodialWallets. decimals controls the WALLET_AMOUNT strategy's
// 0.1-display-unit tolerance (18 for native/most ERC-20s).
func New(st Persister, custodialWallets []common.Address, decimals uint8, log logging.Logger) *Matcher {
	custodial := make(map[common.Address]struct{}, len(custodialWallets))
	for _, w := range custodialWallets {
		custodial[w] = struct{}{}
	}
	return &Matcher{
		store:           st,
		custodial:       custodial,
		walletDecimals:  decimals,
		walletTolerance: walletToleranceWei(decimals),
		out:             make(chan Matched, 256),
		log:             log,
	}
}

// walletToleranceWei computes 0.1 in display units as a wei-scale
// integer: 10^(decimals-1). decimals 0 degrades to an exact-match
// tolerance of 0.
func walletToleranceWei(decimals uint8) *uint256.Int {
	if decimals == 0 {
		return uint256.NewInt(0)
	}
	exp := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)-1), nil)
	out, overflow := uint256.FromBig(exp)
	if overflow {
		return uint256.NewInt(0)
	}
	return out
}

// Matched returns the channel successful matches are published on.
func (m *Matcher) Matched() <-chan Matched { return m.out }

// ConsumeBatch inspects a batch of newly-inserted raw_events rows
// (from an Indexer or Pool broadcast channel, or the native scanner)
// and runs every ERC-20/native Transfer into a custodial wallet
// through the matching algorithm. Non-transfer rows are ignored.
func (m *Matcher) ConsumeBatch(ctx context.Context, events []store.RawEvent) error {
	for _, e := range events {
		if e.DecoderKey != "erc20_transfer_v1" && e.DecoderKey != "native_transfer_v1" {
			continue
		}
		var fields decode.ERC20TransferFields
		if err := decode.Unmarshal(e.Payload, &fields); err != nil {
			m.log.Warn("payment matcher: malformed transfer payload", "tx", e.TxHash.Hex(), "err", err)
			continue
		}
		if _, ok := m.custodial[fields.To]; !ok {
			continue
		}
		amount, ok := new(big.Int).SetString(fields.Amount, 10)
		if !ok {
			m.log.Warn("payment matcher: unparseable transfer amount", "tx", e.TxHash.Hex(), "amount", fields.Amount)
			continue
		}
		amountU, overflow := uint256.FromBig(amount)
		if overflow {
			m.log.Warn("payment matcher: transfer amount overflows uint256", "tx", e.TxHash.Hex())
			continue
		}
		if err := m.matchOne(ctx, fields.From, amountU, e.TxHash, e.BlockNumber); err != nil {
			return err
		}
	}
	return nil
}

// matchOne runs the §4.6 step 1-5 algorithm for one observed transfer.
func (m *Matcher) matchOne(ctx context.Context, from common.Address, amount *uint256.Int, txHash common.Hash, blockNumber uint64) error {
	already, err := m.store.IsTxAlreadyMatched(ctx, txHash)
	if err != nil {
		return err
	}
	if already {
		return nil
	}

	pending, err := m.store.PendingRequests(ctx)
	if err != nil {
		return err
	}

	req, strategy, ok := selectMatch(pending, from, amount, m.walletTolerance)
	if !ok {
		m.log.Info("payment matcher: no match for observed transfer",
			"from", from.Hex(), "amount", amount.Dec(), "pendingCount", len(pending))
		return nil
	}

	if err := m.store.MatchPayment(ctx, req.ID, txHash, blockNumber, from, amount, strategy); err != nil {
		return err
	}
	metrics.MatcherMatchesTotal.WithLabelValues(string(strategy)).Inc()

	select {
	case m.out <- Matched{RequestID: req.ID, TxHash: txHash, BlockNumber: blockNumber, From: from, Amount: amount, Strategy: strategy}:
	default:
		m.log.Warn("payment matcher: matched-events channel full, dropping notification", "requestId", req.ID)
	}
	return nil
}

// selectMatch applies §4.6 step 3's strategy chain in order, returning
// the first pending request that matches.
func selectMatch(pending []store.PaymentRequest, from common.Address, amount, walletTolerance *uint256.Int) (store.PaymentRequest, store.MatchStrategy, bool) {
	for _, r := range pending {
		if r.UniqueAmount != nil && amount.Eq(r.UniqueAmount) {
			return r, store.StrategyUniqueExact, true
		}
	}
	for _, r := range pending {
		if r.ExpectedAmount != nil && amount.Eq(r.ExpectedAmount) {
			return r, store.StrategyRequestedExact, true
		}
	}
	for _, r := range pending {
		if r.UniqueAmount != nil && absDiff(amount, r.UniqueAmount).Cmp(uniqueToleranceWei) <= 0 {
			return r, store.StrategyUniqueTolerance, true
		}
	}
	for _, r := range pending {
		if r.FromWallet == nil || *r.FromWallet != from || r.ExpectedAmount == nil {
			continue
		}
		if absDiff(amount, r.ExpectedAmount).Cmp(walletTolerance) <= 0 {
			return r, store.StrategyWalletAmount, true
		}
	}
	return store.PaymentRequest{}, "", false
}

func absDiff(a, b *uint256.Int) *uint256.Int {
	var out uint256.Int
	if a.Cmp(b) >= 0 {
		out.Sub(a, b)
	} else {
		out.Sub(b, a)
	}
	return &out
}
