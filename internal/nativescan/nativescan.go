// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package nativescan synthesizes ERC-20-Transfer-shaped records out of
// plain native-value transactions to the configured custodial wallets.
// C6's Matcher assumes native-currency deposits arrive on the same
// stream as decoded Transfer logs (§4.6); since the chain has no log
// event for a native send, this package is the dedicated "native
// scanner" that produces one by walking blocks-with-transactions over
// the same confirmed range the ERC-20 indexer covers.
package nativescan

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/hedgeledger/chainindexer/internal/chainclient"
	"github.com/hedgeledger/chainindexer/internal/decode"
)

// Event pairs a synthesized Record with the identity fields the
// indexer's sink needs to persist it into raw_events alongside
// genuinely decoded logs (chainId/txHash/logIndex/blockNumber): a
// native send has no log index, so the scanner assigns a synthetic one
// derived from the transaction's position in the block, keeping the
// (chainId,txHash,logIndex) uniqueness law intact.
type Event struct {
	Record      decode.Record
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint32
}

// Scanner watches one chain's configured custodial wallets for plain
// native-value transfers.
type Scanner struct {
	client    chainclient.Client
	custodial map[common.Address]struct{}
}

// NewScanner builds a Scanner for client, matching sends to any of
// custodialWallets.
func NewScanner(client chainclient.Client, custodialWallets []common.Address) *Scanner {
	set := make(map[common.Address]struct{}, len(custodialWallets))
	for _, w := range custodialWallets {
		set[w] = struct{}{}
	}
	return &Scanner{client: client, custodial: set}
}

// ScanRange walks blocks [from, to] inclusive and returns a synthetic
// Event for every plain native-value transaction whose recipient is a
// configured custodial wallet. "Plain" excludes contract calls (non-nil
// Data) so ERC-20 Transfers already covered by the log-based indexer
// are never double-counted: a transfer call to a token contract has
// non-empty calldata and zero attached value in the normal case, so
// this filter and the ERC-20 decoder are complementary, not
// overlapping.
func (s *Scanner) ScanRange(ctx context.Context, from, to uint64) ([]Event, error) {
	if from > to {
		return nil, fmt.Errorf("nativescan: invalid range [%d,%d]", from, to)
	}
	if len(s.custodial) == 0 {
		return nil, nil
	}

	var events []Event
	for n := from; n <= to; n++ {
		if err := ctx.Err(); err != nil {
			return events, err
		}
		block, err := s.client.GetBlock(ctx, n, true)
		if err != nil {
			return events, fmt.Errorf("nativescan: get block %d: %w", n, err)
		}
		events = append(events, s.scanBlock(block)...)
	}
	return events, nil
}

func (s *Scanner) scanBlock(block *types.Block) []Event {
	var events []Event
	for i, tx := range block.Transactions() {
		to := tx.To()
		if to == nil {
			continue // contract creation, never a custodial deposit
		}
		if _, ok := s.custodial[*to]; !ok {
			continue
		}
		if tx.Value() == nil || tx.Value().Sign() <= 0 {
			continue
		}
		if len(tx.Data()) != 0 {
			continue // contract interaction, not a plain send
		}

		from, err := senderOf(tx)
		if err != nil {
			continue // unrecoverable sender (malformed signature); skip rather than fail the batch
		}

		fields := decode.ERC20TransferFields{
			Token:  common.Address{},
			From:   from,
			To:     *to,
			Amount: tx.Value().String(),
		}
		rec, err := decode.MarshalNativeTransfer(fields)
		if err != nil {
			continue
		}
		events = append(events, Event{
			Record:      rec,
			BlockNumber: block.NumberU64(),
			TxHash:      tx.Hash(),
			LogIndex:    syntheticLogIndex(uint32(i)),
		})
	}
	return events
}

// syntheticLogIndex maps a transaction's position in the block to a
// log index namespace that can never collide with a real log's index:
// real topic0 logs are addressed 0..len(receipt.Logs)-1 per tx, well
// under this offset for any block this indexer will see.
func syntheticLogIndex(txPosition uint32) uint32 {
	const nativeLogIndexBase = 1 << 20
	return nativeLogIndexBase + txPosition
}

func senderOf(tx *types.Transaction) (common.Address, error) {
	signer := types.LatestSignerForChainID(tx.ChainId())
	addr, err := types.Sender(signer, tx)
	if err != nil {
		return common.Address{}, err
	}
	return addr, nil
}
