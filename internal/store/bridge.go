// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// InsertBridgeEventTx records one normalized cross-chain transfer
// (§3) within an already-open transaction, alongside the raw_events
// row the decoder produced it from (same atomicity pattern as
// InsertRawEventsTx). ON CONFLICT DO NOTHING makes a replayed range a
// no-op, matching the indexer's general idempotence law.
func InsertBridgeEventTx(ctx context.Context, tx pgx.Tx, e BridgeEvent) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO bridge_events
			(chain_id, tx_hash, log_index, direction, token_addr, amount, counterparty,
			 counter_chain_id, usd_value_at_event, pricing_source, block_number, block_timestamp)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (chain_id, tx_hash, log_index) DO NOTHING`,
		e.ChainID, hashText(e.TxHash), int(e.LogIndex), e.Direction, addrText(e.TokenAddr),
		numericFromUint256(e.Amount), addrText(e.Counterparty), e.CounterChainID,
		usdNumeric(e.UsdValueAtEvent), e.PricingSource, e.BlockNumber, e.BlockTimestamp)
	return err
}

// BridgeEventsForWallet returns every bridge transfer where counterparty
// matches wallet, across both directions, most recent first.
func (s *Store) BridgeEventsForWallet(ctx context.Context, wallet common.Address) ([]BridgeEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT chain_id, tx_hash, log_index, direction, token_addr, amount, counterparty,
		       counter_chain_id, usd_value_at_event, pricing_source, block_number, block_timestamp
		FROM bridge_events
		WHERE counterparty = $1
		ORDER BY block_timestamp DESC`, addrText(wallet))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BridgeEvent
	for rows.Next() {
		var e BridgeEvent
		var txHash, tokenAddr, counterparty string
		var logIndex int
		var amount, usdValue pgtype.Numeric
		if err := rows.Scan(&e.ChainID, &txHash, &logIndex, &e.Direction, &tokenAddr, &amount,
			&counterparty, &e.CounterChainID, &usdValue, &e.PricingSource, &e.BlockNumber, &e.BlockTimestamp); err != nil {
			return nil, err
		}
		e.TxHash = parseHash(txHash)
		e.LogIndex = uint(logIndex)
		e.TokenAddr = parseAddr(tokenAddr)
		e.Counterparty = parseAddr(counterparty)

		var convErr error
		if e.Amount, convErr = uint256FromNumeric(amount); convErr != nil {
			return nil, convErr
		}
		if e.UsdValueAtEvent, convErr = usdFromNumeric(usdValue); convErr != nil {
			return nil, convErr
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
