// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
)

// InsertRawEventsTx inserts a batch of decoded event rows within an
// already-open transaction, using ON CONFLICT DO NOTHING on the
// (chain_id, tx_hash, log_index) primary key so a replayed range is a
// true no-op (§4.3 step 7, §8 idempotence law). Every row that's
// actually newly inserted also gets its Master-Gardener Deposit/
// Withdraw delta applied to the §3 Stake table in the same transaction
// (applyStakeDeltaFromEventTx); a no-op conflict never re-applies one.
// It returns the rows that were newly inserted, in input order, for
// the caller to forward onto the per-indexer broadcast channel (§4.3
// step 8).
func InsertRawEventsTx(ctx context.Context, tx pgx.Tx, events []RawEvent) ([]RawEvent, error) {
	if len(events) == 0 {
		return nil, nil
	}

	inserted := make([]RawEvent, 0, len(events))
	for _, e := range events {
		var returnedLogIndex int
		err := tx.QueryRow(ctx, `
			INSERT INTO raw_events
				(chain_id, block_number, block_timestamp, tx_hash, log_index,
				 contract_address, topic0, decoder_key, payload, ingested_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9, now())
			ON CONFLICT (chain_id, tx_hash, log_index) DO NOTHING
			RETURNING log_index`,
			e.ChainID, e.BlockNumber, e.BlockTimestamp, hashText(e.TxHash), int(e.LogIndex),
			addrText(e.ContractAddress), hashText(e.Topic0), e.DecoderKey, e.Payload,
		).Scan(&returnedLogIndex)
		if err == pgx.ErrNoRows {
			continue // conflict: already ingested, at-most-once preserved
		}
		if err != nil {
			return nil, err
		}
		if err := applyStakeDeltaFromEventTx(ctx, tx, e); err != nil {
			return nil, err
		}
		inserted = append(inserted, e)
	}
	return inserted, nil
}

// CommitEventBatch is the atomic unit the indexer framework (§4.3 step
// 7) needs: insert a batch of decoded rows and advance the owning
// checkpoint within one transaction, returning the rows that were
// newly inserted so the caller can forward them to its broadcast
// channel. It never partially applies: either both the rows and the
// checkpoint advance commit, or neither does.
func (s *Store) CommitEventBatch(ctx context.Context, chainID uint64, contract common.Address, shardKey string, events []RawEvent, newCheckpoint uint64) ([]RawEvent, error) {
	var inserted []RawEvent
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		ins, err := InsertRawEventsTx(ctx, tx, events)
		if err != nil {
			return err
		}
		inserted = ins
		return AdvanceCheckpointTx(ctx, tx, chainID, contract, shardKey, newCheckpoint)
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

// InsertEvents inserts a batch of decoded rows in their own transaction
// without touching any checkpoint, for C4's work-stealing partitioner
// (§4.4): a worker ingests its sub-range's events as it goes, and only
// the pool as a whole advances the shared per-pool checkpoint once
// every worker (including any it stole from) has caught up.
func (s *Store) InsertEvents(ctx context.Context, events []RawEvent) ([]RawEvent, error) {
	var inserted []RawEvent
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		ins, err := InsertRawEventsTx(ctx, tx, events)
		inserted = ins
		return err
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

// AdvanceCheckpoint advances a checkpoint outside of any caller-managed
// transaction, for C4's end-of-partition single checkpoint commit.
func (s *Store) AdvanceCheckpoint(ctx context.Context, chainID uint64, contract common.Address, shardKey string, newBlock uint64) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		return AdvanceCheckpointTx(ctx, tx, chainID, contract, shardKey, newBlock)
	})
}

// RawEventsByHeroID lists every quest-reward-mint row tagged with
// heroId, most recent first, for GET /rewards/hero/{heroId} (§6).
func (s *Store) RawEventsByHeroID(ctx context.Context, heroID string) ([]RawEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT chain_id, block_number, block_timestamp, tx_hash, log_index,
		       contract_address, topic0, decoder_key, payload, ingested_at
		FROM raw_events
		WHERE decoder_key = 'quest_reward_mint_v1' AND payload->>'heroId' = $1
		ORDER BY block_number DESC`, heroID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RawEvent
	for rows.Next() {
		var e RawEvent
		var txHash, contract, topic0 string
		if err := rows.Scan(&e.ChainID, &e.BlockNumber, &e.BlockTimestamp, &txHash, &e.LogIndex,
			&contract, &topic0, &e.DecoderKey, &e.Payload, &e.IngestedAt); err != nil {
			return nil, err
		}
		e.TxHash, e.ContractAddress, e.Topic0 = parseHash(txHash), parseAddr(contract), parseHash(topic0)
		out = append(out, e)
	}
	return out, rows.Err()
}

// MaxEventBlock returns the highest block_number among event rows for
// (chainID, contract), the bound of §8 invariant 2 (checkpoint <=
// max(blockNumber) of written events).
func (s *Store) MaxEventBlock(ctx context.Context, chainID uint64, contractAddr string) (uint64, bool, error) {
	var max uint64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(block_number), 0) FROM raw_events
		WHERE chain_id = $1 AND contract_address = $2`, chainID, contractAddr,
	).Scan(&max)
	if err != nil {
		return 0, false, err
	}
	return max, max > 0, nil
}

// CountEventsInRange counts rows for (chainID, contract) within
// [fromBlock, toBlock]; comparing counts before and after a re-scan
// shows whether it inserted new rows.
func (s *Store) CountEventsInRange(ctx context.Context, chainID uint64, contractAddr string, fromBlock, toBlock uint64) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM raw_events
		WHERE chain_id = $1 AND contract_address = $2
		  AND block_number BETWEEN $3 AND $4`, chainID, contractAddr, fromBlock, toBlock,
	).Scan(&count)
	return count, err
}
