// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"github.com/hedgeledger/chainindexer/internal/chainerr"
)

// rowQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ReadCheckpoint returns the last processed block for (chainID,
// contract, shardKey), or (0, false, nil) if no checkpoint row exists
// yet (the indexer then starts from the subscription's startBlock).
func (s *Store) ReadCheckpoint(ctx context.Context, chainID uint64, contract common.Address, shardKey string) (uint64, bool, error) {
	return readCheckpoint(ctx, s.pool, chainID, contract, shardKey)
}

func readCheckpoint(ctx context.Context, q rowQuerier, chainID uint64, contract common.Address, shardKey string) (uint64, bool, error) {
	var last uint64
	err := q.QueryRow(ctx, `
		SELECT last_processed_block FROM checkpoints
		WHERE chain_id = $1 AND contract_address = $2 AND shard_key = $3`,
		chainID, addrText(contract), shardKey,
	).Scan(&last)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, chainerr.Transient(fmt.Errorf("reading checkpoint: %w", err))
	}
	return last, true, nil
}

// AdvanceCheckpointTx advances the checkpoint for (chainID, contract,
// shardKey) to newBlock within an already-open transaction, so callers
// can satisfy §4.2/§4.3's "event rows and checkpoint advance commit
// together" invariant. A regression (newBlock < current) returns
// chainerr.ErrNonMonotonic; newBlock == current is treated as
// idempotent and succeeds without modifying updated_at.
func AdvanceCheckpointTx(ctx context.Context, tx pgx.Tx, chainID uint64, contract common.Address, shardKey string, newBlock uint64) error {
	var current uint64
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT last_processed_block FROM checkpoints
		WHERE chain_id = $1 AND contract_address = $2 AND shard_key = $3
		FOR UPDATE`,
		chainID, addrText(contract), shardKey,
	).Scan(&current)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		exists = false
	case err != nil:
		return fmt.Errorf("locking checkpoint row: %w", err)
	default:
		exists = true
	}

	if exists {
		if newBlock < current {
			return fmt.Errorf("%w: chain=%d contract=%s shard=%s current=%d attempted=%d",
				chainerr.ErrNonMonotonic, chainID, contract.Hex(), shardKey, current, newBlock)
		}
		if newBlock == current {
			return nil // idempotent no-op
		}
		_, err = tx.Exec(ctx, `
			UPDATE checkpoints SET last_processed_block = $4, updated_at = now()
			WHERE chain_id = $1 AND contract_address = $2 AND shard_key = $3`,
			chainID, addrText(contract), shardKey, newBlock)
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO checkpoints (chain_id, contract_address, shard_key, last_processed_block, updated_at)
		VALUES ($1, $2, $3, $4, now())`,
		chainID, addrText(contract), shardKey, newBlock)
	return err
}

// AllCheckpoints lists every checkpoint row, used by the status API
// (§6 GET /status/indexers) and the freshness-alert scheduler job.
func (s *Store) AllCheckpoints(ctx context.Context) ([]Checkpoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT chain_id, contract_address, shard_key, last_processed_block, updated_at
		FROM checkpoints ORDER BY chain_id, contract_address, shard_key`)
	if err != nil {
		return nil, chainerr.Transient(err)
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		var c Checkpoint
		var addr, shard string
		if err := rows.Scan(&c.ChainID, &addr, &shard, &c.LastProcessedBlock, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.ContractAddress = parseAddr(addr)
		c.ShardKey = shard
		out = append(out, c)
	}
	return out, rows.Err()
}
