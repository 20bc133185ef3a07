// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// UpsertContractSubscription inserts or refreshes one (chainID,
// address, decoderKey) indexing target (§3); called from the
// config-driven subscription bootstrap so operators can add a new
// contract without a schema change.
func (s *Store) UpsertContractSubscription(ctx context.Context, sub ContractSubscription) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO contract_subscriptions (chain_id, address, start_block, topics, decoder_key, enabled)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (chain_id, address, decoder_key) DO UPDATE SET
			start_block = EXCLUDED.start_block,
			topics = EXCLUDED.topics,
			enabled = EXCLUDED.enabled`,
		sub.ChainID, addrText(sub.Address), sub.StartBlock, hashTexts(sub.Topics), sub.DecoderKey, sub.Enabled)
	return err
}

// ContractSubscriptions lists every configured subscription for a
// chain, used at startup to bootstrap both the per-contract Indexers
// (C3) and the decode.Registry (C5).
func (s *Store) ContractSubscriptions(ctx context.Context, chainID uint64) ([]ContractSubscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT chain_id, address, start_block, topics, decoder_key, enabled
		FROM contract_subscriptions WHERE chain_id = $1`, chainID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ContractSubscription
	for rows.Next() {
		var sub ContractSubscription
		var addr string
		var topics []string
		if err := rows.Scan(&sub.ChainID, &addr, &sub.StartBlock, &topics, &sub.DecoderKey, &sub.Enabled); err != nil {
			return nil, err
		}
		sub.Address = parseAddr(addr)
		sub.Topics = make([]common.Hash, len(topics))
		for i, t := range topics {
			sub.Topics[i] = parseHash(t)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}
