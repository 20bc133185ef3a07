// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
)

// stakeDeltaDecoderKeys maps each Master-Gardener deposit/withdraw
// decoder_key (internal/decode's decodeStakeEvent, both versions) to
// whether it withdraws LP rather than deposits it; RewardPaid doesn't
// move LP stake and is intentionally absent.
var stakeDeltaDecoderKeys = map[string]bool{
	"mg_v1_deposit":  false,
	"mg_v1_withdraw": true,
	"mg_v2_deposit":  false,
	"mg_v2_withdraw": true,
}

// stakeEventPayload mirrors the JSON shape of decode.StakeEventFields.
// internal/store can't import internal/decode (decode already imports
// store for the types its decoders produce), so it reads the three
// fields it needs directly off the wire payload — the same approach
// RawEventsByHeroID already takes with payload->>'heroId'.
type stakeEventPayload struct {
	User   string `json:"user"`
	PoolID uint32 `json:"poolId"`
	Amount string `json:"amount"`
}

// stakeDelta is the pure result of recognizing and parsing a staking
// event, kept separate from applyStakeDeltaFromEventTx's DB call so
// the parsing/validation logic is unit-testable without a live
// transaction (the same DB-mocking-gap reasoning as the rest of this
// package).
type stakeDelta struct {
	poolID   uint32
	wallet   common.Address
	amount   *uint256.Int
	negative bool
}

// parseStakeDelta recognizes e as a Master-Gardener Deposit/Withdraw
// row and parses its payload, or reports ok=false for any other
// decoder_key (a no-op, not an error).
func parseStakeDelta(e RawEvent) (d stakeDelta, ok bool, err error) {
	negative, recognized := stakeDeltaDecoderKeys[e.DecoderKey]
	if !recognized {
		return stakeDelta{}, false, nil
	}

	var p stakeEventPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return stakeDelta{}, false, fmt.Errorf("stake event tx %s: decoding payload: %w", e.TxHash.Hex(), err)
	}

	amount, ok := new(big.Int).SetString(p.Amount, 10)
	if !ok {
		return stakeDelta{}, false, fmt.Errorf("stake event tx %s: unparseable amount %q", e.TxHash.Hex(), p.Amount)
	}
	delta, overflow := uint256.FromBig(amount)
	if overflow {
		return stakeDelta{}, false, fmt.Errorf("stake event tx %s: amount overflows uint256", e.TxHash.Hex())
	}

	return stakeDelta{poolID: p.PoolID, wallet: common.HexToAddress(p.User), amount: delta, negative: negative}, true, nil
}

// applyStakeDeltaFromEventTx materializes the §3 Stake table from a
// single newly-inserted Master-Gardener Deposit/Withdraw row, within
// the same transaction as that row's own insert. Doing it here, rather
// than from a separate broadcast-channel consumer, means a Stake
// update can never be committed for an event that itself didn't
// durably insert, and — since InsertRawEventsTx only ever calls this
// for rows it just inserted, never for an ON CONFLICT no-op — a
// replayed range can never double-apply a deposit or withdrawal.
// Decoder keys this function doesn't recognize (every non-staking
// event) are a no-op.
func applyStakeDeltaFromEventTx(ctx context.Context, tx pgx.Tx, e RawEvent) error {
	d, ok, err := parseStakeDelta(e)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return ApplyStakeDeltaTx(ctx, tx, e.ChainID, d.poolID, d.wallet, d.amount, d.negative)
}
