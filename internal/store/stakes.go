// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// ApplyStakeDeltaTx adds delta (or subtracts it, if negative is true)
// from the wallet's staked LP for (chainID, poolID) within an
// already-open transaction. Called from applyStakeDeltaFromEventTx for
// every newly-inserted Master-Gardener Deposit/Withdraw row, in the
// same transaction as that row's own insert. A withdrawal that would
// drive the balance below zero is a permanent error (§3's non-negative
// invariant) rather than a silent clamp, since it indicates a decode
// bug or an event processed out of order.
func ApplyStakeDeltaTx(ctx context.Context, tx pgx.Tx, chainID uint64, poolID uint32, wallet common.Address, delta *uint256.Int, negative bool) error {
	var current uint256.Int
	var currentNumeric pgtype.Numeric
	err := tx.QueryRow(ctx, `
		SELECT lp_amount FROM stakes
		WHERE chain_id=$1 AND pool_id=$2 AND wallet_address=$3 FOR UPDATE`,
		chainID, poolID, addrText(wallet)).Scan(&currentNumeric)
	exists := err == nil
	if err != nil && err != pgx.ErrNoRows {
		return err
	}
	if exists {
		v, convErr := uint256FromNumeric(currentNumeric)
		if convErr != nil {
			return convErr
		}
		current = *v
	}

	var newAmount uint256.Int
	if negative {
		if current.Lt(delta) {
			return fmt.Errorf("stake withdrawal for chain=%d pool=%d wallet=%s would go negative: have=%s want=%s",
				chainID, poolID, wallet.Hex(), current.Dec(), delta.Dec())
		}
		newAmount.Sub(&current, delta)
	} else {
		newAmount.Add(&current, delta)
	}

	if exists {
		_, err = tx.Exec(ctx, `
			UPDATE stakes SET lp_amount=$4, updated_at=now()
			WHERE chain_id=$1 AND pool_id=$2 AND wallet_address=$3`,
			chainID, poolID, addrText(wallet), numericFromUint256(&newAmount))
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO stakes (chain_id, pool_id, wallet_address, lp_amount, updated_at, first_seen_at)
		VALUES ($1,$2,$3,$4, now(), now())`,
		chainID, poolID, addrText(wallet), numericFromUint256(&newAmount))
	return err
}

// ScanStakesForPool returns every staked wallet for (chainID, poolID).
// The valuation engine (C8, §4.8) sums these to scale a pool's reserve
// value down to its staked fraction.
func (s *Store) ScanStakesForPool(ctx context.Context, chainID uint64, poolID uint32) ([]Stake, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT wallet_address, lp_amount, updated_at, first_seen_at
		FROM stakes WHERE chain_id=$1 AND pool_id=$2`, chainID, poolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Stake
	for rows.Next() {
		var addr string
		var amt pgtype.Numeric
		st := Stake{ChainID: chainID, PoolID: poolID}
		if err := rows.Scan(&addr, &amt, &st.UpdatedAt, &st.FirstSeenAt); err != nil {
			return nil, err
		}
		st.WalletAddress = parseAddr(addr)
		v, err := uint256FromNumeric(amt)
		if err != nil {
			return nil, err
		}
		st.LpAmount = v
		out = append(out, st)
	}
	return out, rows.Err()
}

// StakesForWallet returns every pool the wallet has a position in,
// across all chains, for GET /wallets/{addr}/stakes.
func (s *Store) StakesForWallet(ctx context.Context, wallet common.Address) ([]Stake, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT chain_id, pool_id, lp_amount, updated_at, first_seen_at
		FROM stakes WHERE wallet_address=$1 AND lp_amount > 0`, addrText(wallet))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Stake
	for rows.Next() {
		var amt pgtype.Numeric
		st := Stake{WalletAddress: wallet}
		if err := rows.Scan(&st.ChainID, &st.PoolID, &amt, &st.UpdatedAt, &st.FirstSeenAt); err != nil {
			return nil, err
		}
		v, err := uint256FromNumeric(amt)
		if err != nil {
			return nil, err
		}
		st.LpAmount = v
		out = append(out, st)
	}
	return out, rows.Err()
}
