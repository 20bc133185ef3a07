// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgtype"
)

// InsertWalletSnapshot records one daily balance capture for an
// operator-tracked wallet (§4.9's daily snapshot job).
func (s *Store) InsertWalletSnapshot(ctx context.Context, ws WalletSnapshot) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO wallet_snapshots (chain_id, wallet, as_of, native_balance, erc20_balances)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (chain_id, wallet, as_of) DO NOTHING`,
		ws.ChainID, addrText(ws.Wallet), ws.AsOf, numericFromUint256(ws.NativeBalance), ws.ERC20Balances)
	return err
}

// LatestWalletSnapshot returns the most recent capture for (chainID,
// wallet), or (nil, false, nil) if none has been taken yet.
func (s *Store) LatestWalletSnapshot(ctx context.Context, chainID uint64, wallet common.Address) (*WalletSnapshot, bool, error) {
	var ws WalletSnapshot
	var walletText string
	var balance pgtype.Numeric
	err := s.pool.QueryRow(ctx, `
		SELECT chain_id, wallet, as_of, native_balance, erc20_balances
		FROM wallet_snapshots
		WHERE chain_id = $1 AND wallet = $2
		ORDER BY as_of DESC LIMIT 1`,
		chainID, addrText(wallet),
	).Scan(&ws.ChainID, &walletText, &ws.AsOf, &balance, &ws.ERC20Balances)
	if err != nil {
		if isNoRows(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	ws.Wallet = wallet
	nb, convErr := uint256FromNumeric(balance)
	if convErr != nil {
		return nil, false, convErr
	}
	ws.NativeBalance = nb
	return &ws, true, nil
}

// RaiseAlert inserts a new unresolved OperatorAlert, the durable sink
// behind §7's alerting rules.
func (s *Store) RaiseAlert(ctx context.Context, kind string, chainID uint64, detail string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO operator_alerts (kind, chain_id, detail) VALUES ($1,$2,$3)`,
		kind, chainID, detail)
	return err
}

// ResolveAlerts marks every open alert of (kind, chainID) resolved,
// called once the underlying condition clears.
func (s *Store) ResolveAlerts(ctx context.Context, kind string, chainID uint64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE operator_alerts SET resolved = true
		WHERE kind = $1 AND chain_id = $2 AND NOT resolved`, kind, chainID)
	return err
}

// OpenAlerts lists every unresolved alert, for GET /status/indexers'
// alerts list.
func (s *Store) OpenAlerts(ctx context.Context) ([]OperatorAlert, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, kind, chain_id, detail, raised_at, resolved
		FROM operator_alerts WHERE NOT resolved ORDER BY raised_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OperatorAlert
	for rows.Next() {
		var a OperatorAlert
		if err := rows.Scan(&a.ID, &a.Kind, &a.ChainID, &a.Detail, &a.RaisedAt, &a.Resolved); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
