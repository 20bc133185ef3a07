// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/hedgeledger/chainindexer/internal/chainerr"
)

// CreatePaymentRequest inserts a new PENDING request. The caller
// (internal/payment.ChooseUniqueAmount) is responsible for perturbing
// uniqueAmount until it is unused among the player's other active
// PENDING requests of the same kind; the unique partial index on
// (player_id, kind, unique_amount) WHERE status='PENDING' is the
// authoritative backstop if two callers race.
func (s *Store) CreatePaymentRequest(ctx context.Context, req PaymentRequest) (int64, error) {
	var fromWallet *string
	if req.FromWallet != nil {
		s := addrText(*req.FromWallet)
		fromWallet = &s
	}

	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO payment_requests
			(player_id, kind, status, from_wallet, expected_amount, unique_amount, expires_at, created_at)
		VALUES ($1,$2,'PENDING',$3,$4,$5,$6, now())
		RETURNING id`,
		req.PlayerID, req.Kind, fromWallet,
		numericFromUint256(req.ExpectedAmount), numericFromUint256(req.UniqueAmount), req.ExpiresAt,
	).Scan(&id)
	return id, err
}

// UniqueAmountInUse reports whether amount is already the uniqueAmount
// of another active (PENDING, unexpired) request of the same kind,
// for any player — used while perturbing a new request's uniqueAmount
// until it is collision-free (§4.6 glossary).
func (s *Store) UniqueAmountInUse(ctx context.Context, kind PaymentRequestKind, amount *uint256.Int) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM payment_requests
			WHERE kind = $1 AND status = 'PENDING' AND expires_at > now() AND unique_amount = $2
		)`, kind, numericFromUint256(amount),
	).Scan(&exists)
	return exists, err
}

// PendingRequests returns every unexpired PENDING request, the input
// to the matching algorithm's strategy chain (§4.6 step 2).
func (s *Store) PendingRequests(ctx context.Context) ([]PaymentRequest, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, player_id, kind, status, from_wallet, expected_amount, unique_amount,
		       expires_at, created_at, matched_tx_hash, matched_at
		FROM payment_requests
		WHERE status = 'PENDING' AND expires_at > now()`)
	if err != nil {
		return nil, chainerr.Transient(err)
	}
	defer rows.Close()
	return scanPaymentRequests(rows)
}

func scanPaymentRequests(rows pgx.Rows) ([]PaymentRequest, error) {
	var out []PaymentRequest
	for rows.Next() {
		var r PaymentRequest
		var fromWallet *string
		var expected, unique pgtype.Numeric
		var matchedTxHash *string
		if err := rows.Scan(&r.ID, &r.PlayerID, &r.Kind, &r.Status, &fromWallet,
			&expected, &unique, &r.ExpiresAt, &r.CreatedAt, &matchedTxHash, &r.MatchedAt); err != nil {
			return nil, err
		}
		if fromWallet != nil {
			a := parseAddr(*fromWallet)
			r.FromWallet = &a
		}
		if matchedTxHash != nil {
			h := parseHash(*matchedTxHash)
			r.MatchedTxHash = &h
		}
		var err error
		if r.ExpectedAmount, err = uint256FromNumeric(expected); err != nil {
			return nil, err
		}
		if r.UniqueAmount, err = uint256FromNumeric(unique); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetPaymentRequest returns a single request by id, for GET
// /payments/requests/{id}.
func (s *Store) GetPaymentRequest(ctx context.Context, id int64) (*PaymentRequest, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, player_id, kind, status, from_wallet, expected_amount, unique_amount,
		       expires_at, created_at, matched_tx_hash, matched_at
		FROM payment_requests WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list, err := scanPaymentRequests(rows)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, pgx.ErrNoRows
	}
	return &list[0], nil
}

// ErrAlreadyMatched is returned by MatchPaymentTx if txHash was already
// consumed by a prior MatchedTransfer row (§4.6 step 1's guard,
// enforced at the DB layer so two racing matcher passes can't both
// succeed for the same transfer).
var ErrAlreadyMatched = errors.New("transfer tx hash already matched")

// MatchPaymentTx transactionally inserts a MatchedTransfer and
// transitions the corresponding request PENDING -> MATCHED (§4.6 step
// 4). It re-checks the request is still PENDING under a row lock, so
// two concurrent matches racing on the same request can't both win.
func MatchPaymentTx(ctx context.Context, tx pgx.Tx, requestID int64, txHash common.Hash, blockNumber uint64, from common.Address, amount *uint256.Int, strategy MatchStrategy) error {
	var alreadyMatched bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM matched_transfers WHERE tx_hash=$1)`,
		hashText(txHash)).Scan(&alreadyMatched); err != nil {
		return err
	}
	if alreadyMatched {
		return ErrAlreadyMatched
	}

	var status string
	if err := tx.QueryRow(ctx, `SELECT status FROM payment_requests WHERE id=$1 FOR UPDATE`, requestID).
		Scan(&status); err != nil {
		return err
	}
	if status != string(PaymentStatusPending) {
		return errors.New("payment request is no longer pending")
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO matched_transfers (request_id, tx_hash, block_number, from_address, amount, matched_at, match_strategy)
		VALUES ($1,$2,$3,$4,$5, now(), $6)`,
		requestID, hashText(txHash), blockNumber, addrText(from), numericFromUint256(amount), strategy); err != nil {
		return err
	}

	_, err := tx.Exec(ctx, `
		UPDATE payment_requests SET status='MATCHED', matched_tx_hash=$2, matched_at=now()
		WHERE id=$1`, requestID, hashText(txHash))
	return err
}

// MatchPayment wraps MatchPaymentTx in its own transaction, for
// callers (internal/payment.Matcher) that don't otherwise need an
// open pgx.Tx of their own.
func (s *Store) MatchPayment(ctx context.Context, requestID int64, txHash common.Hash, blockNumber uint64, from common.Address, amount *uint256.Int, strategy MatchStrategy) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		return MatchPaymentTx(ctx, tx, requestID, txHash, blockNumber, from, amount, strategy)
	})
}

// IsTxAlreadyMatched is the cheap existence check in §4.6 step 1,
// consulted before the more expensive pending-request scan.
func (s *Store) IsTxAlreadyMatched(ctx context.Context, txHash common.Hash) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM matched_transfers WHERE tx_hash=$1)`,
		hashText(txHash)).Scan(&exists)
	return exists, err
}

// SweepExpired transitions every PENDING request whose expiresAt has
// passed to EXPIRED (§4.6's 60s expiry sweep) and returns how many
// rows were affected.
func (s *Store) SweepExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE payment_requests SET status = 'EXPIRED'
		WHERE status = 'PENDING' AND expires_at <= now()`)
	if err != nil {
		return 0, chainerr.Transient(err)
	}
	return tag.RowsAffected(), nil
}

// TransitionPaymentStatus moves a MATCHED request to CONSUMED or
// FAILED; driven by downstream services per §4.6 ("Only PENDING ->
// MATCHED is driven by this component").
func (s *Store) TransitionPaymentStatus(ctx context.Context, id int64, from, to PaymentRequestStatus) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE payment_requests SET status=$3 WHERE id=$1 AND status=$2`, id, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.New("no payment request in the expected source status")
	}
	return nil
}
