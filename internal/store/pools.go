// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

// UpsertPoolDescriptor inserts or refreshes the static configuration
// for (chainID, poolID, version) (§3); called from the config-driven
// subscription bootstrap rather than from decoded events.
func (s *Store) UpsertPoolDescriptor(ctx context.Context, p PoolDescriptor) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pool_descriptors (chain_id, pool_id, lp_token, token0, token1, master_contract, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (chain_id, pool_id, version) DO UPDATE SET
			lp_token = EXCLUDED.lp_token,
			token0 = EXCLUDED.token0,
			token1 = EXCLUDED.token1,
			master_contract = EXCLUDED.master_contract`,
		p.ChainID, p.PoolID, addrText(p.LpToken), addrText(p.Token0), addrText(p.Token1),
		addrText(p.MasterContract), p.Version)
	return err
}

// PoolDescriptors lists every configured pool for a chain, used for
// DEX-derived pricing, price warm-up, wallet-snapshot key tokens and
// indexer wiring.
func (s *Store) PoolDescriptors(ctx context.Context, chainID uint64) ([]PoolDescriptor, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT chain_id, pool_id, lp_token, token0, token1, master_contract, version
		FROM pool_descriptors WHERE chain_id = $1`, chainID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PoolDescriptor
	for rows.Next() {
		var p PoolDescriptor
		var lp, t0, t1, mc string
		if err := rows.Scan(&p.ChainID, &p.PoolID, &lp, &t0, &t1, &mc, &p.Version); err != nil {
			return nil, err
		}
		p.LpToken, p.Token0, p.Token1, p.MasterContract = parseAddr(lp), parseAddr(t0), parseAddr(t1), parseAddr(mc)
		out = append(out, p)
	}
	return out, rows.Err()
}

// PoolDescriptorsByPoolID returns every version's descriptor row for a
// logical (chainID, poolID) — typically one row, or two when the same
// pool migrated from Master Gardener V1 to V2 and both still accept
// deposits, per §4.8's "V1 and V2 staked amounts for the same
// underlying LP are summed" requirement.
func (s *Store) PoolDescriptorsByPoolID(ctx context.Context, chainID uint64, poolID uint32) ([]PoolDescriptor, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT chain_id, pool_id, lp_token, token0, token1, master_contract, version
		FROM pool_descriptors WHERE chain_id = $1 AND pool_id = $2
		ORDER BY version`, chainID, poolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PoolDescriptor
	for rows.Next() {
		var p PoolDescriptor
		var lp, t0, t1, mc string
		if err := rows.Scan(&p.ChainID, &p.PoolID, &lp, &t0, &t1, &mc, &p.Version); err != nil {
			return nil, err
		}
		p.LpToken, p.Token0, p.Token1, p.MasterContract = parseAddr(lp), parseAddr(t0), parseAddr(t1), parseAddr(mc)
		out = append(out, p)
	}
	return out, rows.Err()
}

// InsertLpPoolState records one reserve/price snapshot (§4.8's 60s
// reserve cache, persisted so valuation history survives a restart).
func (s *Store) InsertLpPoolState(ctx context.Context, st LpPoolState) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO lp_pool_states
			(chain_id, pool_id, as_of, total_lp, reserve0, reserve1, token0_price_usd, token1_price_usd)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		st.ChainID, st.PoolID, st.AsOf, numericFromUint256(st.TotalLp),
		numericFromUint256(st.Reserve0), numericFromUint256(st.Reserve1),
		usdNumeric(st.Token0PriceUSD), usdNumeric(st.Token1PriceUSD))
	return err
}

// LatestLpPoolState returns the most recent snapshot for (chainID,
// poolID), or (nil, false, nil) if none exists yet.
func (s *Store) LatestLpPoolState(ctx context.Context, chainID uint64, poolID uint32) (*LpPoolState, bool, error) {
	var st LpPoolState
	var totalLp, reserve0, reserve1, p0, p1 pgtype.Numeric
	err := s.pool.QueryRow(ctx, `
		SELECT chain_id, pool_id, as_of, total_lp, reserve0, reserve1, token0_price_usd, token1_price_usd
		FROM lp_pool_states
		WHERE chain_id = $1 AND pool_id = $2
		ORDER BY as_of DESC LIMIT 1`,
		chainID, poolID,
	).Scan(&st.ChainID, &st.PoolID, &st.AsOf, &totalLp, &reserve0, &reserve1, &p0, &p1)
	if err != nil {
		if isNoRows(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var convErr error
	if st.TotalLp, convErr = uint256FromNumeric(totalLp); convErr != nil {
		return nil, false, convErr
	}
	if st.Reserve0, convErr = uint256FromNumeric(reserve0); convErr != nil {
		return nil, false, convErr
	}
	if st.Reserve1, convErr = uint256FromNumeric(reserve1); convErr != nil {
		return nil, false, convErr
	}
	if st.Token0PriceUSD, convErr = usdFromNumeric(p0); convErr != nil {
		return nil, false, convErr
	}
	if st.Token1PriceUSD, convErr = usdFromNumeric(p1); convErr != nil {
		return nil, false, convErr
	}
	return &st, true, nil
}
