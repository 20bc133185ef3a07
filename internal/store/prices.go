// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgtype"
)

// InsertTokenPrice records one priced observation (§4.7); historical
// rows are kept rather than upserted so valuation snapshots can cite
// the price that was actually used at the time.
func (s *Store) InsertTokenPrice(ctx context.Context, p TokenPrice) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO token_prices (chain_id, token_addr, as_of, price_usd, source, confidence)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		p.ChainID, addrText(p.TokenAddr), p.AsOf, usdNumeric(p.PriceUSD), p.Source, p.Confidence)
	return err
}

// LatestTokenPrice returns the most recent priced observation for
// (chainID, token), or (nil, false, nil) if the token has never been
// priced. The oracle uses it to find already-priced numeraires for
// DEX-derived pricing.
func (s *Store) LatestTokenPrice(ctx context.Context, chainID uint64, token common.Address) (*TokenPrice, bool, error) {
	var p TokenPrice
	var priceNumeric pgtype.Numeric
	var addr string
	err := s.pool.QueryRow(ctx, `
		SELECT chain_id, token_addr, as_of, price_usd, source, confidence
		FROM token_prices
		WHERE chain_id = $1 AND token_addr = $2
		ORDER BY as_of DESC LIMIT 1`,
		chainID, addrText(token),
	).Scan(&p.ChainID, &addr, &p.AsOf, &priceNumeric, &p.Source, &p.Confidence)
	if err != nil {
		if isNoRows(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	p.TokenAddr = parseAddr(addr)
	usd, convErr := usdFromNumeric(priceNumeric)
	if convErr != nil {
		return nil, false, convErr
	}
	p.PriceUSD = usd
	return &p, true, nil
}
