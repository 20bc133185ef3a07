// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// isNoRows reports whether err is pgx's no-rows sentinel, the common
// "not found" signal across this package's single-row lookups.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// numericFromUint256 encodes a wei-scale integer as a pgtype.Numeric
// with no fractional exponent, matching the NUMERIC(78,0) columns.
func numericFromUint256(v *uint256.Int) pgtype.Numeric {
	if v == nil {
		return pgtype.Numeric{Valid: false}
	}
	return pgtype.Numeric{Int: v.ToBig(), Exp: 0, Valid: true}
}

// uint256FromNumeric decodes a NUMERIC(78,0) column back into a
// *uint256.Int. Returns an error if the stored value doesn't fit (it
// never should, since every writer uses numericFromUint256).
func uint256FromNumeric(n pgtype.Numeric) (*uint256.Int, error) {
	if !n.Valid {
		return nil, nil
	}
	bi, err := numericToBigInt(n)
	if err != nil {
		return nil, err
	}
	out, overflow := uint256.FromBig(bi)
	if overflow {
		return nil, fmt.Errorf("numeric value %s overflows uint256", bi.String())
	}
	return out, nil
}

func numericToBigInt(n pgtype.Numeric) (*big.Int, error) {
	if n.NaN {
		return nil, fmt.Errorf("NaN numeric value")
	}
	out := new(big.Int).Set(n.Int)
	if n.Exp == 0 {
		return out, nil
	}
	if n.Exp > 0 {
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n.Exp)), nil)
		out.Mul(out, scale)
		return out, nil
	}
	// Negative exponent means fractional digits were stored; our wei
	// columns never carry those, but handle it rather than silently
	// truncating.
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(-n.Exp)), nil)
	out.Div(out, scale)
	return out, nil
}

// usdNumeric encodes a USD value with 6 fractional digits, stored as an
// integer micro-dollar count (matches TokenPrice.PriceUSD /
// LpPoolState's priced columns, which this package treats as
// micro-dollar uint256 values for exactness).
func usdNumeric(v *uint256.Int) pgtype.Numeric {
	if v == nil {
		return pgtype.Numeric{Valid: false}
	}
	return pgtype.Numeric{Int: v.ToBig(), Exp: -6, Valid: true}
}

func usdFromNumeric(n pgtype.Numeric) (*uint256.Int, error) {
	if !n.Valid {
		return nil, nil
	}
	// Re-scale to micro-dollars regardless of the stored exponent.
	scaled := new(big.Int).Set(n.Int)
	shift := n.Exp + 6
	if shift > 0 {
		scaled.Mul(scaled, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(shift)), nil))
	} else if shift < 0 {
		scaled.Div(scaled, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(-shift)), nil))
	}
	out, overflow := uint256.FromBig(scaled)
	if overflow {
		return nil, fmt.Errorf("usd value overflows uint256")
	}
	return out, nil
}

func addrText(a common.Address) string { return a.Hex() }

func hashText(h common.Hash) string { return h.Hex() }

func parseAddr(s string) common.Address { return common.HexToAddress(s) }

func parseHash(s string) common.Hash { return common.HexToHash(s) }

func addrTexts(addrs []common.Address) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = addrText(a)
	}
	return out
}

func hashTexts(hashes []common.Hash) []string {
	out := make([]string, len(hashes))
	for i, h := range hashes {
		out[i] = hashText(h)
	}
	return out
}
