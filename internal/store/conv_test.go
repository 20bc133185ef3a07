// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"
)

func TestNumericRoundTripUint256(t *testing.T) {
	cases := []string{
		"0",
		"1",
		"1000000000000000000",
		uint256.MustFromHex("0xffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff").Dec(),
	}
	for _, c := range cases {
		v, ok := new(big.Int).SetString(c, 10)
		require.True(t, ok)
		u, overflow := uint256.FromBig(v)
		require.False(t, overflow)

		n := numericFromUint256(u)
		back, err := uint256FromNumeric(n)
		require.NoError(t, err)
		require.Equal(t, u.Dec(), back.Dec())
	}
}

func TestNumericFromUint256Nil(t *testing.T) {
	n := numericFromUint256(nil)
	require.False(t, n.Valid)

	back, err := uint256FromNumeric(n)
	require.NoError(t, err)
	require.Nil(t, back)
}

func TestUsdNumericRoundTrip(t *testing.T) {
	// $1.234567
	v := uint256.NewInt(1234567)
	n := usdNumeric(v)
	require.Equal(t, int32(-6), n.Exp)

	back, err := usdFromNumeric(n)
	require.NoError(t, err)
	require.Equal(t, v.Dec(), back.Dec())
}

func TestUsdFromNumericRescalesDifferentExponent(t *testing.T) {
	// Stored as $1.23 (Exp -2) should rescale to 1_230_000 micro-dollars.
	n := pgtype.Numeric{Int: big.NewInt(123), Exp: -2, Valid: true}
	back, err := usdFromNumeric(n)
	require.NoError(t, err)
	require.Equal(t, "1230000", back.Dec())
}

func TestAddrHashTextRoundTrip(t *testing.T) {
	addr := common.HexToAddress("0x000000000000000000000000000000deadbeef")
	require.Equal(t, addr, parseAddr(addrText(addr)))

	h := common.HexToHash("0x01")
	require.Equal(t, h, parseHash(hashText(h)))
}

func TestNumericToBigIntRejectsNaN(t *testing.T) {
	_, err := numericToBigInt(pgtype.Numeric{NaN: true})
	require.Error(t, err)
}
