// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chainclient

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hedgeledger/chainindexer/internal/chainerr"
)

func TestClassifyRPCError(t *testing.T) {
	require.Nil(t, classifyRPCError(nil))

	rangeErr := classifyRPCError(errors.New("query returned more than 10000 results"))
	require.True(t, chainerr.IsRangeTooWide(rangeErr))
	require.True(t, chainerr.IsTransient(rangeErr))

	transientErr := classifyRPCError(errors.New("dial tcp: connection refused"))
	require.True(t, chainerr.IsTransient(transientErr))
	require.False(t, chainerr.IsRangeTooWide(transientErr))

	permErr := classifyRPCError(errors.New("invalid sender"))
	require.True(t, chainerr.IsPermanent(permErr))
}
