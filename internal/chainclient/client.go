// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package chainclient implements the uniform per-chain RPC surface
// (§4.1): head, getLogs, getBlock, getReceipt, call, balance, each
// wrapped by a shared retry/endpoint-rotation policy.
package chainclient

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Client is the interface every component above C1 depends on. A
// concrete chain only needs to satisfy this surface; everything above
// it (decoders, indexer, matcher, valuation) is chain-agnostic.
type Client interface {
	ChainID() uint64

	// Head returns the current chain head, monotone non-decreasing
	// under a single endpoint.
	Head(ctx context.Context) (uint64, error)

	// GetLogs returns every log matching query, ordered by
	// (blockNumber, logIndex). Returns a chainerr.ErrRangeTooWide
	// (itself also chainerr.ErrTransient) when the endpoint rejects
	// the range as too large to serve in one call.
	GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)

	// GetBlock returns the block at height n. withTx controls whether
	// the full transaction list is fetched (needed by the native
	// transfer scanner, skippable otherwise).
	GetBlock(ctx context.Context, n uint64, withTx bool) (*types.Block, error)

	// GetReceipt returns the receipt for txHash.
	GetReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)

	// Call performs a read-only contract call, optionally pinned to a
	// historical block (nil atBlock means latest).
	Call(ctx context.Context, msg ethereum.CallMsg, atBlock *big.Int) ([]byte, error)

	// Balance returns the native balance of addr in wei.
	Balance(ctx context.Context, addr common.Address) (*big.Int, error)

	// Close releases any held connections.
	Close()
}
