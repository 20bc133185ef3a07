// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chainclient

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/hedgeledger/chainindexer/internal/chainerr"
	"github.com/hedgeledger/chainindexer/internal/logging"
)

// evmClient is the concrete Client backed by go-ethereum's
// ethclient.Client, one dial per configured RPC endpoint, rotated
// through an endpointPool per §4.1's failure policy.
type evmClient struct {
	chainID uint64
	dials   []*ethclient.Client
	pool    *endpointPool
	retry   *RetryPolicy
	log     logging.Logger
}

// Dial connects to every url in rpcURLs (lazily — dial errors at
// construction time are permanent configuration errors, not transient
// RPC failures) and returns a Client rotating across them.
func Dial(ctx context.Context, chainID uint64, rpcURLs []string, log logging.Logger) (Client, error) {
	if len(rpcURLs) == 0 {
		return nil, fmt.Errorf("chain %d: no RPC endpoints configured", chainID)
	}
	dials := make([]*ethclient.Client, len(rpcURLs))
	for i, url := range rpcURLs {
		c, err := ethclient.DialContext(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("chain %d: dialing %s: %w", chainID, url, err)
		}
		dials[i] = c
	}
	return &evmClient{
		chainID: chainID,
		dials:   dials,
		pool:    newEndpointPool(rpcURLs),
		retry:   NewRetryPolicy(log),
		log:     log.With("chain", chainID),
	}, nil
}

func (c *evmClient) ChainID() uint64 { return c.chainID }

func (c *evmClient) Close() {
	for _, d := range c.dials {
		d.Close()
	}
}

// withEndpoint runs fn against the next healthy endpoint's dialed
// client, classifies the result, and records it for health scoring.
func (c *evmClient) withEndpoint(ctx context.Context, op string, fn func(ctx context.Context, ec *ethclient.Client) error) error {
	return c.retry.Do(ctx, op, func(ctx context.Context) error {
		ep := c.pool.pick()
		idx := -1
		for i := range c.dials {
			// pool and dials are built from the same url slice in the
			// same order, so index lookup by pointer identity of the
			// endpointHealth is safe via position.
			if c.pool.endpoints[i] == ep {
				idx = i
				break
			}
		}
		if idx < 0 {
			idx = 0
		}
		if err := ep.limiter.Wait(ctx); err != nil {
			return err
		}
		err := fn(ctx, c.dials[idx])
		classified := classifyRPCError(err)
		ep.record(classified == nil)
		return classified
	})
}

// classifyRPCError maps a raw ethclient/rpc error into the
// chainerr taxonomy so RetryPolicy can decide whether to retry.
func classifyRPCError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "query returned more than") ||
		strings.Contains(msg, "too many results") ||
		strings.Contains(msg, "limit exceeded") ||
		strings.Contains(msg, "block range"):
		return chainerr.RangeTooWide(err)
	case strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "eof") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "temporarily unavailable") ||
		strings.Contains(msg, "context deadline exceeded"):
		return chainerr.Transient(err)
	default:
		return chainerr.Permanent(err)
	}
}

func (c *evmClient) Head(ctx context.Context) (uint64, error) {
	var head uint64
	err := c.withEndpoint(ctx, "head", func(ctx context.Context, ec *ethclient.Client) error {
		n, err := ec.BlockNumber(ctx)
		if err != nil {
			return err
		}
		head = n
		return nil
	})
	return head, err
}

func (c *evmClient) GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	var logs []types.Log
	err := c.withEndpoint(ctx, "getLogs", func(ctx context.Context, ec *ethclient.Client) error {
		l, err := ec.FilterLogs(ctx, query)
		if err != nil {
			return err
		}
		logs = l
		return nil
	})
	return logs, err
}

func (c *evmClient) GetBlock(ctx context.Context, n uint64, withTx bool) (*types.Block, error) {
	var block *types.Block
	err := c.withEndpoint(ctx, "getBlock", func(ctx context.Context, ec *ethclient.Client) error {
		var b *types.Block
		var err error
		if withTx {
			b, err = ec.BlockByNumber(ctx, new(big.Int).SetUint64(n))
		} else {
			header, hErr := ec.HeaderByNumber(ctx, new(big.Int).SetUint64(n))
			if hErr != nil {
				return hErr
			}
			block = types.NewBlockWithHeader(header)
			return nil
		}
		if err != nil {
			return err
		}
		block = b
		return nil
	})
	return block, err
}

func (c *evmClient) GetReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	err := c.withEndpoint(ctx, "getReceipt", func(ctx context.Context, ec *ethclient.Client) error {
		r, err := ec.TransactionReceipt(ctx, txHash)
		if err != nil {
			return err
		}
		receipt = r
		return nil
	})
	return receipt, err
}

func (c *evmClient) Call(ctx context.Context, msg ethereum.CallMsg, atBlock *big.Int) ([]byte, error) {
	var out []byte
	err := c.withEndpoint(ctx, "call", func(ctx context.Context, ec *ethclient.Client) error {
		b, err := ec.CallContract(ctx, msg, atBlock)
		if err != nil {
			return err
		}
		out = b
		return nil
	})
	return out, err
}

func (c *evmClient) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	var bal *big.Int
	err := c.withEndpoint(ctx, "balance", func(ctx context.Context, ec *ethclient.Client) error {
		b, err := ec.BalanceAt(ctx, addr, nil)
		if err != nil {
			return err
		}
		bal = b
		return nil
	})
	return bal, err
}
