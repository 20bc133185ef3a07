// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package price

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/hedgeledger/chainindexer/internal/store"
)

// pairReserves is one LP pair's current on-chain reserves, keyed by the
// pair (lpToken) address.
type pairReserves struct {
	token0, token1     common.Address
	reserve0, reserve1 *uint256.Int
}

// node and edge form the arena-of-nodes token graph described in the
// design notes: a flat, integer-indexed representation rather than
// pointer-linked structs, so no node holds a live reference into
// another task's memory.
type node struct {
	token common.Address
}

type edge struct {
	a, b         int // node indices
	reserveA, reserveB *uint256.Int
}

type graph struct {
	nodes []node
	index map[common.Address]int
	adj   [][]int // node index -> edge indices touching it
	edges []edge
}

func buildGraph(pools []store.PoolDescriptor, reserves map[common.Address]pairReserves) *graph {
	g := &graph{index: make(map[common.Address]int)}
	nodeIdx := func(tok common.Address) int {
		if i, ok := g.index[tok]; ok {
			return i
		}
		i := len(g.nodes)
		g.nodes = append(g.nodes, node{token: tok})
		g.adj = append(g.adj, nil)
		g.index[tok] = i
		return i
	}
	for _, p := range pools {
		r, ok := reserves[p.LpToken]
		if !ok || r.reserve0 == nil || r.reserve1 == nil {
			continue
		}
		a := nodeIdx(p.Token0)
		b := nodeIdx(p.Token1)
		ei := len(g.edges)
		g.edges = append(g.edges, edge{a: a, b: b, reserveA: r.reserve0, reserveB: r.reserve1})
		g.adj[a] = append(g.adj[a], ei)
		g.adj[b] = append(g.adj[b], ei)
	}
	return g
}

// pricedLookup returns the known USD price (6 fractional digits) for a
// token, and whether one is known.
type pricedLookup func(token common.Address) (*uint256.Int, bool)

// resolveDexDerived implements §4.7 step 4: prefer a direct pair
// between target and an already-priced numeraire (highest
// numeraire-side liquidity wins among several); otherwise fall back to
// a BFS shortest path to any priced node, chaining reserve ratios hop
// by hop (the "arena of nodes ... shortest path via BFS" design note).
func resolveDexDerived(pools []store.PoolDescriptor, reserves map[common.Address]pairReserves, target common.Address, priced pricedLookup) (*uint256.Int, bool) {
	g := buildGraph(pools, reserves)
	targetIdx, ok := g.index[target]
	if !ok {
		return nil, false
	}

	if p, ok := directPair(g, targetIdx, priced); ok {
		return p, true
	}
	return bfsPrice(g, targetIdx, priced)
}

// directPair scans every edge touching target for one whose other side
// is already priced, picking the candidate with the largest reserve on
// the priced (numeraire) side when more than one qualifies.
func directPair(g *graph, targetIdx int, priced pricedLookup) (*uint256.Int, bool) {
	var bestPrice *uint256.Int
	var bestLiquidity *uint256.Int
	for _, ei := range g.adj[targetIdx] {
		e := g.edges[ei]
		otherIdx, reserveTarget, reserveOther := otherSide(e, targetIdx)
		otherToken := g.nodes[otherIdx].token
		numerairePrice, ok := priced(otherToken)
		if !ok {
			continue
		}
		candidate := hopPrice(numerairePrice, reserveOther, reserveTarget)
		if bestLiquidity == nil || reserveOther.Cmp(bestLiquidity) > 0 {
			bestLiquidity = reserveOther
			bestPrice = candidate
		}
	}
	return bestPrice, bestPrice != nil
}

// bfsVisit records how a node was first reached during bfsPrice's
// breadth-first walk, so the path back to target can be replayed.
type bfsVisit struct {
	node       int
	parentEdge int // index into g.edges, -1 for the start node
	parent     int
}

// bfsPrice walks the graph breadth-first from target until it reaches
// any node with a known price, then unwinds the discovered path back
// to target, multiplying reserve ratios one hop at a time.
func bfsPrice(g *graph, targetIdx int, priced pricedLookup) (*uint256.Int, bool) {
	visited := make([]bool, len(g.nodes))
	visited[targetIdx] = true
	queue := []bfsVisit{{node: targetIdx, parentEdge: -1, parent: -1}}
	parentOf := make(map[int]bfsVisit, len(g.nodes))
	parentOf[targetIdx] = queue[0]

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur.node != targetIdx {
			if p, ok := priced(g.nodes[cur.node].token); ok {
				return unwindPath(g, parentOf, cur.node, p), true
			}
		}

		for _, ei := range g.adj[cur.node] {
			e := g.edges[ei]
			next, _, _ := otherSide(e, cur.node)
			if visited[next] {
				continue
			}
			visited[next] = true
			rec := bfsVisit{node: next, parentEdge: ei, parent: cur.node}
			parentOf[next] = rec
			queue = append(queue, rec)
		}
	}
	return nil, false
}

// unwindPath walks from the discovered priced node back to target,
// applying each edge's reserve ratio to derive target's price.
func unwindPath(g *graph, parentOf map[int]bfsVisit, pricedNode int, pricedValue *uint256.Int) *uint256.Int {
	price := pricedValue
	cur := pricedNode
	for {
		rec := parentOf[cur]
		if rec.parentEdge == -1 {
			break
		}
		e := g.edges[rec.parentEdge]
		_, reserveKnown, reserveUnknown := otherSide(e, cur)
		price = hopPrice(price, reserveKnown, reserveUnknown)
		cur = rec.parent
	}
	return price
}

// otherSide returns the node index on the far side of edge e from
// `from`, plus the reserves on from's side and the far side
// respectively.
func otherSide(e edge, from int) (otherIdx int, reserveFrom, reserveOther *uint256.Int) {
	if e.a == from {
		return e.b, e.reserveA, e.reserveB
	}
	return e.a, e.reserveB, e.reserveA
}

// hopPrice computes tokenPrice = numerairePrice * numeraireReserve /
// tokenReserve (§4.7 step 4), in big.Float to avoid truncating small
// ratios across multiple hops, then rounds back to a uint256 6-decimal
// fixed-point USD price.
func hopPrice(numerairePrice, numeraireReserve, tokenReserve *uint256.Int) *uint256.Int {
	if tokenReserve.IsZero() {
		return uint256.NewInt(0)
	}
	np := new(big.Float).SetInt(numerairePrice.ToBig())
	nr := new(big.Float).SetInt(numeraireReserve.ToBig())
	tr := new(big.Float).SetInt(tokenReserve.ToBig())
	result := new(big.Float).Quo(new(big.Float).Mul(np, nr), tr)
	out, _ := result.Int(nil)
	u, overflow := uint256.FromBig(out)
	if overflow {
		return uint256.NewInt(0)
	}
	return u
}
