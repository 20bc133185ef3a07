// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package decode

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/bloomfilter/v2"
)

// wildcard matches any contract address for a given topic0 (used by
// decoders like ERC-20 Transfer that are meaningful across many
// token contracts).
var wildcard = common.Address{}

type key struct {
	address common.Address
	topic0  common.Hash
}

// Registry maps (contractAddress|wildcard, topic0) to a Decoder
// (§4.5). A bloom filter over registered topic0 hashes gives the
// indexer a cheap pre-check before the map lookup when scanning logs
// whose topic0 wasn't already constrained by the getLogs topic
// filter (the native-scanner and wildcard-subscription paths),
// grounded on the teacher's bloom-bits-over-ranges dispatch in
// eth/bloom_indexer.go.
type Registry struct {
	mu       sync.RWMutex
	decoders map[key]Decoder
	topic0s  *bloomfilter.Filter
}

// NewRegistry returns an empty registry sized for up to maxDecoders
// distinct topic0 values with a ~1% false-positive rate.
func NewRegistry(maxDecoders uint64) *Registry {
	f, _ := bloomfilter.NewOptimal(maxDecoders*10, 0.01)
	return &Registry{
		decoders: make(map[key]Decoder),
		topic0s:  f,
	}
}

// Register binds (address, topic0) to d. Pass the zero address to
// register a wildcard decoder matched regardless of contract.
func (r *Registry) Register(address common.Address, topic0 common.Hash, d Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[key{address: address, topic0: topic0}] = d
	r.topic0s.Add(bloomHash(topic0))
}

// MightHandle is the bloom-filter fast-negative check: if it returns
// false, no decoder is registered for topic0 under any address and
// the caller can skip the log without a map lookup.
func (r *Registry) MightHandle(topic0 common.Hash) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.topic0s.Contains(bloomHash(topic0))
}

// Lookup returns the decoder for (address, topic0), falling back to a
// wildcard registration if no address-specific one exists.
func (r *Registry) Lookup(address common.Address, topic0 common.Hash) (Decoder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.decoders[key{address: address, topic0: topic0}]; ok {
		return d, true
	}
	if d, ok := r.decoders[key{address: wildcard, topic0: topic0}]; ok {
		return d, true
	}
	return nil, false
}

func bloomHash(h common.Hash) bloomfilter.Hashable {
	return hashable(h)
}

// hashable adapts a common.Hash to bloomfilter.Hashable (a Sum64-style
// 64-bit hash, the same shape as hash.Hash64) by feeding its first 8
// bytes as the filter's hash input — a topic0 is itself already a
// cryptographic hash, so truncating it loses no useful entropy.
type hashable common.Hash

func (h hashable) Sum64() uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(h[i])
	}
	return v
}
