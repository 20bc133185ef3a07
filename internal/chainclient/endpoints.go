// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chainclient

import (
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/time/rate"
)

// sample is one outcome observation for an endpoint, kept only long
// enough to compute a trailing failure rate.
type sample struct {
	at      time.Time
	success bool
}

// sampleHistorySize bounds how many outcomes an endpoint's LRU will
// hold regardless of how fast it's called; the real eviction signal
// is the 60s window in failureRate, this is a backstop for an
// endpoint that's called so often the window would otherwise grow
// unbounded within a single second.
const sampleHistorySize = 512

// endpointHealth tracks the last minute of outcomes for one RPC
// endpoint (§4.1: "avoids endpoints whose failure rate exceeded 50%
// in the last 60s") and rate-limits outbound calls to it. Samples are
// held in an LRU rather than an unbounded slice so a long-running,
// high-throughput endpoint can't accumulate history beyond
// sampleHistorySize regardless of call rate.
type endpointHealth struct {
	url     string
	limiter *rate.Limiter

	seq     atomic.Uint64
	samples *lru.Cache // monotonic seq -> sample
}

func newEndpointHealth(url string, rps float64, burst int) *endpointHealth {
	cache, _ := lru.New(sampleHistorySize)
	return &endpointHealth{
		url:     url,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		samples: cache,
	}
}

func (h *endpointHealth) record(success bool) {
	seq := h.seq.Add(1)
	h.samples.Add(seq, sample{at: time.Now(), success: success})
}

// failureRate returns the fraction of failed calls in the trailing
// 60s window, or 0 if there is no recent data. Keys() returns the
// LRU's entries oldest-to-newest, which is irrelevant here since every
// sample within the window is weighed equally.
func (h *endpointHealth) failureRate() float64 {
	cutoff := time.Now().Add(-60 * time.Second)
	total, failures := 0, 0
	for _, k := range h.samples.Keys() {
		v, ok := h.samples.Peek(k)
		if !ok {
			continue
		}
		s := v.(sample)
		if s.at.Before(cutoff) {
			continue
		}
		total++
		if !s.success {
			failures++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(failures) / float64(total)
}

// healthy reports whether the endpoint's trailing failure rate is
// below the 50% eviction threshold.
func (h *endpointHealth) healthy() bool {
	return h.failureRate() < 0.5
}

// endpointPool rotates across a chain's configured RPC endpoints,
// skipping unhealthy ones.
type endpointPool struct {
	mu        sync.Mutex
	endpoints []*endpointHealth
	next      int
}

func newEndpointPool(urls []string) *endpointPool {
	eps := make([]*endpointHealth, len(urls))
	for i, u := range urls {
		eps[i] = newEndpointHealth(u, 20, 5)
	}
	return &endpointPool{endpoints: eps}
}

// pick returns the next healthy endpoint in rotation, preferring one
// that hasn't been marked unhealthy; if every endpoint is unhealthy it
// falls back to round-robin anyway so the client keeps trying rather
// than deadlocking.
func (p *endpointPool) pick() *endpointHealth {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.endpoints)
	for i := 0; i < n; i++ {
		idx := (p.next + i) % n
		if p.endpoints[idx].healthy() {
			p.next = (idx + 1) % n
			return p.endpoints[idx]
		}
	}
	idx := p.next
	p.next = (p.next + 1) % n
	return p.endpoints[idx]
}

func (p *endpointPool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.endpoints)
}
