// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metrics holds the process-wide Prometheus registrations C9
// and C10 expose on /metrics (indexer lag, decode-error rate, matcher
// throughput), so every package that needs to record one of these
// depends on a plain package-level var instead of threading a
// registry handle through constructors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// IndexerLagBlocks is head - lastProcessedBlock for one checkpoint
	// shard, set by the scheduler's checkpoint-freshness job (§4.9).
	IndexerLagBlocks = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chainindexer_indexer_lag_blocks",
		Help: "Confirmed chain head minus last processed block, per checkpoint shard.",
	}, []string{"chain", "contract", "shard"})

	// DecodeErrorsTotal counts logs an Indexer dropped because the
	// registered decoder for their topic0 failed (§4.3 step 5).
	DecodeErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chainindexer_decode_errors_total",
		Help: "Count of logs dropped due to a decoder error, by chain and contract.",
	}, []string{"chain", "contract"})

	// MatcherMatchesTotal counts successful payment matches by which
	// §4.6 step-3 strategy produced them.
	MatcherMatchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chainindexer_matcher_matches_total",
		Help: "Count of payment requests matched, by matching strategy.",
	}, []string{"strategy"})
)

func init() {
	prometheus.MustRegister(IndexerLagBlocks, DecodeErrorsTotal, MatcherMatchesTotal)
}

// Handler returns the standard Prometheus scrape handler for
// GET /metrics (§6, C10).
func Handler() http.Handler {
	return promhttp.Handler()
}
