// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package testutils

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// NewRegistry returns an isolated Prometheus registry for a single test,
// so parallel tests never collide on a metric name in the global default
// registry.
func NewRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	reg := prometheus.NewRegistry()
	return reg
}
