// Package observabilitytest provides metrics for tests.
package observabilitytest

import (
	"github.com/mstfa13/asura-backend/internal/observability"

	"github.com/prometheus/client_golang/prometheus"
)

// NewMetrics returns metrics bound to a throwaway registry so tests can
// build as many as they need.
func NewMetrics() *observability.Metrics {
	return observability.NewMetrics(prometheus.NewRegistry())
}
