// SPDX-License-Identifier: GPL-3.0-or-later

package opstack

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsMiddlewareID is the ID of the middleware returned by [NewMetricsMiddleware].
const MetricsMiddlewareID = "Metrics"

// Metrics contains the Prometheus collectors updated by [NewMetricsMiddleware].
type Metrics struct {
	// Operations counts completed operations by name and [Outcome].
	Operations *prometheus.CounterVec

	// Duration records operation duration in seconds by name.
	Duration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
//
// This function panics if the collectors are already registered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opstack_operations_total",
				Help: "Completed operations",
			},
			[]string{"operation", "outcome"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "opstack_operation_duration_seconds",
				Help:    "Operation duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
	reg.MustRegister(m.Operations, m.Duration)
	return m
}

// NewMetricsMiddleware returns a [Middleware] recording the outcome and
// the duration of the rest of the chain. Register it at the head of the
// initialize step to measure the whole operation.
func NewMetricsMiddleware[In, Out any](cfg *Config, m *Metrics) Middleware[In, Out] {
	return MiddlewareFunc(MetricsMiddlewareID, func(ctx context.Context, input In, next Handler[In, Out]) (Out, error) {
		t0 := cfg.TimeNow()
		out, err := next.Handle(ctx, input)
		name := operationLabel(ctx)
		m.Operations.WithLabelValues(name, Outcome(err)).Inc()
		m.Duration.WithLabelValues(name).Observe(cfg.TimeNow().Sub(t0).Seconds())
		return out, err
	})
}

// operationLabel returns the operation name or "unknown".
func operationLabel(ctx context.Context) string {
	if name := OperationContextFrom(ctx).OperationName(); name != "" {
		return name
	}
	return "unknown"
}

