// Package metrics collects forwarding statistics for the interceptor.
//
// Events flow through a buffered channel into a dedicated goroutine so the
// request path never blocks:
//   - forwarding operations, all-failed outcomes and pass-through requests
//   - attempts, transport failures and timeouts per candidate backend
//   - response times (average, P50, P95, P99) and status codes per candidate
//
// Example usage:
//
//	reg := prometheus.NewRegistry()
//	collector := metrics.NewCollector(1000, logger, reg)
//	collector.Start(ctx)
//
//	collector.Emit(metrics.MetricEvent{
//		Type:       metrics.EventResponseCompleted,
//		Backend:    "http://localhost:8000",
//		Duration:   150 * time.Millisecond,
//		StatusCode: 200,
//	})
//
// The snapshot is served as JSON by Collector.Handler and the same events are
// exported to Prometheus when a registerer is supplied.
package metrics
