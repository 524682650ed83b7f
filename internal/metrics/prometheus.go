package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type promMetrics struct {
	operations *prometheus.CounterVec
	attempts   *prometheus.CounterVec
	failures   *prometheus.CounterVec
	responses  *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

func newPromMetrics(reg prometheus.Registerer) *promMetrics {
	factory := promauto.With(reg)

	return &promMetrics{
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "failover",
				Name:      "operations_total",
				Help:      "Intercepted requests by outcome",
			},
			[]string{"outcome"},
		),
		attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "failover",
				Name:      "attempts_total",
				Help:      "Forwarding attempts per candidate backend",
			},
			[]string{"backend"},
		),
		failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "failover",
				Name:      "attempt_failures_total",
				Help:      "Transport-level attempt failures per candidate backend",
			},
			[]string{"backend", "reason"},
		),
		responses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "failover",
				Name:      "responses_total",
				Help:      "Responses received per candidate backend and status code",
			},
			[]string{"backend", "code"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "failover",
				Name:      "attempt_duration_seconds",
				Help:      "Duration of attempts that produced a response",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"backend"},
		),
	}
}

func (p *promMetrics) observe(event MetricEvent) {
	switch event.Type {
	case EventRequestReceived:
		p.operations.WithLabelValues("forwarded").Inc()
	case EventAllFailed:
		p.operations.WithLabelValues("all_failed").Inc()
	case EventPassthrough:
		p.operations.WithLabelValues("passthrough").Inc()
	case EventAttemptStarted:
		p.attempts.WithLabelValues(event.Backend).Inc()
	case EventAttemptFailed:
		reason := "network"
		if event.Timeout {
			reason = "timeout"
		}
		p.failures.WithLabelValues(event.Backend, reason).Inc()
	case EventResponseCompleted:
		p.responses.WithLabelValues(event.Backend, strconv.Itoa(event.StatusCode)).Inc()
		p.duration.WithLabelValues(event.Backend).Observe(event.Duration.Seconds())
	}
}
