package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type EventType string

const (
	EventRequestReceived   EventType = "request_received"
	EventAttemptStarted    EventType = "attempt_started"
	EventAttemptFailed     EventType = "attempt_failed"
	EventResponseCompleted EventType = "response_completed"
	EventAllFailed         EventType = "all_failed"
	EventPassthrough       EventType = "passthrough"
)

type MetricEvent struct {
	Type       EventType
	Timestamp  time.Time
	Backend    string
	Duration   time.Duration
	StatusCode int
	Timeout    bool
}

type Collector struct {
	eventCh chan MetricEvent
	metrics *Metrics
	prom    *promMetrics
	logger  *slog.Logger
}

// NewCollector creates a collector. When reg is non-nil every event is also
// exported as a Prometheus series on it.
func NewCollector(bufferSize int, logger *slog.Logger, reg prometheus.Registerer) *Collector {
	c := &Collector{
		eventCh: make(chan MetricEvent, bufferSize),
		metrics: NewMetrics(),
		logger:  logger,
	}

	if reg != nil {
		c.prom = newPromMetrics(reg)
	}

	return c
}

// Emit queues an event without blocking. Events are dropped when the buffer
// is full. A nil collector ignores all events.
func (c *Collector) Emit(event MetricEvent) {
	if c == nil {
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case c.eventCh <- event:
	default:
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	switch event.Type {
	case EventRequestReceived:
		c.metrics.IncrementOperations()

	case EventAttemptStarted:
		c.metrics.RecordAttempt(event.Backend)

	case EventAttemptFailed:
		c.metrics.RecordFailure(event.Backend, event.Timeout)

	case EventResponseCompleted:
		c.metrics.RecordResponse(event.Backend, event.Duration, event.StatusCode)

	case EventAllFailed:
		c.metrics.IncrementAllFailed()

	case EventPassthrough:
		c.metrics.IncrementPassthrough()
	}

	if c.prom != nil {
		c.prom.observe(event)
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot() Snapshot {
	return c.metrics.Snapshot()
}
