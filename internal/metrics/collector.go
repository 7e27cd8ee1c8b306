package metrics

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventRequestReceived  EventType = "request_received"
	EventRateLimited      EventType = "rate_limited"
	EventResponseRelayed  EventType = "response_relayed"
	EventDuplicateBlocked EventType = "duplicate_blocked"
	EventUpstreamCall     EventType = "upstream_call"
)

type MetricEvent struct {
	Type       EventType
	Timestamp  time.Time
	Endpoint   string
	Service    string
	Duration   time.Duration
	StatusCode int
	Failed     bool
}

type Collector struct {
	eventCh chan MetricEvent
	metrics *Metrics
	logger  *slog.Logger
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh: make(chan MetricEvent, bufferSize),
		metrics: NewMetrics(),
		logger:  logger,
	}
}

func (c *Collector) EventChannel() chan<- MetricEvent {
	return c.eventCh
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
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	switch event.Type {
	case EventRequestReceived:
		c.metrics.IncrementRequests(event.Endpoint)

	case EventRateLimited:
		c.metrics.IncrementRateLimited(event.Endpoint)

	case EventResponseRelayed:
		c.metrics.RecordResponse(event.Endpoint, event.Duration, event.StatusCode)

	case EventDuplicateBlocked:
		c.metrics.IncrementDuplicates()

	case EventUpstreamCall:
		c.metrics.RecordUpstreamCall(event.Service, event.Failed)
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
