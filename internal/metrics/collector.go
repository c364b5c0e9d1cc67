package metrics

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventRequestReceived     EventType = "request_received"
	EventServiceResolved     EventType = "service_resolved"
	EventResponseCompleted   EventType = "response_completed"
	EventHealthChanged       EventType = "health_changed"
	EventCircuitStateChanged EventType = "circuit_state_changed"
)

type MetricEvent struct {
	Type       EventType
	Timestamp  time.Time
	Service    string
	Duration   time.Duration
	StatusCode int
	Phase      string
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
		c.metrics.IncrementRequests(event.Service)

	case EventServiceResolved:
		c.metrics.RecordResolution(event.Service)

	case EventResponseCompleted:
		c.metrics.RecordResponse(event.Service, event.Duration, event.StatusCode)

	case EventHealthChanged:
		c.metrics.UpdateHealthPhase(event.Service, event.Phase)

	case EventCircuitStateChanged:
		c.metrics.UpdateCircuitPhase(event.Service, event.Phase)
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
