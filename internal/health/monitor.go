package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aifusion/gateway/internal/metrics"
	"github.com/aifusion/gateway/internal/registry"
)

// Prober issues one liveness check against a backend. A nil error means
// the service answered and reported itself serving.
type Prober interface {
	Probe(ctx context.Context, d *registry.Descriptor) error
}

// Config tunes the monitor's probe schedule and state thresholds.
type Config struct {
	Interval           time.Duration // time between active probes per service
	ProbeTimeout       time.Duration // per-probe deadline
	DegradedThreshold  int           // consecutive failures: healthy -> degraded
	UnhealthyThreshold int           // consecutive failures: degraded -> unhealthy
}

// Monitor owns one health record per service. Two evidence streams mutate
// it: active probes scheduled by Start, and passive outcomes reported by
// the dispatcher. Both go through the same counters, so they can never
// disagree about a service's state. Each record has its own mutex; there
// is no coordination across services.
type Monitor struct {
	logger  *slog.Logger
	prober  Prober
	cfg     Config
	events  chan<- metrics.MetricEvent
	entries map[string]*entry
}

type entry struct {
	mutex      sync.Mutex
	descriptor *registry.Descriptor
	record     Record
}

// NewMonitor creates a monitor covering the given descriptors. All records
// start in the unknown state. events may be nil when no metrics pipeline
// is attached.
func NewMonitor(
	descriptors []*registry.Descriptor,
	prober Prober,
	cfg Config,
	events chan<- metrics.MetricEvent,
	logger *slog.Logger,
) *Monitor {
	entries := make(map[string]*entry, len(descriptors))
	for _, d := range descriptors {
		entries[d.Name] = &entry{descriptor: d}
	}

	return &Monitor{
		logger:  logger,
		prober:  prober,
		cfg:     cfg,
		events:  events,
		entries: entries,
	}
}

// Start launches one probe goroutine per service. The goroutines stop when
// ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	for _, e := range m.entries {
		go m.probeLoop(ctx, e)
	}
}

func (m *Monitor) probeLoop(ctx context.Context, e *entry) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Health probing stopped",
				slog.String("service", e.descriptor.Name))
			return

		case <-ticker.C:
			m.probe(ctx, e)
		}
	}
}

// probe runs one active check and folds the result into the record.
// Probe errors are health evidence, never caller errors.
func (m *Monitor) probe(ctx context.Context, e *entry) Record {
	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	start := time.Now()
	err := m.prober.Probe(probeCtx, e.descriptor)

	return m.apply(e, err == nil, time.Since(start))
}

// ReportOutcome is the passive path: the dispatcher reports the terminal
// outcome of every admitted call, once per logical request.
func (m *Monitor) ReportOutcome(service string, success bool, latency time.Duration) {
	e, ok := m.entries[service]
	if !ok {
		m.logger.Warn("Outcome reported for unknown service", slog.String("service", service))
		return
	}

	m.apply(e, success, latency)
}

// ForceCheck runs one immediate active probe for the named service and
// returns the resulting record.
func (m *Monitor) ForceCheck(ctx context.Context, service string) (Record, error) {
	e, ok := m.entries[service]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", registry.ErrUnknownService, service)
	}

	return m.probe(ctx, e), nil
}

// apply folds one outcome into the record. A success always returns the
// service to healthy and clears the failure streak; a failure clears the
// success streak and may push the state down through the thresholds.
func (m *Monitor) apply(e *entry, success bool, latency time.Duration) Record {
	e.mutex.Lock()

	prev := e.record.State

	if success {
		e.record.ConsecutiveFailures = 0
		e.record.ConsecutiveSuccesses++
		e.record.State = StateHealthy
	} else {
		e.record.ConsecutiveSuccesses = 0
		e.record.ConsecutiveFailures++
		e.record.State = m.declinedState(prev, e.record.ConsecutiveFailures)
	}

	e.record.LastChecked = time.Now()
	e.record.LastLatency = latency
	rec := e.record

	e.mutex.Unlock()

	if rec.State != prev {
		m.logStateChange(e.descriptor, prev, rec.State)
		m.emit(metrics.MetricEvent{
			Type:      metrics.EventHealthChanged,
			Timestamp: time.Now(),
			Service:   e.descriptor.Name,
			Phase:     rec.State.String(),
		})
	}

	return rec
}

// declinedState maps a failure streak to a state. Below the degraded
// threshold the previous state holds, so a healthy service tolerates a
// blip and an unknown one stays unknown.
func (m *Monitor) declinedState(prev State, failures int) State {
	switch {
	case failures >= m.cfg.UnhealthyThreshold:
		return StateUnhealthy
	case failures >= m.cfg.DegradedThreshold:
		return StateDegraded
	default:
		return prev
	}
}

func (m *Monitor) logStateChange(d *registry.Descriptor, from, to State) {
	if to == StateHealthy {
		m.logger.Info("Service recovered",
			slog.String("service", d.Name),
			slog.String("from", from.String()))
		return
	}

	m.logger.Warn("Service health declined",
		slog.String("service", d.Name),
		slog.String("from", from.String()),
		slog.String("to", to.String()),
		slog.Bool("required", d.Required))
}

func (m *Monitor) emit(event metrics.MetricEvent) {
	if m.events == nil {
		return
	}

	select {
	case m.events <- event:
	default:
	}
}

// Snapshot returns a copy of the named service's record.
func (m *Monitor) Snapshot(service string) (Record, error) {
	e, ok := m.entries[service]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", registry.ErrUnknownService, service)
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.record, nil
}

// Snapshots returns a copy of every record, keyed by service name.
func (m *Monitor) Snapshots() map[string]Record {
	snaps := make(map[string]Record, len(m.entries))
	for name, e := range m.entries {
		e.mutex.Lock()
		snaps[name] = e.record
		e.mutex.Unlock()
	}
	return snaps
}

// Ready reports the aggregate readiness verdict: true iff every required
// service is healthy or degraded. Optional services never affect it.
func (m *Monitor) Ready() bool {
	for _, e := range m.entries {
		if !e.descriptor.Required {
			continue
		}

		e.mutex.Lock()
		state := e.record.State
		e.mutex.Unlock()

		if state != StateHealthy && state != StateDegraded {
			return false
		}
	}

	return true
}
