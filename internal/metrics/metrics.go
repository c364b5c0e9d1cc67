package metrics

import (
	"sort"
	"sync"
	"time"
)

type Metrics struct {
	mutex         sync.RWMutex
	requests      map[string]int64
	resolutions   map[string]int64
	responseTimes map[string][]time.Duration
	statusCodes   map[string]map[int]int64
	healthPhase   map[string]string
	circuitPhase  map[string]string
	startTime     time.Time
}

type Snapshot struct {
	TotalRequests int64                     `json:"total_requests"`
	Uptime        time.Duration             `json:"uptime"`
	Services      map[string]ServiceMetrics `json:"services"`
}

type ServiceMetrics struct {
	Requests     int64         `json:"requests"`
	Resolutions  int64         `json:"resolutions"`
	HealthPhase  string        `json:"health_phase,omitempty"`
	CircuitPhase string        `json:"circuit_phase,omitempty"`
	AvgResponse  time.Duration `json:"avg_response"`
	P50Response  time.Duration `json:"p50_response"`
	P95Response  time.Duration `json:"p95_response"`
	P99Response  time.Duration `json:"p99_response"`
	StatusCodes  map[int]int64 `json:"status_codes"`
}

func (m *Metrics) IncrementRequests(service string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.requests[service]++
}

func (m *Metrics) RecordResolution(service string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.resolutions[service]++
}

func (m *Metrics) RecordResponse(service string, duration time.Duration, statusCode int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.responseTimes[service] = append(m.responseTimes[service], duration)

	if len(m.responseTimes[service]) > 1000 {
		m.responseTimes[service] = m.responseTimes[service][1:]
	}

	if m.statusCodes[service] == nil {
		m.statusCodes[service] = make(map[int]int64)
	}
	m.statusCodes[service][statusCode]++
}

func (m *Metrics) UpdateHealthPhase(service, phase string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.healthPhase[service] = phase
}

func (m *Metrics) UpdateCircuitPhase(service, phase string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.circuitPhase[service] = phase
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Uptime:   time.Since(m.startTime),
		Services: make(map[string]ServiceMetrics),
	}

	// Collect all service names seen on any path
	allServices := make(map[string]bool)
	for service := range m.requests {
		allServices[service] = true
	}
	for service := range m.resolutions {
		allServices[service] = true
	}
	for service := range m.responseTimes {
		allServices[service] = true
	}
	for service := range m.healthPhase {
		allServices[service] = true
	}
	for service := range m.circuitPhase {
		allServices[service] = true
	}

	for service := range allServices {
		snap.TotalRequests += m.requests[service]

		sm := ServiceMetrics{
			Requests:     m.requests[service],
			Resolutions:  m.resolutions[service],
			HealthPhase:  m.healthPhase[service],
			CircuitPhase: m.circuitPhase[service],
			StatusCodes:  m.statusCodes[service],
		}

		durations := m.responseTimes[service]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			sm.AvgResponse = average(sorted)
			sm.P50Response = percentile(sorted, 0.50)
			sm.P95Response = percentile(sorted, 0.95)
			sm.P99Response = percentile(sorted, 0.99)
		}

		snap.Services[service] = sm
	}

	return snap
}

func NewMetrics() *Metrics {
	return &Metrics{
		requests:      make(map[string]int64),
		resolutions:   make(map[string]int64),
		responseTimes: make(map[string][]time.Duration),
		statusCodes:   make(map[string]map[int]int64),
		healthPhase:   make(map[string]string),
		circuitPhase:  make(map[string]string),
		startTime:     time.Now(),
	}
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
