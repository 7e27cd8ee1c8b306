package metrics

import (
	"sort"
	"sync"
	"time"
)

type Metrics struct {
	mutex            sync.RWMutex
	requests         map[string]int64
	rateLimited      map[string]int64
	responseTimes    map[string][]time.Duration
	statusCodes      map[string]map[int]int64
	duplicates       int64
	upstreamCalls    map[string]int64
	upstreamFailures map[string]int64
	startTime        time.Time
}

type Snapshot struct {
	TotalRequests     int64                      `json:"total_requests"`
	Uptime            time.Duration              `json:"uptime"`
	DuplicatesBlocked int64                      `json:"duplicates_blocked"`
	Endpoints         map[string]EndpointMetrics `json:"endpoints"`
	Upstreams         map[string]UpstreamMetrics `json:"upstreams"`
}

type EndpointMetrics struct {
	Requests    int64         `json:"requests"`
	RateLimited int64         `json:"rate_limited"`
	AvgResponse time.Duration `json:"avg_response"`
	P50Response time.Duration `json:"p50_response"`
	P95Response time.Duration `json:"p95_response"`
	P99Response time.Duration `json:"p99_response"`
	StatusCodes map[int]int64 `json:"status_codes"`
}

type UpstreamMetrics struct {
	Calls    int64 `json:"calls"`
	Failures int64 `json:"failures"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		requests:         make(map[string]int64),
		rateLimited:      make(map[string]int64),
		responseTimes:    make(map[string][]time.Duration),
		statusCodes:      make(map[string]map[int]int64),
		upstreamCalls:    make(map[string]int64),
		upstreamFailures: make(map[string]int64),
		startTime:        time.Now(),
	}
}

func (m *Metrics) IncrementRequests(endpoint string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.requests[endpoint]++
}

func (m *Metrics) IncrementRateLimited(endpoint string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.rateLimited[endpoint]++
}

func (m *Metrics) IncrementDuplicates() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.duplicates++
}

func (m *Metrics) RecordUpstreamCall(service string, failed bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.upstreamCalls[service]++
	if failed {
		m.upstreamFailures[service]++
	}
}

func (m *Metrics) RecordResponse(endpoint string, duration time.Duration, statusCode int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.responseTimes[endpoint] = append(m.responseTimes[endpoint], duration)

	if len(m.responseTimes[endpoint]) > 1000 {
		m.responseTimes[endpoint] = m.responseTimes[endpoint][1:]
	}

	if m.statusCodes[endpoint] == nil {
		m.statusCodes[endpoint] = make(map[int]int64)
	}
	m.statusCodes[endpoint][statusCode]++
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Uptime:            time.Since(m.startTime),
		DuplicatesBlocked: m.duplicates,
		Endpoints:         make(map[string]EndpointMetrics),
		Upstreams:         make(map[string]UpstreamMetrics),
	}

	// Collect all unique endpoints
	allEndpoints := make(map[string]bool)
	for endpoint := range m.requests {
		allEndpoints[endpoint] = true
	}
	for endpoint := range m.rateLimited {
		allEndpoints[endpoint] = true
	}
	for endpoint := range m.responseTimes {
		allEndpoints[endpoint] = true
	}

	for endpoint := range allEndpoints {
		snap.TotalRequests += m.requests[endpoint]

		em := EndpointMetrics{
			Requests:    m.requests[endpoint],
			RateLimited: m.rateLimited[endpoint],
			StatusCodes: m.statusCodes[endpoint],
		}

		durations := m.responseTimes[endpoint]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			em.AvgResponse = average(sorted)
			em.P50Response = percentile(sorted, 0.50)
			em.P95Response = percentile(sorted, 0.95)
			em.P99Response = percentile(sorted, 0.99)
		}

		snap.Endpoints[endpoint] = em
	}

	for service, calls := range m.upstreamCalls {
		snap.Upstreams[service] = UpstreamMetrics{
			Calls:    calls,
			Failures: m.upstreamFailures[service],
		}
	}

	return snap
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
