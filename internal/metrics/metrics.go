package metrics

import (
	"sort"
	"sync"
	"time"
)

const maxSamples = 1000

type Metrics struct {
	mutex         sync.RWMutex
	operations    int64
	allFailed     int64
	passthrough   int64
	attempts      map[string]int64
	failures      map[string]int64
	timeouts      map[string]int64
	responseTimes map[string][]time.Duration
	statusCodes   map[string]map[int]int64
	startTime     time.Time
}

type Snapshot struct {
	Operations  int64                     `json:"operations"`
	AllFailed   int64                     `json:"all_failed"`
	Passthrough int64                     `json:"passthrough"`
	Uptime      time.Duration             `json:"uptime"`
	Backends    map[string]BackendMetrics `json:"backends"`
}

type BackendMetrics struct {
	Attempts    int64         `json:"attempts"`
	Responses   int64         `json:"responses"`
	Failures    int64         `json:"failures"`
	Timeouts    int64         `json:"timeouts"`
	AvgResponse time.Duration `json:"avg_response"`
	P50Response time.Duration `json:"p50_response"`
	P95Response time.Duration `json:"p95_response"`
	P99Response time.Duration `json:"p99_response"`
	StatusCodes map[int]int64 `json:"status_codes"`
}

func (m *Metrics) IncrementOperations() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.operations++
}

func (m *Metrics) IncrementAllFailed() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.allFailed++
}

func (m *Metrics) IncrementPassthrough() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.passthrough++
}

func (m *Metrics) RecordAttempt(backend string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.attempts[backend]++
}

// RecordFailure counts a transport-level failure. Timeouts are also counted
// as failures.
func (m *Metrics) RecordFailure(backend string, timeout bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.failures[backend]++
	if timeout {
		m.timeouts[backend]++
	}
}

func (m *Metrics) RecordResponse(backend string, duration time.Duration, statusCode int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.responseTimes[backend] = append(m.responseTimes[backend], duration)

	if len(m.responseTimes[backend]) > maxSamples {
		m.responseTimes[backend] = m.responseTimes[backend][1:]
	}

	if m.statusCodes[backend] == nil {
		m.statusCodes[backend] = make(map[int]int64)
	}
	m.statusCodes[backend][statusCode]++
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Operations:  m.operations,
		AllFailed:   m.allFailed,
		Passthrough: m.passthrough,
		Uptime:      time.Since(m.startTime),
		Backends:    make(map[string]BackendMetrics),
	}

	allBackends := make(map[string]bool)
	for backend := range m.attempts {
		allBackends[backend] = true
	}
	for backend := range m.failures {
		allBackends[backend] = true
	}
	for backend := range m.statusCodes {
		allBackends[backend] = true
	}

	for backend := range allBackends {
		bm := BackendMetrics{
			Attempts:    m.attempts[backend],
			Failures:    m.failures[backend],
			Timeouts:    m.timeouts[backend],
			StatusCodes: make(map[int]int64, len(m.statusCodes[backend])),
		}

		for code, n := range m.statusCodes[backend] {
			bm.StatusCodes[code] = n
			bm.Responses += n
		}

		durations := m.responseTimes[backend]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			bm.AvgResponse = average(sorted)
			bm.P50Response = percentile(sorted, 0.50)
			bm.P95Response = percentile(sorted, 0.95)
			bm.P99Response = percentile(sorted, 0.99)
		}

		snap.Backends[backend] = bm
	}

	return snap
}

func NewMetrics() *Metrics {
	return &Metrics{
		attempts:      make(map[string]int64),
		failures:      make(map[string]int64),
		timeouts:      make(map[string]int64),
		responseTimes: make(map[string][]time.Duration),
		statusCodes:   make(map[string]map[int]int64),
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
