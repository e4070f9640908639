package ml

import "sync"

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu          sync.Mutex
	modelAge    float64
	timeouts    int
	latencySum  float64
	latencyObs  int
	cacheHits   int
	cacheMisses int
}

func (m *MockMetrics) ModelAgeSet(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modelAge = v
}

func (m *MockMetrics) ModelTimeoutsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeouts++
}

func (m *MockMetrics) ModelLatencyObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencySum += v
	m.latencyObs++
}

func (m *MockMetrics) CacheHitsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheHits++
}

func (m *MockMetrics) CacheMissesInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheMisses++
}

// Timeouts returns the number of recorded model timeouts.
func (m *MockMetrics) Timeouts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timeouts
}

// CacheCounts returns recorded cache hits and misses.
func (m *MockMetrics) CacheCounts() (hits, misses int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cacheHits, m.cacheMisses
}

// LatencyObservations returns how many model latencies were observed.
func (m *MockMetrics) LatencyObservations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latencyObs
}
