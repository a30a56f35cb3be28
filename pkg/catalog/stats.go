package catalog

import (
	"sync"
	"time"
)

// EndpointStats are the per-endpoint counters collected by the client for
// later reporting
type EndpointStats struct {
	Calls         int           `json:"calls"`
	CacheHits     int           `json:"cache_hits"`
	Retries       int           `json:"retries"`
	Failures      int           `json:"failures"`
	TotalDuration time.Duration `json:"total_duration"`
}

// statsCollector accumulates per-endpoint counters for one client instance
type statsCollector struct {
	mu    sync.Mutex
	stats map[string]*EndpointStats
}

func newStatsCollector() *statsCollector {
	return &statsCollector{stats: make(map[string]*EndpointStats)}
}

func (s *statsCollector) get(endpoint string) *EndpointStats {
	if st, ok := s.stats[endpoint]; ok {
		return st
	}
	st := &EndpointStats{}
	s.stats[endpoint] = st
	return st
}

func (s *statsCollector) recordCall(endpoint string, duration time.Duration, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.get(endpoint)
	st.Calls++
	st.TotalDuration += duration
	if failed {
		st.Failures++
	}
}

func (s *statsCollector) recordCacheHit(endpoint string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.get(endpoint).CacheHits++
}

func (s *statsCollector) recordRetry(endpoint string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.get(endpoint).Retries++
}

// snapshot returns a copy of the collected counters
func (s *statsCollector) snapshot() map[string]EndpointStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]EndpointStats, len(s.stats))
	for endpoint, st := range s.stats {
		out[endpoint] = *st
	}
	return out
}
