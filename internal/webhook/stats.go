package webhook

import (
	"sync"
	"time"
)

// Stats holds in-process delivery counters surfaced on the health
// endpoint. Counters reset on restart; durable history lives in the
// dead-letter store.
type Stats struct {
	mu            sync.Mutex
	received      int64
	succeeded     int64
	failed        int64
	lastSuccessAt time.Time
	lastFailureAt time.Time
	startedAt     time.Time
}

// NewStats returns zeroed counters anchored at now.
func NewStats() *Stats {
	return &Stats{startedAt: time.Now()}
}

// Received counts one incoming delivery.
func (s *Stats) Received() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received++
}

// Succeeded counts one completed sync.
func (s *Stats) Succeeded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.succeeded++
	s.lastSuccessAt = time.Now()
}

// Failed counts one rejected or failed delivery.
func (s *Stats) Failed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed++
	s.lastFailureAt = time.Now()
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Received      int64     `json:"received"`
	Succeeded     int64     `json:"succeeded"`
	Failed        int64     `json:"failed"`
	LastSuccessAt time.Time `json:"last_success_at,omitempty"`
	LastFailureAt time.Time `json:"last_failure_at,omitempty"`
	UptimeSecs    float64   `json:"uptime_secs"`
}

// Snapshot returns the current counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Received:      s.received,
		Succeeded:     s.succeeded,
		Failed:        s.failed,
		LastSuccessAt: s.lastSuccessAt,
		LastFailureAt: s.lastFailureAt,
		UptimeSecs:    time.Since(s.startedAt).Seconds(),
	}
}
