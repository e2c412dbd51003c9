package backend

import (
	"sync"
	"time"

	apperr "github.com/sentrygate/gateway/pkg/errors"
)

// Target names one upstream Ollama-style backend.
type Target struct {
	Name    string
	BaseURL string
	Weight  int
}

type poolEntry struct {
	target  Target
	breaker *CircuitBreaker

	mu           sync.Mutex
	totalCalls   int64
	failureCount int64
	lastLatency  time.Duration
}

// Pool is a named, health-tracked set of backend targets, each wrapping a
// CircuitBreaker. It selects a healthy target round-robin, skipping any
// whose circuit is currently open — the same failover-with-stats shape as
// the teacher's provider router, applied to interchangeable backend
// replicas instead of distinct LLM providers.
type Pool struct {
	mu      sync.Mutex
	entries []*poolEntry
	next    int
}

// NewPool builds a Pool over targets, each starting with a closed circuit.
func NewPool(targets []Target) *Pool {
	entries := make([]*poolEntry, 0, len(targets))
	for _, t := range targets {
		entries = append(entries, &poolEntry{target: t, breaker: NewCircuitBreaker(5, 30*time.Second)})
	}
	return &Pool{entries: entries}
}

// Lease is a borrowed backend target; the caller must report the outcome
// of its call exactly once via RecordSuccess or RecordFailure.
type Lease struct {
	entry *poolEntry
	start time.Time
}

// Target returns the leased backend's connection details.
func (l *Lease) Target() Target { return l.entry.target }

// RecordSuccess reports the call succeeded, closing the circuit if it was
// half-open.
func (l *Lease) RecordSuccess() {
	latency := time.Since(l.start)
	l.entry.mu.Lock()
	l.entry.totalCalls++
	l.entry.lastLatency = latency
	l.entry.mu.Unlock()
	l.entry.breaker.RecordSuccess()
}

// RecordFailure reports the call failed, counting toward the circuit's
// failure threshold.
func (l *Lease) RecordFailure() {
	latency := time.Since(l.start)
	l.entry.mu.Lock()
	l.entry.totalCalls++
	l.entry.failureCount++
	l.entry.lastLatency = latency
	l.entry.mu.Unlock()
	l.entry.breaker.RecordFailure()
}

// Acquire returns a healthy target in round-robin order, skipping any
// whose circuit is open. It fails with upstream_error if every target is
// currently tripped.
func (p *Pool) Acquire() (*Lease, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.entries)
	if n == 0 {
		return nil, apperr.New(apperr.KindUpstreamError, "no backend targets configured")
	}
	for i := 0; i < n; i++ {
		idx := (p.next + i) % n
		e := p.entries[idx]
		if e.breaker.Allow() {
			p.next = (idx + 1) % n
			return &Lease{entry: e, start: time.Now()}, nil
		}
	}
	return nil, apperr.New(apperr.KindUpstreamError, "no healthy backend available")
}

// Status is one target's point-in-time health and performance snapshot.
type Status struct {
	Name          string  `json:"name"`
	BaseURL       string  `json:"base_url"`
	CircuitState  string  `json:"circuit_state"`
	TotalCalls    int64   `json:"total_calls"`
	FailureCount  int64   `json:"failure_count"`
	LastLatencyMs float64 `json:"last_latency_ms"`
}

// ListStatus reports every target's current health, for the admin surface.
func (p *Pool) ListStatus() []Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Status, 0, len(p.entries))
	for _, e := range p.entries {
		e.mu.Lock()
		out = append(out, Status{
			Name:          e.target.Name,
			BaseURL:       e.target.BaseURL,
			CircuitState:  e.breaker.State().String(),
			TotalCalls:    e.totalCalls,
			FailureCount:  e.failureCount,
			LastLatencyMs: float64(e.lastLatency) / float64(time.Millisecond),
		})
		e.mu.Unlock()
	}
	return out
}
