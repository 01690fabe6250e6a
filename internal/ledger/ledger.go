// Package ledger records every accepted service call for later
// inspection by tests, independent of whether the call changed any
// entity state.
package ledger

import (
	"sync"
	"time"

	"mockha/internal/clock"
)

// Call is one recorded service invocation.
type Call struct {
	Domain      string                 `json:"domain"`
	Service     string                 `json:"service"`
	ServiceData map[string]interface{} `json:"service_data"`
	Timestamp   time.Time              `json:"timestamp"`
}

// Ledger is an append-only record of service calls.
type Ledger struct {
	mu    sync.Mutex
	calls []Call
	clk   clock.Clock
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{clk: clock.NewRealClock()}
}

// SetClock replaces the ledger's time source. Intended for tests.
func (l *Ledger) SetClock(clk clock.Clock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clk = clk
}

// Record appends a call. Every accepted call_service request is
// recorded, whether or not it mutated state.
func (l *Ledger) Record(domain, service string, data map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls = append(l.calls, Call{
		Domain:      domain,
		Service:     service,
		ServiceData: data,
		Timestamp:   l.clk.Now(),
	})
}

// Query returns calls matching the filters in append order. Empty
// filter fields match everything.
func (l *Ledger) Query(domain, service string) []Call {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Call, 0, len(l.calls))
	for _, c := range l.calls {
		if domain != "" && c.Domain != domain {
			continue
		}
		if service != "" && c.Service != service {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Clear empties the ledger. Entity state is unaffected.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = nil
}

// Len returns the number of recorded calls.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.calls)
}
