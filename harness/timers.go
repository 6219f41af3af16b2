// Package harness runs randomized, timed trials of the registered SpMV
// backends against a shared problem, with barrier/fence bracketing so trials
// never overlap, and optional cross-backend correctness checks against a
// reference baseline.
package harness

import (
	"sync"
	"time"
)

// Timer accumulates the elapsed time, call count, and failure count of one
// backend across trials.
type Timer struct {
	Elapsed  time.Duration
	Calls    int
	Failures int
}

// TimePerCall returns the mean seconds per successful call, 0 before any.
func (t *Timer) TimePerCall() float64 {
	if t.Calls == 0 {
		return 0
	}
	return t.Elapsed.Seconds() / float64(t.Calls)
}

// TimerRegistry is an explicit registry of named timers, scoped to one run
// and passed by reference into the harness and the reporter. Nothing here is
// process-global.
type TimerRegistry struct {
	mu     sync.Mutex
	timers map[string]*Timer
	order  []string
}

// NewTimerRegistry returns an empty registry.
func NewTimerRegistry() *TimerRegistry {
	return &TimerRegistry{timers: make(map[string]*Timer)}
}

// Timer returns the named timer, creating it on first use. Creation order is
// preserved for reporting.
func (r *TimerRegistry) Timer(name string) *Timer {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, found := r.timers[name]
	if !found {
		t = &Timer{}
		r.timers[name] = t
		r.order = append(r.order, name)
	}
	return t
}

// Record adds one successful call of duration d to the named timer.
func (r *TimerRegistry) Record(name string, d time.Duration) {
	t := r.Timer(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	t.Elapsed += d
	t.Calls++
}

// RecordFailure counts one failed call of the named timer.
func (r *TimerRegistry) RecordFailure(name string) {
	t := r.Timer(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	t.Failures++
}

// Names returns the timer names in creation order.
func (r *TimerRegistry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
