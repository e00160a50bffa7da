package audit

import (
	"sync"
	"time"
)

// Monitor flags actors whose lookup volume spikes above a threshold within
// a sliding window. It only observes; acting on a flag is the caller's job.
type Monitor struct {
	mu        sync.Mutex
	window    time.Duration
	threshold int
	seen      map[string][]time.Time
}

// NewMonitor creates a monitor flagging more than threshold lookups per
// actor within the window.
func NewMonitor(window time.Duration, threshold int) *Monitor {
	return &Monitor{
		window:    window,
		threshold: threshold,
		seen:      make(map[string][]time.Time),
	}
}

// Observe registers one lookup and reports whether the actor is now above
// the threshold.
func (m *Monitor) Observe(actor string, at time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := at.Add(-m.window)
	m.dropIdle(cutoff)

	kept := m.seen[actor][:0]
	for _, t := range m.seen[actor] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, at)
	m.seen[actor] = kept
	return len(kept) > m.threshold
}

// dropIdle removes actors whose last lookup is older than the cutoff, so
// the map does not grow with every actor ever seen.
func (m *Monitor) dropIdle(cutoff time.Time) {
	for actor, times := range m.seen {
		if len(times) == 0 || !times[len(times)-1].After(cutoff) {
			delete(m.seen, actor)
		}
	}
}
