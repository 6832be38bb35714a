package capture

import (
	"sync"
	"time"
)

// RateCounter reports events completed over a trailing time window.
// Used for the captures-per-second diagnostic.
type RateCounter struct {
	mu     sync.Mutex
	window time.Duration
	events []time.Time
}

// NewRateCounter creates a counter with a 1-second trailing window.
func NewRateCounter() *RateCounter {
	return NewRateCounterWindow(time.Second)
}

// NewRateCounterWindow creates a counter with the given trailing window.
func NewRateCounterWindow(window time.Duration) *RateCounter {
	if window <= 0 {
		window = time.Second
	}
	return &RateCounter{window: window}
}

// Add records one event at time t.
func (c *RateCounter) Add(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trim(t)
	c.events = append(c.events, t)
}

// Rate returns the number of events in the window ending at t.
func (c *RateCounter) Rate(t time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trim(t)
	return len(c.events)
}

// trim drops events older than the window. Caller holds mu.
func (c *RateCounter) trim(now time.Time) {
	cutoff := now.Add(-c.window)
	i := 0
	for i < len(c.events) && !c.events[i].After(cutoff) {
		i++
	}
	if i > 0 {
		c.events = append(c.events[:0], c.events[i:]...)
	}
}
