package shuttle

import (
	"sync"
	"time"
)

// Counter counts envelopes that never made it to the collector. It remembers
// when it was last reset so reports can say "since".
type Counter struct {
	mu        sync.Mutex
	value     int
	allTime   int
	lastReset time.Time
}

// NewCounter returns a Counter starting at zero.
func NewCounter() *Counter {
	return &Counter{lastReset: time.Now()}
}

// Read returns the current value
func (c *Counter) Read() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// AllTime returns the value ignoring resets
func (c *Counter) AllTime() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allTime
}

// ReadAndReset returns the current value and the time of the previous reset,
// then zeroes the counter.
func (c *Counter) ReadAndReset() (int, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, since := c.value, c.lastReset
	c.value = 0
	c.lastReset = time.Now()
	return v, since
}

// Add n and return the new value
func (c *Counter) Add(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allTime += n
	c.value += n
	return c.value
}
