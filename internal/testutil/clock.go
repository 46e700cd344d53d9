package testutil

import (
	"sync"
	"time"
)

// Epoch is the first instant returned by a new StepClock.
var Epoch = time.Unix(1700000000, 0).UTC()

// StepClock is a deterministic wall clock for tests.
//
// Every call to Now advances the clock by Step, so consecutive timestamps
// are distinct and strictly increasing. Safe for concurrent use.
type StepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewStepClock returns a clock starting at Epoch that advances by step.
func NewStepClock(step time.Duration) *StepClock {
	return &StepClock{now: Epoch, step: step}
}

// Now returns the current instant and advances the clock.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Peek returns the next instant Now will return.
func (c *StepClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *StepClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Reset moves the clock back to Epoch.
func (c *StepClock) Reset() {
	c.Set(Epoch)
}
