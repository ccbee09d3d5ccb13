package history

import (
	"sync"
	"time"
)

// WallClock reads the current UTC time. Used when the service runs against a
// live feed.
type WallClock struct{}

func (WallClock) Now() time.Time {
	return time.Now().UTC()
}

// SimClock is a settable clock for backtests. The driving engine advances it
// before delivering each tick; the history service only reads it.
type SimClock struct {
	mu  sync.RWMutex
	now time.Time
}

func NewSimClock(start time.Time) *SimClock {
	return &SimClock{now: start.UTC()}
}

func (c *SimClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *SimClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}

func (c *SimClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
