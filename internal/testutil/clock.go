package testutil

import (
	"sync"
	"time"
)

// Clock is a chrono.TimeAPI whose time only moves when told to.
type Clock struct {
	mutex sync.Mutex
	now   time.Time
}

func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

func (c *Clock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.now
}

func (c *Clock) Location() *time.Location {
	return c.Now().Location()
}

func (c *Clock) Advance(d time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.now = c.now.Add(d)
}
