package session

import (
	"sync"
	"time"
)

// simClock is the server's simulated wall clock: an epoch fixed at some
// point plus the real wall-clock elapsed since then. The two values are
// set and read together under one mutex, per the server's "set together,
// read atomically" resource rule.
type simClock struct {
	mu          sync.Mutex
	initialized bool
	epoch       int64
	setAt       time.Time
}

// maxEpoch is the largest epoch set is willing to accept, 2^31-1.
const maxEpoch = 1<<31 - 1

func (c *simClock) set(epoch int64) bool {
	if epoch < 0 || epoch > maxEpoch {
		return false
	}
	c.mu.Lock()
	c.epoch = epoch
	c.setAt = time.Now()
	c.initialized = true
	c.mu.Unlock()
	return true
}

func (c *simClock) now() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return 0, false
	}
	return c.epoch + int64(time.Since(c.setAt).Seconds()), true
}
