package clock

import (
	"sync"
	"time"
)

// Clock provides the current time to session accounting.
// This interface allows time to be mocked in tests.
type Clock interface {
	Now() time.Time
}

// Seconds returns the clock's current time as unsigned Unix seconds.
// Times before the epoch read as zero.
func Seconds(c Clock) uint64 {
	sec := c.Now().Unix()
	if sec < 0 {
		return 0
	}
	return uint64(sec)
}

// RealClock provides actual system time.
type RealClock struct{}

// Now returns the current system time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// TestClock provides a settable time for testing.
type TestClock struct {
	mu      sync.Mutex
	current time.Time
}

// NewTestClock returns a TestClock fixed at the given Unix second.
func NewTestClock(unix int64) *TestClock {
	return &TestClock{current: time.Unix(unix, 0)}
}

// Now returns the test time.
func (t *TestClock) Now() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Set moves the clock to the given Unix second.
func (t *TestClock) Set(unix int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = time.Unix(unix, 0)
}

// Advance moves the clock forward by d.
func (t *TestClock) Advance(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = t.current.Add(d)
}
