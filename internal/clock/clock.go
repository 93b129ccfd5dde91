// Package clock abstracts the process clock so time-dependent logic can be tested.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// System is the real wall clock.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// Manual is a settable clock for tests and replays.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual returns a Manual clock set to the given epoch second.
func NewManual(epoch int64) *Manual {
	return &Manual{now: time.Unix(epoch, 0).UTC()}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set moves the clock to the given epoch second.
func (m *Manual) Set(epoch int64) {
	m.mu.Lock()
	m.now = time.Unix(epoch, 0).UTC()
	m.mu.Unlock()
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}
