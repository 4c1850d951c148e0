// Package clock supplies the time source consumed by the custody engines.
//
// Engines only ever look at whole seconds, so every accrual computation is a
// pure function of (state, now) and can be replayed exactly with Manual.
package clock

import (
	"sync"
	"time"
)

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// Unix returns c.Now() in whole seconds since the epoch.
func Unix(c Clock) int64 {
	return c.Now().Unix()
}

// System is the wall clock.
type System struct{}

// Now implements Clock.
func (System) Now() time.Time { return time.Now().UTC() }

// Manual is a settable clock for tests, simulations and replays.
//
// Thread-safety: all methods are safe for concurrent use.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual creates a Manual clock positioned at t.
func NewManual(t time.Time) *Manual {
	return &Manual{now: t.UTC()}
}

// NewManualUnix creates a Manual clock positioned at sec seconds since the epoch.
func NewManualUnix(sec int64) *Manual {
	return NewManual(time.Unix(sec, 0))
}

// Now implements Clock.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set moves the clock to t. Moving backwards is allowed; engines treat a
// timestamp before a schedule start as "nothing accrued yet".
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t.UTC()
}

// SetUnix moves the clock to sec seconds since the epoch.
func (m *Manual) SetUnix(sec int64) {
	m.Set(time.Unix(sec, 0))
}

// Advance moves the clock forward by d and returns the new time.
func (m *Manual) Advance(d time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	return m.now
}
