package clock

import "time"

// FakeClock is a manually advanced Clock for deterministic entitlement
// deadline tests. The instant is normalized to UTC on construction, matching
// what the system clock hands out.
type FakeClock struct {
	now time.Time
}

func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t.UTC()}
}

// Now returns the frozen instant.
func (c *FakeClock) Now() time.Time {
	return c.now
}

// Advance moves the frozen instant forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}
