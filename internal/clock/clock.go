package clock

import (
	"sync"
	"time"
)

// Instant is a reading of the monotonic clock, expressed as the elapsed time
// since an arbitrary process-local origin. Instants from different processes
// are not comparable; persistence must store wall-clock deltas instead.
type Instant = time.Duration

// Clock supplies time to every component that makes a timing decision.
// Now is monotonic and gates all correctness decisions (cooldown deadlines,
// bucket refill, throttle windows). WallNow exists only for logging and
// persistence and must never drive a state transition.
type Clock interface {
	Now() Instant
	WallNow() time.Time
}

// Real is the production clock. Now reads the Go runtime's monotonic clock
// relative to process start, so wall-clock jumps never affect it.
type Real struct {
	start time.Time
}

// NewReal creates a Real clock anchored at the current time.
func NewReal() *Real {
	return &Real{start: time.Now()}
}

// Now returns the monotonic elapsed time since the clock was created.
func (c *Real) Now() Instant {
	return time.Since(c.start)
}

// WallNow returns the current wall-clock time.
func (c *Real) WallNow() time.Time {
	return time.Now()
}

// Fake is a manually advanced clock for tests. It is safe for concurrent use.
type Fake struct {
	mu   sync.Mutex
	now  Instant
	wall time.Time
}

// NewFake creates a Fake clock starting at instant zero.
func NewFake() *Fake {
	return &Fake{wall: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Now returns the current fake monotonic instant.
func (f *Fake) Now() Instant {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// WallNow returns the current fake wall-clock time.
func (f *Fake) WallNow() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.wall
}

// Advance moves both the monotonic and wall clocks forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now += d
	f.wall = f.wall.Add(d)
}

// JumpWall shifts only the wall clock by d, simulating NTP steps or operator
// clock changes. The monotonic instant is unaffected.
func (f *Fake) JumpWall(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wall = f.wall.Add(d)
}
