package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRealClockMonotonic(t *testing.T) {
	c := NewReal()

	a := c.Now()
	b := c.Now()

	assert.GreaterOrEqual(t, b, a)
}

func TestFakeClockAdvance(t *testing.T) {
	f := NewFake()

	assert.Equal(t, Instant(0), f.Now())

	f.Advance(5 * time.Second)
	assert.Equal(t, 5*time.Second, f.Now())

	f.Advance(100 * time.Millisecond)
	assert.Equal(t, 5*time.Second+100*time.Millisecond, f.Now())
}

func TestFakeClockWallJumpDoesNotAffectMonotonic(t *testing.T) {
	f := NewFake()
	f.Advance(time.Second)

	before := f.Now()
	wallBefore := f.WallNow()

	f.JumpWall(-time.Hour)

	assert.Equal(t, before, f.Now())
	assert.Equal(t, wallBefore.Add(-time.Hour), f.WallNow())
}
