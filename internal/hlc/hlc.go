// Package hlc implements the hybrid logical clock that issues write versions.
//
// A version packs wall-clock milliseconds into the high 48 bits and a logical
// counter into the low 16 bits. Successive versions from one clock are
// strictly increasing even if the wall clock stalls or steps backwards.
package hlc

import (
	"sync"
	"time"

	"github.com/hupe1980/histore/model"
)

const logicalBits = 16

// Clock issues strictly increasing versions. It is safe for concurrent use.
type Clock struct {
	mu   sync.Mutex
	wall func() time.Time
	last uint64
}

// New creates a clock reading wall time from wall, or time.Now if nil.
func New(wall func() time.Time) *Clock {
	if wall == nil {
		wall = time.Now
	}
	return &Clock{wall: wall}
}

// Now returns a version greater than every version previously issued or observed.
func (c *Clock) Now() model.Version {
	c.mu.Lock()
	defer c.mu.Unlock()

	pt := uint64(c.wall().UnixMilli()) << logicalBits
	if pt > c.last {
		c.last = pt
	} else {
		c.last++
	}
	return model.Version(c.last)
}

// Observe advances the clock past v, so the next Now is greater than v.
func (c *Clock) Observe(v model.Version) {
	if v.IsLatest() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if uint64(v) > c.last {
		c.last = uint64(v)
	}
}

// Last returns the most recent version issued or observed.
func (c *Clock) Last() model.Version {
	c.mu.Lock()
	defer c.mu.Unlock()
	return model.Version(c.last)
}

// Time returns the wall-clock component of v.
func Time(v model.Version) time.Time {
	return time.UnixMilli(int64(uint64(v) >> logicalBits))
}

// FromTime returns the smallest version issued at t. It is useful to pin a
// time-travel read to a wall-clock instant.
func FromTime(t time.Time) model.Version {
	return model.Version(uint64(t.UnixMilli()) << logicalBits)
}
