// Package clock supplies the monotonic tick every operation is stamped with.
package clock

import (
	"sync"
	"time"
)

// TickDuration is the wall-clock length of one tick.
const TickDuration = 400 * time.Millisecond

// Clock reports the current tick.
type Clock interface {
	Tick() uint64
}

// SlotClock derives ticks from wall time elapsed since genesis. It never
// moves backwards even if the host clock does.
type SlotClock struct {
	genesis time.Time
	now     func() time.Time

	mu   sync.Mutex
	last uint64
}

// NewSlotClock starts counting at genesis. A nil now uses time.Now.
func NewSlotClock(genesis time.Time, now func() time.Time) *SlotClock {
	if now == nil {
		now = time.Now
	}
	return &SlotClock{genesis: genesis, now: now}
}

func (c *SlotClock) Tick() uint64 {
	elapsed := c.now().Sub(c.genesis)

	var tick uint64
	if elapsed > 0 {
		tick = uint64(elapsed / TickDuration)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if tick < c.last {
		return c.last
	}
	c.last = tick
	return tick
}

// Manual is a clock advanced explicitly. Used by tests and replay.
type Manual struct {
	mu   sync.Mutex
	tick uint64
}

func NewManual(start uint64) *Manual {
	return &Manual{tick: start}
}

func (m *Manual) Tick() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tick
}

// Advance moves the clock forward by n ticks and returns the new tick.
func (m *Manual) Advance(n uint64) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tick += n
	return m.tick
}

// Set moves the clock to tick. Earlier ticks are ignored.
func (m *Manual) Set(tick uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tick > m.tick {
		m.tick = tick
	}
}
