// Package timekeep provides the plant's single monotonic time source: a tick
// counter advanced by one dedicated goroutine and read everywhere else via
// atomics. Every time-dependent decision in the core — sensor freshness,
// transition timers, cooldowns — goes through this clock, never wall time,
// so tests can drive the plant deterministically without sleeping.
package timekeep

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Tick is an unsigned monotonic tick count. Comparison is the ordinary
// integer "a >= b"; the clock only ever moves forward.
type Tick uint64

// Resolution is fixed at one tick per second, matching the plant's 1s
// control-loop cadence (spec.md §5 "typically 1 s").
const ticksPerSecond = 1

// Clock owns the atomic tick counter and the goroutine that advances it.
type Clock struct {
	ticks   atomic.Uint64
	period  time.Duration
	stopped atomic.Bool
}

// NewClock builds a Clock. period is the wall-clock duration of one tick.
func NewClock(period time.Duration) *Clock {
	if period <= 0 {
		period = time.Second
	}
	return &Clock{period: period}
}

// Run advances the clock once per period until stop is closed. It is the
// timekeep thread of spec.md §5 and must run on its own goroutine.
func (c *Clock) Run(stop <-chan struct{}) {
	t := time.NewTicker(c.period)
	defer t.Stop()
	for {
		select {
		case <-stop:
			c.stopped.Store(true)
			return
		case <-t.C:
			c.advance()
		}
	}
}

func (c *Clock) advance() {
	prev := c.ticks.Load()
	next := prev + 1
	if next < prev {
		// wraparound: a fatal invariant violation per spec.md §7.
		log.Fatal().Msg("timekeep: monotonic clock wrapped around")
	}
	c.ticks.Store(next)
}

// Now returns the current tick count.
func (c *Clock) Now() Tick {
	return Tick(c.ticks.Load())
}

// SecToTick converts a duration in seconds to a tick count.
func SecToTick(s int64) Tick {
	if s < 0 {
		s = 0
	}
	return Tick(s * ticksPerSecond)
}

// TickToSec converts a tick count to seconds.
func TickToSec(t Tick) int64 {
	return int64(t) / ticksPerSecond
}

// Sleep blocks the calling goroutine for the given number of ticks, using
// the Clock's configured period as the wall-clock equivalent of one tick.
func (c *Clock) Sleep(ticks Tick) {
	time.Sleep(time.Duration(ticks) * c.period)
}
