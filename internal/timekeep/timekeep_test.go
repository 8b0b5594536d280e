package timekeep

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSecToTickAndBack(t *testing.T) {
	assert.EqualValues(t, 120, SecToTick(120))
	assert.EqualValues(t, 120, TickToSec(SecToTick(120)))
	assert.EqualValues(t, 0, SecToTick(-5))
}

func TestClockAdvancesOnRun(t *testing.T) {
	c := NewClock(5 * time.Millisecond)
	stop := make(chan struct{})
	go c.Run(stop)
	defer close(stop)

	assert.Eventually(t, func() bool {
		return c.Now() >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestClockNowStartsAtZero(t *testing.T) {
	c := NewClock(time.Second)
	assert.EqualValues(t, 0, c.Now())
}
