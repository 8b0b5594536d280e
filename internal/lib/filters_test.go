package lib

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oebus-project/rwchcd-go/internal/timekeep"
)

func TestEwmaConvergesTowardSample(t *testing.T) {
	prev := FromCelsius(10)
	sample := FromCelsius(20)
	tau := timekeep.SecToTick(3600)

	cur := prev
	for i := 0; i < 1000; i++ {
		cur = Ewma(cur, sample, tau, timekeep.SecToTick(60))
	}
	assert.InDelta(t, 20.0, cur.ToCelsius(), 0.5)
}

func TestEwmaZeroDtUnchanged(t *testing.T) {
	prev := FromCelsius(10)
	assert.Equal(t, prev, Ewma(prev, FromCelsius(30), timekeep.SecToTick(60), 0))
}

func TestThrsIntgSeedsColdThenAccumulates(t *testing.T) {
	var s IntgState
	thr := FromCelsius(40)

	got := ThrsIntg(&s, thr, FromCelsius(42), timekeep.SecToTick(0), -100, 100)
	assert.EqualValues(t, 0, got)

	got = ThrsIntg(&s, thr, FromCelsius(42), timekeep.SecToTick(10), -100, 100)
	assert.Greater(t, got, int64(0))
}

func TestThrsIntgJacketsResult(t *testing.T) {
	var s IntgState
	thr := FromCelsius(0)
	ThrsIntg(&s, thr, FromCelsius(1000), timekeep.SecToTick(0), -5, 5)
	got := ThrsIntg(&s, thr, FromCelsius(1000), timekeep.SecToTick(3600), -5, 5)
	assert.EqualValues(t, 5, got)
}
