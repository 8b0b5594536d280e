package bmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oebus-project/rwchcd-go/internal/lib"
	"github.com/oebus-project/rwchcd-go/internal/timekeep"
)

func newTestModel() *Model {
	return New(Params{
		Tau:          timekeep.SecToTick(3600),
		MixedTau:     timekeep.SecToTick(900),
		AttenTau:     timekeep.SecToTick(10800),
		LimitTSummer: lib.FromCelsius(18),
		LimitTFrost:  lib.FromCelsius(2),
		Hysteresis:   lib.FromCelsius(1),
	})
}

func TestModelSeedsOnFirstRun(t *testing.T) {
	m := newTestModel()
	m.Run(0, lib.FromCelsius(25))
	assert.Equal(t, lib.FromCelsius(25), m.Filtered())
	assert.True(t, m.Summer())
	assert.False(t, m.Frost())
}

func TestModelFrostLatchesOnAnyFilterBelowThreshold(t *testing.T) {
	m := newTestModel()
	m.Run(0, lib.FromCelsius(-5))
	assert.True(t, m.Frost())
}

func TestModelSummerHasHysteresisOnTheWayDown(t *testing.T) {
	m := newTestModel()
	m.Run(0, lib.FromCelsius(25))
	assert.True(t, m.Summer())

	// drop outdoor just under the summer threshold: all filters still sit
	// above limit-hysteresis for a while given the long tau, so summer must
	// stay latched until they actually cross the hysteresis band.
	now := timekeep.Tick(60)
	m.Run(now, lib.FromCelsius(17))
	assert.True(t, m.Summer(), "summer should not drop before crossing threshold-hysteresis")
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	m := newTestModel()
	m.Run(0, lib.FromCelsius(25))
	m.Run(timekeep.SecToTick(120), lib.FromCelsius(24))

	blob := m.Snapshot()

	restored := newTestModel()
	assert.NoError(t, restored.Restore(blob))
	assert.Equal(t, m.Filtered(), restored.Filtered())
	assert.Equal(t, m.Mixed(), restored.Mixed())
	assert.Equal(t, m.Attenuated(), restored.Attenuated())
	assert.Equal(t, m.Short(), restored.Short())
	assert.Equal(t, m.Summer(), restored.Summer())
	assert.Equal(t, m.Frost(), restored.Frost())
}

func TestRestoreRejectsBadVersion(t *testing.T) {
	m := newTestModel()
	blob := m.Snapshot()
	blob[0] = 99
	assert.Error(t, m.Restore(blob))
}

func TestRestoreRejectsShortBuffer(t *testing.T) {
	m := newTestModel()
	assert.Error(t, m.Restore([]byte{1, 2, 3}))
}
