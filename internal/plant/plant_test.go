package plant

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/oebus-project/rwchcd-go/internal/bmodel"
	"github.com/oebus-project/rwchcd-go/internal/hwbackend"
	"github.com/oebus-project/rwchcd-go/internal/ioagg"
	"github.com/oebus-project/rwchcd-go/internal/lib"
	"github.com/oebus-project/rwchcd-go/internal/model"
	"github.com/oebus-project/rwchcd-go/internal/outagg"
	"github.com/oebus-project/rwchcd-go/internal/plantdata"
	"github.com/oebus-project/rwchcd-go/internal/scheduler"
	"github.com/oebus-project/rwchcd-go/internal/timekeep"
)

func newTestPlant(defaults plantdata.Defaults) *Plant {
	reg := hwbackend.NewRegistry()
	ins := ioagg.NewAggregator(reg, timekeep.NewClock(1))
	outs := outagg.NewAggregator(reg)
	data := plantdata.New(defaults)
	return New(zerolog.Nop(), reg, ins, outs, scheduler.NewStatic(nil), data)
}

func newTestBModelParams() bmodel.Params {
	return bmodel.Params{
		Tau:          timekeep.SecToTick(3600),
		MixedTau:     timekeep.SecToTick(900),
		AttenTau:     timekeep.SecToTick(10800),
		LimitTSummer: lib.FromCelsius(18),
		LimitTFrost:  lib.FromCelsius(2),
		Hysteresis:   lib.FromCelsius(1),
	}
}

func TestAllSummerRequiresEveryModelToAgree(t *testing.T) {
	p := newTestPlant(plantdata.Defaults{})
	assert.False(t, p.allSummer(), "an empty plant never claims summer maintenance")

	hot := bmodel.New(newTestBModelParams())
	cold := bmodel.New(newTestBModelParams())
	hot.Run(0, lib.FromCelsius(25))  // well above the summer cutoff
	cold.Run(0, lib.FromCelsius(5)) // well below it

	p.AddBModel(hot, 0)
	assert.True(t, p.allSummer(), "the single configured model reads summer")

	p.AddBModel(cold, 0)
	assert.False(t, p.allSummer(), "one model still reading winter must block summer maintenance for the whole plant")

	cold.Run(timekeep.SecToTick(1), lib.FromCelsius(25))
	// it takes many ticks for the exponential filter to climb past the
	// summer threshold, so a single subsequent warm sample is not enough on
	// its own; assert only that the all-models-agree rule is still being
	// applied (still false with the filter barely moved).
	assert.False(t, p.allSummer())
}

func TestSleepIdleTicksDebouncesCouldSleep(t *testing.T) {
	p := newTestPlant(plantdata.Defaults{SleepingDelay: 3})
	assert.NoError(t, p.Online())

	// each idle pass counts one tick, so the third pass completes the delay.
	for tick := timekeep.Tick(0); tick < 2; tick++ {
		p.Run(tick, model.SysAuto)
		assert.False(t, p.Data.Flags.Snapshot().PlantCouldSleep, "must not assert could_sleep before the sleeping delay has fully elapsed")
	}

	p.Run(2, model.SysAuto)
	assert.True(t, p.Data.Flags.Snapshot().PlantCouldSleep, "an idle plant past its sleeping delay should assert could_sleep")
}

func TestSleepIdleTicksResetsOnHeatRequest(t *testing.T) {
	p := newTestPlant(plantdata.Defaults{SleepingDelay: 2})
	assert.NoError(t, p.Online())

	p.Run(0, model.SysAuto)
	p.Run(1, model.SysAuto)
	assert.True(t, p.Data.Flags.Snapshot().PlantCouldSleep)

	// a nonzero aggregated heat request resets the idle counter; with no
	// circuits or tanks configured here the aggregate is always zero, so
	// the reset path is instead exercised directly against the counter the
	// debounce reads, mirroring what a live heat request would do.
	p.sleepIdleTicks = 0
	p.Run(2, model.SysAuto)
	assert.False(t, p.Data.Flags.Snapshot().PlantCouldSleep, "the debounce must require the delay to elapse again after an idle reset")
}
