package heatsource

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oebus-project/rwchcd-go/internal/errkind"
	"github.com/oebus-project/rwchcd-go/internal/hwbackend"
	"github.com/oebus-project/rwchcd-go/internal/ioagg"
	"github.com/oebus-project/rwchcd-go/internal/lib"
	"github.com/oebus-project/rwchcd-go/internal/model"
	"github.com/oebus-project/rwchcd-go/internal/outagg"
	"github.com/oebus-project/rwchcd-go/internal/plantdata"
	"github.com/oebus-project/rwchcd-go/internal/timekeep"
)

type fakeBoilerDriver struct {
	temps map[model.InputID]int64
	fail  map[model.InputID]bool
}

func newFakeBoilerDriver() *fakeBoilerDriver {
	return &fakeBoilerDriver{temps: map[model.InputID]int64{}, fail: map[model.InputID]bool{}}
}

func (f *fakeBoilerDriver) Setup(name string) error { return nil }
func (f *fakeBoilerDriver) Online() error           { return nil }
func (f *fakeBoilerDriver) Input() error            { return nil }
func (f *fakeBoilerDriver) Output() error           { return nil }
func (f *fakeBoilerDriver) Offline() error          { return nil }
func (f *fakeBoilerDriver) Exit() error             { return nil }

func (f *fakeBoilerDriver) InputByName(kind hwbackend.InputKind, name string) (model.InputID, bool) {
	return 0, false
}
func (f *fakeBoilerDriver) OutputByName(name string) (model.OutputID, bool) { return 0, false }

func (f *fakeBoilerDriver) InputValue(kind hwbackend.InputKind, id model.InputID) (int64, error) {
	if f.fail[id] {
		return 0, errkind.New(errkind.Hardware, "fake sensor fault")
	}
	return f.temps[id], nil
}
func (f *fakeBoilerDriver) InputTime(kind hwbackend.InputKind, id model.InputID) (timekeep.Tick, error) {
	return 0, nil
}
func (f *fakeBoilerDriver) OutputStateSet(id model.OutputID, on bool) error { return nil }
func (f *fakeBoilerDriver) OutputStateGet(id model.OutputID) (bool, error)  { return false, nil }

type boilerHarness struct {
	ins  *ioagg.Aggregator
	outs *outagg.Aggregator
	drv  *fakeBoilerDriver

	mainSensor model.LogInputID
	stage1     model.LogOutID
}

func newBoilerHarness(t *testing.T) *boilerHarness {
	t.Helper()
	reg := hwbackend.NewRegistry()
	drv := newFakeBoilerDriver()
	bid, err := reg.Register("fake-boiler", drv)
	assert.NoError(t, err)
	ins := ioagg.NewAggregator(reg, timekeep.NewClock(1))
	outs := outagg.NewAggregator(reg)

	h := &boilerHarness{ins: ins, outs: outs, drv: drv}
	h.mainSensor = ins.AddTemp(&ioagg.LogTemp{Sources: []ioagg.TempSource{{Backend: bid, Input: 1}}})
	h.stage1 = outs.Add(&outagg.LogOutput{})
	return h
}

func (h *boilerHarness) newBoiler(t *testing.T, set Settings) *Boiler {
	t.Helper()
	set.SensorMain = h.mainSensor
	set.Stage1Relay = h.stage1
	b := New("test-boiler")
	assert.NoError(t, b.Configure(set))
	assert.NoError(t, b.BringOnline())
	return b
}

func TestConsumerSdelayArmsOnStage1OffTransition(t *testing.T) {
	h := newBoilerHarness(t)
	b := h.newBoiler(t, Settings{
		LimitTMin:      lib.FromCelsius(40),
		LimitTMax:      lib.FromCelsius(80),
		LimitTHardMax:  lib.FromCelsius(95),
		TFreeze:        lib.FromCelsius(5),
		Hysteresis:     lib.FromCelsius(5),
		IdleMode:       IdleAlways,
		ConsumerSdelay: 3,
	})
	pd := plantdata.New(plantdata.Defaults{})

	var pumpOn bool
	setPump := func(on bool) error { pumpOn = on; return nil }

	// below target: burner lights. Logic runs before Run each tick, in the
	// plant's order, since Logic is what counts the shutdown delay down.
	h.drv.temps[1] = int64(lib.FromCelsius(50))
	b.Logic(0, lib.FromCelsius(70), pd, h.ins)
	assert.NoError(t, b.Run(0, lib.FromCelsius(70), model.RunComfort, h.ins, h.outs, setPump, nil))
	on, _ := h.outs.Get(h.stage1)
	assert.True(t, on)
	assert.True(t, pumpOn)

	// demand drops to zero with IdleAlways: burner stops, consumer_sdelay arms.
	b.Logic(1, 0, pd, h.ins)
	assert.NoError(t, b.Run(1, 0, model.RunComfort, h.ins, h.outs, setPump, nil))
	on, _ = h.outs.Get(h.stage1)
	assert.False(t, on)
	assert.True(t, pumpOn, "load pump should keep running through the consumer shutdown delay")

	b.Logic(2, 0, pd, h.ins)
	assert.NoError(t, b.Run(2, 0, model.RunComfort, h.ins, h.outs, setPump, nil))
	assert.True(t, pumpOn)
	b.Logic(3, 0, pd, h.ins)
	assert.NoError(t, b.Run(3, 0, model.RunComfort, h.ins, h.outs, setPump, nil))
	assert.True(t, pumpOn)
	b.Logic(4, 0, pd, h.ins)
	assert.NoError(t, b.Run(4, 0, model.RunComfort, h.ins, h.outs, setPump, nil))
	assert.False(t, pumpOn, "load pump should drop once the delay has fully drained")
}

func TestOvertempForcesOffImmediatelyBypassingSdelay(t *testing.T) {
	h := newBoilerHarness(t)
	b := h.newBoiler(t, Settings{
		LimitTMin:      lib.FromCelsius(40),
		LimitTMax:      lib.FromCelsius(80),
		LimitTHardMax:  lib.FromCelsius(95),
		TFreeze:        lib.FromCelsius(5),
		Hysteresis:     lib.FromCelsius(5),
		IdleMode:       IdleAlways,
		ConsumerSdelay: 10,
	})

	var pumpOn bool
	setPump := func(on bool) error { pumpOn = on; return nil }

	h.drv.temps[1] = int64(lib.FromCelsius(50))
	assert.NoError(t, b.Run(0, lib.FromCelsius(70), model.RunComfort, h.ins, h.outs, setPump, nil))
	assert.True(t, pumpOn)

	h.drv.temps[1] = int64(lib.FromCelsius(96)) // past hard max
	assert.NoError(t, b.Run(1, lib.FromCelsius(70), model.RunComfort, h.ins, h.outs, setPump, nil))
	on, _ := h.outs.Get(h.stage1)
	assert.False(t, on)
	assert.False(t, pumpOn, "an overtemp trip forces everything off immediately, no shutdown delay")
	assert.True(t, b.Overtemp())
	assert.EqualValues(t, 100, b.CShiftCrit())
}

func TestAntifreezeLatchesBurnerOnRegardlessOfIdle(t *testing.T) {
	h := newBoilerHarness(t)
	b := h.newBoiler(t, Settings{
		LimitTMin:     lib.FromCelsius(40),
		LimitTMax:     lib.FromCelsius(80),
		LimitTHardMax: lib.FromCelsius(95),
		TFreeze:       lib.FromCelsius(5),
		Hysteresis:    lib.FromCelsius(5),
		IdleMode:      IdleAlways,
	})

	setPump := func(bool) error { return nil }

	h.drv.temps[1] = int64(lib.FromCelsius(4)) // at/below TFreeze
	assert.NoError(t, b.Run(0, 0, model.RunComfort, h.ins, h.outs, setPump, nil))
	on, _ := h.outs.Get(h.stage1)
	assert.True(t, on, "anti-freeze must light the burner even with zero heat demand and idle-always configured")
}

func TestBurnerMinTimeInhibitsRapidToggle(t *testing.T) {
	h := newBoilerHarness(t)
	b := h.newBoiler(t, Settings{
		LimitTMin:     lib.FromCelsius(40),
		LimitTMax:     lib.FromCelsius(80),
		LimitTHardMax: lib.FromCelsius(95),
		TFreeze:       lib.FromCelsius(5),
		Hysteresis:    lib.FromCelsius(5),
		IdleMode:      IdleAlways,
		BurnerMinTime: 10,
	})

	setPump := func(bool) error { return nil }

	h.drv.temps[1] = int64(lib.FromCelsius(50))
	assert.NoError(t, b.Run(0, lib.FromCelsius(70), model.RunComfort, h.ins, h.outs, setPump, nil))
	on, _ := h.outs.Get(h.stage1)
	assert.True(t, on)

	// demand drops immediately after: min dwell time should hold it on.
	assert.NoError(t, b.Run(1, 0, model.RunComfort, h.ins, h.outs, setPump, nil))
	on, _ = h.outs.Get(h.stage1)
	assert.True(t, on, "burner_min_time must inhibit a stop before the dwell has elapsed")
}

func TestConfigureRequiresMainSensorAndStage1(t *testing.T) {
	b := New("test-boiler")
	err := b.Configure(Settings{})
	assert.True(t, errkind.Is(err, errkind.Misconfigured))
}
