package valve

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/oebus-project/rwchcd-go/internal/errkind"
	"github.com/oebus-project/rwchcd-go/internal/hwbackend"
	"github.com/oebus-project/rwchcd-go/internal/ioagg"
	"github.com/oebus-project/rwchcd-go/internal/lib"
	"github.com/oebus-project/rwchcd-go/internal/model"
	"github.com/oebus-project/rwchcd-go/internal/outagg"
	"github.com/oebus-project/rwchcd-go/internal/timekeep"
)

type fakeDriver struct {
	temps map[model.InputID]int64
}

func newFakeDriver() *fakeDriver { return &fakeDriver{temps: map[model.InputID]int64{}} }

func (f *fakeDriver) Setup(name string) error { return nil }
func (f *fakeDriver) Online() error           { return nil }
func (f *fakeDriver) Input() error            { return nil }
func (f *fakeDriver) Output() error           { return nil }
func (f *fakeDriver) Offline() error          { return nil }
func (f *fakeDriver) Exit() error             { return nil }

func (f *fakeDriver) InputByName(kind hwbackend.InputKind, name string) (model.InputID, bool) {
	return 0, false
}
func (f *fakeDriver) OutputByName(name string) (model.OutputID, bool) { return 0, false }

func (f *fakeDriver) InputValue(kind hwbackend.InputKind, id model.InputID) (int64, error) {
	return f.temps[id], nil
}
func (f *fakeDriver) InputTime(kind hwbackend.InputKind, id model.InputID) (timekeep.Tick, error) {
	return 0, nil
}
func (f *fakeDriver) OutputStateSet(id model.OutputID, on bool) error { return nil }
func (f *fakeDriver) OutputStateGet(id model.OutputID) (bool, error)  { return false, nil }

type harness struct {
	ins  *ioagg.Aggregator
	outs *outagg.Aggregator
	drv  *fakeDriver
	bid  model.BackendID

	hot, cold, out model.LogInputID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	reg := hwbackend.NewRegistry()
	drv := newFakeDriver()
	bid, err := reg.Register("fake", drv)
	assert.NoError(t, err)

	ins := ioagg.NewAggregator(reg, timekeep.NewClock(time.Second))
	outs := outagg.NewAggregator(reg)

	h := &harness{ins: ins, outs: outs, drv: drv, bid: bid}
	h.hot = ins.AddTemp(&ioagg.LogTemp{Sources: []ioagg.TempSource{{Backend: bid, Input: 1}}})
	h.cold = ins.AddTemp(&ioagg.LogTemp{Sources: []ioagg.TempSource{{Backend: bid, Input: 2}}})
	h.out = ins.AddTemp(&ioagg.LogTemp{Sources: []ioagg.TempSource{{Backend: bid, Input: 3}}})
	h.drv.temps[1] = int64(lib.FromCelsius(60))
	h.drv.temps[2] = int64(lib.FromCelsius(10))
	h.drv.temps[3] = int64(lib.FromCelsius(35))
	return h
}

func (h *harness) newValve(t *testing.T, set Settings) *Valve {
	t.Helper()
	set.TidHot, set.TidCold, set.TidOut = h.hot, h.cold, h.out
	openID := h.outs.Add(&outagg.LogOutput{})
	closeID := h.outs.Add(&outagg.LogOutput{})
	set.OpenRelay, set.CloseRelay = openID, closeID
	v := New("test-valve")
	assert.NoError(t, v.Configure(set))
	assert.NoError(t, v.BringOnline())
	return v
}

func TestConfigureRequiresHotAndColdSensors(t *testing.T) {
	v := New("test-valve")
	err := v.Configure(Settings{
		Motorization: ThreeWay,
		OpenRelay:    1,
		CloseRelay:   2,
		TidOut:       3,
		EteTime:      10,
	})
	assert.True(t, errkind.Is(err, errkind.Misconfigured))
}

func TestBangbangDrivesTowardHotBelowTarget(t *testing.T) {
	h := newHarness(t)
	v := h.newValve(t, Settings{Motorization: ThreeWay, Algorithm: Bangbang, EteTime: 100, TDeadzone: lib.KPrecision})

	v.Request(lib.FromCelsius(40))
	assert.NoError(t, v.Run(1, h.ins, h.outs))
	assert.Equal(t, Open, v.run.motor)
}

func TestBangbangSaturatesAtHotLeg(t *testing.T) {
	h := newHarness(t)
	v := h.newValve(t, Settings{Motorization: ThreeWay, Algorithm: Bangbang, EteTime: 100, TDeadzone: lib.KPrecision})

	// actual output already at (or past) the hot leg reading: driving open
	// further cannot move it, so the motor must stop rather than grind.
	h.drv.temps[3] = int64(lib.FromCelsius(60))
	v.Request(lib.FromCelsius(90))
	assert.NoError(t, v.Run(1, h.ins, h.outs))
	assert.Equal(t, Stop, v.run.motor)
}

func TestBangbangSaturatesAtColdLeg(t *testing.T) {
	h := newHarness(t)
	v := h.newValve(t, Settings{Motorization: ThreeWay, Algorithm: Bangbang, EteTime: 100, TDeadzone: lib.KPrecision})

	h.drv.temps[3] = int64(lib.FromCelsius(10))
	v.Request(lib.FromCelsius(-5))
	assert.NoError(t, v.Run(1, h.ins, h.outs))
	assert.Equal(t, Stop, v.run.motor)
}

func TestIsolationValveIgnoresTemperatureTargets(t *testing.T) {
	v := New("iso")
	assert.NoError(t, v.Configure(Settings{Motorization: Isolation, IsolationRelay: 1}))
	assert.NoError(t, v.BringOnline())

	v.Request(lib.FromCelsius(50))
	assert.False(t, v.run.haveTarget)

	v.RequestOpen(true)
	assert.True(t, v.run.haveTarget)
}

func TestPositionAdvancesWithMotorTime(t *testing.T) {
	h := newHarness(t)
	v := h.newValve(t, Settings{Motorization: ThreeWay, Algorithm: Bangbang, EteTime: 100, TDeadzone: lib.KPrecision})

	v.Request(lib.FromCelsius(90))
	// tick 0 is indistinguishable from "never run" in the valve's lastRun
	// sentinel, so the first tick that can accrue elapsed time is 1.
	assert.NoError(t, v.Run(1, h.ins, h.outs))
	start := v.Position()
	assert.NoError(t, v.Run(10, h.ins, h.outs))
	assert.Greater(t, v.Position(), start)
}
