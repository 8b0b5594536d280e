// Package valve implements the mixing/isolation valve entity of spec.md
// §4.7: three-way, two-way, or isolation motorization driven by one of
// three control algorithms (bangbang, sapprox, velocity-form PI), tracking
// an estimated travel position from accumulated motor-on time. It follows
// the teacher's device layer discipline of resolving a logical actuation to
// concrete relay writes (device.ActivateBoiler / DeactivateBoiler), widened
// here to a state machine with intermediate positions instead of a bare
// on/off relay.
package valve

import (
	"github.com/oebus-project/rwchcd-go/internal/errkind"
	"github.com/oebus-project/rwchcd-go/internal/ioagg"
	"github.com/oebus-project/rwchcd-go/internal/model"
	"github.com/oebus-project/rwchcd-go/internal/outagg"
	"github.com/oebus-project/rwchcd-go/internal/timekeep"
)

// Motorization distinguishes how a valve's motor is driven.
type Motorization int

const (
	ThreeWay Motorization = iota
	TwoWay
	Isolation
)

// Algorithm selects the control law driving a non-isolation valve.
type Algorithm int

const (
	Bangbang Algorithm = iota
	Sapprox
	PI
)

// MotorState is the valve's current drive direction.
type MotorState int

const (
	Stop MotorState = iota
	Open
	Close
)

const fullPosition = 1000 // position scale per spec.md §4.7, 0..1000

// Settings are the externally-configured parameters of a valve.
type Settings struct {
	Motorization Motorization
	Algorithm    Algorithm

	// ThreeWay
	OpenRelay  model.LogOutID
	CloseRelay model.LogOutID

	// TwoWay
	TriggerRelay   model.LogOutID
	TriggerOpenHi  bool // polarity: true if driving the relay high commands "open"

	// Isolation
	IsolationRelay model.LogOutID

	EteTime   timekeep.Tick // full-travel duration
	Deadband  int           // percent-of-travel below which a move is a no-op, 0..1000
	TDeadzone model.Temp    // temperature band around target in which no new target is enacted

	TidHot model.LogInputID
	TidCold model.LogInputID
	TidOut  model.LogInputID

	// sapprox
	SampleIntvl timekeep.Tick
	SapAmount   int // percent-of-travel moved per sample, 0..1000

	// PI (velocity form)
	Tu      timekeep.Tick // ultimate period
	Td      timekeep.Tick // derivative time, used to derive the integral time constant
	Ksmax   int           // maximum gain, scaled by 100 (i.e. Ksmax=100 means gain 1.0)
	TuneF   int           // detune factor, scaled by 100
}

type runState struct {
	position    int // estimated 0..1000
	motor       MotorState
	target      model.Temp
	haveTarget  bool
	lastRun     timekeep.Tick

	// sapprox
	lastSample timekeep.Tick

	// PI
	prevErr     model.Temp
	haveErr     bool
	integral    int64 // saturated accumulator, percent-of-travel scaled by 1000
	lastSampleP timekeep.Tick
}

// Valve is a mixing or isolation valve.
type Valve struct {
	model.EntityBase
	Set Settings
	run runState
}

// New builds an unconfigured Valve named name.
func New(name string) *Valve {
	return &Valve{EntityBase: model.EntityBase{Name: name}}
}

// Configure validates the relay/sensor handles required by the configured
// motorization and algorithm, then marks the valve configured.
func (v *Valve) Configure(set Settings) error {
	switch set.Motorization {
	case ThreeWay:
		if !set.OpenRelay.Valid() || !set.CloseRelay.Valid() {
			return errkind.New(errkind.Misconfigured, "valve %q: three-way motorization needs open and close relays", v.Name)
		}
	case TwoWay:
		if !set.TriggerRelay.Valid() {
			return errkind.New(errkind.Misconfigured, "valve %q: two-way motorization needs a trigger relay", v.Name)
		}
	case Isolation:
		if !set.IsolationRelay.Valid() {
			return errkind.New(errkind.Misconfigured, "valve %q: isolation motorization needs a relay", v.Name)
		}
	default:
		return errkind.New(errkind.Misconfigured, "valve %q: unknown motorization", v.Name)
	}
	if set.Motorization != Isolation {
		if !set.TidOut.Valid() {
			return errkind.New(errkind.Misconfigured, "valve %q: output sensor not set", v.Name)
		}
		if !set.TidHot.Valid() || !set.TidCold.Valid() {
			return errkind.New(errkind.Misconfigured, "valve %q: hot and cold leg sensors required", v.Name)
		}
		if set.EteTime <= 0 {
			return errkind.New(errkind.Misconfigured, "valve %q: ete_time must be positive", v.Name)
		}
	}
	v.Set = set
	v.Configured = true
	return nil
}

// BringOnline brings the valve online at an assumed mid-travel position,
// since actual position is not directly sensed.
func (v *Valve) BringOnline() error {
	if !v.Configured {
		return errkind.New(errkind.NotConfigured, "valve %q: not configured", v.Name)
	}
	v.run = runState{position: fullPosition / 2}
	v.Online = true
	return nil
}

// Request sets a new target temperature for a mixing valve. Isolation
// valves ignore temperature targets; use RequestOpen instead.
func (v *Valve) Request(target model.Temp) {
	if v.Set.Motorization == Isolation {
		return
	}
	if v.run.haveTarget && absTemp(target-v.run.target) < v.Set.TDeadzone {
		return // inside the temperature deadzone: keep the existing target
	}
	v.run.target = target
	v.run.haveTarget = true
}

// RequestOpen commands an isolation valve fully open or fully closed.
func (v *Valve) RequestOpen(open bool) {
	if open {
		v.run.target = model.Temp(fullPosition)
	} else {
		v.run.target = 0
	}
	v.run.haveTarget = true
}

func absTemp(t model.Temp) model.Temp {
	if t < 0 {
		return -t
	}
	return t
}

// Run evaluates the configured algorithm and drives the motor relays.
func (v *Valve) Run(now timekeep.Tick, ins *ioagg.Aggregator, outs *outagg.Aggregator) error {
	if !v.Online {
		return errkind.New(errkind.Offline, "valve %q: offline", v.Name)
	}

	var dt timekeep.Tick
	if v.run.lastRun != 0 {
		dt = now - v.run.lastRun
	}
	v.run.lastRun = now

	// advance estimated position from the motor state of the previous tick
	v.advancePosition(dt)

	if v.Set.Motorization == Isolation {
		want := v.run.haveTarget && v.run.target >= fullPosition/2
		return outs.Set(v.Set.IsolationRelay, want)
	}

	if !v.run.haveTarget {
		return v.drive(Stop, outs)
	}

	actual, err := ins.ReadTemp(v.Set.TidOut)
	if err != nil {
		return v.drive(Stop, outs)
	}

	switch v.Set.Algorithm {
	case Bangbang:
		return v.runBangbang(actual, ins, outs)
	case Sapprox:
		return v.runSapprox(now, actual, ins, outs)
	case PI:
		return v.runPI(now, actual, ins, outs)
	default:
		return errkind.New(errkind.Misconfigured, "valve %q: unknown algorithm", v.Name)
	}
}

// driveLimited is drive guarded by the hot/cold leg sensors: once the
// mixed output already reads at or past the leg being driven toward, the
// requested direction can no longer move it, so the motor is stopped
// instead of held running against a physical rail.
func (v *Valve) driveLimited(want MotorState, actual model.Temp, ins *ioagg.Aggregator, outs *outagg.Aggregator) error {
	switch want {
	case Open:
		if hot, err := ins.ReadTemp(v.Set.TidHot); err == nil && actual >= hot {
			want = Stop
		}
	case Close:
		if cold, err := ins.ReadTemp(v.Set.TidCold); err == nil && actual <= cold {
			want = Stop
		}
	}
	return v.drive(want, outs)
}

// advancePosition integrates the previous tick's motor direction into the
// estimated position, bounding to [0, fullPosition].
func (v *Valve) advancePosition(dt timekeep.Tick) {
	if dt == 0 || v.run.motor == Stop || v.Set.EteTime == 0 {
		return
	}
	delta := int64(dt) * fullPosition / int64(v.Set.EteTime)
	switch v.run.motor {
	case Open:
		v.run.position += int(delta)
	case Close:
		v.run.position -= int(delta)
	}
	if v.run.position > fullPosition {
		v.run.position = fullPosition
	}
	if v.run.position < 0 {
		v.run.position = 0
	}
}

func (v *Valve) runBangbang(actual model.Temp, ins *ioagg.Aggregator, outs *outagg.Aggregator) error {
	switch {
	case actual < v.run.target-v.Set.TDeadzone:
		return v.driveLimited(Open, actual, ins, outs)
	case actual > v.run.target+v.Set.TDeadzone:
		return v.driveLimited(Close, actual, ins, outs)
	default:
		return v.drive(Stop, outs)
	}
}

func (v *Valve) runSapprox(now timekeep.Tick, actual model.Temp, ins *ioagg.Aggregator, outs *outagg.Aggregator) error {
	if v.run.lastSample != 0 && now-v.run.lastSample < v.Set.SampleIntvl {
		// keep driving until SapAmount of travel is covered in this window
		moveTicks := timekeep.Tick(int64(v.Set.SapAmount) * int64(v.Set.EteTime) / fullPosition)
		if now-v.run.lastSample >= moveTicks {
			return v.drive(Stop, outs)
		}
		return v.drive(v.run.motor, outs)
	}
	v.run.lastSample = now

	if absTemp(actual-v.run.target) < v.Set.TDeadzone {
		return v.drive(Stop, outs)
	}
	if v.Set.SapAmount < v.Set.Deadband {
		return v.drive(Stop, outs) // move would be below the enactable deadband
	}
	if actual < v.run.target {
		return v.driveLimited(Open, actual, ins, outs)
	}
	return v.driveLimited(Close, actual, ins, outs)
}

func (v *Valve) runPI(now timekeep.Tick, actual model.Temp, ins *ioagg.Aggregator, outs *outagg.Aggregator) error {
	if v.run.lastSampleP != 0 && now-v.run.lastSampleP < v.Set.SampleIntvl {
		return v.drive(v.run.motor, outs)
	}
	dt := v.Set.SampleIntvl
	if v.run.lastSampleP != 0 {
		dt = now - v.run.lastSampleP
	}
	v.run.lastSampleP = now

	e := v.run.target - actual
	if !v.run.haveErr {
		v.run.prevErr = e
		v.run.haveErr = true
	}

	// Classic velocity-form PI: Ks is tempered by tune_f off the maximum gain;
	// the integral time constant is derived from the ultimate period Tu and
	// derivative time Td rather than independently configured.
	ks := v.Set.Ksmax * 100 / maxInt(v.Set.TuneF, 1)
	ti := int64(v.Set.Tu)
	if v.Set.Td > 0 {
		ti = int64(v.Set.Tu) / int64(v.Set.Td)
		if ti == 0 {
			ti = 1
		}
	}

	dtSec := timekeep.TickToSec(dt)
	if dtSec == 0 {
		dtSec = 1
	}

	deltaMove := int64(ks) * int64(e-v.run.prevErr) / 100
	if ti > 0 {
		deltaMove += int64(ks) * int64(e) * dtSec / (100 * ti)
	}
	v.run.prevErr = e

	v.run.integral += deltaMove
	const satBound = int64(fullPosition)
	if v.run.integral > satBound {
		v.run.integral = satBound
	}
	if v.run.integral < -satBound {
		v.run.integral = -satBound
	}

	if v.run.integral > int64(v.Set.Deadband) {
		return v.driveLimited(Open, actual, ins, outs)
	}
	if v.run.integral < -int64(v.Set.Deadband) {
		return v.driveLimited(Close, actual, ins, outs)
	}
	return v.drive(Stop, outs)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// drive commits a motor direction to the relays, writing them on every
// call.
func (v *Valve) drive(want MotorState, outs *outagg.Aggregator) error {
	v.run.motor = want
	switch v.Set.Motorization {
	case ThreeWay:
		if err := outs.Set(v.Set.OpenRelay, want == Open); err != nil {
			return err
		}
		return outs.Set(v.Set.CloseRelay, want == Close)
	case TwoWay:
		switch want {
		case Open:
			return outs.Set(v.Set.TriggerRelay, v.Set.TriggerOpenHi)
		case Close:
			return outs.Set(v.Set.TriggerRelay, !v.Set.TriggerOpenHi)
		default:
			return nil // two-way valves with no trigger change hold position
		}
	}
	return nil
}

// Position returns the estimated travel position, 0 (fully toward cold/
// closed) to 1000 (fully toward hot/open).
func (v *Valve) Position() int { return v.run.position }

// Offline stops the motor and clears run state.
func (v *Valve) Offline(outs *outagg.Aggregator) error {
	err := v.drive(Stop, outs)
	v.run = runState{}
	v.Online = false
	return err
}
