// Package heatsource implements the boiler heat source entity of spec.md
// §4.8: safety overtemp cutout, anti-freeze latch, idle policy, stage-1
// hysteresis with a minimum on/off dwell time, return-mixing, and a load
// pump gated by the consumer-shutdown delay. The core supports exactly one
// heat-source kind (on/off or 2-stage boiler; no modulation, no cascading,
// per spec.md's Non-goals). Grounded on the teacher's
// buffercontroller.EvaluateAndToggle hysteresis/threshold shape and
// device.ActivateBoiler/DeactivateBoiler actuation pairing.
package heatsource

import (
	"github.com/oebus-project/rwchcd-go/internal/errkind"
	"github.com/oebus-project/rwchcd-go/internal/ioagg"
	"github.com/oebus-project/rwchcd-go/internal/lib"
	"github.com/oebus-project/rwchcd-go/internal/model"
	"github.com/oebus-project/rwchcd-go/internal/outagg"
	"github.com/oebus-project/rwchcd-go/internal/plantdata"
	"github.com/oebus-project/rwchcd-go/internal/timekeep"
)

// IdleMode controls when the burner is allowed to stop for lack of demand.
type IdleMode int

const (
	IdleNever IdleMode = iota
	IdleAlways
	IdleFrostOnly
)

// Settings are the externally-configured parameters of a boiler.
type Settings struct {
	RunMode model.RunMode

	SensorMain   model.LogInputID
	SensorReturn model.LogInputID
	HasReturn    bool

	Stage1Relay model.LogOutID
	Stage2Relay model.LogOutID
	HasStage2   bool

	LoadPump    model.PumpID
	HasLoadPump bool

	ReturnValve    model.ValveID
	HasReturnValve bool

	LimitTMin      model.Temp
	LimitTMax      model.Temp
	LimitTHardMax  model.Temp
	LimitTReturnMin model.Temp
	TFreeze        model.Temp // default 5C per spec.md §4.8

	Hysteresis     model.Temp
	BurnerMinTime  timekeep.Tick
	IdleMode       IdleMode
	ConsumerSdelay timekeep.Tick // load pump dwell after a burner stop
}

type runState struct {
	stage1On, stage2On bool
	lastToggle         timekeep.Tick
	haveToggle         bool

	overtemp   bool
	antifreeze bool

	consumerSdelay timekeep.Tick // countdown, ticks

	intg        lib.IntgState
	cshiftNoncrit int64
	cshiftCrit    int64

	loadPumpOn bool
}

// Boiler is an on/off or 2-stage boiler heat source.
type Boiler struct {
	model.EntityBase
	Set Settings
	run runState
}

// New builds an unconfigured Boiler named name.
func New(name string) *Boiler {
	return &Boiler{EntityBase: model.EntityBase{Name: name}}
}

// Configure validates mandatory sensors/relays and marks the boiler
// configured.
func (b *Boiler) Configure(set Settings) error {
	if !set.SensorMain.Valid() {
		return errkind.New(errkind.Misconfigured, "boiler %q: main sensor required", b.Name)
	}
	if !set.Stage1Relay.Valid() {
		return errkind.New(errkind.Misconfigured, "boiler %q: stage-1 relay required", b.Name)
	}
	if set.TFreeze == 0 {
		set.TFreeze = lib.FromCelsius(5)
	}
	b.Set = set
	b.Configured = true
	return nil
}

// BringOnline brings the boiler online.
func (b *Boiler) BringOnline() error {
	b.run = runState{}
	b.Online = true
	return nil
}

// Logic runs the aggregation/sliding-shift pass of spec.md §4.8: the
// orchestrator has already computed plantHRequest as the max of every
// circuit/DHWT heat request before calling this.
func (b *Boiler) Logic(now timekeep.Tick, plantHRequest model.Temp, pd *plantdata.PlantData, ins *ioagg.Aggregator) {
	if !b.Online {
		return
	}

	flags := pd.Flags.Snapshot()
	if flags.DHWCSliding {
		mainTemp, err := ins.ReadTemp(b.Set.SensorMain)
		if err == nil {
			// ThrsIntg integrates millikelvin over wall-clock seconds; the
			// jacket is -100 K*s and the shift is the integral in K*s.
			intg := lib.ThrsIntg(&b.run.intg, plantHRequest, mainTemp, now, -100*lib.KPrecision, 0)
			b.run.cshiftNoncrit = intg / lib.KPrecision
		}
	} else {
		b.run.intg.Clear()
		b.run.cshiftNoncrit = 0
	}

	if b.run.consumerSdelay > 0 {
		b.run.consumerSdelay--
	}
}

// CShiftNoncrit returns the non-critical consumer output shift computed by
// Logic (-100..0 under sustained underservice). The plant reports it as a
// telemetry gauge; circuits do not read it.
func (b *Boiler) CShiftNoncrit() int64 { return b.run.cshiftNoncrit }

// CShiftCrit returns the critical consumer shift (+100 forces full
// dissipation) set when an overtemp safety trip fires.
func (b *Boiler) CShiftCrit() int64 { return b.run.cshiftCrit }

// Overtemp reports whether the hard-max safety trip is currently latched.
func (b *Boiler) Overtemp() bool { return b.run.overtemp }

// Run evaluates safety, anti-freeze, idle policy and hysteresis, then
// commits stage relays, the load pump, and the return-mixing valve target.
func (b *Boiler) Run(now timekeep.Tick, plantHRequest model.Temp, runMode model.RunMode, ins *ioagg.Aggregator, outs *outagg.Aggregator, setLoadPump func(on bool) error, setReturnValve func(target model.Temp) error) error {
	if !b.Online {
		return nil
	}

	mainTemp, mainErr := ins.ReadTemp(b.Set.SensorMain)
	if mainErr != nil || lib.ValidateTemp(mainTemp) != nil {
		// mandatory sensor unusable: force the source off for safety.
		return b.forceOff(now, outs, setLoadPump)
	}

	// safety
	if mainTemp >= b.Set.LimitTHardMax {
		b.run.overtemp = true
		b.run.cshiftCrit = 100
		return b.forceOff(now, outs, setLoadPump)
	}
	b.run.overtemp = false
	b.run.cshiftCrit = 0

	// anti-freeze latch
	if mainTemp <= b.Set.TFreeze {
		b.run.antifreeze = true
	} else if mainTemp > b.Set.LimitTMin {
		b.run.antifreeze = false
	}

	target := plantHRequest
	stopBurner := false
	if !b.run.antifreeze {
		noRequest := plantHRequest == 0
		idlePermits := b.Set.IdleMode == IdleAlways || (b.Set.IdleMode == IdleFrostOnly && runMode != model.RunFrostFree)
		if noRequest && idlePermits {
			stopBurner = true
		} else {
			if target < b.Set.LimitTMin {
				target = b.Set.LimitTMin
			}
			if target > b.Set.LimitTMax {
				target = b.Set.LimitTMax
			}
		}
	}

	prevStage1On := b.run.stage1On
	wantStage1 := b.run.antifreeze || (!stopBurner && b.hysteresisWant(mainTemp, target))
	b.toggleStage1(now, wantStage1)
	if prevStage1On && !b.run.stage1On && b.Set.ConsumerSdelay > 0 {
		b.run.consumerSdelay = b.Set.ConsumerSdelay
	}
	if err := outs.Set(b.Set.Stage1Relay, b.run.stage1On); err != nil {
		return err
	}

	if b.Set.HasStage2 {
		wantStage2 := wantStage1 && mainTemp < target
		if err := outs.Set(b.Set.Stage2Relay, wantStage2); err != nil {
			return err
		}
		b.run.stage2On = wantStage2
	}

	// return mixing
	if b.Set.HasReturnValve && setReturnValve != nil {
		retTemp, err := ins.ReadTemp(b.Set.SensorReturn)
		if b.Set.HasReturn && err == nil && retTemp < b.Set.LimitTReturnMin {
			if err := setReturnValve(b.Set.LimitTReturnMin); err != nil {
				return err
			}
		}
	}

	// load pump: on while burner on, or while consumer_sdelay is running
	// after a burner stop
	if b.run.stage1On {
		b.run.loadPumpOn = true
		b.run.consumerSdelay = 0
	} else if b.run.loadPumpOn && b.run.consumerSdelay > 0 {
		// still draining the shutdown delay
	} else {
		b.run.loadPumpOn = false
	}
	if setLoadPump != nil {
		return setLoadPump(b.run.loadPumpOn)
	}
	return nil
}

func (b *Boiler) hysteresisWant(mainTemp, target model.Temp) bool {
	if b.run.stage1On {
		return mainTemp < target+b.Set.Hysteresis
	}
	return mainTemp < target
}

func (b *Boiler) toggleStage1(now timekeep.Tick, want bool) {
	if want == b.run.stage1On {
		return
	}
	if b.run.haveToggle && b.Set.BurnerMinTime > 0 && now-b.run.lastToggle < b.Set.BurnerMinTime {
		return // inhibited: minimum dwell time not yet elapsed
	}
	b.run.stage1On = want
	b.run.lastToggle = now
	b.run.haveToggle = true
}

func (b *Boiler) forceOff(now timekeep.Tick, outs *outagg.Aggregator, setLoadPump func(on bool) error) error {
	b.run.stage1On = false
	b.run.stage2On = false
	if err := outs.Set(b.Set.Stage1Relay, false); err != nil {
		return err
	}
	if b.Set.HasStage2 {
		if err := outs.Set(b.Set.Stage2Relay, false); err != nil {
			return err
		}
	}
	b.run.loadPumpOn = false
	if setLoadPump != nil {
		return setLoadPump(false)
	}
	return nil
}

// Offline drives the boiler to its failsafe state.
func (b *Boiler) Offline(outs *outagg.Aggregator, setLoadPump func(on bool) error) error {
	err := b.forceOff(0, outs, setLoadPump)
	b.run = runState{}
	b.Online = false
	return err
}
