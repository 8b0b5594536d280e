// Package hcircuit implements the heating circuit entity of spec.md §4.8:
// runmode resolution against the scheduler and DHW priority, a bilinear-20C
// water-temperature law with rate-of-rise limiting, and an ambient model
// that tracks either a physical room sensor or a simulated transition
// (TRANS_UP/TRANS_DOWN/TRANS_NONE) when none is present. Grounded on the
// teacher's zonecontroller.evaluateZoneActions for the mode-to-threshold
// resolution shape, generalized from a single hysteresis band to the full
// temperature-law pipeline spec.md requires.
package hcircuit

import (
	"github.com/oebus-project/rwchcd-go/internal/bmodel"
	"github.com/oebus-project/rwchcd-go/internal/ioagg"
	"github.com/oebus-project/rwchcd-go/internal/lib"
	"github.com/oebus-project/rwchcd-go/internal/model"
	"github.com/oebus-project/rwchcd-go/internal/plantdata"
	"github.com/oebus-project/rwchcd-go/internal/scheduler"
	"github.com/oebus-project/rwchcd-go/internal/timekeep"
)

// Transition is the circuit's ambient-model transition state.
type Transition int

const (
	TransNone Transition = iota
	TransUp
	TransDown
)

// Settings are the externally-configured parameters of a heating circuit.
type Settings struct {
	RunMode    model.RunMode // "auto" defers to the scheduler/system mode
	ScheduleID model.ScheduleID

	Params model.CircuitParams
	Curve  lib.Bilinear20C

	FeedPump model.PumpID // resolved by the orchestrator; see plant package
	MixValve model.ValveID
	HasValve bool

	AmbientSensor    model.LogInputID
	HasAmbientSensor bool
	OutdoorSensor    model.LogInputID // feeds the temperature law directly (pre-bmodel filtered feed)

	BModel model.BModelID
}

type runState struct {
	prevEffMode model.RunMode
	haveMode    bool

	outhoff bool

	transition    Transition
	transStart    model.Temp
	transSince    timekeep.Tick
	transElapsed  timekeep.Tick

	ambient     model.Temp
	haveAmbient bool

	targetWtemp model.Temp
	haveTarget  bool

	heatRequest model.Temp
	floorOutput bool
}

// Circuit is a heating circuit.
type Circuit struct {
	model.EntityBase
	Set Settings
	run runState
}

// New builds an unconfigured Circuit named name.
func New(name string) *Circuit {
	return &Circuit{EntityBase: model.EntityBase{Name: name}}
}

// Configure stores the circuit's parameters and marks it configured. Peer
// handle wiring (pump, valve, building model) is validated by the plant
// orchestrator at online time since this package doesn't own those arenas.
func (c *Circuit) Configure(set Settings) error {
	c.Set = set
	c.Configured = true
	return nil
}

// BringOnline brings the circuit online.
func (c *Circuit) BringOnline() error {
	c.run = runState{}
	c.Online = true
	return nil
}

// effectiveRunMode resolves set.RunMode against the scheduler and system
// mode, then applies the DHW-absolute override, per spec.md §4.8 step 1.
func (c *Circuit) effectiveRunMode(sysMode model.SystemMode, sched scheduler.Source, pd *plantdata.PlantData) model.RunMode {
	mode := c.Set.RunMode
	if mode == model.RunAuto {
		if entry, ok := sched.Current(c.Set.ScheduleID); ok && sysMode == model.SysAuto {
			mode = entry.RunMode
		} else {
			mode = model.RunMode(sysMode)
		}
	}
	if pd.Flags.Snapshot().DHWCAbsolute {
		mode = model.RunDHWOnly
	}
	return mode
}

func targetForMode(mode model.RunMode, p model.CircuitParams, def model.CircuitParams) model.Temp {
	pick := func(v, d model.Temp) model.Temp {
		if v != 0 {
			return v
		}
		return d
	}
	var base model.Temp
	switch mode {
	case model.RunComfort:
		base = pick(p.TargetComfort, def.TargetComfort)
	case model.RunEco:
		base = pick(p.TargetEco, def.TargetEco)
	case model.RunFrostFree:
		base = pick(p.TargetFrostFree, def.TargetFrostFree)
	default:
		return 0
	}
	return base + p.TargetOffset
}

func cutoffForMode(mode model.RunMode, p model.CircuitParams) model.Temp {
	switch mode {
	case model.RunComfort:
		return p.OutdoorCutoffComfort
	case model.RunEco:
		return p.OutdoorCutoffEco
	case model.RunFrostFree:
		return p.OutdoorCutoffFrostFree
	default:
		return 0
	}
}

// Logic runs steps 1-7 of spec.md §4.8's heating circuit pass: runmode
// resolution, target ambient, outdoor cutoff, transition detection and the
// ambient model, and the water-temperature target. It does not touch
// outputs; see Run for actuation.
func (c *Circuit) Logic(
	now timekeep.Tick,
	sysMode model.SystemMode,
	sched scheduler.Source,
	pd *plantdata.PlantData,
	bm *bmodel.Model,
	ins *ioagg.Aggregator,
	plantFrost bool,
) error {
	if !c.Online {
		return nil
	}

	effMode := c.effectiveRunMode(sysMode, sched, pd)

	if effMode == model.RunOff || effMode == model.RunTest {
		c.run.heatRequest = 0
		c.run.haveMode = true
		c.run.prevEffMode = effMode
		return nil
	}

	targetAmbient := targetForMode(effMode, c.Set.Params, pd.Defaults.CircuitParams)

	// outdoor-cutoff test
	if bm != nil && bm.Summer() {
		c.run.outhoff = true
	} else {
		threshold := cutoffForMode(effMode, c.Set.Params)
		if threshold == 0 {
			threshold = cutoffForMode(effMode, pd.Defaults.CircuitParams)
		}
		if threshold < targetAmbient {
			threshold = targetAmbient
		}
		hyst := c.Set.Params.OutdoorCutoffHysteresis
		if bm != nil {
			allAbove := bm.Short() > threshold && bm.Mixed() > threshold && bm.Attenuated() > threshold
			allBelowHyst := bm.Short() < threshold-hyst && bm.Mixed() < threshold-hyst && bm.Attenuated() < threshold-hyst
			if allAbove {
				c.run.outhoff = true
			} else if allBelowHyst {
				c.run.outhoff = false
			}
		}
	}
	if c.run.outhoff && !plantFrost {
		effMode = model.RunOff
	}

	// transition detection
	if c.run.haveMode && c.run.prevEffMode != effMode && c.run.haveAmbient {
		if effMode == model.RunOff {
			c.run.transition = TransDown
		} else {
			c.run.transition = TransUp
		}
		c.run.transStart = c.run.ambient
		c.run.transSince = now
		c.run.transElapsed = 0
	}
	c.run.haveMode = true
	c.run.prevEffMode = effMode

	// A literal off mode (no schedule, no cutoff involved) already returned
	// above in effectiveRunMode's early check. Reaching RunOff here means the
	// outdoor cutoff forced it: fall through so the ambient model keeps
	// simulating the descent and, below, FastCooldown decides whether the
	// cutoff cuts heat immediately or lets the rate-of-rise limiter ride it
	// down gradually.

	// water-temperature law, evaluated ahead of the ambient model so TRANS_UP
	// can gate its elapsed-transition counter on how close the rate-of-rise
	// limited, previously-committed target already is to the full curve value
	// (the circuit's only available proxy for "estimated power output").
	outdoor := lib.Temp(0)
	if bm != nil {
		outdoor = bm.Filtered()
	}
	rawTarget := c.Set.Curve.Eval(outdoor, targetAmbient)
	if rawTarget < c.Set.Params.LimitWTMin {
		rawTarget = c.Set.Params.LimitWTMin
	}
	if c.Set.Params.LimitWTMax > 0 && rawTarget > c.Set.Params.LimitWTMax {
		rawTarget = c.Set.Params.LimitWTMax
	}

	// ambient model
	tau := timekeep.Tick(0)
	if bm != nil {
		tau = bm.Tau()
	}
	if c.Set.HasAmbientSensor {
		measured, err := ins.ReadTemp(c.Set.AmbientSensor)
		if err == nil && lib.ValidateTemp(measured) == nil {
			c.run.ambient = measured
			c.run.haveAmbient = true
		}
	} else {
		c.runAmbientModel(now, targetAmbient, tau, bm, rawTarget)
	}

	// transition completion
	c.completeTransition(targetAmbient)

	if c.run.transition == TransDown && c.Set.Params.FastCooldown && !plantFrost {
		c.run.heatRequest = 0
		c.run.floorOutput = false
		return nil
	}

	target := rawTarget
	if c.Set.Params.WTempRorh > 0 && c.run.haveTarget {
		incPerSec := float64(c.Set.Params.WTempRorh) / 3600.0
		tickSec := float64(timekeep.TickToSec(1))
		if tickSec == 0 {
			tickSec = 1
		}
		maxInc := model.Temp(incPerSec * tickSec)
		if target > c.run.targetWtemp+maxInc {
			target = c.run.targetWtemp + maxInc
		}
	}
	c.run.targetWtemp = target
	c.run.haveTarget = true

	c.run.heatRequest = target + c.Set.Params.TempInOffset

	c.run.floorOutput = c.run.transition == TransDown && pd.Defaults.ConsumerSdelay > 0
	return nil
}

// runAmbientModel simulates ambient when no physical sensor is present.
// rawTarget is this tick's curve-evaluated, min/max-clamped water-temperature
// target ahead of rate-of-rise limiting, used during TRANS_UP as a proxy for
// "estimated power output": the rate-of-rise limiter is what actually paces
// delivered power, so the ratio of the last committed (limited) target's
// excess over the modelled ambient to rawTarget's excess over it
// approximates how close the circuit is to full output.
func (c *Circuit) runAmbientModel(now timekeep.Tick, targetAmbient model.Temp, tau timekeep.Tick, bm *bmodel.Model, rawTarget model.Temp) {
	if !c.run.haveAmbient {
		c.run.ambient = targetAmbient
		c.run.haveAmbient = true
		return
	}

	switch c.run.transition {
	case TransDown:
		if bm != nil {
			c.run.ambient = lib.Ewma(c.run.ambient, targetAmbient, 3*tau, 1)
		}
	case TransUp:
		if c.Set.Params.AmTambientTK > 0 {
			powerFrac := 1.0
			if c.run.haveTarget && rawTarget > c.run.ambient {
				powerFrac = float64(c.run.targetWtemp-c.run.ambient) / float64(rawTarget-c.run.ambient)
			}
			if powerFrac >= 0.75 {
				c.run.transElapsed++
			}

			boost := c.Set.Params.BoostDelta
			denom := targetAmbient - c.run.ambient
			if denom == 0 {
				denom = 1
			}
			frac := float64(c.run.transElapsed) / float64(c.Set.Params.AmTambientTK)
			shift := model.Temp(frac * (1 + float64(boost)/float64(denom)))

			if c.Set.Params.BoostMaxTime > 0 && now-c.run.transSince < c.Set.Params.BoostMaxTime {
				measuredErr := absTemp(targetAmbient - c.run.ambient)
				shift = boost
				if measuredErr > shift {
					shift = measuredErr
				}
			}

			c.run.ambient = c.run.transStart + shift
		}
	default:
		c.run.ambient = targetAmbient
	}
}

func (c *Circuit) completeTransition(targetAmbient model.Temp) {
	const halfKelvin = model.Temp(500)  // 0.5K in millikelvin
	const oneKelvin = model.Temp(1000)
	switch c.run.transition {
	case TransDown:
		if absTemp(c.run.ambient-targetAmbient) <= halfKelvin {
			c.run.transition = TransNone
		}
	case TransUp:
		if absTemp(c.run.ambient-targetAmbient) <= oneKelvin {
			c.run.transition = TransNone
		}
	}
}

func absTemp(t model.Temp) model.Temp {
	if t < 0 {
		return -t
	}
	return t
}

// HeatRequest returns the heat request published by the last Logic call.
func (c *Circuit) HeatRequest() model.Temp { return c.run.heatRequest }

// FloorOutput reports whether downstream actuators must not reduce output
// this tick (set during a TRANS_DOWN descent when the plant's consumer
// shutdown delay default is non-zero; never set while fast cooldown
// suppresses the heat request).
func (c *Circuit) FloorOutput() bool { return c.run.floorOutput }

// TargetWtemp returns the water-temperature target computed by Logic.
func (c *Circuit) TargetWtemp() model.Temp { return c.run.targetWtemp }

// Run actuates the feed pump and, if present, the mixing valve, per
// spec.md §4.8 step 8. The plant orchestrator resolves FeedPump/MixValve
// handles to concrete entities since this package doesn't own those arenas.
func (c *Circuit) Run(setPump func(on bool) error, setValve func(target model.Temp) error) error {
	if !c.Online {
		return nil
	}
	if c.run.heatRequest == 0 {
		if setPump != nil {
			return setPump(false)
		}
		return nil
	}
	if setPump != nil {
		if err := setPump(true); err != nil {
			return err
		}
	}
	if c.Set.HasValve && setValve != nil {
		return setValve(c.run.targetWtemp + c.Set.Params.TempInOffset)
	}
	return nil
}

// Offline clears run state; actuation to safe defaults is driven by the
// orchestrator turning off the circuit's pump/valve directly.
func (c *Circuit) Offline() {
	c.run = runState{}
	c.Online = false
}
