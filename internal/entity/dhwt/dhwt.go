// Package dhwt implements the domestic hot water tank entity of spec.md
// §4.8: charge/idle state driven by bottom/top sensor thresholds, priority
// signalling toward the plant's DHW-vs-circuit arbitration flags, electric
// failover, and anti-legionella overrides. Grounded on the teacher's
// buffercontroller role-rotation/threshold pattern (EvaluateAndToggle,
// GetThreshold), generalized to the tank's richer charge/force/legionella
// state machine.
package dhwt

import (
	"encoding/binary"
	"fmt"

	"github.com/oebus-project/rwchcd-go/internal/errkind"
	"github.com/oebus-project/rwchcd-go/internal/ioagg"
	"github.com/oebus-project/rwchcd-go/internal/lib"
	"github.com/oebus-project/rwchcd-go/internal/model"
	"github.com/oebus-project/rwchcd-go/internal/plantdata"
	"github.com/oebus-project/rwchcd-go/internal/scheduler"
	"github.com/oebus-project/rwchcd-go/internal/timekeep"
)

// chargeYdaySnapshotVersion tags the Snapshot wire format for Restore.
const chargeYdaySnapshotVersion = 1

// Settings are the externally-configured parameters of a DHW tank.
type Settings struct {
	RunMode    model.RunMode
	ScheduleID model.ScheduleID
	Params     model.DHWTParams

	SensorBottom model.LogInputID
	SensorTop    model.LogInputID

	FeedPump      model.PumpID
	HasFeedPump   bool
	RecyclePump   model.PumpID
	HasRecyclePump bool
	IsolationValve model.ValveID
	HasIsolation   bool

	ElectricRelay    model.LogOutID
	HasElectricRelay bool

	TLegionella model.Temp
}

type runState struct {
	active         bool
	chargeOn       bool
	electricMode   bool
	forceOn        bool
	legionellaOn   bool
	chargeOvertime bool
	effRunmode     model.RunMode
	targetTemp     model.Temp
	heatRequest    model.Temp
	modeSince      timekeep.Tick
	chargeYday     int64 // day-number of last completed/forced charge, -1 if none

	prevRunmode model.RunMode
	haveMode    bool

	recycleOn bool
}

// Tank is a domestic hot water tank.
type Tank struct {
	model.EntityBase
	Set Settings
	run runState
}

// New builds an unconfigured Tank named name.
func New(name string) *Tank {
	return &Tank{EntityBase: model.EntityBase{Name: name}, run: runState{chargeYday: -1}}
}

// Configure stores the tank's parameters and marks it configured.
func (t *Tank) Configure(set Settings) error {
	if !set.SensorBottom.Valid() || !set.SensorTop.Valid() {
		return errkind.New(errkind.Misconfigured, "dhwt %q: bottom/top sensors required", t.Name)
	}
	t.Set = set
	t.Configured = true
	return nil
}

// BringOnline brings the tank online.
func (t *Tank) BringOnline() error {
	t.run = runState{chargeYday: -1}
	t.Online = true
	return nil
}

func (t *Tank) effectiveRunMode(sysMode model.SystemMode, sched scheduler.Source) model.RunMode {
	mode := t.Set.RunMode
	if mode == model.RunAuto {
		if entry, ok := sched.Current(t.Set.ScheduleID); ok && sysMode == model.SysDHWOnly {
			mode = entry.DHWMode
		} else {
			mode = model.RunMode(sysMode)
		}
	}
	return mode
}

func targetForMode(mode model.RunMode, p model.DHWTParams, def model.DHWTParams) model.Temp {
	pick := func(v, d model.Temp) model.Temp {
		if v != 0 {
			return v
		}
		return d
	}
	switch mode {
	case model.RunComfort:
		return pick(p.TargetComfort, def.TargetComfort)
	case model.RunEco:
		return pick(p.TargetEco, def.TargetEco)
	case model.RunFrostFree:
		return pick(p.TargetFrostFree, def.TargetFrostFree)
	default:
		return pick(p.TargetComfort, def.TargetComfort)
	}
}

// Logic runs the per-tick decision pass of spec.md §4.8's DHW tank section,
// steps 1-5: runmode, target temperature, charge decision, charge-time
// ceiling, and priority signalling. today is a day-number (e.g. ticks since
// epoch divided by 86400) used to gate a ForceFirst charge to once per day.
func (t *Tank) Logic(now timekeep.Tick, sysMode model.SystemMode, sched scheduler.Source, pd *plantdata.PlantData, ins *ioagg.Aggregator, today int64, dayTransitionIntoComfort bool) error {
	if !t.Online {
		return nil
	}

	effMode := t.effectiveRunMode(sysMode, sched)
	if effMode == model.RunOff || effMode == model.RunTest {
		t.run.heatRequest = 0
		t.run.effRunmode = effMode
		t.run.prevRunmode = effMode
		t.run.haveMode = true
		return nil
	}

	target := targetForMode(effMode, t.Set.Params, pd.Defaults.DHWTParams)
	if t.run.legionellaOn {
		target = t.Set.TLegionella
	}
	if target < t.Set.Params.LimitTMin {
		target = t.Set.Params.LimitTMin
	}
	if t.Set.Params.LimitTMax > 0 && target > t.Set.Params.LimitTMax {
		target = t.Set.Params.LimitTMax
	}
	t.run.targetTemp = target

	// force-charge on transition into comfort
	if dayTransitionIntoComfort && t.run.haveMode && t.run.prevRunmode != model.RunComfort && effMode == model.RunComfort {
		switch t.Set.Params.ForceMode {
		case model.ForceAlways:
			t.run.forceOn = true
		case model.ForceFirst:
			if t.run.chargeYday != today {
				t.run.forceOn = true
			}
		}
	}
	t.run.haveMode = true
	t.run.prevRunmode = effMode
	t.run.effRunmode = effMode

	bottom, bottomErr := ins.ReadTemp(t.Set.SensorBottom)
	top, topErr := ins.ReadTemp(t.Set.SensorTop)

	anyValid := bottomErr == nil && lib.ValidateTemp(bottom) == nil

	if !t.run.chargeOn {
		if t.run.forceOn || (anyValid && bottom < target-t.Set.Params.Hysteresis) {
			t.run.chargeOn = true
			t.run.active = true
			t.run.modeSince = now
			t.run.forceOn = false
			t.run.chargeYday = today
		}
	} else {
		if topErr == nil && lib.ValidateTemp(top) == nil && top >= target {
			t.run.chargeOn = false
			t.run.active = false
			t.run.chargeOvertime = false
		}
	}

	if t.run.chargeOn && t.Set.Params.LimitChargeTime > 0 && now-t.run.modeSince > t.Set.Params.LimitChargeTime {
		t.run.chargeOvertime = true
	}

	// priority signalling
	if t.run.chargeOn {
		switch t.Set.Params.CPrio {
		case model.CPrioAbsolute:
			pd.Flags.SetDHWCAbsolute()
		case model.CPrioSlidMax, model.CPrioSlidDHW:
			pd.Flags.SetDHWCSliding()
		}
	}

	// electric failover: no valid tank sensor at all
	t.run.electricMode = t.Set.Params.ElectricFailover && bottomErr != nil && topErr != nil

	if t.run.chargeOn && !t.run.electricMode {
		t.run.heatRequest = target + t.Set.Params.TempInOffset
	} else {
		t.run.heatRequest = 0
	}

	return nil
}

// SetLegionella arms or clears the anti-legionella override for the next
// Logic call.
func (t *Tank) SetLegionella(on bool) { t.run.legionellaOn = on }

// RequestRecycle arms the recycle pump for this tick (anti-legionella or a
// scheduler entry's recycle flag).
func (t *Tank) RequestRecycle(on bool) { t.run.recycleOn = on }

// HeatRequest returns the heat request published by the last Logic call.
func (t *Tank) HeatRequest() model.Temp { return t.run.heatRequest }

// Charging reports whether the tank is presently mid-charge, including an
// electric-mode charge that publishes a zero HeatRequest to the water loop.
func (t *Tank) Charging() bool { return t.run.chargeOn }

// ChargeOvertime reports whether the current charge has exceeded
// limit_chargetime (a non-critical alarm condition).
func (t *Tank) ChargeOvertime() bool { return t.run.chargeOvertime }

// Run enacts pumps, isolation and the electric relay, per spec.md §4.8
// steps 6-8. The orchestrator supplies closures resolving this tank's
// peer pump/valve handles to concrete entity calls.
func (t *Tank) Run(setFeedPump, setRecyclePump func(on bool) error, setIsolation func(open bool) error) error {
	if !t.Online {
		return nil
	}

	if setIsolation != nil {
		if err := setIsolation(t.run.chargeOn && !t.run.electricMode); err != nil {
			return err
		}
	}
	if setFeedPump != nil {
		if err := setFeedPump(t.run.chargeOn && !t.run.electricMode); err != nil {
			return err
		}
	}
	if setRecyclePump != nil {
		if err := setRecyclePump(t.run.recycleOn); err != nil {
			return err
		}
	}
	return nil
}

// ElectricState reports whether the self-heater relay should be commanded
// on this tick.
func (t *Tank) ElectricState() bool {
	return t.run.electricMode && t.run.effRunmode != model.RunOff
}

// Offline clears run state.
func (t *Tank) Offline() {
	t.run = runState{chargeYday: t.run.chargeYday}
	t.Online = false
}

// Snapshot encodes charge_yday into an opaque blob suitable for
// plantstore.Store.Dump, so a ForceFirst legionella-transition charge
// already completed today is not repeated after a restart.
func (t *Tank) Snapshot() []byte {
	buf := make([]byte, 1+8)
	buf[0] = chargeYdaySnapshotVersion
	binary.BigEndian.PutUint64(buf[1:], uint64(t.run.chargeYday))
	return buf
}

// Restore decodes a blob produced by Snapshot and seeds charge_yday from it.
func (t *Tank) Restore(data []byte) error {
	if len(data) != 1+8 {
		return fmt.Errorf("dhwt: restore: unexpected snapshot length %d", len(data))
	}
	if data[0] != chargeYdaySnapshotVersion {
		return fmt.Errorf("dhwt: restore: unsupported snapshot version %d", data[0])
	}
	t.run.chargeYday = int64(binary.BigEndian.Uint64(data[1:]))
	return nil
}
