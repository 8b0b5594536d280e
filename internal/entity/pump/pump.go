// Package pump implements the circulation pump entity of spec.md §4.6: an
// on/off relay actuator with optional cooldown discipline on the off
// transition, grounded on the teacher's device.ActivateHeatPump /
// DeactivateHeatPump pairing and CanToggle guard, generalized to the
// explicit cooldown countdown the teacher doesn't need for a heat pump
// compressor.
package pump

import (
	"github.com/oebus-project/rwchcd-go/internal/errkind"
	"github.com/oebus-project/rwchcd-go/internal/model"
	"github.com/oebus-project/rwchcd-go/internal/outagg"
	"github.com/oebus-project/rwchcd-go/internal/timekeep"
)

// Settings are the externally-configured parameters of a pump.
type Settings struct {
	RelayOut     model.LogOutID
	CooldownTime timekeep.Tick

	// ExerciseInterval/ExerciseDuration drive periodic exercising while the
	// plant reports summer maintenance: an idle pump left seized all summer
	// is a recurring field failure, so it is briefly run on a cadence.
	ExerciseInterval timekeep.Tick
	ExerciseDuration timekeep.Tick
}

// runState is the internally-owned, tick-updated state.
type runState struct {
	requested bool
	commanded bool
	cooldownDeadline timekeep.Tick
	cooling          bool
	forceOff         bool

	idleTicks      timekeep.Tick
	exercising     bool
	exerciseRemain timekeep.Tick
}

// Pump is a circulation pump.
type Pump struct {
	model.EntityBase
	Set Settings
	run runState
}

// New builds an unconfigured Pump named name.
func New(name string) *Pump {
	return &Pump{EntityBase: model.EntityBase{Name: name}}
}

// Configure validates the mandatory relay handle and marks the pump
// configured.
func (p *Pump) Configure(set Settings) error {
	if !set.RelayOut.Valid() {
		return errkind.New(errkind.Misconfigured, "pump %q: relay output not set", p.Name)
	}
	p.Set = set
	p.Configured = true
	return nil
}

// BringOnline brings the pump online; it requires Configure to have succeeded.
func (p *Pump) BringOnline() error {
	if !p.Configured {
		return errkind.New(errkind.NotConfigured, "pump %q: not configured", p.Name)
	}
	p.run = runState{}
	p.Online = true
	return nil
}

// SetState records a request to run (or stop) the pump. When force is true,
// an off transition bypasses cooldown immediately.
func (p *Pump) SetState(reqOn bool, force bool) error {
	if !p.Online {
		return errkind.New(errkind.Offline, "pump %q: offline", p.Name)
	}
	p.run.requested = reqOn
	p.run.forceOff = force && !reqOn
	return nil
}

// GetState returns the last commanded physical state.
func (p *Pump) GetState() bool { return p.run.commanded }

// Run enacts the pending request against cooldown discipline and commits
// the commanded state to the outputs aggregator. summerMaintenance, set by
// the plant whenever every building model reads summer, arms
// periodic exercising for a pump that would otherwise idle all season.
func (p *Pump) Run(now timekeep.Tick, outs *outagg.Aggregator, summerMaintenance bool) error {
	if !p.Online {
		return errkind.New(errkind.Offline, "pump %q: offline", p.Name)
	}

	switch {
	case p.run.requested:
		p.run.cooling = false
		p.run.exercising = false
		p.run.idleTicks = 0
		p.run.commanded = true
	case p.run.forceOff:
		p.run.cooling = false
		p.run.exercising = false
		p.run.commanded = false
	case p.run.exercising:
		p.run.commanded = true
		if p.run.exerciseRemain > 0 {
			p.run.exerciseRemain--
		}
		if p.run.exerciseRemain == 0 {
			p.run.exercising = false
			p.run.idleTicks = 0
			p.run.commanded = false
		}
	case p.run.commanded && !p.run.requested:
		if p.Set.CooldownTime > 0 && !p.run.cooling {
			p.run.cooling = true
			p.run.cooldownDeadline = now + p.Set.CooldownTime
		}
		if p.run.cooling {
			if now >= p.run.cooldownDeadline {
				p.run.cooling = false
				p.run.commanded = false
			}
			// else stays commanded ON through the cooldown window
		} else {
			p.run.commanded = false
		}
	default:
		if summerMaintenance && p.Set.ExerciseInterval > 0 {
			if p.run.idleTicks >= p.Set.ExerciseInterval {
				p.run.exercising = true
				p.run.exerciseRemain = p.Set.ExerciseDuration
				p.run.commanded = true
			} else {
				p.run.idleTicks++
			}
		}
	}

	return outs.Set(p.Set.RelayOut, p.run.commanded)
}

// Offline commands the relay off and clears online/run state.
func (p *Pump) Offline(outs *outagg.Aggregator) error {
	p.run = runState{}
	p.Online = false
	if p.Set.RelayOut.Valid() {
		return outs.Set(p.Set.RelayOut, false)
	}
	return nil
}
