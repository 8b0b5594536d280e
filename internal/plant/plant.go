// Package plant is the orchestrator of spec.md §4.10: it owns every pump,
// valve, heating circuit, DHW tank and heat source, and drives the fixed
// per-tick dependency order described there, performing cross-entity
// arbitration (heat-request aggregation, consumer shutdown delay) along the
// way. It plays the role the teacher's buffercontroller/zonecontroller pair
// play together, generalized to the wider, acyclic plant graph of spec.md
// §3 addressed through the dense-integer handles in internal/model rather
// than back-pointers.
package plant

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/oebus-project/rwchcd-go/internal/alarms"
	"github.com/oebus-project/rwchcd-go/internal/bmodel"
	"github.com/oebus-project/rwchcd-go/internal/entity/dhwt"
	"github.com/oebus-project/rwchcd-go/internal/entity/hcircuit"
	"github.com/oebus-project/rwchcd-go/internal/entity/heatsource"
	"github.com/oebus-project/rwchcd-go/internal/entity/pump"
	"github.com/oebus-project/rwchcd-go/internal/entity/valve"
	"github.com/oebus-project/rwchcd-go/internal/hwbackend"
	"github.com/oebus-project/rwchcd-go/internal/ioagg"
	"github.com/oebus-project/rwchcd-go/internal/model"
	"github.com/oebus-project/rwchcd-go/internal/outagg"
	"github.com/oebus-project/rwchcd-go/internal/plantdata"
	"github.com/oebus-project/rwchcd-go/internal/plantstore"
	"github.com/oebus-project/rwchcd-go/internal/scheduler"
	"github.com/oebus-project/rwchcd-go/internal/telemetry"
	"github.com/oebus-project/rwchcd-go/internal/timekeep"
)

// Plant owns the typed arenas for every entity kind plus the shared
// collaborators (backends, aggregators, scheduler, plant data).
type Plant struct {
	log zerolog.Logger

	Backends *hwbackend.Registry
	Ins      *ioagg.Aggregator
	Outs     *outagg.Aggregator
	Sched    scheduler.Source
	Data     *plantdata.PlantData

	// Telemetry and Alarms are optional; a nil value disables emission
	// without the caller needing to branch (see their nil-receiver guards).
	Telemetry *telemetry.Telemetry
	Alarms    *alarms.Notifier

	pumps    map[model.PumpID]*pump.Pump
	valves   map[model.ValveID]*valve.Valve
	circuits map[model.CircuitID]*hcircuit.Circuit
	tanks    map[model.DHWTID]*dhwt.Tank
	sources  map[model.HSourceID]*heatsource.Boiler
	bmodels  map[model.BModelID]*bmodel.Model
	bmodelOutdoor map[model.BModelID]model.LogInputID

	nextPump, nextValve, nextCircuit, nextTank, nextSource, nextBModel uint32

	online bool

	// peer wiring resolved at configuration time
	circuitPump  map[model.CircuitID]model.PumpID
	circuitValve map[model.CircuitID]model.ValveID
	tankFeedPump map[model.DHWTID]model.PumpID
	tankRecycPump map[model.DHWTID]model.PumpID
	tankIso      map[model.DHWTID]model.ValveID
	sourceLoadPump  map[model.HSourceID]model.PumpID
	sourceRetValve  map[model.HSourceID]model.ValveID
	circuitBModel   map[model.CircuitID]model.BModelID

	today int64 // day number, advanced by the caller once per sim day

	sleepIdleTicks timekeep.Tick // idle ticks counted since the plant last had a heat request
}

// New builds an empty Plant bound to its shared collaborators.
func New(log zerolog.Logger, backends *hwbackend.Registry, ins *ioagg.Aggregator, outs *outagg.Aggregator, sched scheduler.Source, data *plantdata.PlantData) *Plant {
	return &Plant{
		log: log, Backends: backends, Ins: ins, Outs: outs, Sched: sched, Data: data,
		pumps: make(map[model.PumpID]*pump.Pump), valves: make(map[model.ValveID]*valve.Valve),
		circuits: make(map[model.CircuitID]*hcircuit.Circuit), tanks: make(map[model.DHWTID]*dhwt.Tank),
		sources: make(map[model.HSourceID]*heatsource.Boiler), bmodels: make(map[model.BModelID]*bmodel.Model),
		bmodelOutdoor: make(map[model.BModelID]model.LogInputID),
		circuitPump: make(map[model.CircuitID]model.PumpID), circuitValve: make(map[model.CircuitID]model.ValveID),
		tankFeedPump: make(map[model.DHWTID]model.PumpID), tankRecycPump: make(map[model.DHWTID]model.PumpID),
		tankIso: make(map[model.DHWTID]model.ValveID), sourceLoadPump: make(map[model.HSourceID]model.PumpID),
		sourceRetValve: make(map[model.HSourceID]model.ValveID), circuitBModel: make(map[model.CircuitID]model.BModelID),
		nextPump: 1, nextValve: 1, nextCircuit: 1, nextTank: 1, nextSource: 1, nextBModel: 1,
	}
}

// AddPump registers a pump and returns its handle.
func (p *Plant) AddPump(pm *pump.Pump) model.PumpID {
	id := model.PumpID(p.nextPump)
	p.nextPump++
	p.pumps[id] = pm
	return id
}

// AddValve registers a valve and returns its handle.
func (p *Plant) AddValve(v *valve.Valve) model.ValveID {
	id := model.ValveID(p.nextValve)
	p.nextValve++
	p.valves[id] = v
	return id
}

// AddBModel registers a building model bound to its raw outdoor sensor and
// returns its handle.
func (p *Plant) AddBModel(m *bmodel.Model, outdoorSensor model.LogInputID) model.BModelID {
	id := model.BModelID(p.nextBModel)
	p.nextBModel++
	p.bmodels[id] = m
	p.bmodelOutdoor[id] = outdoorSensor
	return id
}

// AddCircuit registers a heating circuit with its peer wiring and returns
// its handle.
func (p *Plant) AddCircuit(c *hcircuit.Circuit, feedPump model.PumpID, mixValve model.ValveID, bm model.BModelID) model.CircuitID {
	id := model.CircuitID(p.nextCircuit)
	p.nextCircuit++
	p.circuits[id] = c
	p.circuitPump[id] = feedPump
	p.circuitValve[id] = mixValve
	p.circuitBModel[id] = bm
	return id
}

// AddTank registers a DHW tank with its peer wiring and returns its handle.
func (p *Plant) AddTank(t *dhwt.Tank, feedPump, recyclePump model.PumpID, iso model.ValveID) model.DHWTID {
	id := model.DHWTID(p.nextTank)
	p.nextTank++
	p.tanks[id] = t
	p.tankFeedPump[id] = feedPump
	p.tankRecycPump[id] = recyclePump
	p.tankIso[id] = iso
	return id
}

// AddSource registers a heat source with its peer wiring and returns its
// handle.
func (p *Plant) AddSource(s *heatsource.Boiler, loadPump model.PumpID, returnValve model.ValveID) model.HSourceID {
	id := model.HSourceID(p.nextSource)
	p.nextSource++
	p.sources[id] = s
	p.sourceLoadPump[id] = loadPump
	p.sourceRetValve[id] = returnValve
	return id
}

// SaveState persists every building model's filter state and every tank's
// charge_yday to store, so a restart resumes from latched state instead of
// from a cold reseed, per spec.md §6's storage boundary.
func (p *Plant) SaveState(store *plantstore.Store) error {
	if store == nil {
		return nil
	}
	for id, bm := range p.bmodels {
		if err := store.Dump(bmodelIdentifier(id), 1, bm.Snapshot()); err != nil {
			return err
		}
	}
	for id, t := range p.tanks {
		if err := store.Dump(tankIdentifier(id), 1, t.Snapshot()); err != nil {
			return err
		}
	}
	return nil
}

// LoadState restores every building model's filter state and every tank's
// charge_yday from store. A missing blob (first run, or an entity added
// since the last save) is not an error: the entity simply reseeds normally.
func (p *Plant) LoadState(store *plantstore.Store) error {
	if store == nil {
		return nil
	}
	for id, bm := range p.bmodels {
		_, data, ok, err := store.Fetch(bmodelIdentifier(id))
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := bm.Restore(data); err != nil {
			p.log.Warn().Err(err).Str("identifier", bmodelIdentifier(id)).Msg("plant: discarding unreadable building model snapshot")
		}
	}
	for id, t := range p.tanks {
		_, data, ok, err := store.Fetch(tankIdentifier(id))
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := t.Restore(data); err != nil {
			p.log.Warn().Err(err).Str("identifier", tankIdentifier(id)).Msg("plant: discarding unreadable tank snapshot")
		}
	}
	return nil
}

func bmodelIdentifier(id model.BModelID) string { return fmt.Sprintf("bmodel.%d", id) }
func tankIdentifier(id model.DHWTID) string     { return fmt.Sprintf("dhwt.%d", id) }

func (p *Plant) pumpSetter(id model.PumpID) func(bool) error {
	if !id.Valid() {
		return nil
	}
	pm, ok := p.pumps[id]
	if !ok {
		return nil
	}
	return func(on bool) error { return pm.SetState(on, false) }
}

func (p *Plant) valveTargetSetter(id model.ValveID) func(model.Temp) error {
	if !id.Valid() {
		return nil
	}
	v, ok := p.valves[id]
	if !ok {
		return nil
	}
	return func(target model.Temp) error { v.Request(target); return nil }
}

func (p *Plant) valveOpenSetter(id model.ValveID) func(bool) error {
	if !id.Valid() {
		return nil
	}
	v, ok := p.valves[id]
	if !ok {
		return nil
	}
	return func(open bool) error { v.RequestOpen(open); return nil }
}

// Online brings every entity online in dependency order and marks the
// plant itself online.
func (p *Plant) Online() error {
	for _, v := range p.valves {
		if err := v.BringOnline(); err != nil {
			return err
		}
	}
	for _, pm := range p.pumps {
		if err := pm.BringOnline(); err != nil {
			return err
		}
	}
	for _, c := range p.circuits {
		if err := c.BringOnline(); err != nil {
			return err
		}
	}
	for _, t := range p.tanks {
		if err := t.BringOnline(); err != nil {
			return err
		}
	}
	for _, s := range p.sources {
		if err := s.BringOnline(); err != nil {
			return err
		}
	}
	p.online = true
	return nil
}

// Run drives one pass of the fixed per-tick order of spec.md §4.10. Sensor
// refresh (backends Input()) and actuator commit (backends Output()) are
// the caller's responsibility, bracketing this call.
func (p *Plant) Run(now timekeep.Tick, sysMode model.SystemMode) {
	if !p.online {
		return
	}

	p.Data.Flags.ResetPerTick()

	for id, bm := range p.bmodels {
		outdoor, err := p.Ins.ReadTemp(p.bmodelOutdoor[id])
		if err == nil {
			bm.Run(now, outdoor)
		}
	}

	plantFrost := p.anyFrost()
	p.today = timekeep.TickToSec(now) / 86400

	for _, t := range p.tanks {
		// Tank.Logic itself gates the force-charge transition on its own
		// prevRunmode, so every tick is a candidate "transition" check.
		if err := t.Logic(now, sysMode, p.Sched, p.Data, p.Ins, p.today, true); err != nil {
			p.log.Warn().Err(err).Msg("plant: dhwt logic failed")
		}
	}

	for id, c := range p.circuits {
		bm := p.bmodels[p.circuitBModel[id]]
		if err := c.Logic(now, sysMode, p.Sched, p.Data, bm, p.Ins, plantFrost); err != nil {
			p.log.Warn().Err(err).Msg("plant: circuit logic failed")
		}
	}

	plantHRequest := p.aggregateHeatRequest()

	for id, s := range p.sources {
		s.Logic(now, plantHRequest, p.Data, p.Ins)
		if err := s.Run(now, plantHRequest, model.RunMode(sysMode), p.Ins, p.Outs,
			p.pumpSetter(p.sourceLoadPump[id]), p.valveTargetSetter(p.sourceRetValve[id])); err != nil {
			p.log.Error().Err(err).Msg("plant: heat source run failed")
		}
		name := s.Name
		p.Telemetry.Gauge("heatsource.cshift_noncrit", float64(s.CShiftNoncrit()), "source:"+name)
		if s.Overtemp() {
			p.log.Error().Str("source", name).Msg("plant: heat source overtemp alarm")
			if p.Alarms != nil {
				if err := p.Alarms.Overtemp(context.Background(), name); err != nil {
					p.log.Warn().Err(err).Msg("plant: failed to send overtemp alarm")
				}
			}
		}
	}

	for id, t := range p.tanks {
		if err := t.Run(p.pumpSetter(p.tankFeedPump[id]), p.pumpSetter(p.tankRecycPump[id]), p.valveOpenSetter(p.tankIso[id])); err != nil {
			p.log.Warn().Err(err).Msg("plant: dhwt run failed")
		}
	}

	for id, c := range p.circuits {
		if err := c.Run(p.pumpSetter(p.circuitPump[id]), p.valveTargetSetter(p.circuitValve[id])); err != nil {
			p.log.Warn().Err(err).Msg("plant: circuit run failed")
		}
		p.Telemetry.Gauge("circuit.target_wtemp", float64(c.TargetWtemp()), "circuit:"+c.Name)
	}

	for _, v := range p.valves {
		if err := v.Run(now, p.Ins, p.Outs); err != nil {
			p.log.Warn().Err(err).Msg("plant: valve run failed")
		}
		p.Telemetry.Gauge("valve.position", float64(v.Position()), "valve:"+v.Name)
	}

	summerMaintenance := p.allSummer()
	p.Data.Flags.SetSummerMaintenance(summerMaintenance)
	for _, pm := range p.pumps {
		if err := pm.Run(now, p.Outs, summerMaintenance); err != nil {
			p.log.Warn().Err(err).Msg("plant: pump run failed")
		}
	}

	if plantHRequest == 0 {
		p.sleepIdleTicks++
	} else {
		p.sleepIdleTicks = 0
	}
	couldSleep := p.sleepIdleTicks >= p.Data.Defaults.SleepingDelay && !p.anyCharging()
	p.Data.Flags.SetPlantCouldSleep(couldSleep)
}

func (p *Plant) aggregateHeatRequest() model.Temp {
	var max model.Temp
	for _, c := range p.circuits {
		if r := c.HeatRequest(); r > max {
			max = r
		}
	}
	for _, t := range p.tanks {
		if r := t.HeatRequest(); r > max {
			max = r
		}
	}
	return max
}

func (p *Plant) anyCharging() bool {
	for _, t := range p.tanks {
		if t.Charging() {
			return true
		}
	}
	return false
}

func (p *Plant) anyFrost() bool {
	for _, bm := range p.bmodels {
		if bm.Frost() {
			return true
		}
	}
	return false
}

// allSummer reports whether every building model (so every serviced zone)
// currently reads above its summer outdoor cutoff with hysteresis applied.
// An empty plant (no models configured) never claims summer maintenance.
func (p *Plant) allSummer() bool {
	if len(p.bmodels) == 0 {
		return false
	}
	for _, bm := range p.bmodels {
		if !bm.Summer() {
			return false
		}
	}
	return true
}

// Offline drives every entity to its failsafe state in reverse dependency
// order, per spec.md §5's shutdown sequencing.
func (p *Plant) Offline() {
	for id, s := range p.sources {
		if err := s.Offline(p.Outs, p.pumpSetter(p.sourceLoadPump[id])); err != nil {
			p.log.Warn().Err(err).Msg("plant: heat source offline failed")
		}
	}
	for _, t := range p.tanks {
		t.Offline()
	}
	for _, c := range p.circuits {
		c.Offline()
	}
	for _, v := range p.valves {
		if err := v.Offline(p.Outs); err != nil {
			p.log.Warn().Err(err).Msg("plant: valve offline failed")
		}
	}
	for _, pm := range p.pumps {
		if err := pm.Offline(p.Outs); err != nil {
			p.log.Warn().Err(err).Msg("plant: pump offline failed")
		}
	}
	p.online = false
}
