// Package plantbuild materializes a config.Config into a running Plant: it
// registers hardware backends, logical inputs/outputs, a scheduler, building
// models, and every plant entity block, wiring peer references (pump,
// valve, bmodel) by the names the configuration uses to refer to them. It
// plays the role the teacher's controller.New plays for its zone/device
// graph, generalized to spec.md §3's broader plant graph and to the
// "declarative configuration ... materialised into the plant" boundary of
// spec.md §6 (the core itself never parses; this is the materializer).
package plantbuild

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/oebus-project/rwchcd-go/internal/bmodel"
	"github.com/oebus-project/rwchcd-go/internal/config"
	"github.com/oebus-project/rwchcd-go/internal/entity/dhwt"
	"github.com/oebus-project/rwchcd-go/internal/entity/hcircuit"
	"github.com/oebus-project/rwchcd-go/internal/entity/heatsource"
	"github.com/oebus-project/rwchcd-go/internal/entity/pump"
	"github.com/oebus-project/rwchcd-go/internal/entity/valve"
	"github.com/oebus-project/rwchcd-go/internal/hwbackend"
	"github.com/oebus-project/rwchcd-go/internal/hwbackend/sysfsdriver"
	"github.com/oebus-project/rwchcd-go/internal/ioagg"
	"github.com/oebus-project/rwchcd-go/internal/lib"
	"github.com/oebus-project/rwchcd-go/internal/model"
	"github.com/oebus-project/rwchcd-go/internal/outagg"
	"github.com/oebus-project/rwchcd-go/internal/plant"
	"github.com/oebus-project/rwchcd-go/internal/plantdata"
	"github.com/oebus-project/rwchcd-go/internal/scheduler"
	"github.com/oebus-project/rwchcd-go/internal/timekeep"
)

// Built carries every collaborator materialized from a Config, ready for a
// Runtime to drive.
type Built struct {
	Backends *hwbackend.Registry
	Ins      *ioagg.Aggregator
	Outs     *outagg.Aggregator
	Sched    *scheduler.Static
	Data     *plantdata.PlantData
	Plant    *plant.Plant
}

// names indexes every handle a later plant-entity block may reference by
// the name used in configuration.
type names struct {
	backends map[string]model.BackendID
	inputs   map[string]model.LogInputID
	outputs  map[string]model.LogOutID
	pumps    map[string]model.PumpID
	valves   map[string]model.ValveID
	bmodels  map[string]model.BModelID
	schedule map[string]model.ScheduleID
}

// Build materializes cfg into a fully wired, not-yet-online Built.
func Build(log zerolog.Logger, cfg config.Config, clock *timekeep.Clock) (*Built, error) {
	nm := &names{
		backends: map[string]model.BackendID{},
		inputs:   map[string]model.LogInputID{},
		outputs:  map[string]model.LogOutID{},
		pumps:    map[string]model.PumpID{},
		valves:   map[string]model.ValveID{},
		bmodels:  map[string]model.BModelID{},
		schedule: map[string]model.ScheduleID{},
	}

	backends := hwbackend.NewRegistry()
	for _, b := range cfg.Backends {
		drv := sysfsdriver.New(clock, b.SafeMode, b.Relays, b.Sensors)
		id, err := backends.Register(b.Name, drv)
		if err != nil {
			return nil, err
		}
		nm.backends[b.Name] = id
	}

	ins := ioagg.NewAggregator(backends, clock)
	for _, raw := range cfg.Inputs {
		id, err := buildLogInput(backends, nm, ins, raw)
		if err != nil {
			return nil, err
		}
		nm.inputs[str(raw, "name")] = id
	}

	outs := outagg.NewAggregator(backends)
	for _, raw := range cfg.Outputs {
		id, err := buildLogOutput(backends, nm, outs, raw)
		if err != nil {
			return nil, err
		}
		nm.outputs[str(raw, "name")] = id
	}

	sched := scheduler.NewStatic(nil)
	for i, raw := range cfg.Scheduler {
		sid := model.ScheduleID(i + 1)
		name := str(raw, "name")
		if name == "" {
			name = fmt.Sprintf("schedule-%d", sid)
		}
		nm.schedule[name] = sid
		sched.Set(sid, scheduler.Entry{
			RunMode:    model.RunMode(str(raw, "runmode")),
			DHWMode:    model.RunMode(str(raw, "dhwmode")),
			Legionella: boolv(raw, "legionella"),
			Recycle:    boolv(raw, "recycle"),
		})
	}

	data := plantdata.New(plantdata.Defaults{
		CircuitParams:  cfg.DefConfig.CircuitParams,
		DHWTParams:     cfg.DefConfig.DHWTParams,
		LimitTSummer:   lib.FromCelsius(cfg.DefConfig.LimitTSummer),
		LimitTFrost:    lib.FromCelsius(cfg.DefConfig.LimitTFrost),
		ConsumerSdelay: timekeep.Tick(cfg.DefConfig.ConsumerSdelaySeconds),
		SleepingDelay:  timekeep.Tick(cfg.DefConfig.SleepingDelaySeconds),
	})

	p := plant.New(log, backends, ins, outs, sched, data)

	for _, m := range cfg.Models {
		bm := bmodel.New(bmodel.Params{
			Tau:          timekeep.Tick(m.TauSeconds),
			MixedTau:     timekeep.Tick(m.MixedTauSeconds),
			AttenTau:     timekeep.Tick(m.AttenTauSeconds),
			LimitTSummer: m.TempSummer(),
			LimitTFrost:  m.TempFrost(),
			Hysteresis:   m.TempHysteresis(),
		})
		outdoor, ok := nm.inputs[m.OutdoorSensor]
		if !ok {
			return nil, fmt.Errorf("plantbuild: model %q: unknown outdoor sensor %q", m.Name, m.OutdoorSensor)
		}
		nm.bmodels[m.Name] = p.AddBModel(bm, outdoor)
	}

	for _, raw := range cfg.Plant.Pumps {
		name := str(raw, "name")
		pm := pump.New(name)
		relay, ok := nm.outputs[str(raw, "relay")]
		if !ok {
			return nil, fmt.Errorf("plantbuild: pump %q: unknown relay %q", name, str(raw, "relay"))
		}
		if err := pm.Configure(pump.Settings{
			RelayOut:         relay,
			CooldownTime:     timekeep.Tick(intv(raw, "cooldown_seconds")),
			ExerciseInterval: timekeep.Tick(intv(raw, "exercise_interval_seconds")),
			ExerciseDuration: timekeep.Tick(intv(raw, "exercise_duration_seconds")),
		}); err != nil {
			return nil, err
		}
		nm.pumps[name] = p.AddPump(pm)
	}

	for _, raw := range cfg.Plant.Valves {
		name := str(raw, "name")
		v := valve.New(name)
		set := valve.Settings{
			Motorization: motorizationOf(str(raw, "motorization")),
			Algorithm:    algorithmOf(str(raw, "algorithm")),
			EteTime:      timekeep.Tick(intv(raw, "ete_time_seconds")),
			Deadband:     int(intv(raw, "deadband")),
			TDeadzone:    lib.FromCelsius(floatv(raw, "tdeadzone_c")),
			SampleIntvl:  timekeep.Tick(intv(raw, "sample_intvl_seconds")),
			SapAmount:    int(intv(raw, "sap_amount")),
			Tu:           timekeep.Tick(intv(raw, "tu_seconds")),
			Td:           timekeep.Tick(intv(raw, "td_seconds")),
			Ksmax:        int(intv(raw, "ksmax")),
			TuneF:        int(intv(raw, "tune_f")),
		}
		if id, ok := nm.outputs[str(raw, "open_relay")]; ok {
			set.OpenRelay = id
		}
		if id, ok := nm.outputs[str(raw, "close_relay")]; ok {
			set.CloseRelay = id
		}
		if id, ok := nm.outputs[str(raw, "trigger_relay")]; ok {
			set.TriggerRelay = id
			set.TriggerOpenHi = boolv(raw, "trigger_open_hi")
		}
		if id, ok := nm.outputs[str(raw, "isolation_relay")]; ok {
			set.IsolationRelay = id
		}
		if id, ok := nm.inputs[str(raw, "tid_hot")]; ok {
			set.TidHot = id
		}
		if id, ok := nm.inputs[str(raw, "tid_cold")]; ok {
			set.TidCold = id
		}
		if id, ok := nm.inputs[str(raw, "tid_out")]; ok {
			set.TidOut = id
		}
		if err := v.Configure(set); err != nil {
			return nil, err
		}
		nm.valves[name] = p.AddValve(v)
	}

	for _, raw := range cfg.Plant.Circuits {
		name := str(raw, "name")
		c := hcircuit.New(name)
		curve, err := lib.MakeBilinear20C(
			lib.FromCelsius(floatv(raw, "tout1_c")), lib.FromCelsius(floatv(raw, "twater1_c")),
			lib.FromCelsius(floatv(raw, "tout2_c")), lib.FromCelsius(floatv(raw, "twater2_c")),
			int(intv(raw, "nh100")),
		)
		if err != nil {
			return nil, fmt.Errorf("plantbuild: circuit %q: %w", name, err)
		}
		params := cfg.DefConfig.CircuitParams
		set := hcircuit.Settings{
			RunMode: model.RunMode(str(raw, "runmode")),
			Params:  params,
			Curve:   curve,
		}
		if sid, ok := nm.schedule[str(raw, "schedule")]; ok {
			set.ScheduleID = sid
		}
		if id, ok := nm.pumps[str(raw, "feed_pump")]; ok {
			set.FeedPump = id
		}
		if id, ok := nm.valves[str(raw, "mix_valve")]; ok {
			set.MixValve = id
			set.HasValve = true
		}
		if id, ok := nm.inputs[str(raw, "ambient_sensor")]; ok {
			set.AmbientSensor = id
			set.HasAmbientSensor = true
		}
		if id, ok := nm.inputs[str(raw, "outdoor_sensor")]; ok {
			set.OutdoorSensor = id
		}
		bmID, ok := nm.bmodels[str(raw, "bmodel")]
		if !ok {
			return nil, fmt.Errorf("plantbuild: circuit %q: unknown building model %q", name, str(raw, "bmodel"))
		}
		set.BModel = bmID
		if err := c.Configure(set); err != nil {
			return nil, err
		}
		p.AddCircuit(c, set.FeedPump, set.MixValve, bmID)
	}

	for _, raw := range cfg.Plant.Tanks {
		name := str(raw, "name")
		t := dhwt.New(name)
		set := dhwt.Settings{
			RunMode:     model.RunMode(str(raw, "runmode")),
			Params:      cfg.DefConfig.DHWTParams,
			TLegionella: lib.FromCelsius(floatv(raw, "legionella_c")),
		}
		if sid, ok := nm.schedule[str(raw, "schedule")]; ok {
			set.ScheduleID = sid
		}
		if id, ok := nm.inputs[str(raw, "sensor_bottom")]; ok {
			set.SensorBottom = id
		}
		if id, ok := nm.inputs[str(raw, "sensor_top")]; ok {
			set.SensorTop = id
		}
		var feedPump, recyclePump model.PumpID
		if id, ok := nm.pumps[str(raw, "feed_pump")]; ok {
			set.FeedPump, set.HasFeedPump = id, true
			feedPump = id
		}
		if id, ok := nm.pumps[str(raw, "recycle_pump")]; ok {
			set.RecyclePump, set.HasRecyclePump = id, true
			recyclePump = id
		}
		var iso model.ValveID
		if id, ok := nm.valves[str(raw, "isolation_valve")]; ok {
			set.IsolationValve, set.HasIsolation = id, true
			iso = id
		}
		if id, ok := nm.outputs[str(raw, "electric_relay")]; ok {
			set.ElectricRelay, set.HasElectricRelay = id, true
		}
		if err := t.Configure(set); err != nil {
			return nil, err
		}
		p.AddTank(t, feedPump, recyclePump, iso)
	}

	for _, raw := range cfg.Plant.Sources {
		name := str(raw, "name")
		s := heatsource.New(name)
		set := heatsource.Settings{
			RunMode:         model.RunMode(str(raw, "runmode")),
			LimitTMin:       lib.FromCelsius(floatv(raw, "limit_tmin_c")),
			LimitTMax:       lib.FromCelsius(floatv(raw, "limit_tmax_c")),
			LimitTHardMax:   lib.FromCelsius(floatv(raw, "limit_thardmax_c")),
			LimitTReturnMin: lib.FromCelsius(floatv(raw, "limit_treturnmin_c")),
			Hysteresis:      lib.FromCelsius(floatv(raw, "hysteresis_k")),
			BurnerMinTime:   timekeep.Tick(intv(raw, "burner_min_time_seconds")),
			IdleMode:        idleModeOf(str(raw, "idle_mode")),
			ConsumerSdelay:  timekeep.Tick(cfg.DefConfig.ConsumerSdelaySeconds),
		}
		if id, ok := nm.inputs[str(raw, "sensor_main")]; ok {
			set.SensorMain = id
		}
		if id, ok := nm.inputs[str(raw, "sensor_return")]; ok {
			set.SensorReturn, set.HasReturn = id, true
		}
		if id, ok := nm.outputs[str(raw, "stage1_relay")]; ok {
			set.Stage1Relay = id
		}
		if id, ok := nm.outputs[str(raw, "stage2_relay")]; ok {
			set.Stage2Relay, set.HasStage2 = id, true
		}
		var loadPump model.PumpID
		if id, ok := nm.pumps[str(raw, "load_pump")]; ok {
			set.LoadPump, set.HasLoadPump = id, true
			loadPump = id
		}
		var retValve model.ValveID
		if id, ok := nm.valves[str(raw, "return_valve")]; ok {
			set.ReturnValve, set.HasReturnValve = id, true
			retValve = id
		}
		if err := s.Configure(set); err != nil {
			return nil, err
		}
		p.AddSource(s, loadPump, retValve)
	}

	return &Built{Backends: backends, Ins: ins, Outs: outs, Sched: sched, Data: data, Plant: p}, nil
}

func buildLogInput(backends *hwbackend.Registry, nm *names, ins *ioagg.Aggregator, raw map[string]any) (model.LogInputID, error) {
	isSwitch := str(raw, "kind") == "switch"
	srcList, _ := raw["sources"].([]any)

	if isSwitch {
		ls := &ioagg.LogSwitch{
			Period:  timekeep.Tick(intv(raw, "period_seconds")),
			Op:      switchOpOf(str(raw, "op")),
			Missing: missingOpOf(str(raw, "missing")),
		}
		for _, rs := range srcList {
			s, _ := rs.(map[string]any)
			backendID, ok := nm.backends[str(s, "backend")]
			if !ok {
				return 0, fmt.Errorf("plantbuild: input %q: unknown backend %q", str(raw, "name"), str(s, "backend"))
			}
			d, _ := backends.Lookup(backendID)
			inID, ok := d.InputByName(hwbackend.InputSwitch, str(s, "input"))
			if !ok {
				return 0, fmt.Errorf("plantbuild: input %q: unknown raw input %q", str(raw, "name"), str(s, "input"))
			}
			ls.Sources = append(ls.Sources, ioagg.SwitchSource{Backend: backendID, Input: inID})
		}
		return ins.AddSwitch(ls), nil
	}

	lt := &ioagg.LogTemp{
		Period:  timekeep.Tick(intv(raw, "period_seconds")),
		IgnTemp: lib.FromCelsius(floatv(raw, "igntemp_c")),
		Op:      tempOpOf(str(raw, "op")),
		Missing: missingOpOf(str(raw, "missing")),
	}
	for _, rs := range srcList {
		s, _ := rs.(map[string]any)
		backendID, ok := nm.backends[str(s, "backend")]
		if !ok {
			return 0, fmt.Errorf("plantbuild: input %q: unknown backend %q", str(raw, "name"), str(s, "backend"))
		}
		d, _ := backends.Lookup(backendID)
		inID, ok := d.InputByName(hwbackend.InputTemperature, str(s, "input"))
		if !ok {
			return 0, fmt.Errorf("plantbuild: input %q: unknown raw input %q", str(raw, "name"), str(s, "input"))
		}
		lt.Sources = append(lt.Sources, ioagg.TempSource{Backend: backendID, Input: inID})
	}
	return ins.AddTemp(lt), nil
}

func buildLogOutput(backends *hwbackend.Registry, nm *names, outs *outagg.Aggregator, raw map[string]any) (model.LogOutID, error) {
	lo := &outagg.LogOutput{
		Op:      outputOpOf(str(raw, "op")),
		Missing: outputMissingOf(str(raw, "missing")),
	}
	targets, _ := raw["targets"].([]any)
	for _, rt := range targets {
		tm, _ := rt.(map[string]any)
		backendID, ok := nm.backends[str(tm, "backend")]
		if !ok {
			return 0, fmt.Errorf("plantbuild: output %q: unknown backend %q", str(raw, "name"), str(tm, "backend"))
		}
		d, _ := backends.Lookup(backendID)
		outID, ok := d.OutputByName(str(tm, "output"))
		if !ok {
			return 0, fmt.Errorf("plantbuild: output %q: unknown raw output %q", str(raw, "name"), str(tm, "output"))
		}
		lo.Sinks = append(lo.Sinks, outagg.Sink{Backend: backendID, Output: outID, ActiveHigh: boolv(tm, "active_high")})
	}
	return outs.Add(lo), nil
}

func str(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func floatv(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func intv(m map[string]any, key string) int64 {
	return int64(floatv(m, key))
}

func boolv(m map[string]any, key string) bool {
	v, _ := m[key].(bool)
	return v
}

func tempOpOf(s string) ioagg.TempOp {
	switch s {
	case "min":
		return ioagg.TempMin
	case "max":
		return ioagg.TempMax
	default:
		return ioagg.TempFirst
	}
}

func switchOpOf(s string) ioagg.SwitchOp {
	switch s {
	case "and":
		return ioagg.SwitchAnd
	case "or":
		return ioagg.SwitchOr
	default:
		return ioagg.SwitchFirst
	}
}

func missingOpOf(s string) ioagg.MissingPolicy {
	switch s {
	case "ignore":
		return ioagg.MissingIgnore
	case "ignoredef":
		return ioagg.MissingIgnoreDef
	default:
		return ioagg.MissingFail
	}
}

func outputOpOf(s string) outagg.Op {
	if s == "all" {
		return outagg.OpAll
	}
	return outagg.OpFirst
}

func outputMissingOf(s string) outagg.MissingPolicy {
	if s == "ignore" {
		return outagg.MissingIgnore
	}
	return outagg.MissingFail
}

func motorizationOf(s string) valve.Motorization {
	switch s {
	case "twoway":
		return valve.TwoWay
	case "isolation":
		return valve.Isolation
	default:
		return valve.ThreeWay
	}
}

func algorithmOf(s string) valve.Algorithm {
	switch s {
	case "sapprox":
		return valve.Sapprox
	case "pi":
		return valve.PI
	default:
		return valve.Bangbang
	}
}

func idleModeOf(s string) heatsource.IdleMode {
	switch s {
	case "always":
		return heatsource.IdleAlways
	case "frostonly":
		return heatsource.IdleFrostOnly
	default:
		return heatsource.IdleNever
	}
}
