// Package plantdata is the shared read-only snapshot every entity consults
// each tick (spec.md §4.5... actually §"Plant data" of §2): plant-wide
// defaults used as per-entity parameter fallbacks, and the handful of global
// flags cross-entity arbitration sets and clears (dhwc_absolute,
// dhwc_sliding, plant_could_sleep, summer_maintenance). It is owned by the
// plant orchestrator and passed by reference to every entity's logic/run
// call, playing the role the teacher's internal/env.SystemState plays but
// without being a package-level global — see internal/root for the
// top-level struct that owns this alongside everything else.
package plantdata

import (
	"sync"

	"github.com/oebus-project/rwchcd-go/internal/lib"
	"github.com/oebus-project/rwchcd-go/internal/model"
	"github.com/oebus-project/rwchcd-go/internal/timekeep"
)

// Defaults are plant-wide fallback parameters consulted whenever a
// per-circuit or per-tank override is unset.
type Defaults struct {
	CircuitParams model.CircuitParams
	DHWTParams    model.DHWTParams

	LimitTSummer lib.Temp
	LimitTFrost  lib.Temp

	ConsumerSdelay timekeep.Tick // ticks a consumer-shutdown delay arms for
	SleepingDelay  timekeep.Tick // ticks the plant must sit idle before could_sleep may assert
}

// Flags are the mutable cross-entity coordination flags, each written by at
// most one kind of entity per tick and read by others. The plant
// orchestrator resets the per-tick flags (DHWCAbsolute, DHWCSliding) to
// their zero value before walking entities, per spec.md §4.10.
type Flags struct {
	mu sync.RWMutex

	dhwcAbsolute      bool
	dhwcSliding       bool
	plantCouldSleep   bool
	summerMaintenance bool
}

// Snapshot is a point-in-time copy of Flags, safe to read without locking.
type Snapshot struct {
	DHWCAbsolute      bool
	DHWCSliding       bool
	PlantCouldSleep   bool
	SummerMaintenance bool
}

// PlantData bundles the shared defaults and the flags block.
type PlantData struct {
	Defaults Defaults
	Flags    Flags
}

// New builds a PlantData with the given defaults and all flags clear.
func New(d Defaults) *PlantData {
	return &PlantData{Defaults: d}
}

// ResetPerTick clears the flags that only hold for the duration of a single
// tick (DHWCAbsolute, DHWCSliding), ahead of the orchestrator's entity walk.
func (f *Flags) ResetPerTick() {
	f.mu.Lock()
	f.dhwcAbsolute = false
	f.dhwcSliding = false
	f.mu.Unlock()
}

// SetDHWCAbsolute is set by a DHW tank with absolute priority while charging.
func (f *Flags) SetDHWCAbsolute() {
	f.mu.Lock()
	f.dhwcAbsolute = true
	f.mu.Unlock()
}

// SetDHWCSliding is set by a DHW tank with sliding priority while charging.
func (f *Flags) SetDHWCSliding() {
	f.mu.Lock()
	f.dhwcSliding = true
	f.mu.Unlock()
}

// SetPlantCouldSleep records whether the plant orchestrator judges the plant
// idle enough to permit a sleep-capable backend to power down.
func (f *Flags) SetPlantCouldSleep(v bool) {
	f.mu.Lock()
	f.plantCouldSleep = v
	f.mu.Unlock()
}

// SetSummerMaintenance is set by the plant orchestrator each tick, true when
// every building model reads summer; it arms periodic pump exercising.
func (f *Flags) SetSummerMaintenance(v bool) {
	f.mu.Lock()
	f.summerMaintenance = v
	f.mu.Unlock()
}

// Snapshot takes an atomic copy of every flag.
func (f *Flags) Snapshot() Snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return Snapshot{
		DHWCAbsolute:      f.dhwcAbsolute,
		DHWCSliding:       f.dhwcSliding,
		PlantCouldSleep:   f.plantCouldSleep,
		SummerMaintenance: f.summerMaintenance,
	}
}
