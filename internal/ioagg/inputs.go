// Package ioagg is the inputs aggregator of spec.md §4.4: logical
// temperature and switch inputs, each a named aggregation over one or more
// backend raw inputs, published atomically and refreshed no more often than
// a per-input period. It follows the single-writer-lock / atomic-snapshot
// discipline of spec.md §5, the same shape as the teacher's
// temperature.Service which gates sensor refresh behind a poll interval and
// publishes readings behind a RWMutex.
package ioagg

import (
	"sync"

	"github.com/oebus-project/rwchcd-go/internal/errkind"
	"github.com/oebus-project/rwchcd-go/internal/hwbackend"
	"github.com/oebus-project/rwchcd-go/internal/lib"
	"github.com/oebus-project/rwchcd-go/internal/model"
	"github.com/oebus-project/rwchcd-go/internal/timekeep"
)

// MissingPolicy controls how an aggregation reacts to an unreadable source.
type MissingPolicy int

const (
	MissingFail MissingPolicy = iota
	MissingIgnore
	MissingIgnoreDef
)

// TempOp combines multiple source readings into one logical value.
type TempOp int

const (
	TempFirst TempOp = iota
	TempMin
	TempMax
)

// TempSource is one raw backend input feeding a logical temperature input.
type TempSource struct {
	Backend model.BackendID
	Input   model.InputID
}

// LogTemp is a logical temperature input.
type LogTemp struct {
	Period  timekeep.Tick
	IgnTemp lib.Temp // used only when Missing == MissingIgnoreDef
	Op      TempOp
	Missing MissingPolicy
	Sources []TempSource

	mu         sync.RWMutex
	value      lib.Temp
	lastUpdate timekeep.Tick
	lastErr    error
}

// SwitchOp combines multiple boolean source readings.
type SwitchOp int

const (
	SwitchFirst SwitchOp = iota
	SwitchAnd
	SwitchOr
)

// SwitchSource is one raw backend input feeding a logical switch input.
type SwitchSource struct {
	Backend model.BackendID
	Input   model.InputID
}

// LogSwitch is a logical switch (boolean) input, mirroring LogTemp's design.
type LogSwitch struct {
	Period  timekeep.Tick
	Op      SwitchOp
	Missing MissingPolicy
	Sources []SwitchSource

	mu         sync.RWMutex
	value      bool
	lastUpdate timekeep.Tick
	lastErr    error
}

// Aggregator owns the collection of logical inputs and the backend registry
// they read from.
type Aggregator struct {
	backends *hwbackend.Registry
	clock    *timekeep.Clock

	mu      sync.RWMutex
	temps   map[model.LogInputID]*LogTemp
	nextTID model.LogInputID
	sws     map[model.LogInputID]*LogSwitch
	nextSID model.LogInputID
}

// NewAggregator builds an Aggregator bound to a backend registry and clock.
func NewAggregator(backends *hwbackend.Registry, clock *timekeep.Clock) *Aggregator {
	return &Aggregator{
		backends: backends,
		clock:    clock,
		temps:    make(map[model.LogInputID]*LogTemp),
		nextTID:  1,
		sws:      make(map[model.LogInputID]*LogSwitch),
		nextSID:  1,
	}
}

// AddTemp registers a logical temperature input and returns its handle.
func (a *Aggregator) AddTemp(lt *LogTemp) model.LogInputID {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextTID
	a.nextTID++
	a.temps[id] = lt
	return id
}

// AddSwitch registers a logical switch input and returns its handle.
func (a *Aggregator) AddSwitch(ls *LogSwitch) model.LogInputID {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextSID
	a.nextSID++
	a.sws[id] = ls
	return id
}

func (a *Aggregator) temp(id model.LogInputID) (*LogTemp, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	lt, ok := a.temps[id]
	return lt, ok
}

func (a *Aggregator) sw(id model.LogInputID) (*LogSwitch, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ls, ok := a.sws[id]
	return ls, ok
}

// ReadTemp returns the current published value of a logical temperature
// input, refreshing it first if its period has elapsed.
func (a *Aggregator) ReadTemp(id model.LogInputID) (lib.Temp, error) {
	lt, ok := a.temp(id)
	if !ok {
		return lib.TempUnset, errkind.New(errkind.Invalid, "unknown logical temperature input %d", id)
	}

	now := a.clock.Now()
	lt.mu.Lock()
	due := now-lt.lastUpdate >= lt.Period || lt.lastUpdate == 0
	if due {
		a.refreshTempLocked(lt, now)
	}
	v, err := lt.value, lt.lastErr
	lt.mu.Unlock()
	return v, err
}

// refreshTempLocked must be called with lt.mu held.
func (a *Aggregator) refreshTempLocked(lt *LogTemp, now timekeep.Tick) {
	var readings []lib.Temp
	var anyFail bool

	for _, src := range lt.Sources {
		d, ok := a.backends.Lookup(src.Backend)
		if !ok {
			anyFail = true
			continue
		}
		raw, err := d.InputValue(hwbackend.InputTemperature, src.Input)
		if err != nil {
			switch lt.Missing {
			case MissingIgnoreDef:
				readings = append(readings, lt.IgnTemp)
			case MissingIgnore:
				// dropped
			default:
				anyFail = true
			}
			continue
		}
		readings = append(readings, lib.Temp(raw))
	}

	if lt.Missing == MissingFail && anyFail {
		lt.lastErr = errkind.New(errkind.Hardware, "one or more sources unreadable")
		lt.lastUpdate = now
		return
	}
	if len(readings) == 0 {
		lt.lastErr = errkind.New(errkind.Hardware, "no readable sources")
		lt.lastUpdate = now
		return
	}

	combined := readings[0]
	for _, r := range readings[1:] {
		switch lt.Op {
		case TempMin:
			if r < combined {
				combined = r
			}
		case TempMax:
			if r > combined {
				combined = r
			}
		case TempFirst:
			// keep first
		}
	}

	lt.value = combined
	lt.lastErr = nil
	lt.lastUpdate = now
}

// ReadSwitch returns the current published value of a logical switch input.
func (a *Aggregator) ReadSwitch(id model.LogInputID) (bool, error) {
	ls, ok := a.sw(id)
	if !ok {
		return false, errkind.New(errkind.Invalid, "unknown logical switch input %d", id)
	}

	now := a.clock.Now()
	ls.mu.Lock()
	due := now-ls.lastUpdate >= ls.Period || ls.lastUpdate == 0
	if due {
		a.refreshSwitchLocked(ls, now)
	}
	v, err := ls.value, ls.lastErr
	ls.mu.Unlock()
	return v, err
}

func (a *Aggregator) refreshSwitchLocked(ls *LogSwitch, now timekeep.Tick) {
	var readings []bool
	var anyFail bool

	for _, src := range ls.Sources {
		d, ok := a.backends.Lookup(src.Backend)
		if !ok {
			anyFail = true
			continue
		}
		raw, err := d.InputValue(hwbackend.InputSwitch, src.Input)
		if err != nil {
			if ls.Missing == MissingIgnore {
				continue
			}
			anyFail = true
			continue
		}
		readings = append(readings, raw != 0)
	}

	if ls.Missing == MissingFail && anyFail {
		ls.lastErr = errkind.New(errkind.Hardware, "one or more switch sources unreadable")
		ls.lastUpdate = now
		return
	}
	if len(readings) == 0 {
		ls.lastErr = errkind.New(errkind.Hardware, "no readable switch sources")
		ls.lastUpdate = now
		return
	}

	result := readings[0]
	for _, r := range readings[1:] {
		switch ls.Op {
		case SwitchAnd:
			result = result && r
		case SwitchOr:
			result = result || r
		case SwitchFirst:
			// keep first
		}
	}

	ls.value = result
	ls.lastErr = nil
	ls.lastUpdate = now
}
