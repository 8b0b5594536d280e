// Package outagg is the outputs aggregator of spec.md §4.5: a logical relay
// output fans a single commanded state out to one or more backend raw
// outputs, so one plant-level decision (e.g. "run the load pump") can drive
// redundant or ganged hardware relays together. It mirrors ioagg's
// single-writer-lock discipline and the teacher's device layer, which
// resolves a logical actuation ("activate boiler") to one or more concrete
// GPIO pin writes.
package outagg

import (
	"sync"

	"github.com/oebus-project/rwchcd-go/internal/errkind"
	"github.com/oebus-project/rwchcd-go/internal/hwbackend"
	"github.com/oebus-project/rwchcd-go/internal/model"
)

// Op combines a logical output's commanded state across its targets.
type Op int

const (
	OpFirst Op = iota // drive only the first live target (basic failover)
	OpAll             // drive every target
)

// MissingPolicy controls how a commit reacts to an unreachable target.
type MissingPolicy int

const (
	MissingFail MissingPolicy = iota
	MissingIgnore
)

// Sink is one raw backend output driven by a logical output.
type Sink struct {
	Backend    model.BackendID
	Output     model.OutputID
	ActiveHigh bool // when false, the sink's commanded level is inverted
}

// LogOutput is a logical relay output.
type LogOutput struct {
	Op      Op
	Missing MissingPolicy
	Sinks   []Sink

	mu      sync.RWMutex
	pending bool
	applied bool
}

// Aggregator owns the collection of logical outputs and the backend registry
// they write through.
type Aggregator struct {
	backends *hwbackend.Registry

	mu   sync.RWMutex
	outs map[model.LogOutID]*LogOutput
	next model.LogOutID
}

// NewAggregator builds an Aggregator bound to a backend registry.
func NewAggregator(backends *hwbackend.Registry) *Aggregator {
	return &Aggregator{
		backends: backends,
		outs:     make(map[model.LogOutID]*LogOutput),
		next:     1,
	}
}

// Add registers a logical output and returns its handle.
func (a *Aggregator) Add(lo *LogOutput) model.LogOutID {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.next
	a.next++
	a.outs[id] = lo
	return id
}

func (a *Aggregator) get(id model.LogOutID) (*LogOutput, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	lo, ok := a.outs[id]
	return lo, ok
}

// Set stages a new commanded state for a logical output. It takes effect on
// the next Commit call.
func (a *Aggregator) Set(id model.LogOutID, on bool) error {
	lo, ok := a.get(id)
	if !ok {
		return errkind.New(errkind.Invalid, "unknown logical output %d", id)
	}
	lo.mu.Lock()
	lo.pending = on
	lo.mu.Unlock()
	return nil
}

// Get returns the last state Set on a logical output (not necessarily yet
// committed to hardware).
func (a *Aggregator) Get(id model.LogOutID) (bool, error) {
	lo, ok := a.get(id)
	if !ok {
		return false, errkind.New(errkind.Invalid, "unknown logical output %d", id)
	}
	lo.mu.RLock()
	defer lo.mu.RUnlock()
	return lo.pending, nil
}

// Commit pushes every logical output's pending state down to its backend
// sinks, per the logical output's op and missing-target policy. A relay
// whose commit fails under MissingFail raises an alarm-worthy error for
// that tick's output phase but does not stop the sweep over other relays.
func (a *Aggregator) Commit() []error {
	a.mu.RLock()
	outs := make([]*LogOutput, 0, len(a.outs))
	for _, lo := range a.outs {
		outs = append(outs, lo)
	}
	a.mu.RUnlock()

	var errs []error
	for _, lo := range outs {
		lo.mu.Lock()
		state := lo.pending
		sinks := lo.Sinks
		if lo.Op == OpFirst {
			sinks = firstLiveSink(a.backends, lo.Sinks)
		}

		var sinkErr error
		anyWritten := false
		for _, sink := range sinks {
			d, ok := a.backends.Lookup(sink.Backend)
			if !ok {
				if sinkErr == nil {
					sinkErr = errkind.New(errkind.Hardware, "unknown backend %d for output sink", sink.Backend)
				}
				continue
			}
			level := state
			if !sink.ActiveHigh {
				level = !level
			}
			if err := d.OutputStateSet(sink.Output, level); err != nil {
				if sinkErr == nil {
					sinkErr = err
				}
				continue
			}
			anyWritten = true
		}

		if sinkErr != nil && (lo.Missing == MissingFail || !anyWritten) {
			errs = append(errs, sinkErr)
		} else {
			lo.applied = state
		}
		lo.mu.Unlock()
	}
	return errs
}

// firstLiveSink returns a slice containing only the first sink whose backend
// is currently registered, or nil if none are live.
func firstLiveSink(backends *hwbackend.Registry, sinks []Sink) []Sink {
	for _, s := range sinks {
		if _, ok := backends.Lookup(s.Backend); ok {
			return []Sink{s}
		}
	}
	return nil
}
