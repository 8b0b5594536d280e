// Package hwbackend is the hardware-abstraction substrate of spec.md §4.3:
// a registry of driver instances, each exposing a capability table. The
// plant core never talks to a driver directly, only through this table —
// the same discipline the teacher enforces by routing every relay/sensor
// touch through internal/gpio rather than letting controllers shell out to
// pinctrl themselves.
package hwbackend

import (
	"fmt"
	"sort"
	"sync"

	"github.com/oebus-project/rwchcd-go/internal/model"
	"github.com/oebus-project/rwchcd-go/internal/timekeep"
)

// InputKind distinguishes the typed input namespaces a driver exposes.
type InputKind int

const (
	InputTemperature InputKind = iota
	InputSwitch
)

// Driver is the capability table every hardware backend must implement.
// Concrete drivers (1-wire, MQTT I/O, parallel-port I/O) live outside this
// module per spec.md §1; hwbackend/sysfsdriver is the one reference driver
// kept in-tree to exercise the registry.
type Driver interface {
	Setup(name string) error
	Online() error
	Input() error  // refresh raw reads
	Output() error // commit raw writes
	Offline() error
	Exit() error

	InputByName(kind InputKind, name string) (model.InputID, bool)
	OutputByName(name string) (model.OutputID, bool)

	// InputValue/InputTime must succeed for every configured input once
	// Online() has returned, even before the first Input() call.
	InputValue(kind InputKind, id model.InputID) (int64, error)
	InputTime(kind InputKind, id model.InputID) (timekeep.Tick, error)

	// OutputStateSet updates a pending shadow; hardware reflects it only
	// after the next Output() call. It must be idempotent within a tick.
	OutputStateSet(id model.OutputID, on bool) error
	OutputStateGet(id model.OutputID) (bool, error)
}

// Registry indexes backend driver instances by unique name.
type Registry struct {
	mu       sync.RWMutex
	byName   map[string]Driver
	byHandle map[model.BackendID]Driver
	names    map[model.BackendID]string
	next     model.BackendID
}

// NewRegistry builds an empty backend registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:   make(map[string]Driver),
		byHandle: make(map[model.BackendID]Driver),
		names:    make(map[model.BackendID]string),
		next:     1,
	}
}

// Register adds a driver under name, calling its Setup hook. Returns the
// assigned BackendID.
func (r *Registry) Register(name string, d Driver) (model.BackendID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; exists {
		return 0, fmt.Errorf("hwbackend: backend %q already registered", name)
	}
	if err := d.Setup(name); err != nil {
		return 0, fmt.Errorf("hwbackend: setup %q: %w", name, err)
	}

	id := r.next
	r.next++
	r.byName[name] = d
	r.byHandle[id] = d
	r.names[id] = name
	return id, nil
}

// Lookup resolves a backend by its handle.
func (r *Registry) Lookup(id model.BackendID) (Driver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byHandle[id]
	return d, ok
}

// ByName resolves a backend by its configured name.
func (r *Registry) ByName(name string) (model.BackendID, Driver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byName[name]
	if !ok {
		return 0, nil, false
	}
	for id, n := range r.names {
		if n == name {
			return id, d, true
		}
	}
	return 0, nil, false
}

// All returns a stable-ordered snapshot of registered backend handles.
func (r *Registry) All() []model.BackendID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]model.BackendID, 0, len(r.byHandle))
	for id := range r.byHandle {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// OnlineAll brings every registered backend online, stopping at the first
// failure (a configuration-time error aborts startup per spec.md §7).
func (r *Registry) OnlineAll() error {
	for _, id := range r.All() {
		d, _ := r.Lookup(id)
		if err := d.Online(); err != nil {
			return fmt.Errorf("hwbackend: online %q: %w", r.names[id], err)
		}
	}
	return nil
}

// InputAll calls Input() on every registered backend; errors are collected
// rather than aborting, since a single backend failing to refresh degrades
// gracefully via the inputs aggregator's missing-source policy.
func (r *Registry) InputAll() []error {
	var errs []error
	for _, id := range r.All() {
		d, _ := r.Lookup(id)
		if err := d.Input(); err != nil {
			errs = append(errs, fmt.Errorf("hwbackend: input %q: %w", r.names[id], err))
		}
	}
	return errs
}

// OutputAll commits every registered backend's pending writes.
func (r *Registry) OutputAll() []error {
	var errs []error
	for _, id := range r.All() {
		d, _ := r.Lookup(id)
		if err := d.Output(); err != nil {
			errs = append(errs, fmt.Errorf("hwbackend: output %q: %w", r.names[id], err))
		}
	}
	return errs
}

// OfflineAll drives every backend to its failsafe state in reverse
// registration order, matching the shutdown sequencing of spec.md §5.
func (r *Registry) OfflineAll() {
	ids := r.All()
	for i := len(ids) - 1; i >= 0; i-- {
		d, _ := r.Lookup(ids[i])
		if err := d.Offline(); err != nil {
			_ = err // best-effort: offline must not block shutdown
		}
	}
}
