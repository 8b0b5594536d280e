// Package model holds the plant's data model: handle types, run modes,
// per-entity configuration parameters, and the small dense-integer
// cross-reference scheme entities use to address their peers (spec.md §9:
// "a clean rewrite expresses cross-references as small stable indices into
// the plant's typed arenas"). It plays the role the teacher's
// internal/model package plays for zones/devices, generalized to the wider
// plant graph.
package model

// Handles are dense small integers into typed arenas. Zero is reserved as
// "unset" in every namespace below.
type (
	BackendID  uint32
	InputID    uint32 // scoped to a backend
	OutputID   uint32 // scoped to a backend
	LogInputID uint32 // into the inputs aggregator
	LogOutID   uint32 // into the outputs aggregator
	ScheduleID uint32
	BModelID   uint32
	PumpID     uint32
	ValveID    uint32
	CircuitID  uint32
	DHWTID     uint32
	HSourceID  uint32
)

// Unset is the zero value shared by every handle namespace.
const Unset = 0

// Valid reports whether a handle value is not the "unset" sentinel.
func (h BackendID) Valid() bool  { return h != Unset }
func (h InputID) Valid() bool    { return h != Unset }
func (h OutputID) Valid() bool   { return h != Unset }
func (h LogInputID) Valid() bool { return h != Unset }
func (h LogOutID) Valid() bool   { return h != Unset }
func (h ScheduleID) Valid() bool { return h != Unset }
func (h BModelID) Valid() bool   { return h != Unset }
func (h PumpID) Valid() bool     { return h != Unset }
func (h ValveID) Valid() bool    { return h != Unset }
func (h CircuitID) Valid() bool  { return h != Unset }
func (h DHWTID) Valid() bool     { return h != Unset }
func (h HSourceID) Valid() bool  { return h != Unset }
