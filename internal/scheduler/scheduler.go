// Package scheduler defines the scheduler boundary of spec.md §6: a
// cron-like time table external to the core, queried by heating circuits
// and DHW tanks for the entry currently in force for their schedule id. The
// core only consumes this contract; the cron evaluation itself lives
// outside this module, the same way the teacher treats its database as an
// external collaborator behind the db package's query functions rather than
// something zonecontroller implements itself.
package scheduler

import (
	"sync"

	"github.com/oebus-project/rwchcd-go/internal/model"
)

// Entry is the schedule state in force at a given instant for one schedule
// id.
type Entry struct {
	RunMode   model.RunMode
	DHWMode   model.RunMode
	Legionella bool
	Recycle    bool
}

// Source is the contract a scheduler implementation provides. Current must
// never block: entities call it from inside the single-threaded tick pass.
type Source interface {
	Current(id model.ScheduleID) (Entry, bool)
}

// Static is a Source backed by an in-memory map, useful for tests and for
// deployments that configure schedules once at startup without a live cron
// evaluator.
type Static struct {
	mu      sync.RWMutex
	entries map[model.ScheduleID]Entry
}

// NewStatic builds a Static scheduler source from a fixed entry set.
func NewStatic(entries map[model.ScheduleID]Entry) *Static {
	cp := make(map[model.ScheduleID]Entry, len(entries))
	for k, v := range entries {
		cp[k] = v
	}
	return &Static{entries: cp}
}

// Current implements Source.
func (s *Static) Current(id model.ScheduleID) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

// Set updates or inserts the entry for id, atomically with respect to
// concurrent Current calls from the tick thread.
func (s *Static) Set(id model.ScheduleID, e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = e
}
