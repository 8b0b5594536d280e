// Package bmodel implements the building thermal models of spec.md §4.9: a
// first-order low-pass of outdoor temperature at four time constants
// (short "60s", the configured tau, a "mixed" shorter tau, and an
// "attenuated" longer tau), from which summer and frost flags are derived.
// It reuses lib.Ewma the same way the heating circuit's ambient model does,
// grounded on the teacher's temperature.Service pattern of a small owned
// state struct refreshed once per tick behind a lock.
package bmodel

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/oebus-project/rwchcd-go/internal/lib"
	"github.com/oebus-project/rwchcd-go/internal/timekeep"
)

// snapshotVersion tags the Snapshot wire format so Restore can reject blobs
// written by an incompatible build instead of silently misreading them.
const snapshotVersion = 1

// Params configures one building model instance.
type Params struct {
	Tau          timekeep.Tick // primary time constant
	MixedTau     timekeep.Tick // typically Tau/4
	AttenTau     timekeep.Tick // typically 3*Tau
	LimitTSummer lib.Temp
	LimitTFrost  lib.Temp
	Hysteresis   lib.Temp
}

// Model is one building's filtered outdoor-temperature state.
type Model struct {
	params Params

	mu         sync.RWMutex
	lastTick   timekeep.Tick
	filtered   lib.Temp // at Tau
	mixed      lib.Temp // at MixedTau
	attenuated lib.Temp // at AttenTau
	short      lib.Temp // 60s filter, used by the circuit's outdoor-cutoff test
	summer     bool
	frost      bool
	seeded     bool
}

// New builds a Model with the given parameters.
func New(p Params) *Model {
	return &Model{params: p}
}

// Run refreshes every filter from a fresh outdoor reading. now is the
// current tick; outdoor must already be validated by the caller.
func (m *Model) Run(now timekeep.Tick, outdoor lib.Temp) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.seeded {
		m.filtered = outdoor
		m.mixed = outdoor
		m.attenuated = outdoor
		m.short = outdoor
		m.lastTick = now
		m.seeded = true
		m.recomputeFlagsLocked()
		return
	}

	dt := now - m.lastTick
	m.lastTick = now

	m.filtered = lib.Ewma(m.filtered, outdoor, m.params.Tau, dt)
	m.mixed = lib.Ewma(m.mixed, outdoor, m.params.MixedTau, dt)
	m.attenuated = lib.Ewma(m.attenuated, outdoor, m.params.AttenTau, dt)
	m.short = lib.Ewma(m.short, outdoor, timekeep.SecToTick(60), dt)

	m.recomputeFlagsLocked()
}

// recomputeFlagsLocked must be called with mu held.
func (m *Model) recomputeFlagsLocked() {
	allAboveSummer := m.short > m.params.LimitTSummer &&
		m.mixed > m.params.LimitTSummer &&
		m.attenuated > m.params.LimitTSummer

	if allAboveSummer {
		m.summer = true
	} else {
		belowHyst := m.short < m.params.LimitTSummer-m.params.Hysteresis &&
			m.mixed < m.params.LimitTSummer-m.params.Hysteresis &&
			m.attenuated < m.params.LimitTSummer-m.params.Hysteresis
		if belowHyst {
			m.summer = false
		}
	}

	m.frost = m.short < m.params.LimitTFrost ||
		m.mixed < m.params.LimitTFrost ||
		m.attenuated < m.params.LimitTFrost
}

// Filtered returns the primary-tau filtered outdoor temperature.
func (m *Model) Filtered() lib.Temp { m.mu.RLock(); defer m.mu.RUnlock(); return m.filtered }

// Mixed returns the short-tau filtered outdoor temperature.
func (m *Model) Mixed() lib.Temp { m.mu.RLock(); defer m.mu.RUnlock(); return m.mixed }

// Attenuated returns the long-tau filtered outdoor temperature.
func (m *Model) Attenuated() lib.Temp { m.mu.RLock(); defer m.mu.RUnlock(); return m.attenuated }

// Short returns the 60-second filtered outdoor temperature used by the
// heating circuit's outdoor-cutoff test.
func (m *Model) Short() lib.Temp { m.mu.RLock(); defer m.mu.RUnlock(); return m.short }

// Summer reports whether every filter currently reads above the summer
// threshold (with hysteresis applied on the way back down).
func (m *Model) Summer() bool { m.mu.RLock(); defer m.mu.RUnlock(); return m.summer }

// Frost reports whether any filter currently reads below the frost
// threshold.
func (m *Model) Frost() bool { m.mu.RLock(); defer m.mu.RUnlock(); return m.frost }

// Tau returns the model's primary time constant, needed by consumers (the
// heating circuit's ambient model) that derive their own tau from it.
func (m *Model) Tau() timekeep.Tick { return m.params.Tau }

// Snapshot encodes the filter state into an opaque blob suitable for
// plantstore.Store.Dump, so a restart resumes filtering from the last known
// outdoor temperature rather than reseeding from whatever the sensor reads
// on the first tick after boot.
func (m *Model) Snapshot() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	buf := make([]byte, 1+8+8*4+1+1)
	buf[0] = snapshotVersion
	off := 1
	binary.BigEndian.PutUint64(buf[off:], uint64(m.lastTick))
	off += 8
	for _, t := range []lib.Temp{m.filtered, m.mixed, m.attenuated, m.short} {
		binary.BigEndian.PutUint64(buf[off:], uint64(t))
		off += 8
	}
	buf[off] = boolToByte(m.summer)
	off++
	buf[off] = boolToByte(m.frost)
	return buf
}

// Restore decodes a blob produced by Snapshot and seeds the filters from it.
// An unrecognized version or short buffer is reported rather than applied.
func (m *Model) Restore(data []byte) error {
	const wantLen = 1 + 8 + 8*4 + 1 + 1
	if len(data) != wantLen {
		return fmt.Errorf("bmodel: restore: unexpected snapshot length %d", len(data))
	}
	if data[0] != snapshotVersion {
		return fmt.Errorf("bmodel: restore: unsupported snapshot version %d", data[0])
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	off := 1
	m.lastTick = timekeep.Tick(binary.BigEndian.Uint64(data[off:]))
	off += 8
	m.filtered = lib.Temp(binary.BigEndian.Uint64(data[off:]))
	off += 8
	m.mixed = lib.Temp(binary.BigEndian.Uint64(data[off:]))
	off += 8
	m.attenuated = lib.Temp(binary.BigEndian.Uint64(data[off:]))
	off += 8
	m.short = lib.Temp(binary.BigEndian.Uint64(data[off:]))
	off += 8
	m.summer = data[off] != 0
	off++
	m.frost = data[off] != 0
	m.seeded = true

	return nil
}

func boolToByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
